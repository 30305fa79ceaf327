// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The BlocklyPy AIPP Authors

// Package aipp implements the AppData Instrumentation Protocol codec.
//
// AIPP carries debug and plot messages between a host tool and a small
// device over a channel that only exposes a single, overwrite-only buffer.
// Messages are split into MTU-bounded chunks, each with a position marker
// and a continuation terminator, and the reassembled message carries a
// trailing sum-mod-256 checksum. This package provides chunk framing,
// streaming reassembly, message encoding/decoding and payload formatting.
package aipp

// Chunk markers and terminators
const (
	MarkerStart        = 0xFE
	MarkerContinuation = 0xFF
	TerminatorMore     = 0xFF
	TerminatorEnd      = 0x00
)

// Channel sentinel: a raw buffer starting with this byte carries nothing new
const Sentinel = 0x00

// Size limits
const (
	DefaultMTU     = 19   // max appdata packet payload on the hub
	MinMTU         = 3    // marker + one payload byte + terminator
	ChunkOverhead  = 2    // marker + terminator
	MaxMessageSize = 1024 // largest reassembled message accepted
	MaxEntries     = 255  // count byte limit for variable/plot lists
)

// MessageType is the first byte of every message
type MessageType byte

// Message types
const (
	MsgDebugAcknowledge  MessageType = 0x70 // host → device debug traffic
	MsgDebugNotification MessageType = 0x71 // device → host debug traffic
	MsgPlotAcknowledge   MessageType = 0x72
	MsgPlotNotification  MessageType = 0x73
)

// SubCode is the second byte of a debug message
type SubCode byte

// Debug subcodes. Even codes travel host → device, odd codes device → host.
const (
	SubStartAck          SubCode = 0x00
	SubStartNotify       SubCode = 0x01
	SubTrapAck           SubCode = 0x02
	SubTrapNotify        SubCode = 0x03
	SubContinueRequest   SubCode = 0x04
	SubContinueResponse  SubCode = 0x05
	SubGetVarRequest     SubCode = 0x06
	SubGetVarResponse    SubCode = 0x07
	SubSetVarRequest     SubCode = 0x08
	SubSetVarResponse    SubCode = 0x09
	SubTerminateRequest  SubCode = 0x0A
	SubTerminateResponse SubCode = 0x0B

	subMax = SubTerminateResponse
)

// PlotSubCode is the second byte of a plot message
type PlotSubCode byte

// Plot subcodes
const (
	PlotAck         PlotSubCode = 0x00
	PlotDefine      PlotSubCode = 0x01
	PlotUpdateCells PlotSubCode = 0x02
	PlotUpdateRow   PlotSubCode = 0x03
)

// Tag identifies the payload encoding of a typed variable
type Tag byte

// Typed variable tags
const (
	TagNone   Tag = 0
	TagInt    Tag = 1
	TagFloat  Tag = 2
	TagString Tag = 3
	TagBool   Tag = 4
)

// Direction returns the outer message type a debug subcode travels under
func (s SubCode) Direction() MessageType {
	if s&0x01 == 0 {
		return MsgDebugAcknowledge
	}
	return MsgDebugNotification
}

// Valid reports whether the subcode is defined
func (s SubCode) Valid() bool {
	return s <= subMax
}

// IsDebug reports whether the message type carries a debug subcode
func (t MessageType) IsDebug() bool {
	return t == MsgDebugAcknowledge || t == MsgDebugNotification
}

// IsPlot reports whether the message type carries a plot subcode
func (t MessageType) IsPlot() bool {
	return t == MsgPlotAcknowledge || t == MsgPlotNotification
}
