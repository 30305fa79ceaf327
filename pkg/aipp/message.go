// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package aipp

import (
	"fmt"
	"time"
)

// Message is a decoded AIPP message of any type
type Message struct {
	Type  MessageType
	Debug DebugMessage // set when Type.IsDebug()
	Plot  PlotMessage  // set when Type.IsPlot()

	raw       []byte
	timestamp time.Time
}

// NewDebug wraps a debug message
func NewDebug(m DebugMessage) Message {
	return Message{Type: m.Type(), Debug: m}
}

// NewPlot wraps a plot message
func NewPlot(m PlotMessage) Message {
	return Message{Type: m.Type(), Plot: m}
}

// Raw returns the bytes the message was decoded from
func (m Message) Raw() []byte {
	return m.raw
}

// Timestamp returns when the message was decoded
func (m Message) Timestamp() time.Time {
	return m.timestamp
}

// Is reports whether m is a debug message with the given subcode
func (m Message) Is(sub SubCode) bool {
	return m.Type.IsDebug() && m.Debug.SubCode == sub
}

// DecodeMessage dispatches on the outer type byte
func DecodeMessage(data []byte) (Message, error) {
	if len(data) < 1 {
		return Message{}, fmt.Errorf("%w: empty message", ErrTruncated)
	}

	msg := Message{
		Type:      MessageType(data[0]),
		raw:       append([]byte(nil), data...),
		timestamp: time.Now(),
	}

	var err error
	switch {
	case msg.Type.IsDebug():
		msg.Debug, err = DecodeDebug(data)
	case msg.Type.IsPlot():
		msg.Plot, err = DecodePlot(data)
	default:
		return Message{}, fmt.Errorf("%w: 0x%02X", ErrUnknownType, data[0])
	}
	if err != nil {
		return Message{}, err
	}
	return msg, nil
}

// EncodeMessage serializes a debug or plot message
func EncodeMessage(m Message) ([]byte, error) {
	switch {
	case m.Type.IsDebug():
		return EncodeDebug(m.Debug)
	case m.Type.IsPlot():
		return EncodePlot(m.Plot)
	default:
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownType, byte(m.Type))
	}
}
