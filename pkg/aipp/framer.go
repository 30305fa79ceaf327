// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package aipp

import "fmt"

// Framer splits messages into MTU-bounded chunks and joins them back
type Framer struct {
	mtu            int
	startMarker    byte
	verifyChecksum bool
	pad            bool
}

// FramerOption configures a Framer
type FramerOption func(*Framer)

// WithLegacyMarkers uses 0xFF for the first chunk as well, so chunks are
// distinguished by position only
func WithLegacyMarkers() FramerOption {
	return func(f *Framer) {
		f.startMarker = MarkerContinuation
	}
}

// WithoutChecksumVerification makes Decode return the message even when the
// trailing checksum does not match
func WithoutChecksumVerification() FramerOption {
	return func(f *Framer) {
		f.verifyChecksum = false
	}
}

// WithPadding fills the last chunk with zeros so every chunk is exactly MTU
// bytes. The checksum stays the last payload byte and is unaffected by the
// padding; decoded messages then carry trailing zeros.
func WithPadding() FramerOption {
	return func(f *Framer) {
		f.pad = true
	}
}

// NewFramer creates a framer for the given MTU (marker and terminator included)
func NewFramer(mtu int, opts ...FramerOption) (*Framer, error) {
	if mtu < MinMTU {
		return nil, fmt.Errorf("%w: %d (min %d)", ErrInvalidMTU, mtu, MinMTU)
	}
	f := &Framer{
		mtu:            mtu,
		startMarker:    MarkerStart,
		verifyChecksum: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// MTU returns the chunk size limit
func (f *Framer) MTU() int {
	return f.mtu
}

// PayloadSize returns the number of message bytes carried per chunk
func (f *Framer) PayloadSize() int {
	return f.mtu - ChunkOverhead
}

// StartMarker returns the marker placed on the first chunk
func (f *Framer) StartMarker() byte {
	return f.startMarker
}

// ChunkCount returns how many chunks Encode produces for a message of n bytes
func (f *Framer) ChunkCount(n int) int {
	p := f.PayloadSize()
	return (n + 1 + p - 1) / p
}

// Encode appends the checksum to message and slices it into chunks.
// At least one chunk is produced, even for an empty message.
func (f *Framer) Encode(message []byte) [][]byte {
	p := f.PayloadSize()

	data := make([]byte, 0, len(message)+p)
	data = append(data, message...)
	if f.pad {
		if rem := (len(message) + 1) % p; rem != 0 {
			data = append(data, make([]byte, p-rem)...)
		}
	}
	data = append(data, Checksum(message))

	chunks := make([][]byte, 0, f.ChunkCount(len(message)))
	for offset := 0; offset < len(data); offset += p {
		n := min(p, len(data)-offset)

		chunk := make([]byte, 0, n+ChunkOverhead)
		if offset == 0 {
			chunk = append(chunk, f.startMarker)
		} else {
			chunk = append(chunk, MarkerContinuation)
		}
		chunk = append(chunk, data[offset:offset+n]...)
		if offset+n >= len(data) {
			chunk = append(chunk, TerminatorEnd)
		} else {
			chunk = append(chunk, TerminatorMore)
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// Decode joins an ordered sequence of chunks into the original message.
// Accumulation stops at the first END terminator. An empty accumulation
// returns nil without error.
func (f *Framer) Decode(chunks ...[]byte) ([]byte, error) {
	var data []byte
	for i, chunk := range chunks {
		if len(chunk) < ChunkOverhead {
			return nil, fmt.Errorf("%w: chunk %d too short (%d bytes)", ErrBadMarker, i, len(chunk))
		}
		expected := byte(MarkerContinuation)
		if i == 0 {
			expected = f.startMarker
		}
		if chunk[0] != expected {
			return nil, fmt.Errorf("%w: chunk %d has 0x%02X, expected 0x%02X", ErrBadMarker, i, chunk[0], expected)
		}

		data = append(data, chunk[1:len(chunk)-1]...)
		if len(data) > MaxMessageSize+1 {
			return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(data))
		}
		if chunk[len(chunk)-1] == TerminatorEnd {
			break
		}
	}
	return f.split(data)
}

func (f *Framer) split(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	message := data[:len(data)-1]
	checksum := data[len(data)-1]
	if f.verifyChecksum {
		if calculated := Checksum(message); calculated != checksum {
			return nil, fmt.Errorf("%w: expected 0x%02X, got 0x%02X", ErrChecksumMismatch, calculated, checksum)
		}
	}
	return message, nil
}
