// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package aipp

import "fmt"

// Reassembler rebuilds messages from chunks observed one at a time.
//
// A START chunk always discards any partial message, a continuation chunk
// with no message in progress is dropped, and an END chunk completes the
// message and verifies its checksum. After an error the reassembler is
// idle and ready for the next START.
type Reassembler struct {
	framer *Framer
	buffer []byte
	active bool
}

// NewReassembler creates a reassembler that uses f for marker and checksum rules
func NewReassembler(f *Framer) *Reassembler {
	return &Reassembler{
		framer: f,
		buffer: make([]byte, 0, MaxMessageSize+1),
	}
}

// Reset drops any partial message
func (r *Reassembler) Reset() {
	r.buffer = r.buffer[:0]
	r.active = false
}

// InProgress reports whether a partial message is buffered
func (r *Reassembler) InProgress() bool {
	return r.active
}

// Push feeds one chunk. It returns the completed message and true once an
// END chunk closes a message with a valid checksum.
func (r *Reassembler) Push(chunk []byte) ([]byte, bool, error) {
	if len(chunk) < ChunkOverhead {
		r.Reset()
		return nil, false, fmt.Errorf("%w: chunk too short (%d bytes)", ErrBadMarker, len(chunk))
	}

	marker := chunk[0]
	terminator := chunk[len(chunk)-1]
	if terminator != TerminatorEnd && terminator != TerminatorMore {
		r.Reset()
		return nil, false, fmt.Errorf("%w: bad terminator 0x%02X", ErrBadMarker, terminator)
	}

	switch {
	case marker == r.framer.startMarker && (marker != MarkerContinuation || !r.active):
		r.Reset()
		r.active = true
	case marker == MarkerContinuation:
		if !r.active {
			return nil, false, fmt.Errorf("%w: continuation without start", ErrBadMarker)
		}
	default:
		r.Reset()
		return nil, false, fmt.Errorf("%w: unexpected marker 0x%02X", ErrBadMarker, marker)
	}

	r.buffer = append(r.buffer, chunk[1:len(chunk)-1]...)
	if len(r.buffer) > MaxMessageSize+1 {
		r.Reset()
		return nil, false, fmt.Errorf("%w: more than %d bytes buffered", ErrMessageTooLarge, MaxMessageSize)
	}

	if terminator != TerminatorEnd {
		return nil, false, nil
	}

	data := append([]byte(nil), r.buffer...)
	r.Reset()

	message, err := r.framer.split(data)
	if err != nil {
		return nil, false, err
	}
	if len(message) == 0 {
		return nil, false, nil
	}
	return message, true, nil
}
