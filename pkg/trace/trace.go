// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The BlocklyPy AIPP Authors

// Package trace records and replays raw slot traffic.
//
// A trace is a CBOR sequence: one Header item followed by one Record item
// per chunk written to or changed in the slot.
package trace

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// Version is the trace format version written in the header
const Version = 1

// ErrBadHeader is returned when a trace does not start with a valid header
var ErrBadHeader = errors.New("trace: invalid header")

// Direction of a recorded chunk relative to the recording side
type Direction uint8

const (
	Outbound Direction = iota // written by the recorder
	Inbound                   // read from the peer
)

func (d Direction) String() string {
	switch d {
	case Outbound:
		return "tx"
	case Inbound:
		return "rx"
	default:
		return fmt.Sprintf("dir(%d)", uint8(d))
	}
}

// Header opens a trace
type Header struct {
	Version   int       `cbor:"1,keyasint"`
	SessionID string    `cbor:"2,keyasint"`
	MTU       int       `cbor:"3,keyasint"`
	Started   time.Time `cbor:"4,keyasint"`
}

// Record is one chunk
type Record struct {
	At        time.Time `cbor:"1,keyasint"`
	Direction Direction `cbor:"2,keyasint"`
	Data      []byte    `cbor:"3,keyasint"`
}

var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Writer appends records to a trace
type Writer struct {
	mu     sync.Mutex
	enc    *cbor.Encoder
	header Header
}

// NewWriter writes a header with a fresh session id to w
func NewWriter(w io.Writer, mtu int) (*Writer, error) {
	header := Header{
		Version:   Version,
		SessionID: uuid.New().String(),
		MTU:       mtu,
		Started:   time.Now().UTC(),
	}
	enc := encMode.NewEncoder(w)
	if err := enc.Encode(header); err != nil {
		return nil, fmt.Errorf("write trace header: %w", err)
	}
	return &Writer{enc: enc, header: header}, nil
}

// Header returns the header written at creation
func (w *Writer) Header() Header {
	return w.header
}

// Record appends one chunk
func (w *Writer) Record(dir Direction, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	rec := Record{At: time.Now().UTC(), Direction: dir, Data: data}
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("write trace record: %w", err)
	}
	return nil
}

// Reader reads a trace
type Reader struct {
	dec    *cbor.Decoder
	header Header
}

// NewReader reads and validates the header
func NewReader(r io.Reader) (*Reader, error) {
	dec := cbor.NewDecoder(r)
	var header Header
	if err := dec.Decode(&header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	if header.Version != Version {
		return nil, fmt.Errorf("%w: version %d", ErrBadHeader, header.Version)
	}
	if _, err := uuid.Parse(header.SessionID); err != nil {
		return nil, fmt.Errorf("%w: session id: %v", ErrBadHeader, err)
	}
	return &Reader{dec: dec, header: header}, nil
}

// Header returns the trace header
func (r *Reader) Header() Header {
	return r.header
}

// SessionID returns the parsed session id
func (r *Reader) SessionID() uuid.UUID {
	return uuid.MustParse(r.header.SessionID)
}

// Next returns the next record, or io.EOF after the last one
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("read trace record: %w", err)
	}
	return rec, nil
}
