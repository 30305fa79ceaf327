// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The BlocklyPy AIPP Authors

// Package channel provides single-slot, overwrite-only byte channels.
//
// A Slot holds exactly one value: every write replaces what the peer will
// read next, and nothing is queued. Implementations cover an in-process
// link, a byte stream (serial port) and a WebSocket connection. Driver adds
// change detection on top of a Slot.
package channel

import (
	"errors"
	"sync"
)

// ErrClosed is returned by slots after Close or after the underlying
// connection has gone away
var ErrClosed = errors.New("channel: slot closed")

// Slot is a best-effort single-value channel. Write replaces the value the
// peer reads; Read returns the newest value received from the peer.
type Slot interface {
	Write(p []byte) error
	Read() ([]byte, error)
	Close() error
}

// latch keeps the newest value written to it
type latch struct {
	mu     sync.Mutex
	value  []byte
	closed bool
}

func (l *latch) store(p []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.value = append(l.value[:0], p...)
	return nil
}

func (l *latch) load() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	return append([]byte(nil), l.value...), nil
}

func (l *latch) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
}
