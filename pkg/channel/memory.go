// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package channel

// MemorySlot is a single in-process slot: whatever was written last is
// what Read returns
type MemorySlot struct {
	l latch
}

// NewMemorySlot creates an empty slot
func NewMemorySlot() *MemorySlot {
	return &MemorySlot{}
}

func (m *MemorySlot) Write(p []byte) error  { return m.l.store(p) }
func (m *MemorySlot) Read() ([]byte, error) { return m.l.load() }

func (m *MemorySlot) Close() error {
	m.l.close()
	return nil
}

// Endpoint is one side of an in-process link. Writes land in the peer's
// slot, reads come from this side's slot.
type Endpoint struct {
	inbound  *MemorySlot
	outbound *MemorySlot
}

// NewLink creates two connected endpoints, typically a host and a device
func NewLink() (*Endpoint, *Endpoint) {
	a := NewMemorySlot()
	b := NewMemorySlot()
	return &Endpoint{inbound: a, outbound: b}, &Endpoint{inbound: b, outbound: a}
}

func (e *Endpoint) Write(p []byte) error  { return e.outbound.Write(p) }
func (e *Endpoint) Read() ([]byte, error) { return e.inbound.Read() }

// Close closes both directions of the link
func (e *Endpoint) Close() error {
	e.inbound.Close()
	return e.outbound.Close()
}
