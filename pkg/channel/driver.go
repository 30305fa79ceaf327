// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package channel

import (
	"bytes"

	"github.com/blocklypy/aipp/pkg/aipp"
)

// Driver wraps a Slot and remembers the last value it observed, so callers
// only see values that changed since the previous read
type Driver struct {
	slot Slot
	mtu  int
	last []byte
}

// NewDriver creates a driver comparing the first mtu bytes of each read
func NewDriver(slot Slot, mtu int) *Driver {
	return &Driver{slot: slot, mtu: mtu}
}

// Slot returns the wrapped slot
func (d *Driver) Slot() Slot {
	return d.slot
}

// Send writes one chunk. A failed write is not fatal; the caller's resend
// policy covers it.
func (d *Driver) Send(chunk []byte) error {
	return d.slot.Write(chunk)
}

// ReadLatest returns the newest raw value without change detection
func (d *Driver) ReadLatest() ([]byte, error) {
	return d.slot.Read()
}

// Next returns the current value if it differs from the previously observed
// one. Empty values and values starting with the sentinel byte count as
// nothing new.
func (d *Driver) Next() ([]byte, bool) {
	data, err := d.slot.Read()
	if err != nil || len(data) == 0 || data[0] == aipp.Sentinel {
		return nil, false
	}
	if bytes.Equal(d.prefix(data), d.prefix(d.last)) {
		return nil, false
	}
	d.last = append(d.last[:0], data...)
	return data, true
}

// Forget clears the remembered value so the current one is reported again
func (d *Driver) Forget() {
	d.last = d.last[:0]
}

// Close closes the wrapped slot
func (d *Driver) Close() error {
	return d.slot.Close()
}

func (d *Driver) prefix(b []byte) []byte {
	if d.mtu > 0 && len(b) > d.mtu {
		return b[:d.mtu]
	}
	return b
}
