// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package tunnel

import (
	"os"
	"os/signal"
	"sync/atomic"
)

// Trigger is an operator override checked once per wait iteration. Fired
// reports and consumes a pending activation.
type Trigger interface {
	Fired() bool
}

// TriggerFunc adapts a function to Trigger
type TriggerFunc func() bool

func (f TriggerFunc) Fired() bool { return f() }

// ManualTrigger is fired programmatically, e.g. from a key press
type ManualTrigger struct {
	pending atomic.Bool
}

// Fire arms the trigger for the next check
func (m *ManualTrigger) Fire() {
	m.pending.Store(true)
}

func (m *ManualTrigger) Fired() bool {
	return m.pending.Swap(false)
}

// SignalTrigger fires when the process receives one of the given signals
type SignalTrigger struct {
	signals chan os.Signal
}

// NewSignalTrigger starts listening for sigs
func NewSignalTrigger(sigs ...os.Signal) *SignalTrigger {
	s := &SignalTrigger{signals: make(chan os.Signal, 1)}
	signal.Notify(s.signals, sigs...)
	return s
}

func (s *SignalTrigger) Fired() bool {
	select {
	case <-s.signals:
		return true
	default:
		return false
	}
}

// Stop stops listening for signals
func (s *SignalTrigger) Stop() {
	signal.Stop(s.signals)
}
