// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package session

// StartReason is the host environment's record of how the program was
// launched
type StartReason int

// Start reasons reported by the hub firmware
const (
	StartReasonUnknown StartReason = 0
	StartReasonBoot    StartReason = 1
	StartReasonButton  StartReason = 2
	StartReasonHost    StartReason = 3 // launched by an attached host tool
)

func (r StartReason) String() string {
	switch r {
	case StartReasonBoot:
		return "boot"
	case StartReasonButton:
		return "button"
	case StartReasonHost:
		return "host"
	default:
		return "unknown"
	}
}

// Gate reports why the program started. Debugging only activates for
// StartReasonHost.
type Gate interface {
	StartReason() StartReason
}

// GateFunc adapts a function to Gate
type GateFunc func() StartReason

func (f GateFunc) StartReason() StartReason { return f() }

// StaticGate always reports the same reason
type StaticGate StartReason

func (g StaticGate) StartReason() StartReason { return StartReason(g) }

// Display shows the trapped line number on the device
type Display interface {
	ShowNumber(n int)
}

// DisplayFunc adapts a function to Display
type DisplayFunc func(n int)

func (f DisplayFunc) ShowNumber(n int) { f(n) }
