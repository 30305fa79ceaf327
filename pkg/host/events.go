// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package host

import (
	"fmt"
	"time"

	"github.com/blocklypy/aipp/pkg/aipp"
)

// EventType identifies what a device notification meant for the host
type EventType int

const (
	EventStarted     EventType = iota // device requested a debug session
	EventTrapped                      // device stopped at a trap
	EventResumed                      // device confirmed a continue
	EventVariableSet                  // device answered SetVariable
	EventVariable                     // device answered GetVariable
	EventTerminated                   // session terminated by the host
	EventPlot                         // plot table changed
	EventTimeout                      // command resent MaxResends times without answer
)

func (t EventType) String() string {
	switch t {
	case EventStarted:
		return "started"
	case EventTrapped:
		return "trapped"
	case EventResumed:
		return "resumed"
	case EventVariableSet:
		return "variable-set"
	case EventVariable:
		return "variable"
	case EventTerminated:
		return "terminated"
	case EventPlot:
		return "plot"
	case EventTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is delivered on Debugger.Events. Only the fields relevant to Type
// are set.
type Event struct {
	Type EventType
	At   time.Time

	File     string        // EventTrapped
	Line     uint16        // EventTrapped
	Bindings aipp.Bindings // EventTrapped, EventVariableSet

	Name  string     // EventVariable, EventVariableSet, EventTimeout
	Value aipp.Value // EventVariable
	Error string     // EventVariableSet, empty on success
	Step  bool       // EventResumed

	Plot aipp.PlotMessage // EventPlot
}

// String formats the event for line-mode output
func (e Event) String() string {
	switch e.Type {
	case EventTrapped:
		return fmt.Sprintf("trapped at %s:%d %s", e.File, e.Line, aipp.FormatBindings(e.Bindings))
	case EventResumed:
		if e.Step {
			return "resumed (step)"
		}
		return "resumed"
	case EventVariableSet:
		if e.Error != "" {
			return fmt.Sprintf("set %s failed: %s", e.Name, e.Error)
		}
		return fmt.Sprintf("set %s ok", e.Name)
	case EventVariable:
		return fmt.Sprintf("%s = %s", e.Name, e.Value)
	case EventPlot:
		return "plot " + aipp.FormatPlotBody(e.Plot)
	case EventTimeout:
		return fmt.Sprintf("%s not answered", e.Name)
	default:
		return e.Type.String()
	}
}
