// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package aipp

import (
	"fmt"
	"strings"
)

// FormatMessage formats a message into a human-readable string
func FormatMessage(m Message) string {
	timestamp := m.timestamp.Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s (0x%02X)", timestamp, FormatMessageType(m.Type), byte(m.Type))

	switch {
	case m.Type.IsDebug():
		result += " " + SubCodeName(m.Debug.SubCode) + FormatDebugBody(m.Debug)
	case m.Type.IsPlot():
		result += " " + PlotSubCodeName(m.Plot.SubCode) + FormatPlotBody(m.Plot)
	}
	return result + "\n"
}

// FormatMessageType returns the human-readable name for a message type
func FormatMessageType(t MessageType) string {
	switch t {
	case MsgDebugAcknowledge:
		return "DEBUG_ACK"
	case MsgDebugNotification:
		return "DEBUG_NOTIFY"
	case MsgPlotAcknowledge:
		return "PLOT_ACK"
	case MsgPlotNotification:
		return "PLOT_NOTIFY"
	default:
		return "UNKNOWN"
	}
}

// SubCodeName returns the human-readable name for a debug subcode
func SubCodeName(s SubCode) string {
	switch s {
	case SubStartAck:
		return "START_ACK"
	case SubStartNotify:
		return "START_NOTIFY"
	case SubTrapAck:
		return "TRAP_ACK"
	case SubTrapNotify:
		return "TRAP_NOTIFY"
	case SubContinueRequest:
		return "CONTINUE_REQUEST"
	case SubContinueResponse:
		return "CONTINUE_RESPONSE"
	case SubGetVarRequest:
		return "GETVAR_REQUEST"
	case SubGetVarResponse:
		return "GETVAR_RESPONSE"
	case SubSetVarRequest:
		return "SETVAR_REQUEST"
	case SubSetVarResponse:
		return "SETVAR_RESPONSE"
	case SubTerminateRequest:
		return "TERMINATE_REQUEST"
	case SubTerminateResponse:
		return "TERMINATE_RESPONSE"
	default:
		return fmt.Sprintf("SUBCODE_0x%02X", byte(s))
	}
}

// PlotSubCodeName returns the human-readable name for a plot subcode
func PlotSubCodeName(s PlotSubCode) string {
	switch s {
	case PlotAck:
		return "ACK"
	case PlotDefine:
		return "DEFINE"
	case PlotUpdateCells:
		return "UPDATE_CELLS"
	case PlotUpdateRow:
		return "UPDATE_ROW"
	default:
		return fmt.Sprintf("SUBCODE_0x%02X", byte(s))
	}
}

// FormatDebugBody formats the subcode-specific fields of a debug message
func FormatDebugBody(m DebugMessage) string {
	switch m.SubCode {
	case SubStartAck, SubTrapAck:
		return fmt.Sprintf(" success=%t", m.Success)
	case SubContinueRequest:
		return fmt.Sprintf(" step=%t", m.Step)
	case SubTrapNotify:
		return fmt.Sprintf(" %s:%d %s", m.File, m.Line, FormatBindings(m.Bindings))
	case SubGetVarRequest:
		return " " + m.Name
	case SubGetVarResponse, SubSetVarRequest:
		return fmt.Sprintf(" %s=%s (%s)", m.Name, m.Value, TagName(m.Value.Tag()))
	case SubSetVarResponse:
		if m.Error == "" {
			return " ok"
		}
		return fmt.Sprintf(" error=%q", m.Error)
	default:
		return ""
	}
}

// FormatPlotBody formats the subcode-specific fields of a plot message
func FormatPlotBody(m PlotMessage) string {
	switch m.SubCode {
	case PlotDefine:
		return " [" + strings.Join(m.Columns, ", ") + "]"
	case PlotUpdateCells:
		parts := make([]string, len(m.Cells))
		for i, cell := range m.Cells {
			parts[i] = fmt.Sprintf("%s=%g", cell.Name, cell.Value)
		}
		return " {" + strings.Join(parts, ", ") + "}"
	case PlotUpdateRow:
		parts := make([]string, len(m.Row))
		for i, v := range m.Row {
			parts[i] = fmt.Sprintf("%g", v)
		}
		return " [" + strings.Join(parts, ", ") + "]"
	default:
		return ""
	}
}

// FormatBindings formats bindings as {name=value, ...}
func FormatBindings(b Bindings) string {
	parts := make([]string, len(b))
	for i, binding := range b {
		parts[i] = binding.Name + "=" + binding.Value.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// FormatChunk formats a raw chunk as marker, payload hex and terminator
func FormatChunk(chunk []byte) string {
	if len(chunk) < ChunkOverhead {
		return fmt.Sprintf("<short chunk % X>", chunk)
	}
	marker := "CONT"
	if chunk[0] == MarkerStart {
		marker = "START"
	} else if chunk[0] != MarkerContinuation {
		marker = fmt.Sprintf("?%02X", chunk[0])
	}
	terminator := "MORE"
	if chunk[len(chunk)-1] == TerminatorEnd {
		terminator = "END"
	} else if chunk[len(chunk)-1] != TerminatorMore {
		terminator = fmt.Sprintf("?%02X", chunk[len(chunk)-1])
	}
	return fmt.Sprintf("%-5s % X %s", marker, chunk[1:len(chunk)-1], terminator)
}
