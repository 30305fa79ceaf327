// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package aipp

import (
	"encoding/binary"
	"fmt"
)

// DebugMessage is a decoded debug message. Only the fields used by SubCode
// are meaningful.
type DebugMessage struct {
	SubCode SubCode

	Success  bool     // StartAck, TrapAck
	Step     bool     // ContinueRequest
	File     string   // TrapNotify
	Line     uint16   // TrapNotify
	Bindings Bindings // TrapNotify
	Name     string   // GetVarRequest, GetVarResponse, SetVarRequest
	Value    Value    // GetVarResponse, SetVarRequest
	Error    string   // SetVarResponse, empty on success
}

// Type returns the outer message type the subcode travels under
func (m DebugMessage) Type() MessageType {
	return m.SubCode.Direction()
}

// Debug message constructors

func StartNotify() DebugMessage { return DebugMessage{SubCode: SubStartNotify} }

func StartAck(success bool) DebugMessage {
	return DebugMessage{SubCode: SubStartAck, Success: success}
}

func TrapNotify(file string, line uint16, bindings Bindings) DebugMessage {
	return DebugMessage{SubCode: SubTrapNotify, File: file, Line: line, Bindings: bindings}
}

func TrapAck(success bool) DebugMessage {
	return DebugMessage{SubCode: SubTrapAck, Success: success}
}

func ContinueRequest(step bool) DebugMessage {
	return DebugMessage{SubCode: SubContinueRequest, Step: step}
}

func ContinueResponse() DebugMessage { return DebugMessage{SubCode: SubContinueResponse} }

func GetVarRequest(name string) DebugMessage {
	return DebugMessage{SubCode: SubGetVarRequest, Name: name}
}

func GetVarResponse(name string, v Value) DebugMessage {
	return DebugMessage{SubCode: SubGetVarResponse, Name: name, Value: v}
}

func SetVarRequest(name string, v Value) DebugMessage {
	return DebugMessage{SubCode: SubSetVarRequest, Name: name, Value: v}
}

// SetVarResponse reports a set-variable result; an empty errText means success
func SetVarResponse(errText string) DebugMessage {
	return DebugMessage{SubCode: SubSetVarResponse, Error: errText}
}

func TerminateRequest() DebugMessage { return DebugMessage{SubCode: SubTerminateRequest} }

func TerminateResponse() DebugMessage { return DebugMessage{SubCode: SubTerminateResponse} }

// EncodeDebug serializes a debug message: outer type, subcode, body.
// TrapNotify carries at most MaxEntries bindings; the count byte reflects
// the entries actually written.
func EncodeDebug(m DebugMessage) ([]byte, error) {
	if !m.SubCode.Valid() {
		return nil, fmt.Errorf("%w: debug subcode 0x%02X", ErrMalformed, byte(m.SubCode))
	}

	buf := make([]byte, 0, 32)
	buf = append(buf, byte(m.SubCode.Direction()), byte(m.SubCode))

	switch m.SubCode {
	case SubStartAck, SubTrapAck:
		buf = appendBool(buf, m.Success)

	case SubContinueRequest:
		buf = appendBool(buf, m.Step)

	case SubTrapNotify:
		buf = appendZString(buf, m.File)
		buf = binary.LittleEndian.AppendUint16(buf, m.Line)
		countAt := len(buf)
		buf = append(buf, 0)
		var count byte
		for _, binding := range m.Bindings {
			if count == MaxEntries {
				break
			}
			buf = appendZString(buf, binding.Name)
			buf = appendValue(buf, binding.Value)
			count++
		}
		buf[countAt] = count

	case SubGetVarRequest:
		buf = appendZString(buf, m.Name)

	case SubGetVarResponse, SubSetVarRequest:
		buf = appendZString(buf, m.Name)
		buf = appendValue(buf, m.Value)

	case SubSetVarResponse:
		buf = appendZString(buf, m.Error)

	case SubStartNotify, SubContinueResponse, SubTerminateRequest, SubTerminateResponse:
		// header only
	}
	return buf, nil
}

// DecodeDebug parses a debug message starting with its outer type byte.
// Bytes after the last known field are ignored.
func DecodeDebug(data []byte) (DebugMessage, error) {
	if len(data) < 2 {
		return DebugMessage{}, fmt.Errorf("%w: %d bytes, need outer type and subcode", ErrTruncated, len(data))
	}
	if !MessageType(data[0]).IsDebug() {
		return DebugMessage{}, fmt.Errorf("%w: 0x%02X is not a debug message", ErrUnknownType, data[0])
	}

	m := DebugMessage{SubCode: SubCode(data[1])}
	r := &reader{data: data, pos: 2}
	var err error

	switch m.SubCode {
	case SubStartAck, SubTrapAck:
		m.Success, err = r.bool("success")

	case SubContinueRequest:
		m.Step, err = r.bool("step")

	case SubTrapNotify:
		m.File, m.Line, m.Bindings, err = decodeTrap(r)

	case SubGetVarRequest:
		m.Name, err = r.zstring("name")

	case SubGetVarResponse, SubSetVarRequest:
		if m.Name, err = r.zstring("name"); err == nil {
			m.Value, err = r.value(m.Name)
		}

	case SubSetVarResponse:
		m.Error, err = r.zstring("result")

	case SubStartNotify, SubContinueResponse, SubTerminateRequest, SubTerminateResponse:
		// header only

	default:
		return DebugMessage{}, fmt.Errorf("%w: unknown debug subcode 0x%02X", ErrMalformed, data[1])
	}
	if err != nil {
		return DebugMessage{}, fmt.Errorf("decode %s: %w", SubCodeName(m.SubCode), err)
	}
	return m, nil
}

func decodeTrap(r *reader) (string, uint16, Bindings, error) {
	file, err := r.zstring("filename")
	if err != nil {
		return "", 0, nil, err
	}
	line, err := r.uint16("line")
	if err != nil {
		return "", 0, nil, err
	}
	count, err := r.byte("count")
	if err != nil {
		return "", 0, nil, err
	}
	bindings := make(Bindings, 0, count)
	for i := 0; i < int(count); i++ {
		name, err := r.zstring("variable name")
		if err != nil {
			return "", 0, nil, err
		}
		v, err := r.value(name)
		if err != nil {
			return "", 0, nil, err
		}
		bindings = append(bindings, Binding{Name: name, Value: v})
	}
	return file, line, bindings, nil
}
