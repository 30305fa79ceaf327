// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package aipp

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// Debug Encode Tests
// ============================================================

func TestEncodeDebug_HeaderOnly(t *testing.T) {
	tests := []struct {
		name     string
		msg      DebugMessage
		expected []byte
	}{
		{"start notify", StartNotify(), []byte{0x71, 0x01}},
		{"continue response", ContinueResponse(), []byte{0x71, 0x05}},
		{"terminate request", TerminateRequest(), []byte{0x70, 0x0A}},
		{"terminate response", TerminateResponse(), []byte{0x71, 0x0B}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeDebug(tt.msg)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, data)
		})
	}
}

func TestEncodeDebug_TrapScenario(t *testing.T) {
	data, err := EncodeDebug(TrapNotify("a.py", 10, Bindings{{Name: "x", Value: IntValue(5)}}))
	require.NoError(t, err)

	expected := []byte{0x71, 0x03, 0x61, 0x2e, 0x70, 0x79, 0x00, 0x0a, 0x00, 0x01, 0x78, 0x00, 0x01, 0x05, 0x00, 0x00, 0x00}
	assert.Equal(t, expected, data)
}

func TestEncodeDebug_TrapCountCapped(t *testing.T) {
	bindings := make(Bindings, 300)
	for i := range bindings {
		bindings[i] = Binding{Name: fmt.Sprintf("v%d", i), Value: BoolValue(i%2 == 0)}
	}

	data, err := EncodeDebug(TrapNotify("m.py", 1, bindings))
	require.NoError(t, err)

	// 71 03 "m.py\0" line(2) count
	assert.Equal(t, byte(MaxEntries), data[9])

	m, err := DecodeDebug(data)
	require.NoError(t, err)
	require.Len(t, m.Bindings, MaxEntries)
	assert.Equal(t, "v254", m.Bindings[254].Name)
}

func TestEncodeDebug_SetVarResponse(t *testing.T) {
	ok, err := EncodeDebug(SetVarResponse(""))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x71, 0x09, 0x00}, ok)

	failed, err := EncodeDebug(SetVarResponse("no"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x71, 0x09, 'n', 'o', 0x00}, failed)
}

func TestEncodeDebug_InvalidSubCode(t *testing.T) {
	_, err := EncodeDebug(DebugMessage{SubCode: 0x42})
	assert.ErrorIs(t, err, ErrMalformed)
}

// ============================================================
// Debug Decode Tests
// ============================================================

func TestDecodeDebug_Handshake(t *testing.T) {
	accepted, err := DecodeDebug([]byte{0x70, 0x00, 0x01})
	require.NoError(t, err)
	assert.Equal(t, SubStartAck, accepted.SubCode)
	assert.True(t, accepted.Success)

	refused, err := DecodeDebug([]byte{0x70, 0x00, 0x00})
	require.NoError(t, err)
	assert.False(t, refused.Success)
}

func TestDecodeDebug_ContinueRequest(t *testing.T) {
	m, err := DecodeDebug([]byte{0x70, 0x04, 0x00})
	require.NoError(t, err)
	assert.Equal(t, SubContinueRequest, m.SubCode)
	assert.False(t, m.Step)
}

func TestDecodeDebug_TrailingBytesIgnored(t *testing.T) {
	// hosts append a rolling sequence byte
	m, err := DecodeDebug([]byte{0x70, 0x04, 0x01, 0x2A})
	require.NoError(t, err)
	assert.True(t, m.Step)

	m, err = DecodeDebug([]byte{0x70, 0x0A, 0x07})
	require.NoError(t, err)
	assert.Equal(t, SubTerminateRequest, m.SubCode)
}

func TestDecodeDebug_SetVarRequest(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected Value
	}{
		{"int", []byte{0x70, 0x08, 'x', 0x00, 0x01, 0x07, 0x00, 0x00, 0x00}, IntValue(7)},
		{"negative int", []byte{0x70, 0x08, 'x', 0x00, 0x01, 0xFF, 0xFF, 0xFF, 0xFF}, IntValue(-1)},
		{"float", []byte{0x70, 0x08, 'x', 0x00, 0x02, 0x00, 0x00, 0xC0, 0x3F}, FloatValue(1.5)},
		{"string", []byte{0x70, 0x08, 'x', 0x00, 0x03, 'h', 'i', 0x00}, StringValue("hi")},
		{"bool", []byte{0x70, 0x08, 'x', 0x00, 0x04, 0x01}, BoolValue(true)},
		{"none", []byte{0x70, 0x08, 'x', 0x00, 0x00}, NoneValue()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := DecodeDebug(tt.data)
			require.NoError(t, err)
			assert.Equal(t, "x", m.Name)
			assert.True(t, tt.expected.Equal(m.Value), "expected %s, got %s", tt.expected, m.Value)
		})
	}
}

func TestDecodeDebug_Errors(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected error
	}{
		{"empty", nil, ErrTruncated},
		{"outer only", []byte{0x70}, ErrTruncated},
		{"missing ack bool", []byte{0x70, 0x00}, ErrTruncated},
		{"missing step", []byte{0x70, 0x04}, ErrTruncated},
		{"unknown subcode", []byte{0x70, 0x20}, ErrMalformed},
		{"unknown tag", []byte{0x70, 0x08, 'x', 0x00, 0x09, 0x01}, ErrMalformed},
		{"short int", []byte{0x70, 0x08, 'x', 0x00, 0x01, 0x07, 0x00}, ErrMalformed},
		{"short float", []byte{0x70, 0x08, 'x', 0x00, 0x02, 0x00}, ErrMalformed},
		{"missing bool payload", []byte{0x70, 0x08, 'x', 0x00, 0x04}, ErrMalformed},
		{"unterminated name", []byte{0x70, 0x06, 'a', 'b'}, ErrMalformed},
		{"unterminated string value", []byte{0x70, 0x08, 'x', 0x00, 0x03, 'a'}, ErrMalformed},
		{"trap missing line", []byte{0x71, 0x03, 'a', 0x00, 0x01}, ErrTruncated},
		{"trap missing entries", []byte{0x71, 0x03, 'a', 0x00, 0x01, 0x00, 0x02, 'x', 0x00, 0x00}, ErrTruncated},
		{"not debug", []byte{0x72, 0x00}, ErrUnknownType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeDebug(tt.data)
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestDebug_RoundTrip(t *testing.T) {
	messages := []DebugMessage{
		StartAck(true),
		TrapAck(false),
		ContinueRequest(true),
		GetVarRequest("speed"),
		GetVarResponse("speed", FloatValue(-2.25)),
		SetVarRequest("name", StringValue("robot")),
		SetVarResponse("variable not exposed"),
		TrapNotify("main.py", 65535, Bindings{
			{Name: "n", Value: NoneValue()},
			{Name: "i", Value: IntValue(math.MinInt32)},
			{Name: "f", Value: FloatValue(3.5)},
			{Name: "s", Value: StringValue("")},
			{Name: "b", Value: BoolValue(false)},
		}),
	}

	for _, original := range messages {
		t.Run(SubCodeName(original.SubCode), func(t *testing.T) {
			data, err := EncodeDebug(original)
			require.NoError(t, err)
			assert.Equal(t, byte(original.SubCode.Direction()), data[0])

			decoded, err := DecodeDebug(data)
			require.NoError(t, err)
			assert.Equal(t, original, decoded)
		})
	}
}

// ============================================================
// Outer Dispatch Tests
// ============================================================

func TestDecodeMessage_Dispatch(t *testing.T) {
	debug, err := DecodeMessage([]byte{0x71, 0x01})
	require.NoError(t, err)
	assert.True(t, debug.Is(SubStartNotify))
	assert.Equal(t, []byte{0x71, 0x01}, debug.Raw())

	ack, err := DecodeMessage([]byte{0x72, 0x00})
	require.NoError(t, err)
	assert.Equal(t, MsgPlotAcknowledge, ack.Type)
	assert.False(t, ack.Is(SubStartAck))

	_, err = DecodeMessage([]byte{0x55, 0x01})
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = DecodeMessage(nil)
	assert.ErrorIs(t, err, ErrTruncated)
}

// ============================================================
// Plot Tests
// ============================================================

func TestEncodePlot(t *testing.T) {
	tests := []struct {
		name     string
		msg      PlotMessage
		expected []byte
	}{
		{"ack", PlotAcknowledge(), []byte{0x72, 0x00}},
		{"define", PlotDefineColumns("a", "bc"), []byte{0x73, 0x01, 0x02, 'a', 0x00, 'b', 'c', 0x00}},
		{"cells", PlotCells(Cell{Name: "t", Value: 1.5}), []byte{0x73, 0x02, 0x01, 't', 0x00, 0x00, 0x00, 0xC0, 0x3F}},
		{"row", PlotRow(1.5, 0), []byte{0x73, 0x03, 0x02, 0x00, 0x00, 0xC0, 0x3F, 0x00, 0x00, 0x00, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodePlot(tt.msg)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, data)

			decoded, err := DecodePlot(data)
			require.NoError(t, err)
			assert.Equal(t, tt.msg.SubCode, decoded.SubCode)
		})
	}
}

func TestDecodePlot_Errors(t *testing.T) {
	_, err := DecodePlot([]byte{0x73, 0x03, 0x02, 0x00, 0x00, 0xC0, 0x3F})
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = DecodePlot([]byte{0x73, 0x09})
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = DecodePlot([]byte{0x73, 0x01})
	assert.ErrorIs(t, err, ErrTruncated)
}

// ============================================================
// Value Tests
// ============================================================

func TestValueOf(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected Value
	}{
		{"nil", nil, NoneValue()},
		{"int", 5, IntValue(5)},
		{"int64", int64(-7), IntValue(-7)},
		{"uint8", uint8(200), IntValue(200)},
		{"float64", 0.5, FloatValue(0.5)},
		{"string", "abc", StringValue("abc")},
		{"bool", true, BoolValue(true)},
		{"value", IntValue(3), IntValue(3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ValueOf(tt.input)
			require.NoError(t, err)
			assert.True(t, tt.expected.Equal(v), "expected %s, got %s", tt.expected, v)
		})
	}
}

func TestValueOf_Unsupported(t *testing.T) {
	for _, input := range []any{
		int64(1) << 40,
		uint64(math.MaxUint32),
		"a\x00b",
		[]int{1},
		struct{}{},
		map[string]int{},
	} {
		_, err := ValueOf(input)
		assert.ErrorIs(t, err, ErrUnsupportedType, "input %#v", input)
	}
}

func TestValue_Accessors(t *testing.T) {
	i, ok := IntValue(9).AsInt()
	assert.True(t, ok)
	assert.Equal(t, int32(9), i)

	_, ok = IntValue(9).AsFloat()
	assert.False(t, ok)

	assert.Equal(t, `"hi"`, StringValue("hi").String())
	assert.Equal(t, "None", NoneValue().String())
	assert.Nil(t, NoneValue().Interface())
	assert.Equal(t, true, BoolValue(true).Interface())
}

func TestBindings_Set(t *testing.T) {
	b := Bindings{{Name: "x", Value: IntValue(5)}}

	assert.True(t, b.Set("x", IntValue(7)))
	v, ok := b.Get("x")
	require.True(t, ok)
	assert.True(t, IntValue(7).Equal(v))

	assert.False(t, b.Set("y", IntValue(1)))
	assert.Len(t, b, 1)
	_, ok = b.Get("y")
	assert.False(t, ok)
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatMessage(t *testing.T) {
	tests := []struct {
		name     string
		msg      Message
		contains string
	}{
		{"start ack", NewDebug(StartAck(true)), "DEBUG_ACK (0x70) START_ACK success=true"},
		{"continue", NewDebug(ContinueRequest(true)), "CONTINUE_REQUEST step=true"},
		{"trap", NewDebug(TrapNotify("a.py", 10, Bindings{{Name: "x", Value: IntValue(5)}})), "TRAP_NOTIFY a.py:10 {x=5}"},
		{"set var", NewDebug(SetVarRequest("gain", FloatValue(0.5))), "SETVAR_REQUEST gain=0.5 (float)"},
		{"set var failed", NewDebug(SetVarResponse("no such variable")), `SETVAR_RESPONSE error="no such variable"`},
		{"plot define", NewPlot(PlotDefineColumns("a", "b")), "PLOT_NOTIFY (0x73) DEFINE [a, b]"},
		{"plot row", NewPlot(PlotRow(1.5, 2)), "UPDATE_ROW [1.5, 2]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := FormatMessage(tt.msg)
			assert.Contains(t, out, tt.contains)
			assert.True(t, out[len(out)-1] == '\n')
		})
	}
}

func TestFormatChunk(t *testing.T) {
	assert.Equal(t, "START 71 01 72 END", FormatChunk([]byte{0xFE, 0x71, 0x01, 0x72, 0x00}))
	assert.Equal(t, "CONT  01 MORE", FormatChunk([]byte{0xFF, 0x01, 0xFF}))
	assert.Equal(t, "?AA   01 ?BB", FormatChunk([]byte{0xAA, 0x01, 0xBB}))
	assert.Equal(t, "<short chunk FE>", FormatChunk([]byte{0xFE}))
}
