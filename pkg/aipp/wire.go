// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package aipp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// reader walks a message body. Fields are little-endian.
type reader struct {
	data []byte
	pos  int
}

func (r *reader) remaining() int {
	return len(r.data) - r.pos
}

func (r *reader) byte(field string) (byte, error) {
	if r.remaining() < 1 {
		return 0, fmt.Errorf("%w: missing %s", ErrTruncated, field)
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) bool(field string) (bool, error) {
	b, err := r.byte(field)
	return b != 0, err
}

func (r *reader) uint16(field string) (uint16, error) {
	if r.remaining() < 2 {
		return 0, fmt.Errorf("%w: missing %s", ErrTruncated, field)
	}
	v := binary.LittleEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) float32(field string) (float32, error) {
	if r.remaining() < 4 {
		return 0, fmt.Errorf("%w: %s needs 4 bytes, have %d", ErrMalformed, field, r.remaining())
	}
	v := math.Float32frombits(binary.LittleEndian.Uint32(r.data[r.pos:]))
	r.pos += 4
	return v, nil
}

func (r *reader) zstring(field string) (string, error) {
	if r.remaining() < 1 {
		return "", fmt.Errorf("%w: missing %s", ErrTruncated, field)
	}
	end := bytes.IndexByte(r.data[r.pos:], 0)
	if end < 0 {
		return "", fmt.Errorf("%w: %s is not zero-terminated", ErrMalformed, field)
	}
	s := string(r.data[r.pos : r.pos+end])
	r.pos += end + 1
	return s, nil
}

// value decodes a tag byte followed by its payload
func (r *reader) value(field string) (Value, error) {
	tag, err := r.byte(field + " tag")
	if err != nil {
		return Value{}, err
	}
	switch Tag(tag) {
	case TagNone:
		return NoneValue(), nil
	case TagInt:
		if r.remaining() < 4 {
			return Value{}, fmt.Errorf("%w: %s int needs 4 bytes, have %d", ErrMalformed, field, r.remaining())
		}
		v := int32(binary.LittleEndian.Uint32(r.data[r.pos:]))
		r.pos += 4
		return IntValue(v), nil
	case TagFloat:
		f, err := r.float32(field)
		if err != nil {
			return Value{}, err
		}
		return FloatValue(f), nil
	case TagString:
		s, err := r.zstring(field)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %s string", ErrMalformed, field)
		}
		return StringValue(s), nil
	case TagBool:
		if r.remaining() < 1 {
			return Value{}, fmt.Errorf("%w: %s bool needs 1 byte", ErrMalformed, field)
		}
		b := r.data[r.pos] != 0
		r.pos++
		return BoolValue(b), nil
	default:
		return Value{}, fmt.Errorf("%w: %s has unknown tag %d", ErrMalformed, field, tag)
	}
}

func appendBool(dst []byte, b bool) []byte {
	if b {
		return append(dst, 1)
	}
	return append(dst, 0)
}

func appendZString(dst []byte, s string) []byte {
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	dst = append(dst, s...)
	return append(dst, 0)
}

func appendFloat32(dst []byte, f float32) []byte {
	return binary.LittleEndian.AppendUint32(dst, math.Float32bits(f))
}

func appendValue(dst []byte, v Value) []byte {
	dst = append(dst, byte(v.tag))
	switch v.tag {
	case TagInt:
		dst = binary.LittleEndian.AppendUint32(dst, uint32(v.i))
	case TagFloat:
		dst = appendFloat32(dst, v.f)
	case TagString:
		dst = appendZString(dst, v.s)
	case TagBool:
		dst = appendBool(dst, v.b)
	}
	return dst
}
