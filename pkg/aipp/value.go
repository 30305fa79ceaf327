// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 The BlocklyPy AIPP Authors

package aipp

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is a typed variable: exactly one of None, Int32, Float32, ZString
// or Bool, selected by its Tag
type Value struct {
	tag Tag
	i   int32
	f   float32
	s   string
	b   bool
}

// NoneValue returns the None variable
func NoneValue() Value { return Value{tag: TagNone} }

// IntValue returns an Int32 variable
func IntValue(i int32) Value { return Value{tag: TagInt, i: i} }

// FloatValue returns a Float32 variable
func FloatValue(f float32) Value { return Value{tag: TagFloat, f: f} }

// StringValue returns a ZString variable. The string is cut at the first
// NUL byte when encoded.
func StringValue(s string) Value { return Value{tag: TagString, s: s} }

// BoolValue returns a Bool variable
func BoolValue(b bool) Value { return Value{tag: TagBool, b: b} }

// Tag returns the wire tag of the value
func (v Value) Tag() Tag { return v.tag }

// IsNone reports whether v is the None variable
func (v Value) IsNone() bool { return v.tag == TagNone }

// AsInt returns the Int32 payload
func (v Value) AsInt() (int32, bool) { return v.i, v.tag == TagInt }

// AsFloat returns the Float32 payload
func (v Value) AsFloat() (float32, bool) { return v.f, v.tag == TagFloat }

// AsString returns the ZString payload
func (v Value) AsString() (string, bool) { return v.s, v.tag == TagString }

// AsBool returns the Bool payload
func (v Value) AsBool() (bool, bool) { return v.b, v.tag == TagBool }

// Interface returns the payload as a native Go value (nil for None)
func (v Value) Interface() any {
	switch v.tag {
	case TagInt:
		return v.i
	case TagFloat:
		return v.f
	case TagString:
		return v.s
	case TagBool:
		return v.b
	default:
		return nil
	}
}

// Equal reports whether both values have the same tag and payload
func (v Value) Equal(o Value) bool {
	return v == o
}

// String formats the value for display
func (v Value) String() string {
	switch v.tag {
	case TagInt:
		return strconv.FormatInt(int64(v.i), 10)
	case TagFloat:
		return strconv.FormatFloat(float64(v.f), 'g', -1, 32)
	case TagString:
		return strconv.Quote(v.s)
	case TagBool:
		return strconv.FormatBool(v.b)
	default:
		return "None"
	}
}

// TagName returns a short name for a tag
func TagName(t Tag) string {
	switch t {
	case TagNone:
		return "none"
	case TagInt:
		return "int"
	case TagFloat:
		return "float"
	case TagString:
		return "str"
	case TagBool:
		return "bool"
	default:
		return fmt.Sprintf("tag(%d)", t)
	}
}

// ValueOf converts a native Go value into a typed variable.
// Integers outside the int32 range, strings containing NUL and any other
// Go type return ErrUnsupportedType.
func ValueOf(x any) (Value, error) {
	switch v := x.(type) {
	case nil:
		return NoneValue(), nil
	case Value:
		return v, nil
	case bool:
		return BoolValue(v), nil
	case int:
		return intValue(int64(v))
	case int8:
		return IntValue(int32(v)), nil
	case int16:
		return IntValue(int32(v)), nil
	case int32:
		return IntValue(v), nil
	case int64:
		return intValue(v)
	case uint8:
		return IntValue(int32(v)), nil
	case uint16:
		return IntValue(int32(v)), nil
	case uint32:
		return intValue(int64(v))
	case uint:
		if uint64(v) > math.MaxInt32 {
			return Value{}, fmt.Errorf("%w: %d out of int32 range", ErrUnsupportedType, v)
		}
		return IntValue(int32(v)), nil
	case uint64:
		if v > math.MaxInt32 {
			return Value{}, fmt.Errorf("%w: %d out of int32 range", ErrUnsupportedType, v)
		}
		return IntValue(int32(v)), nil
	case float32:
		return FloatValue(v), nil
	case float64:
		return FloatValue(float32(v)), nil
	case string:
		if strings.IndexByte(v, 0) >= 0 {
			return Value{}, fmt.Errorf("%w: string contains NUL", ErrUnsupportedType)
		}
		return StringValue(v), nil
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedType, x)
	}
}

func intValue(v int64) (Value, error) {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return Value{}, fmt.Errorf("%w: %d out of int32 range", ErrUnsupportedType, v)
	}
	return IntValue(int32(v)), nil
}

// Binding is a named variable exposed at a trap
type Binding struct {
	Name  string
	Value Value
}

// Bindings is an ordered list of exposed variables
type Bindings []Binding

// Get returns the value bound to name
func (b Bindings) Get(name string) (Value, bool) {
	for _, binding := range b {
		if binding.Name == name {
			return binding.Value, true
		}
	}
	return Value{}, false
}

// Set replaces the value of an existing binding. Unknown names are not added.
func (b Bindings) Set(name string, v Value) bool {
	for i := range b {
		if b[i].Name == name {
			b[i].Value = v
			return true
		}
	}
	return false
}

// Names returns the binding names in order
func (b Bindings) Names() []string {
	names := make([]string, len(b))
	for i, binding := range b {
		names[i] = binding.Name
	}
	return names
}

// Clone returns a copy that can be mutated independently
func (b Bindings) Clone() Bindings {
	if b == nil {
		return nil
	}
	return append(Bindings(nil), b...)
}
