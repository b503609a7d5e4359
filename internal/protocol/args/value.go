// Package args implements the tagged argument encoding used for command
// parameters and command descriptions.
//
// Each value is a 1-byte type tag followed by its fixed-width little-endian
// representation. Strings are tag, u16 length, raw bytes (no terminator).
package args

import (
	"errors"
	"fmt"
	"math"
)

// Type is the 1-byte wire tag preceding every value.
type Type uint8

const (
	TypeBool   Type = 0
	TypeInt8   Type = 1
	TypeInt16  Type = 2
	TypeInt32  Type = 3
	TypeUint8  Type = 4
	TypeUint16 Type = 5
	TypeUint32 Type = 6
	TypeFloat  Type = 7
	TypeColor  Type = 8
	TypeString Type = 9

	// TypeInvalid marks a value skipped because of an unknown tag.
	TypeInvalid Type = 0xFF
)

var (
	ErrTypeMismatch  = errors.New("args: type mismatch")
	ErrUnknownTag    = errors.New("args: unknown type tag")
	ErrTruncated     = errors.New("args: truncated value")
	ErrStringTooLong = errors.New("args: string too long")
)

func (t Type) Valid() bool {
	return t <= TypeString
}

func (t Type) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeInt8:
		return "int8"
	case TypeInt16:
		return "int16"
	case TypeInt32:
		return "int32"
	case TypeUint8:
		return "uint8"
	case TypeUint16:
		return "uint16"
	case TypeUint32:
		return "uint32"
	case TypeFloat:
		return "float"
	case TypeColor:
		return "color"
	case TypeString:
		return "string"
	default:
		return fmt.Sprintf("invalid(%d)", uint8(t))
	}
}

// Color is an RGB triple.
type Color struct {
	R, G, B uint8
}

// Value is a tagged argument. Accessors check the tag, so a value can only be
// read as the variant it was built or decoded as.
type Value struct {
	typ   Type
	bits  uint32
	color Color
	str   []byte
}

func Bool(v bool) Value {
	var b uint32
	if v {
		b = 1
	}
	return Value{typ: TypeBool, bits: b}
}

func Int8(v int8) Value     { return Value{typ: TypeInt8, bits: uint32(uint8(v))} }
func Int16(v int16) Value   { return Value{typ: TypeInt16, bits: uint32(uint16(v))} }
func Int32(v int32) Value   { return Value{typ: TypeInt32, bits: uint32(v)} }
func Uint8(v uint8) Value   { return Value{typ: TypeUint8, bits: uint32(v)} }
func Uint16(v uint16) Value { return Value{typ: TypeUint16, bits: uint32(v)} }
func Uint32(v uint32) Value { return Value{typ: TypeUint32, bits: v} }
func Float(v float32) Value { return Value{typ: TypeFloat, bits: math.Float32bits(v)} }
func RGB(c Color) Value     { return Value{typ: TypeColor, color: c} }

// String builds a string value. The bytes are copied.
func String(s string) Value {
	return Value{typ: TypeString, str: []byte(s)}
}

func invalid() Value { return Value{typ: TypeInvalid} }

func (v Value) Type() Type { return v.typ }

func (v Value) mismatch(want Type) error {
	return fmt.Errorf("%w: got=%s want=%s", ErrTypeMismatch, v.typ, want)
}

func (v Value) Bool() (bool, error) {
	if v.typ != TypeBool {
		return false, v.mismatch(TypeBool)
	}
	return v.bits != 0, nil
}

func (v Value) Int8() (int8, error) {
	if v.typ != TypeInt8 {
		return 0, v.mismatch(TypeInt8)
	}
	return int8(uint8(v.bits)), nil
}

func (v Value) Int16() (int16, error) {
	if v.typ != TypeInt16 {
		return 0, v.mismatch(TypeInt16)
	}
	return int16(uint16(v.bits)), nil
}

func (v Value) Int32() (int32, error) {
	if v.typ != TypeInt32 {
		return 0, v.mismatch(TypeInt32)
	}
	return int32(v.bits), nil
}

func (v Value) Uint8() (uint8, error) {
	if v.typ != TypeUint8 {
		return 0, v.mismatch(TypeUint8)
	}
	return uint8(v.bits), nil
}

func (v Value) Uint16() (uint16, error) {
	if v.typ != TypeUint16 {
		return 0, v.mismatch(TypeUint16)
	}
	return uint16(v.bits), nil
}

func (v Value) Uint32() (uint32, error) {
	if v.typ != TypeUint32 {
		return 0, v.mismatch(TypeUint32)
	}
	return v.bits, nil
}

func (v Value) Float() (float32, error) {
	if v.typ != TypeFloat {
		return 0, v.mismatch(TypeFloat)
	}
	return math.Float32frombits(v.bits), nil
}

func (v Value) Color() (Color, error) {
	if v.typ != TypeColor {
		return Color{}, v.mismatch(TypeColor)
	}
	return v.color, nil
}

// Str returns a copy of a string value, safe to keep after the cycle ends.
func (v Value) Str() (string, error) {
	if v.typ != TypeString {
		return "", v.mismatch(TypeString)
	}
	return string(v.str), nil
}

// StrBytes returns the string bytes without copying. For decoded values the
// slice points into arena memory and is only valid during the current cycle.
func (v Value) StrBytes() ([]byte, error) {
	if v.typ != TypeString {
		return nil, v.mismatch(TypeString)
	}
	return v.str, nil
}

// Equal compares by variant and content. Strings compare by bytes, floats by
// bit pattern.
func Equal(a, b Value) bool {
	if a.typ != b.typ {
		return false
	}
	switch a.typ {
	case TypeColor:
		return a.color == b.color
	case TypeString:
		return string(a.str) == string(b.str)
	case TypeInvalid:
		return true
	default:
		return a.bits == b.bits
	}
}

// String renders the value with its variant, e.g. uint8(5).
func (v Value) String() string {
	switch v.typ {
	case TypeBool:
		return fmt.Sprintf("bool(%t)", v.bits != 0)
	case TypeInt8:
		return fmt.Sprintf("int8(%d)", int8(uint8(v.bits)))
	case TypeInt16:
		return fmt.Sprintf("int16(%d)", int16(uint16(v.bits)))
	case TypeInt32:
		return fmt.Sprintf("int32(%d)", int32(v.bits))
	case TypeUint8, TypeUint16, TypeUint32:
		return fmt.Sprintf("%s(%d)", v.typ, v.bits)
	case TypeFloat:
		return fmt.Sprintf("float(%g)", math.Float32frombits(v.bits))
	case TypeColor:
		return fmt.Sprintf("color(%d,%d,%d)", v.color.R, v.color.G, v.color.B)
	case TypeString:
		return fmt.Sprintf("string(%q)", v.str)
	default:
		return v.typ.String()
	}
}
