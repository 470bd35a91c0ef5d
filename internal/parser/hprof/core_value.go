package hprof

import (
	"math"
	"strconv"
)

// Value is one decoded JVM basic-typed value. Bits holds the raw big-endian
// payload zero-extended to 64 bits; for TypeObject it is the identifier.
type Value struct {
	Type BasicType
	Bits uint64
}

// ID returns the identifier held by an object value.
func (v Value) ID() uint64 {
	return v.Bits
}

func (v Value) Bool() bool {
	return v.Bits != 0
}

// Char returns the UTF-16 code unit of a char value.
func (v Value) Char() rune {
	return rune(uint16(v.Bits))
}

func (v Value) Float32() float32 {
	return math.Float32frombits(uint32(v.Bits))
}

func (v Value) Float64() float64 {
	return math.Float64frombits(v.Bits)
}

// Int returns the value sign-extended according to its type.
func (v Value) Int() int64 {
	switch v.Type {
	case TypeByte:
		return int64(int8(v.Bits))
	case TypeShort:
		return int64(int16(v.Bits))
	case TypeInt:
		return int64(int32(v.Bits))
	default:
		return int64(v.Bits)
	}
}

func (v Value) String() string {
	switch v.Type {
	case TypeObject:
		return "0x" + strconv.FormatUint(v.Bits, 16)
	case TypeBoolean:
		return strconv.FormatBool(v.Bool())
	case TypeChar:
		return strconv.QuoteRune(v.Char())
	case TypeFloat:
		return strconv.FormatFloat(float64(v.Float32()), 'g', -1, 32)
	case TypeDouble:
		return strconv.FormatFloat(v.Float64(), 'g', -1, 64)
	default:
		return strconv.FormatInt(v.Int(), 10)
	}
}

// ReadValue reads one value of type t. A char is a 2-byte UTF-16 code unit.
// An undefined type yields a *FieldTypeError positioned at the current offset.
func (s *Stream) ReadValue(t BasicType) (Value, error) {
	v := Value{Type: t}
	var err error
	switch t {
	case TypeObject:
		v.Bits, err = s.ReadID()
	case TypeBoolean, TypeByte:
		var b uint8
		b, err = s.r.ReadU1()
		v.Bits = uint64(b)
	case TypeChar, TypeShort:
		var u uint16
		u, err = s.r.ReadU2()
		v.Bits = uint64(u)
	case TypeFloat, TypeInt:
		var u uint32
		u, err = s.r.ReadU4()
		v.Bits = uint64(u)
	case TypeDouble, TypeLong:
		v.Bits, err = s.r.ReadU8()
	default:
		return Value{}, &FieldTypeError{Tag: uint8(t), Offset: s.Position()}
	}
	if err != nil {
		return Value{}, err
	}
	return v, nil
}

// readBasicType reads a one-byte type tag and validates it.
func (s *Stream) readBasicType() (BasicType, error) {
	offset := s.Position()
	b, err := s.r.ReadU1()
	if err != nil {
		return 0, err
	}
	t := BasicType(b)
	if !t.Valid() {
		return 0, &FieldTypeError{Tag: b, Offset: offset}
	}
	return t, nil
}

// readTypedValue reads a type tag followed by a value of that type.
func (s *Stream) readTypedValue() (Value, error) {
	t, err := s.readBasicType()
	if err != nil {
		return Value{}, err
	}
	return s.ReadValue(t)
}
