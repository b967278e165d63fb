package trace

import (
	"fmt"
	"math"
)

// Tag is the type tag of a Value.
type Tag uint8

const (
	TagUndefined Tag = iota
	TagNull
	TagBool
	TagInt32
	TagDouble
	TagString
	TagObject
)

func (t Tag) String() string {
	switch t {
	case TagUndefined:
		return "undefined"
	case TagNull:
		return "null"
	case TagBool:
		return "bool"
	case TagInt32:
		return "int32"
	case TagDouble:
		return "double"
	case TagString:
		return "string"
	case TagObject:
		return "object"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

// Value is a tagged engine value. String and object values carry a Ref and
// are markable; everything else is immediate.
type Value struct {
	bits uint64
	ref  Ref
	tag  Tag
}

// UndefinedValue returns the undefined value. It is also the zero Value.
func UndefinedValue() Value { return Value{tag: TagUndefined} }

// NullValue returns the null value.
func NullValue() Value { return Value{tag: TagNull} }

// BoolValue wraps a boolean.
func BoolValue(b bool) Value {
	v := Value{tag: TagBool}
	if b {
		v.bits = 1
	}
	return v
}

// Int32Value wraps a 32-bit integer.
func Int32Value(i int32) Value { return Value{tag: TagInt32, bits: uint64(uint32(i))} }

// DoubleValue wraps a float64.
func DoubleValue(f float64) Value { return Value{tag: TagDouble, bits: math.Float64bits(f)} }

// StringValue wraps a string cell reference.
func StringValue(ref Ref) Value { return Value{tag: TagString, ref: ref} }

// ObjectValue wraps an object cell reference.
func ObjectValue(ref Ref) Value { return Value{tag: TagObject, ref: ref} }

// Tag returns the value's type tag.
func (v Value) Tag() Tag { return v.tag }

func (v Value) IsUndefined() bool { return v.tag == TagUndefined }
func (v Value) IsNull() bool      { return v.tag == TagNull }
func (v Value) IsBool() bool      { return v.tag == TagBool }
func (v Value) IsInt32() bool     { return v.tag == TagInt32 }
func (v Value) IsDouble() bool    { return v.tag == TagDouble }
func (v Value) IsNumber() bool    { return v.tag == TagInt32 || v.tag == TagDouble }
func (v Value) IsString() bool    { return v.tag == TagString }
func (v Value) IsObject() bool    { return v.tag == TagObject }

// IsMarkable reports whether the value references a heap cell.
func (v Value) IsMarkable() bool { return v.tag == TagString || v.tag == TagObject }

// TraceKind returns the kind of cell a markable value references.
func (v Value) TraceKind() Kind {
	switch v.tag {
	case TagString:
		return KindString
	case TagObject:
		return KindObject
	default:
		return KindNone
	}
}

// AsBool returns the boolean payload.
func (v Value) AsBool() bool { return v.tag == TagBool && v.bits != 0 }

// AsInt32 returns the value as an int32, truncating doubles.
func (v Value) AsInt32() int32 {
	switch v.tag {
	case TagInt32:
		return int32(uint32(v.bits))
	case TagDouble:
		f := math.Float64frombits(v.bits)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return int32(int64(f))
	case TagBool:
		return int32(v.bits)
	default:
		return 0
	}
}

// AsDouble returns the value as a float64.
func (v Value) AsDouble() float64 {
	switch v.tag {
	case TagDouble:
		return math.Float64frombits(v.bits)
	case TagInt32:
		return float64(int32(uint32(v.bits)))
	case TagBool:
		return float64(v.bits)
	case TagUndefined:
		return math.NaN()
	default:
		return 0
	}
}

// AsObject returns the object reference, or null when v is not an object.
func (v Value) AsObject() Ref {
	if v.tag != TagObject {
		return 0
	}
	return v.ref
}

// AsString returns the string reference, or null when v is not a string.
func (v Value) AsString() Ref {
	if v.tag != TagString {
		return 0
	}
	return v.ref
}

func (v Value) String() string {
	switch v.tag {
	case TagBool:
		return fmt.Sprintf("%t", v.AsBool())
	case TagInt32:
		return fmt.Sprintf("%d", v.AsInt32())
	case TagDouble:
		return fmt.Sprintf("%g", v.AsDouble())
	case TagString, TagObject:
		return fmt.Sprintf("%s(%s)", v.tag, v.ref)
	default:
		return v.tag.String()
	}
}
