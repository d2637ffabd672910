// Package message implements the msgpack-RPC wire format: the dynamic
// value type, the three message shapes (Request, Response, Notification)
// and their encoding/decoding as msgpack arrays.
package message

import "fmt"

// Kind identifies which alternative of the dynamic Value union is held.
type Kind int

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindString
	KindBinary
	KindArray
	KindMap
	KindExtension
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBinary:
		return "binary"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	case KindExtension:
		return "extension"
	default:
		return "unknown"
	}
}

// MapEntry is a single key/value pair of a Map value. Map is represented as
// an ordered slice of entries, rather than a Go map, because Value is not a
// comparable type (it can hold arrays and maps) and because msgpack-rpc
// round-tripping must preserve the wire order of keys.
type MapEntry struct {
	Key   Value
	Value Value
}

// Value is the dynamic msgpack payload: nil, bool, signed/unsigned integer,
// float, string, binary, array, map or extension.
type Value struct {
	kind    Kind
	boolean bool
	signed  int64
	unsign  uint64
	float   float64
	str     string
	bin     []byte
	arr     []Value
	m       []MapEntry
	extType int8
	extData []byte
}

// Nil returns the nil value.
func Nil() Value { return Value{kind: KindNil} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, boolean: b} }

// Int returns a signed integer value.
func Int(i int64) Value { return Value{kind: KindInt, signed: i} }

// Uint returns an unsigned integer value.
func Uint(u uint64) Value { return Value{kind: KindUint, unsign: u} }

// Float returns a floating point value.
func Float(f float64) Value { return Value{kind: KindFloat, float: f} }

// String returns a UTF-8 string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Binary returns a raw byte-string value.
func Binary(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{kind: KindBinary, bin: cp}
}

// Array returns an array value.
func Array(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindArray, arr: cp}
}

// Map returns a map value, preserving the order of entries given.
func Map(entries ...MapEntry) Value {
	cp := make([]MapEntry, len(entries))
	copy(cp, entries)
	return Value{kind: KindMap, m: cp}
}

// Extension returns a msgpack extension value with the given type tag.
func Extension(typ int8, data []byte) Value {
	cp := make([]byte, len(data))
	copy(cp, data)
	return Value{kind: KindExtension, extType: typ, extData: cp}
}

// Kind reports which alternative is held.
func (v Value) Kind() Kind { return v.kind }

// IsNil reports whether v is the nil value.
func (v Value) IsNil() bool { return v.kind == KindNil }

// Bool returns the boolean value, or false, ok=false if v is not a bool.
func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.boolean, true
}

// Int returns the signed integer, or 0, ok=false if v does not hold one.
// An unsigned value that fits in an int64 is also accepted.
func (v Value) Int() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.signed, true
	case KindUint:
		if v.unsign <= 1<<63-1 {
			return int64(v.unsign), true
		}
	}
	return 0, false
}

// Uint returns the unsigned integer, or 0, ok=false if v does not hold one.
// A non-negative signed value is also accepted.
func (v Value) Uint() (uint64, bool) {
	switch v.kind {
	case KindUint:
		return v.unsign, true
	case KindInt:
		if v.signed >= 0 {
			return uint64(v.signed), true
		}
	}
	return 0, false
}

// Float returns the float value, or 0, ok=false if v is not a float.
func (v Value) Float() (float64, bool) {
	if v.kind != KindFloat {
		return 0, false
	}
	return v.float, true
}

// Str returns the string value, or "", ok=false if v is not a string.
func (v Value) Str() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// Bin returns the binary payload, or nil, ok=false if v is not binary.
func (v Value) Bin() ([]byte, bool) {
	if v.kind != KindBinary {
		return nil, false
	}
	return v.bin, true
}

// Items returns the array elements, or nil, ok=false if v is not an array.
func (v Value) Items() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.arr, true
}

// Entries returns the map entries, or nil, ok=false if v is not a map.
func (v Value) Entries() ([]MapEntry, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	return v.m, true
}

// Ext returns the extension type tag and payload, or ok=false if v is not an
// extension value.
func (v Value) Ext() (int8, []byte, bool) {
	if v.kind != KindExtension {
		return 0, nil, false
	}
	return v.extType, v.extData, true
}

// Equal reports whether v and other hold the same value, recursively.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindBool:
		return v.boolean == other.boolean
	case KindInt:
		return v.signed == other.signed
	case KindUint:
		return v.unsign == other.unsign
	case KindFloat:
		return v.float == other.float
	case KindString:
		return v.str == other.str
	case KindBinary:
		return bytesEqual(v.bin, other.bin)
	case KindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(other.m) {
			return false
		}
		for i := range v.m {
			if !v.m[i].Key.Equal(other.m[i].Key) || !v.m[i].Value.Equal(other.m[i].Value) {
				return false
			}
		}
		return true
	case KindExtension:
		return v.extType == other.extType && bytesEqual(v.extData, other.extData)
	default:
		return false
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBool:
		return fmt.Sprintf("%v", v.boolean)
	case KindInt:
		return fmt.Sprintf("%d", v.signed)
	case KindUint:
		return fmt.Sprintf("%d", v.unsign)
	case KindFloat:
		return fmt.Sprintf("%g", v.float)
	case KindString:
		return fmt.Sprintf("%q", v.str)
	case KindBinary:
		return fmt.Sprintf("bin(%d)", len(v.bin))
	case KindArray:
		return fmt.Sprintf("array(%d)", len(v.arr))
	case KindMap:
		return fmt.Sprintf("map(%d)", len(v.m))
	case KindExtension:
		return fmt.Sprintf("ext(%d,%d)", v.extType, len(v.extData))
	default:
		return "?"
	}
}
