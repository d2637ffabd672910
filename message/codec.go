package message

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"unicode/utf8"
)

// Format codes, per the msgpack specification.
const (
	fixintPosMax = 0x7f
	fixmapMask   = 0x80
	fixarrayMask = 0x90
	fixstrMask   = 0xa0

	mpNil     = 0xc0
	mpFalse   = 0xc2
	mpTrue    = 0xc3
	mpBin8    = 0xc4
	mpBin16   = 0xc5
	mpBin32   = 0xc6
	mpExt8    = 0xc7
	mpExt16   = 0xc8
	mpExt32   = 0xc9
	mpFloat32 = 0xca
	mpFloat64 = 0xcb
	mpUint8   = 0xcc
	mpUint16  = 0xcd
	mpUint32  = 0xce
	mpUint64  = 0xcf
	mpInt8    = 0xd0
	mpInt16   = 0xd1
	mpInt32   = 0xd2
	mpInt64   = 0xd3
	mpFixext1 = 0xd4
	mpFixext2 = 0xd5
	mpFixext4 = 0xd6
	mpFixext8 = 0xd7
	mpFixext16 = 0xd8
	mpStr8    = 0xd9
	mpStr16   = 0xda
	mpStr32   = 0xdb
	mpArray16 = 0xdc
	mpArray32 = 0xdd
	mpMap16   = 0xde
	mpMap32   = 0xdf

	fixintNegMin = 0xe0
)

// encodeValue writes v to w using the smallest msgpack representation that
// keeps its kind: signed integers always use the signed formats (negative
// fixint or int 8/16/32/64) and unsigned integers the unsigned ones, so a
// decoded integer has the same signedness it was encoded with.
func encodeValue(w *bufio.Writer, v Value) error {
	switch v.kind {
	case KindNil:
		return w.WriteByte(mpNil)
	case KindBool:
		if v.boolean {
			return w.WriteByte(mpTrue)
		}
		return w.WriteByte(mpFalse)
	case KindInt:
		return encodeInt(w, v.signed)
	case KindUint:
		return encodeUint(w, v.unsign)
	case KindFloat:
		return encodeFloat(w, v.float)
	case KindString:
		return encodeString(w, v.str)
	case KindBinary:
		return encodeBinary(w, v.bin)
	case KindArray:
		if err := encodeArrayLen(w, len(v.arr)); err != nil {
			return err
		}
		for _, item := range v.arr {
			if err := encodeValue(w, item); err != nil {
				return err
			}
		}
		return nil
	case KindMap:
		if err := encodeMapLen(w, len(v.m)); err != nil {
			return err
		}
		for _, entry := range v.m {
			if err := encodeValue(w, entry.Key); err != nil {
				return err
			}
			if err := encodeValue(w, entry.Value); err != nil {
				return err
			}
		}
		return nil
	case KindExtension:
		return encodeExt(w, v.extType, v.extData)
	default:
		return malformed("cannot encode value of unknown kind")
	}
}

func encodeInt(w *bufio.Writer, i int64) error {
	switch {
	case i >= -32 && i < 0:
		return w.WriteByte(byte(i))
	case i >= math.MinInt8 && i <= math.MaxInt8:
		return writeTagged(w, mpInt8, []byte{byte(int8(i))})
	case i >= math.MinInt16 && i <= math.MaxInt16:
		buf := make([]byte, 2)
		binary.BigEndian.PutUint16(buf, uint16(int16(i)))
		return writeTagged(w, mpInt16, buf)
	case i >= math.MinInt32 && i <= math.MaxInt32:
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(int32(i)))
		return writeTagged(w, mpInt32, buf)
	default:
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(i))
		return writeTagged(w, mpInt64, buf)
	}
}

func encodeUint(w *bufio.Writer, u uint64) error {
	switch {
	case u <= fixintPosMax:
		return w.WriteByte(byte(u))
	case u <= math.MaxUint8:
		return writeTagged(w, mpUint8, []byte{byte(u)})
	case u <= math.MaxUint16:
		buf := make([]byte, 2)
		binary.BigEndian.PutUint16(buf, uint16(u))
		return writeTagged(w, mpUint16, buf)
	case u <= math.MaxUint32:
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(u))
		return writeTagged(w, mpUint32, buf)
	default:
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, u)
		return writeTagged(w, mpUint64, buf)
	}
}

func encodeFloat(w *bufio.Writer, f float64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, math.Float64bits(f))
	return writeTagged(w, mpFloat64, buf)
}

func encodeString(w *bufio.Writer, s string) error {
	n := len(s)
	switch {
	case n <= 31:
		if err := w.WriteByte(byte(fixstrMask | n)); err != nil {
			return err
		}
	case n <= math.MaxUint8:
		if err := writeTaggedLen(w, mpStr8, uint8(n)); err != nil {
			return err
		}
	case n <= math.MaxUint16:
		if err := writeTaggedLen16(w, mpStr16, uint16(n)); err != nil {
			return err
		}
	default:
		if err := writeTaggedLen32(w, mpStr32, uint32(n)); err != nil {
			return err
		}
	}
	_, err := w.WriteString(s)
	return err
}

func encodeBinary(w *bufio.Writer, b []byte) error {
	n := len(b)
	switch {
	case n <= math.MaxUint8:
		if err := writeTaggedLen(w, mpBin8, uint8(n)); err != nil {
			return err
		}
	case n <= math.MaxUint16:
		if err := writeTaggedLen16(w, mpBin16, uint16(n)); err != nil {
			return err
		}
	default:
		if err := writeTaggedLen32(w, mpBin32, uint32(n)); err != nil {
			return err
		}
	}
	_, err := w.Write(b)
	return err
}

func encodeArrayLen(w *bufio.Writer, n int) error {
	switch {
	case n <= 15:
		return w.WriteByte(byte(fixarrayMask | n))
	case n <= math.MaxUint16:
		return writeTaggedLen16(w, mpArray16, uint16(n))
	default:
		return writeTaggedLen32(w, mpArray32, uint32(n))
	}
}

func encodeMapLen(w *bufio.Writer, n int) error {
	switch {
	case n <= 15:
		return w.WriteByte(byte(fixmapMask | n))
	case n <= math.MaxUint16:
		return writeTaggedLen16(w, mpMap16, uint16(n))
	default:
		return writeTaggedLen32(w, mpMap32, uint32(n))
	}
}

func encodeExt(w *bufio.Writer, typ int8, data []byte) error {
	n := len(data)
	switch n {
	case 1:
		return writeTagged(w, mpFixext1, append([]byte{byte(typ)}, data...))
	case 2:
		return writeTagged(w, mpFixext2, append([]byte{byte(typ)}, data...))
	case 4:
		return writeTagged(w, mpFixext4, append([]byte{byte(typ)}, data...))
	case 8:
		return writeTagged(w, mpFixext8, append([]byte{byte(typ)}, data...))
	case 16:
		return writeTagged(w, mpFixext16, append([]byte{byte(typ)}, data...))
	}
	switch {
	case n <= math.MaxUint8:
		if err := writeTaggedLen(w, mpExt8, uint8(n)); err != nil {
			return err
		}
	case n <= math.MaxUint16:
		if err := writeTaggedLen16(w, mpExt16, uint16(n)); err != nil {
			return err
		}
	default:
		if err := writeTaggedLen32(w, mpExt32, uint32(n)); err != nil {
			return err
		}
	}
	if err := w.WriteByte(byte(typ)); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func writeTagged(w *bufio.Writer, tag byte, payload []byte) error {
	if err := w.WriteByte(tag); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func writeTaggedLen(w *bufio.Writer, tag byte, n uint8) error {
	return writeTagged(w, tag, []byte{n})
}

func writeTaggedLen16(w *bufio.Writer, tag byte, n uint16) error {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, n)
	return writeTagged(w, tag, buf)
}

func writeTaggedLen32(w *bufio.Writer, tag byte, n uint32) error {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, n)
	return writeTagged(w, tag, buf)
}

// byteReader is the minimal interface decodeValue needs; bufio.Reader
// satisfies it and guarantees decodeValue never reads past the end of the
// single top-level value it is decoding.
type byteReader interface {
	io.Reader
	io.ByteReader
}

func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return truncated("unexpected end of input", err)
	}
	if err != nil {
		return ioErr("read", err)
	}
	return nil
}

func readByte(r byteReader) (byte, error) {
	b, err := r.ReadByte()
	if err == io.EOF {
		return 0, truncated("unexpected end of input", err)
	}
	if err != nil {
		return 0, ioErr("read", err)
	}
	return b, nil
}

// decodeValue reads exactly one top-level msgpack value from r.
func decodeValue(r byteReader) (Value, error) {
	code, err := readByte(r)
	if err != nil {
		return Value{}, err
	}
	return decodeValueWithCode(r, code)
}

func decodeValueWithCode(r byteReader, code byte) (Value, error) {
	switch {
	case code <= fixintPosMax:
		return Uint(uint64(code)), nil
	case code >= fixintNegMin:
		return Int(int64(int8(code))), nil
	case code&0xf0 == fixmapMask:
		return decodeMap(r, int(code&0x0f))
	case code&0xf0 == fixarrayMask:
		return decodeArray(r, int(code&0x0f))
	case code&0xe0 == fixstrMask:
		return decodeString(r, int(code&0x1f))
	}

	switch code {
	case mpNil:
		return Nil(), nil
	case mpFalse:
		return Bool(false), nil
	case mpTrue:
		return Bool(true), nil
	case mpBin8:
		n, err := readLen8(r)
		if err != nil {
			return Value{}, err
		}
		return decodeBinary(r, int(n))
	case mpBin16:
		n, err := readLen16(r)
		if err != nil {
			return Value{}, err
		}
		return decodeBinary(r, int(n))
	case mpBin32:
		n, err := readLen32(r)
		if err != nil {
			return Value{}, err
		}
		return decodeBinary(r, int(n))
	case mpExt8:
		n, err := readLen8(r)
		if err != nil {
			return Value{}, err
		}
		return decodeExt(r, int(n))
	case mpExt16:
		n, err := readLen16(r)
		if err != nil {
			return Value{}, err
		}
		return decodeExt(r, int(n))
	case mpExt32:
		n, err := readLen32(r)
		if err != nil {
			return Value{}, err
		}
		return decodeExt(r, int(n))
	case mpFloat32:
		buf := make([]byte, 4)
		if err := readFull(r, buf); err != nil {
			return Value{}, err
		}
		bits := binary.BigEndian.Uint32(buf)
		return Float(float64(math.Float32frombits(bits))), nil
	case mpFloat64:
		buf := make([]byte, 8)
		if err := readFull(r, buf); err != nil {
			return Value{}, err
		}
		bits := binary.BigEndian.Uint64(buf)
		return Float(math.Float64frombits(bits)), nil
	case mpUint8:
		n, err := readLen8(r)
		if err != nil {
			return Value{}, err
		}
		return Uint(uint64(n)), nil
	case mpUint16:
		n, err := readLen16(r)
		if err != nil {
			return Value{}, err
		}
		return Uint(uint64(n)), nil
	case mpUint32:
		n, err := readLen32(r)
		if err != nil {
			return Value{}, err
		}
		return Uint(uint64(n)), nil
	case mpUint64:
		buf := make([]byte, 8)
		if err := readFull(r, buf); err != nil {
			return Value{}, err
		}
		return Uint(binary.BigEndian.Uint64(buf)), nil
	case mpInt8:
		b, err := readByte(r)
		if err != nil {
			return Value{}, err
		}
		return Int(int64(int8(b))), nil
	case mpInt16:
		n, err := readLen16(r)
		if err != nil {
			return Value{}, err
		}
		return Int(int64(int16(n))), nil
	case mpInt32:
		n, err := readLen32(r)
		if err != nil {
			return Value{}, err
		}
		return Int(int64(int32(n))), nil
	case mpInt64:
		buf := make([]byte, 8)
		if err := readFull(r, buf); err != nil {
			return Value{}, err
		}
		return Int(int64(binary.BigEndian.Uint64(buf))), nil
	case mpFixext1:
		return decodeFixext(r, 1)
	case mpFixext2:
		return decodeFixext(r, 2)
	case mpFixext4:
		return decodeFixext(r, 4)
	case mpFixext8:
		return decodeFixext(r, 8)
	case mpFixext16:
		return decodeFixext(r, 16)
	case mpStr8:
		n, err := readLen8(r)
		if err != nil {
			return Value{}, err
		}
		return decodeString(r, int(n))
	case mpStr16:
		n, err := readLen16(r)
		if err != nil {
			return Value{}, err
		}
		return decodeString(r, int(n))
	case mpStr32:
		n, err := readLen32(r)
		if err != nil {
			return Value{}, err
		}
		return decodeString(r, int(n))
	case mpArray16:
		n, err := readLen16(r)
		if err != nil {
			return Value{}, err
		}
		return decodeArray(r, int(n))
	case mpArray32:
		n, err := readLen32(r)
		if err != nil {
			return Value{}, err
		}
		return decodeArray(r, int(n))
	case mpMap16:
		n, err := readLen16(r)
		if err != nil {
			return Value{}, err
		}
		return decodeMap(r, int(n))
	case mpMap32:
		n, err := readLen32(r)
		if err != nil {
			return Value{}, err
		}
		return decodeMap(r, int(n))
	default:
		return Value{}, malformed("unknown msgpack type code 0x%02x", code)
	}
}

func readLen8(r byteReader) (uint8, error) {
	b, err := readByte(r)
	return uint8(b), err
}

func readLen16(r byteReader) (uint16, error) {
	buf := make([]byte, 2)
	if err := readFull(r, buf); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf), nil
}

func readLen32(r byteReader) (uint32, error) {
	buf := make([]byte, 4)
	if err := readFull(r, buf); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf), nil
}

func decodeString(r byteReader, n int) (Value, error) {
	buf := make([]byte, n)
	if err := readFull(r, buf); err != nil {
		return Value{}, err
	}
	if !utf8.Valid(buf) {
		return Value{}, malformed("string slot is not valid UTF-8")
	}
	return String(string(buf)), nil
}

func decodeBinary(r byteReader, n int) (Value, error) {
	buf := make([]byte, n)
	if err := readFull(r, buf); err != nil {
		return Value{}, err
	}
	return Binary(buf), nil
}

func decodeArray(r byteReader, n int) (Value, error) {
	items := make([]Value, n)
	for i := 0; i < n; i++ {
		v, err := decodeValue(r)
		if err != nil {
			return Value{}, err
		}
		items[i] = v
	}
	return Array(items...), nil
}

func decodeMap(r byteReader, n int) (Value, error) {
	entries := make([]MapEntry, n)
	for i := 0; i < n; i++ {
		k, err := decodeValue(r)
		if err != nil {
			return Value{}, err
		}
		v, err := decodeValue(r)
		if err != nil {
			return Value{}, err
		}
		entries[i] = MapEntry{Key: k, Value: v}
	}
	return Map(entries...), nil
}

func decodeExt(r byteReader, n int) (Value, error) {
	typByte, err := readByte(r)
	if err != nil {
		return Value{}, err
	}
	buf := make([]byte, n)
	if err := readFull(r, buf); err != nil {
		return Value{}, err
	}
	return Extension(int8(typByte), buf), nil
}

func decodeFixext(r byteReader, n int) (Value, error) {
	return decodeExt(r, n)
}
