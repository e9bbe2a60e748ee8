// Package wire implements the self-describing byte encoding spec.md
// §4.4 and §6 both require: a tuple/byte-string/integer/boolean codec
// used identically for RPC arguments/results and for save_state
// snapshots. The teacher's udp.go leans on go-ethereum's RLP for the
// same structural role (length-prefixed, self-describing values
// matched symmetrically on encode/decode); RLP itself is tied to the
// go-ethereum node-identity model this spec's Non-goals drop, so this
// package reimplements the same shape directly against spec.md's own
// framing description.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Value is any value the codec can round-trip: nil, bool, int64,
// []byte, string, or []Value (a tuple).
type Value interface{}

// type tags, one byte each, prefixing every encoded value.
const (
	tagNil byte = iota
	tagBool
	tagInt
	tagBytes
	tagString
	tagTuple
)

var (
	// ErrTruncated marks an input that ended mid-value.
	ErrTruncated = errors.New("wire: truncated input")
	// ErrUnknownTag marks an input with an unrecognized type tag.
	ErrUnknownTag = errors.New("wire: unknown type tag")
)

// Encode appends the self-describing encoding of v to dst and returns
// the result.
func Encode(dst []byte, v Value) []byte {
	switch x := v.(type) {
	case nil:
		return append(dst, tagNil)
	case bool:
		b := byte(0)
		if x {
			b = 1
		}
		return append(dst, tagBool, b)
	case int:
		return encodeInt(dst, int64(x))
	case int64:
		return encodeInt(dst, x)
	case uint16:
		return encodeInt(dst, int64(x))
	case []byte:
		return encodeLenPrefixed(dst, tagBytes, x)
	case string:
		return encodeLenPrefixed(dst, tagString, []byte(x))
	case []Value:
		dst = append(dst, tagTuple)
		dst = encodeUvarint(dst, uint64(len(x)))
		for _, e := range x {
			dst = Encode(dst, e)
		}
		return dst
	default:
		panic(fmt.Sprintf("wire: unsupported type %T", v))
	}
}

func encodeInt(dst []byte, x int64) []byte {
	dst = append(dst, tagInt)
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutVarint(buf[:], x)
	return append(dst, buf[:n]...)
}

func encodeLenPrefixed(dst []byte, tag byte, b []byte) []byte {
	dst = append(dst, tag)
	dst = encodeUvarint(dst, uint64(len(b)))
	return append(dst, b...)
}

func encodeUvarint(dst []byte, x uint64) []byte {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], x)
	return append(dst, buf[:n]...)
}

// Decode reads a single self-describing value from buf and returns it
// along with the number of bytes consumed.
func Decode(buf []byte) (Value, int, error) {
	if len(buf) == 0 {
		return nil, 0, ErrTruncated
	}
	tag := buf[0]
	rest := buf[1:]
	switch tag {
	case tagNil:
		return nil, 1, nil
	case tagBool:
		if len(rest) < 1 {
			return nil, 0, ErrTruncated
		}
		return rest[0] != 0, 2, nil
	case tagInt:
		x, n := binary.Varint(rest)
		if n <= 0 {
			return nil, 0, ErrTruncated
		}
		return x, 1 + n, nil
	case tagBytes:
		b, n, err := decodeLenPrefixed(rest)
		if err != nil {
			return nil, 0, err
		}
		return b, 1 + n, nil
	case tagString:
		b, n, err := decodeLenPrefixed(rest)
		if err != nil {
			return nil, 0, err
		}
		return string(b), 1 + n, nil
	case tagTuple:
		count, n := binary.Uvarint(rest)
		if n <= 0 {
			return nil, 0, ErrTruncated
		}
		consumed := 1 + n
		rest = rest[n:]
		tuple := make([]Value, 0, count)
		for i := uint64(0); i < count; i++ {
			v, vn, err := Decode(rest)
			if err != nil {
				return nil, 0, err
			}
			tuple = append(tuple, v)
			rest = rest[vn:]
			consumed += vn
		}
		return tuple, consumed, nil
	default:
		return nil, 0, ErrUnknownTag
	}
}

func decodeLenPrefixed(buf []byte) ([]byte, int, error) {
	length, n := binary.Uvarint(buf)
	if n <= 0 {
		return nil, 0, ErrTruncated
	}
	start := n
	end := start + int(length)
	if end > len(buf) {
		return nil, 0, ErrTruncated
	}
	return buf[start:end], end, nil
}

// Int64 type-asserts v as an integer, accepting the int64 Decode
// produces.
func Int64(v Value) (int64, bool) {
	x, ok := v.(int64)
	return x, ok
}

// Bytes type-asserts v as a byte string.
func Bytes(v Value) ([]byte, bool) {
	b, ok := v.([]byte)
	return b, ok
}

// Str type-asserts v as a string.
func Str(v Value) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// Tuple type-asserts v as a tuple.
func Tuple(v Value) ([]Value, bool) {
	t, ok := v.([]Value)
	return t, ok
}

// Bool type-asserts v as a boolean.
func Bool(v Value) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}
