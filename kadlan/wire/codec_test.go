package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, v Value) Value {
	t.Helper()
	buf := Encode(nil, v)
	out, n, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	return out
}

func TestRoundTripScalars(t *testing.T) {
	require.Nil(t, roundTrip(t, nil))
	require.Equal(t, true, roundTrip(t, true))
	require.Equal(t, false, roundTrip(t, false))
	require.Equal(t, int64(42), roundTrip(t, 42))
	require.Equal(t, int64(-7), roundTrip(t, int64(-7)))
	require.Equal(t, []byte("hello"), roundTrip(t, []byte("hello")))
	require.Equal(t, "hello", roundTrip(t, "hello"))
}

func TestRoundTripTuple(t *testing.T) {
	v := []Value{int64(1), "two", []byte{3}, true, nil, []Value{int64(4)}}
	out := roundTrip(t, v)
	tup, ok := Tuple(out)
	require.True(t, ok)
	require.Len(t, tup, 6)

	inner, ok := Tuple(tup[5])
	require.True(t, ok)
	require.Equal(t, int64(4), inner[0])
}

func TestDecodeTruncated(t *testing.T) {
	buf := Encode(nil, "hello")
	_, _, err := Decode(buf[:len(buf)-2])
	require.ErrorIs(t, err, ErrTruncated)
}

func TestDecodeEmptyInput(t *testing.T) {
	_, _, err := Decode(nil)
	require.ErrorIs(t, err, ErrTruncated)
}

func TestDecodeUnknownTag(t *testing.T) {
	_, _, err := Decode([]byte{0xff})
	require.ErrorIs(t, err, ErrUnknownTag)
}

func TestEncodeAppendsToExistingSlice(t *testing.T) {
	dst := []byte{0xaa, 0xbb}
	buf := Encode(dst, int64(9))
	require.Equal(t, []byte{0xaa, 0xbb}, buf[:2])
	out, _, err := Decode(buf[2:])
	require.NoError(t, err)
	require.Equal(t, int64(9), out)
}
