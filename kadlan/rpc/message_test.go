package rpc

import (
	"testing"

	"github.com/kademlan/kadlan"
	"github.com/kademlan/kadlan/wire"
	"github.com/stretchr/testify/require"
)

func TestRequestRoundTrip(t *testing.T) {
	id := newRpcID()
	sender := kadlan.RandomID()
	buf := encodeRequest(id, "find_node", []wire.Value{int64(7)}, sender)

	isRequest, req, resp, err := decodeDatagram(buf)
	require.NoError(t, err)
	require.True(t, isRequest)
	require.Nil(t, resp)
	require.Equal(t, id, req.id)
	require.Equal(t, "find_node", req.method)
	require.Equal(t, sender, req.sender)

	tup, ok := wire.Tuple(req.args)
	require.True(t, ok)
	require.Equal(t, int64(7), tup[0])
}

func TestResponseRoundTripOK(t *testing.T) {
	id := newRpcID()
	buf := encodeResponse(id, true, "pong")

	isRequest, req, resp, err := decodeDatagram(buf)
	require.NoError(t, err)
	require.False(t, isRequest)
	require.Nil(t, req)
	require.Equal(t, id, resp.id)
	require.True(t, resp.ok)
	s, ok := wire.Str(resp.payload)
	require.True(t, ok)
	require.Equal(t, "pong", s)
}

func TestResponseRoundTripError(t *testing.T) {
	id := newRpcID()
	buf := encodeResponse(id, false, kadlan.ErrUnknownMethod.Error())

	_, _, resp, err := decodeDatagram(buf)
	require.NoError(t, err)
	require.False(t, resp.ok)
}

func TestDecodeDatagramTooShort(t *testing.T) {
	_, _, _, err := decodeDatagram([]byte{0x00})
	require.ErrorIs(t, err, kadlan.ErrMalformedMessage)
}

func TestDecodeDatagramUnknownFrameType(t *testing.T) {
	buf := make([]byte, 1+rpcIDLength)
	buf[0] = 0x7f
	_, _, _, err := decodeDatagram(buf)
	require.ErrorIs(t, err, kadlan.ErrMalformedMessage)
}

func TestCheckSizeRejectsOversizePayload(t *testing.T) {
	big := make([]byte, maxDatagramSize+1)
	require.ErrorIs(t, checkSize(big), kadlan.ErrMessageTooLarge)
}
