// Package rpc implements the UDP request/response transport described
// by spec.md §4.4: rpc_id-correlated calls with per-call timers, built
// directly against the teacher's p2p/discover/udp.go event-loop shape
// (pendings/gotreply channels feeding a single central loop) but
// stripped of its ECDSA packet signing and RLP encoding in favor of
// the wire codec and plain sender-id arguments.
package rpc

import (
	"github.com/kademlan/kadlan"
	"github.com/kademlan/kadlan/wire"
)

// frame type byte, the first byte of every datagram (spec.md §4.4).
const (
	frameRequest  byte = 0x00
	frameResponse byte = 0x01
)

// rpcIDLength matches kadlan.IDLength: rpc_id is a 160-bit nonce.
const rpcIDLength = kadlan.IDLength

// RpcID is the per-call correlation nonce.
type RpcID = kadlan.NodeID

// newRpcID draws a fresh random nonce for an outbound call.
func newRpcID() RpcID {
	return kadlan.RandomID()
}

// encodeRequest lays out [0x00, rpc_id, method_name(length-prefixed),
// sender_id, args(length-prefixed serialized tuple)] per spec.md §4.4
// and §4.5 ("an explicit sender_id argument").
func encodeRequest(id RpcID, method string, args wire.Value, sender kadlan.NodeID) []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, frameRequest)
	buf = append(buf, id[:]...)
	buf = wire.Encode(buf, method)
	buf = wire.Encode(buf, sender[:])
	buf = wire.Encode(buf, args)
	return buf
}

// encodeResponse lays out [0x01, rpc_id, result(length-prefixed
// serialized value)]. The result itself is always the 2-tuple (ok,
// payload): ok=true carries the handler's return value, ok=false
// carries an error message string (spec.md §4.4: "Unknown methods in
// inbound requests return an error result").
func encodeResponse(id RpcID, ok bool, payload wire.Value) []byte {
	buf := make([]byte, 0, 32)
	buf = append(buf, frameResponse)
	buf = append(buf, id[:]...)
	buf = wire.Encode(buf, []wire.Value{ok, payload})
	return buf
}

type decodedRequest struct {
	id     RpcID
	method string
	sender kadlan.NodeID
	args   wire.Value
}

type decodedResponse struct {
	id      RpcID
	ok      bool
	payload wire.Value
}

func decodeDatagram(buf []byte) (isRequest bool, req *decodedRequest, resp *decodedResponse, err error) {
	if len(buf) < 1+rpcIDLength {
		return false, nil, nil, kadlan.ErrMalformedMessage
	}
	frameType := buf[0]
	var id RpcID
	copy(id[:], buf[1:1+rpcIDLength])
	rest := buf[1+rpcIDLength:]

	switch frameType {
	case frameRequest:
		v, n, derr := wire.Decode(rest)
		if derr != nil {
			return false, nil, nil, kadlan.ErrMalformedMessage
		}
		method, ok := wire.Str(v)
		if !ok {
			return false, nil, nil, kadlan.ErrMalformedMessage
		}
		rest = rest[n:]
		v, n, derr = wire.Decode(rest)
		if derr != nil {
			return false, nil, nil, kadlan.ErrMalformedMessage
		}
		senderBytes, ok := wire.Bytes(v)
		if !ok || len(senderBytes) != kadlan.IDLength {
			return false, nil, nil, kadlan.ErrMalformedMessage
		}
		var sender kadlan.NodeID
		copy(sender[:], senderBytes)
		rest = rest[n:]
		v, _, derr = wire.Decode(rest)
		if derr != nil {
			return false, nil, nil, kadlan.ErrMalformedMessage
		}
		return true, &decodedRequest{id: id, method: method, sender: sender, args: v}, nil, nil
	case frameResponse:
		v, _, derr := wire.Decode(rest)
		if derr != nil {
			return false, nil, nil, kadlan.ErrMalformedMessage
		}
		tup, ok := wire.Tuple(v)
		if !ok || len(tup) != 2 {
			return false, nil, nil, kadlan.ErrMalformedMessage
		}
		okFlag, ok := wire.Bool(tup[0])
		if !ok {
			return false, nil, nil, kadlan.ErrMalformedMessage
		}
		return false, nil, &decodedResponse{id: id, ok: okFlag, payload: tup[1]}, nil
	default:
		return false, nil, nil, kadlan.ErrMalformedMessage
	}
}

// maxDatagramSize bounds outbound payloads (spec.md §4.4:
// "Datagrams exceeding the MTU are not supported").
const maxDatagramSize = 1280

func checkSize(buf []byte) error {
	if len(buf) > maxDatagramSize {
		return kadlan.ErrMessageTooLarge
	}
	return nil
}
