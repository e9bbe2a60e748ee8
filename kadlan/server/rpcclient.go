package server

import (
	"net"

	"github.com/kademlan/kadlan"
	"github.com/kademlan/kadlan/protocol"
	"github.com/kademlan/kadlan/wire"
)

// pingNode implements the kadlan.Pinger dependency the routing table
// uses for liveness challenges (spec.md §4.2).
func (s *Server) pingNode(n kadlan.Node) error {
	_, err := s.pingAddr(n.Addr())
	return err
}

// pingAddr issues a ping to addr and returns the responder's claimed
// node id (spec.md §4.5: "ping(sender_id) → sender_id ... used for
// liveness and for initial endpoint discovery").
func (s *Server) pingAddr(addr *net.UDPAddr) (kadlan.NodeID, error) {
	result, err := s.transport.Call(addr, "ping", nil)
	if err != nil {
		return kadlan.NodeID{}, err
	}
	idBytes, ok := wire.Bytes(result)
	if !ok || len(idBytes) != kadlan.IDLength {
		return kadlan.NodeID{}, kadlan.ErrMalformedMessage
	}
	var id kadlan.NodeID
	copy(id[:], idBytes)
	return id, nil
}

// findNode issues find_node(target) to n, matching crawler.FindNodeFunc.
func (s *Server) findNode(n kadlan.Node, target kadlan.NodeID) ([]kadlan.Node, error) {
	result, err := s.transport.Call(n.Addr(), "find_node", target[:])
	if err != nil {
		return nil, err
	}
	nodes, ok := protocol.NodesFromWire(result)
	if !ok {
		return nil, kadlan.ErrMalformedMessage
	}
	return nodes, nil
}

// findValue issues find_value(key) to n, matching crawler.FindValueFunc.
func (s *Server) findValue(n kadlan.Node, key kadlan.NodeID) ([]byte, []kadlan.Node, bool, error) {
	result, err := s.transport.Call(n.Addr(), "find_value", key[:])
	if err != nil {
		return nil, nil, false, err
	}
	if value, ok := protocol.IsValueResult(result); ok {
		return value, nil, true, nil
	}
	nodes, ok := protocol.NodesFromWire(result)
	if !ok {
		return nil, nil, false, kadlan.ErrMalformedMessage
	}
	return nil, nodes, false, nil
}

// store issues store(key, value) to n, matching crawler.StoreFunc.
func (s *Server) store(n kadlan.Node, key kadlan.NodeID, value []byte) error {
	_, err := s.transport.Call(n.Addr(), "store", []wire.Value{key[:], value})
	return err
}

// stun issues stun() to n and returns the address it reflects back,
// per spec.md's `stun(sender) → (ip, port)`.
func (s *Server) stun(n kadlan.Node) (net.IP, int, error) {
	result, err := s.transport.Call(n.Addr(), "stun", nil)
	if err != nil {
		return nil, 0, err
	}
	tup, ok := wire.Tuple(result)
	if !ok || len(tup) != 2 {
		return nil, 0, kadlan.ErrMalformedMessage
	}
	ipBytes, ok := wire.Bytes(tup[0])
	if !ok {
		return nil, 0, kadlan.ErrMalformedMessage
	}
	port, ok := wire.Int64(tup[1])
	if !ok {
		return nil, 0, kadlan.ErrMalformedMessage
	}
	return net.IP(ipBytes), int(port), nil
}
