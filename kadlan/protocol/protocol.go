// Package protocol implements the Kademlia RPC method bodies (spec.md
// §4.5): ping, store, find_node, find_value, stun. It is grounded on
// the teacher's packet.handle methods in p2p/discover/udp.go (ping,
// findnode, store, findvalue each update the routing table and answer
// from local state), generalized to take an explicit sender_id
// argument and stripped of node-type/alien-node filtering — this
// overlay has no bonding or brother/alien node classification.
package protocol

import (
	"net"

	"github.com/kademlan/kadlan"
	"github.com/kademlan/kadlan/internal/klog"
	"github.com/kademlan/kadlan/storage"
	"github.com/kademlan/kadlan/wire"
)

// Table is the subset of RoutingTable behavior the protocol handlers
// depend on.
type Table interface {
	AddContact(n kadlan.Node)
	FindNeighbors(target kadlan.NodeID, count int, exclude map[kadlan.NodeID]bool) []kadlan.Node
	Self() kadlan.NodeID
}

// Server bundles the state the handlers act on: the local identity,
// routing table, and key/value store.
type Server struct {
	Self    kadlan.NodeID
	Table   Table
	Storage storage.Storage
	K       int
}

func nodeToWire(n kadlan.Node) wire.Value {
	return []wire.Value{n.ID[:], []byte(n.IP), int64(n.Port)}
}

func nodesToWire(nodes []kadlan.Node) wire.Value {
	out := make([]wire.Value, len(nodes))
	for i, n := range nodes {
		out[i] = nodeToWire(n)
	}
	return out
}

func wireToNode(v wire.Value) (kadlan.Node, bool) {
	tup, ok := wire.Tuple(v)
	if !ok || len(tup) != 3 {
		return kadlan.Node{}, false
	}
	idBytes, ok := wire.Bytes(tup[0])
	if !ok || len(idBytes) != kadlan.IDLength {
		return kadlan.Node{}, false
	}
	ipBytes, ok := wire.Bytes(tup[1])
	if !ok {
		return kadlan.Node{}, false
	}
	port, ok := wire.Int64(tup[2])
	if !ok {
		return kadlan.Node{}, false
	}
	var id kadlan.NodeID
	copy(id[:], idBytes)
	return kadlan.Node{ID: id, IP: net.IP(ipBytes), Port: uint16(port)}, true
}

// NodesFromWire decodes a find_node/find_value "else" branch result
// back into a Node slice. Exported for the server package's RPC
// client.
func NodesFromWire(v wire.Value) ([]kadlan.Node, bool) {
	tup, ok := wire.Tuple(v)
	if !ok {
		return nil, false
	}
	nodes := make([]kadlan.Node, 0, len(tup))
	for _, e := range tup {
		n, ok := wireToNode(e)
		if !ok {
			return nil, false
		}
		nodes = append(nodes, n)
	}
	return nodes, true
}

// recordSender implements spec.md §4.5's "all handlers update the
// routing table with the sender's contact ... on entry."
func (s *Server) recordSender(sender kadlan.NodeID, from *net.UDPAddr) {
	if sender.IsZero() || from == nil {
		return
	}
	s.Table.AddContact(kadlan.Node{ID: sender, IP: from.IP, Port: uint16(from.Port)})
}

// Ping answers spec.md's `ping(sender_id) → sender_id`: returns the
// local node's own id.
func (s *Server) Ping(sender kadlan.NodeID, from *net.UDPAddr, args wire.Value) (wire.Value, error) {
	s.recordSender(sender, from)
	return s.Self[:], nil
}

// Store answers `store(sender_id, key_digest, value) → true`: it
// always succeeds.
func (s *Server) Store(sender kadlan.NodeID, from *net.UDPAddr, args wire.Value) (wire.Value, error) {
	s.recordSender(sender, from)
	tup, ok := wire.Tuple(args)
	if !ok || len(tup) != 2 {
		return nil, kadlan.ErrMalformedMessage
	}
	keyBytes, ok := wire.Bytes(tup[0])
	if !ok || len(keyBytes) != kadlan.IDLength {
		return nil, kadlan.ErrMalformedMessage
	}
	value, ok := wire.Bytes(tup[1])
	if !ok {
		return nil, kadlan.ErrMalformedMessage
	}
	var key kadlan.NodeID
	copy(key[:], keyBytes)
	s.Storage.Set(key, value)
	klog.Debugf("protocol: stored %s (%d bytes) on behalf of %s", key.String()[:16], len(value), sender.String()[:16])
	return true, nil
}

// FindNode answers `find_node(sender_id, target_id) → [Node]`: up to
// k neighbors of target_id, excluding the sender.
func (s *Server) FindNode(sender kadlan.NodeID, from *net.UDPAddr, args wire.Value) (wire.Value, error) {
	s.recordSender(sender, from)
	targetBytes, ok := wire.Bytes(args)
	if !ok || len(targetBytes) != kadlan.IDLength {
		return nil, kadlan.ErrMalformedMessage
	}
	var target kadlan.NodeID
	copy(target[:], targetBytes)
	neighbors := s.Table.FindNeighbors(target, s.bucketSize(), map[kadlan.NodeID]bool{sender: true})
	return nodesToWire(neighbors), nil
}

// FindValue answers `find_value(sender_id, key_digest) →
// {"value": bytes}` if locally present, else [Node] neighbors as with
// find_node.
func (s *Server) FindValue(sender kadlan.NodeID, from *net.UDPAddr, args wire.Value) (wire.Value, error) {
	s.recordSender(sender, from)
	keyBytes, ok := wire.Bytes(args)
	if !ok || len(keyBytes) != kadlan.IDLength {
		return nil, kadlan.ErrMalformedMessage
	}
	var key kadlan.NodeID
	copy(key[:], keyBytes)

	if value, ok := s.Storage.Get(key); ok {
		return []wire.Value{"value", value}, nil
	}
	neighbors := s.Table.FindNeighbors(key, s.bucketSize(), map[kadlan.NodeID]bool{sender: true})
	return nodesToWire(neighbors), nil
}

// IsValueResult reports whether a find_value response carries a value
// tuple ("value", bytes) rather than a neighbor list, and extracts the
// value when so.
func IsValueResult(v wire.Value) ([]byte, bool) {
	tup, ok := wire.Tuple(v)
	if !ok || len(tup) != 2 {
		return nil, false
	}
	tag, ok := wire.Str(tup[0])
	if !ok || tag != "value" {
		return nil, false
	}
	value, ok := wire.Bytes(tup[1])
	if !ok {
		return nil, false
	}
	return value, true
}

// Stun answers `stun(sender) → (ip, port)`: it reflects the caller's
// observed source address, used for inet_visible_ip.
func (s *Server) Stun(sender kadlan.NodeID, from *net.UDPAddr, args wire.Value) (wire.Value, error) {
	s.recordSender(sender, from)
	if from == nil {
		return nil, kadlan.ErrMalformedMessage
	}
	return []wire.Value{[]byte(from.IP), int64(from.Port)}, nil
}

func (s *Server) bucketSize() int {
	if s.K <= 0 {
		return kadlan.DefaultBucketSize
	}
	return s.K
}
