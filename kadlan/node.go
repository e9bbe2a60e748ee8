package kadlan

import (
	"fmt"
	"net"
	"time"
)

// Node is the (id, ip, port) tuple the spec calls a Kademlia node
// (spec.md §3). Equality is defined on ID alone. A Node built with a
// zero IP/port represents a lookup target, never a live peer.
type Node struct {
	ID   NodeID
	IP   net.IP
	Port uint16
}

// HasEndpoint reports whether n carries a dialable address, as
// opposed to being a bare lookup target.
func (n Node) HasEndpoint() bool {
	return n.IP != nil && n.Port != 0
}

// Addr renders the node's UDP endpoint.
func (n Node) Addr() *net.UDPAddr {
	return &net.UDPAddr{IP: n.IP, Port: int(n.Port)}
}

func (n Node) String() string {
	if !n.HasEndpoint() {
		return n.ID.String()[:16]
	}
	return fmt.Sprintf("%s@%s:%d", n.ID.String()[:16], n.IP, n.Port)
}

// Contact is a Node the local peer has actually observed and cached in
// a bucket. It additionally tracks when it was last confirmed live.
type Contact struct {
	Node
	LastSeen time.Time
}

func newContact(n Node) Contact {
	return Contact{Node: n, LastSeen: time.Now()}
}
