package server

import (
	"net"

	"github.com/kademlan/kadlan"
	"github.com/kademlan/kadlan/crawler"
	"github.com/kademlan/kadlan/internal/klog"
)

// Bootstrap pings each address (its id is unknown in advance, so the
// ping result carries the responder's id), then runs a
// NodeSpiderCrawl for the local node id against the responders
// (spec.md §4.8). On the first bootstrap that reaches at least one
// peer, it fires the Start callback exactly once.
func (s *Server) Bootstrap(addrs []*net.UDPAddr) []kadlan.Node {
	if len(addrs) == 0 {
		return nil
	}

	type pinged struct {
		node kadlan.Node
		ok   bool
	}
	results := make(chan pinged, len(addrs))
	for _, addr := range addrs {
		go func(addr *net.UDPAddr) {
			id, err := s.pingAddr(addr)
			if err != nil {
				klog.Debugf("server: bootstrap ping to %v failed: %v", addr, err)
				results <- pinged{ok: false}
				return
			}
			n := kadlan.Node{ID: id, IP: addr.IP, Port: uint16(addr.Port)}
			s.table.AddContact(n)
			results <- pinged{node: n, ok: true}
		}(addr)
	}

	var seeds []kadlan.Node
	for range addrs {
		r := <-results
		if r.ok {
			seeds = append(seeds, r.node)
		}
	}
	if len(seeds) == 0 {
		return nil
	}

	reached := crawler.NodeSpiderCrawl(s.cfg.NodeID, seeds, s.cfg.K, s.cfg.Alpha, s.findNode)
	for _, n := range reached {
		s.table.AddContact(n)
	}
	s.fireBootstrapped()
	return reached
}

// RefreshTable implements spec.md §4.8's refresh_table: for each stale
// bucket's refresh id, run a NodeSpiderCrawl; then republish every
// storage entry older than an hour via Set.
func (s *Server) RefreshTable() error {
	ids := s.table.RefreshIDs(s.cfg.RefreshInterval)
	for _, id := range ids {
		seeds := s.table.FindNeighbors(id, s.cfg.Alpha, nil)
		if len(seeds) == 0 {
			continue
		}
		reached := crawler.NodeSpiderCrawl(id, seeds, s.cfg.K, s.cfg.Alpha, s.findNode)
		for _, n := range reached {
			s.table.AddContact(n)
		}
	}

	stale := s.storage.IterOlderThan(republishAge)
	for _, kv := range stale {
		if err := s.Set(kv.Key, kv.Value); err != nil {
			klog.Debugf("server: republish of %s failed: %v", kv.Key.String()[:16], err)
		}
	}
	return nil
}

// Set implements spec.md §4.8's set: compute dkey=key (already a
// digest, the caller is responsible for hashing arbitrary keys via
// kadlan.Digest), run a NodeSpiderCrawl, then issue store to every
// returned node. Succeeds if at least one store succeeded.
func (s *Server) Set(key kadlan.NodeID, value []byte) error {
	neighbors := s.table.FindNeighbors(key, s.cfg.K, nil)
	if len(neighbors) == 0 {
		return kadlan.ErrNoNeighbors
	}

	nodes := crawler.NodeSpiderCrawl(key, neighbors, s.cfg.K, s.cfg.Alpha, s.findNode)
	if len(nodes) == 0 {
		nodes = neighbors
	}

	type storeOutcome struct{ ok bool }
	results := make(chan storeOutcome, len(nodes))
	for _, n := range nodes {
		go func(n kadlan.Node) {
			err := s.store(n, key, value)
			results <- storeOutcome{ok: err == nil}
		}(n)
	}
	anySucceeded := false
	for range nodes {
		if (<-results).ok {
			anySucceeded = true
		}
	}
	if !anySucceeded {
		return kadlan.ErrRpcTimeout
	}
	return nil
}

// Get implements spec.md §4.8's get: a value held in local storage is
// returned directly; otherwise, analogous to Set, it runs a
// ValueSpiderCrawl and returns NotFound if no responder had the key.
func (s *Server) Get(key kadlan.NodeID) ([]byte, error) {
	if value, ok := s.storage.Get(key); ok {
		return value, nil
	}
	neighbors := s.table.FindNeighbors(key, s.cfg.K, nil)
	if len(neighbors) == 0 {
		return nil, kadlan.ErrNoNeighbors
	}

	value, _, found := crawler.ValueSpiderCrawl(key, neighbors, s.cfg.K, s.cfg.Alpha, s.findValue, s.store)
	if !found {
		return nil, kadlan.ErrNotFound
	}
	return value, nil
}

// BootstrappableNeighbors returns the local node's immediate neighbors
// as dialable addresses, suitable for a later Bootstrap call after a
// restart (spec.md §4.8).
func (s *Server) BootstrappableNeighbors() []*net.UDPAddr {
	neighbors := s.table.FindNeighbors(s.cfg.NodeID, s.cfg.K, nil)
	addrs := make([]*net.UDPAddr, 0, len(neighbors))
	for _, n := range neighbors {
		if n.HasEndpoint() {
			addrs = append(addrs, n.Addr())
		}
	}
	return addrs
}

// VisibleIPs implements spec.md's inet_visible_ip: it asks every
// bootstrappable neighbor to stun us and collects whichever addresses
// respond.
func (s *Server) VisibleIPs() []net.IP {
	neighbors := s.table.FindNeighbors(s.cfg.NodeID, s.cfg.K, nil)
	if len(neighbors) == 0 {
		return nil
	}

	type stunResult struct {
		ip net.IP
		ok bool
	}
	results := make(chan stunResult, len(neighbors))
	for _, n := range neighbors {
		go func(n kadlan.Node) {
			ip, _, err := s.stun(n)
			results <- stunResult{ip: ip, ok: err == nil}
		}(n)
	}
	var ips []net.IP
	for range neighbors {
		if r := <-results; r.ok {
			ips = append(ips, r.ip)
		}
	}
	return ips
}
