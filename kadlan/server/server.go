// Package server implements the orchestration layer of spec.md §4.8:
// it owns the routing table, storage, protocol handlers, RPC
// transport and LAN discovery, wires them together, and exposes the
// public Set/Get/Bootstrap/RefreshTable/SaveState/LoadState
// operations. It is grounded almost one-to-one on
// original_source/kademLAN/network.py's Server class, restructured
// into Go's explicit error-return style with a background scheduler
// goroutine modeled on go-ethereum's Table.refreshLoop
// (p2p/discover/table.go).
package server

import (
	"net"
	"sync"
	"time"

	"github.com/kademlan/kadlan"
	"github.com/kademlan/kadlan/crawler"
	"github.com/kademlan/kadlan/discovery"
	"github.com/kademlan/kadlan/internal/klog"
	"github.com/kademlan/kadlan/protocol"
	"github.com/kademlan/kadlan/rpc"
	"github.com/kademlan/kadlan/storage"
	"github.com/pborman/uuid"
)

const (
	defaultAlpha            = crawler.DefaultAlpha
	defaultGetPeersInterval = 5 * time.Second
	republishAge            = time.Hour
)

// Server is a running Kademlia overlay node.
type Server struct {
	cfg Config

	table     *kadlan.RoutingTable
	storage   storage.Storage
	transport *rpc.Transport
	proto     *protocol.Server
	disc      *discovery.Discovery

	mu              sync.Mutex
	discoveredPeers map[string]bool
	bootstrapped    bool
	onBootstrapped  func()

	closing chan struct{}
	wg      sync.WaitGroup
}

// New constructs a Server without starting any network I/O; call
// Start to bind sockets and begin background work.
func New(cfg Config) (*Server, error) {
	cfg = cfg.withDefaults()

	s := &Server{
		cfg:             cfg,
		storage:         cfg.Storage,
		discoveredPeers: make(map[string]bool),
		closing:         make(chan struct{}),
	}
	s.table = kadlan.NewRoutingTable(cfg.NodeID, cfg.K, pingerFunc(s.pingNode))

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: cfg.Port})
	if err != nil {
		return nil, err
	}
	s.transport = rpc.NewTransport(conn, cfg.NodeID, cfg.RPCTimeout)
	s.transport.OnContact(func(n kadlan.Node) { s.table.AddContact(n) })

	s.proto = &protocol.Server{
		Self:    cfg.NodeID,
		Table:   s.table,
		Storage: s.storage,
		K:       cfg.K,
	}
	s.transport.Handle("ping", s.proto.Ping)
	s.transport.Handle("store", s.proto.Store)
	s.transport.Handle("find_node", s.proto.FindNode)
	s.transport.Handle("find_value", s.proto.FindValue)
	s.transport.Handle("stun", s.proto.Stun)

	s.disc = discovery.New(uuid.NewRandom(), uint16(cfg.Port))
	s.disc.SetInterval(cfg.BeaconInterval)

	return s, nil
}

type pingerFunc func(n kadlan.Node) error

func (f pingerFunc) Ping(n kadlan.Node) error { return f(n) }

// Self returns the local node identity.
func (s *Server) Self() kadlan.NodeID { return s.cfg.NodeID }

// LocalAddr returns the bound Kademlia RPC address.
func (s *Server) LocalAddr() net.Addr { return s.transport.LocalAddr() }

// Start begins LAN discovery and the periodic get_peers/refresh_table
// scheduler. cb is invoked exactly once after the first successful
// bootstrap (spec.md §4.8). Discovered peers are folded into a
// bootstrap attempt only from scheduleLoop's periodic poll of
// d.GetPeers(), never from the beacon's own goroutine directly
// (spec.md §9: the beacon thread hands off through a lock-guarded
// peer map rather than calling into the routing table itself).
func (s *Server) Start(cb func()) error {
	s.onBootstrapped = cb
	if err := s.disc.Start(); err != nil {
		return err
	}

	s.wg.Add(1)
	go s.scheduleLoop()
	return nil
}

// Stop cancels outstanding RPCs, stops the beacon, and closes the
// socket (spec.md §5: "Shutdown cancels all outstanding RPCs ...
// stops the beacon, and closes the socket").
func (s *Server) Stop() error {
	select {
	case <-s.closing:
		return nil
	default:
		close(s.closing)
	}
	s.wg.Wait()
	err := s.disc.Stop()
	if tErr := s.transport.Close(); tErr != nil && err == nil {
		err = tErr
	}
	return err
}

func (s *Server) scheduleLoop() {
	defer s.wg.Done()
	getPeers := time.NewTicker(s.cfg.GetPeersInterval)
	refresh := time.NewTicker(s.cfg.RefreshInterval)
	reapAge := 10 * s.cfg.BeaconInterval
	reap := time.NewTicker(reapAge)
	defer getPeers.Stop()
	defer refresh.Stop()
	defer reap.Stop()

	for {
		select {
		case <-s.closing:
			return
		case <-getPeers.C:
			s.pollDiscoveredPeers()
		case <-reap.C:
			s.disc.ReapStale(reapAge)
		case <-refresh.C:
			if err := s.RefreshTable(); err != nil {
				klog.Debugf("server: periodic refresh failed: %v", err)
			}
		}
	}
}

// pollDiscoveredPeers mirrors Server.get_peers: any LAN peer not yet
// bootstrapped is folded into a bootstrap attempt.
func (s *Server) pollDiscoveredPeers() {
	var fresh []*net.UDPAddr
	for _, p := range s.disc.GetPeers() {
		key := p.Addr.String()
		s.mu.Lock()
		already := s.discoveredPeers[key]
		s.mu.Unlock()
		if !already {
			fresh = append(fresh, p.Addr)
		}
	}
	if len(fresh) == 0 {
		return
	}
	klog.Debugf("server: found %d new LAN peers", len(fresh))
	s.Bootstrap(fresh)
	s.mu.Lock()
	for _, a := range fresh {
		s.discoveredPeers[a.String()] = true
	}
	s.mu.Unlock()
}

func (s *Server) fireBootstrapped() {
	s.mu.Lock()
	already := s.bootstrapped
	s.bootstrapped = true
	cb := s.onBootstrapped
	s.mu.Unlock()
	if !already && cb != nil {
		cb()
	}
}
