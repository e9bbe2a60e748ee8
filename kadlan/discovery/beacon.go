// Package discovery implements the LAN beacon auto-discovery
// component of spec.md §4.7: a fixed-interval UDP broadcast announcing
// this node's presence, a listener maintaining a peer table keyed by
// UUID, and join/leave semantics driven by a zero port. It is
// translated from original_source/kademLAN/discovery.py's Discover
// class — that implementation rides pyre's ZBeacon (a ZeroMQ actor)
// for the broadcast socket; this package reimplements the same wire
// frame directly over a plain Go UDP broadcast socket, since nothing
// in the example pack wraps ZeroMQ for Go and the frame itself is
// trivial to emit/parse without it.
package discovery

import (
	"encoding/binary"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/kademlan/kadlan/internal/klog"
	"github.com/kademlan/kadlan/internal/kmetrics"
	"github.com/pborman/uuid"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// Port is the fixed LAN beacon UDP port (spec.md §4.7).
const Port = 5670

const (
	beaconVersion = 1
	frameLength   = 3 + 1 + 16 + 2 // magic + version + uuid + port
)

// DefaultInterval is how often a beacon is (re)broadcast.
const DefaultInterval = time.Second

var (
	// ErrInvalidFrame marks a datagram whose magic or version doesn't
	// match (spec.md §4.7: "Sources whose magic or version mismatches
	// are ignored").
	ErrInvalidFrame = errors.New("discovery: invalid beacon frame")
)

// Peer is a LAN-discovered endpoint, keyed by the announcing node's
// self-assigned UUID.
type Peer struct {
	ID       uuid.UUID
	Addr     *net.UDPAddr
	LastSeen time.Time
}

func encodeBeacon(id uuid.UUID, port uint16) []byte {
	buf := make([]byte, frameLength)
	buf[0], buf[1], buf[2] = 'Z', 'R', 'E'
	buf[3] = beaconVersion
	copy(buf[4:20], id)
	binary.BigEndian.PutUint16(buf[20:22], port)
	return buf
}

func decodeBeacon(buf []byte) (id uuid.UUID, port uint16, err error) {
	if len(buf) != frameLength {
		return nil, 0, ErrInvalidFrame
	}
	if buf[0] != 'Z' || buf[1] != 'R' || buf[2] != 'E' || buf[3] != beaconVersion {
		return nil, 0, ErrInvalidFrame
	}
	id = uuid.UUID(append([]byte(nil), buf[4:20]...))
	port = binary.BigEndian.Uint16(buf[20:22])
	return id, port, nil
}

// Discovery owns the beacon broadcaster/listener and the resulting
// peer table.
type Discovery struct {
	self     uuid.UUID
	port     uint16
	interval time.Duration

	conn *net.UDPConn
	pconn *ipv4.PacketConn

	mu      sync.Mutex
	peers   map[string]*Peer
	onJoin  func(Peer)
	onLeave func(uuid.UUID)

	closing chan struct{}
	wg      sync.WaitGroup
}

// New builds a Discovery for a node whose inbox listens on port.
// selfID is this node's beacon identity; a fresh random UUID is a
// reasonable default.
func New(selfID uuid.UUID, port uint16) *Discovery {
	return &Discovery{
		self:     selfID,
		port:     port,
		interval: DefaultInterval,
		peers:    make(map[string]*Peer),
		closing:  make(chan struct{}),
	}
}

// SetInterval overrides the beacon broadcast interval before Start.
func (d *Discovery) SetInterval(interval time.Duration) {
	d.interval = interval
}

// OnJoin registers a callback fired when a new or refreshed peer
// beacon arrives.
func (d *Discovery) OnJoin(fn func(Peer)) { d.onJoin = fn }

// OnLeave registers a callback fired when a peer announces departure
// (port 0) or is reaped as stale.
func (d *Discovery) OnLeave(fn func(uuid.UUID)) { d.onLeave = fn }

// Start binds the broadcast socket, and begins the broadcast and
// receive loops.
func (d *Discovery) Start() error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: Port})
	if err != nil {
		return err
	}
	d.conn = conn
	d.pconn = ipv4.NewPacketConn(conn)
	// Broadcast datagrams typically don't need to leave the local
	// link; keep TTL at 1 to stay LAN-scoped.
	_ = d.pconn.SetTTL(1)
	if err := setBroadcast(conn); err != nil {
		klog.Warnf("discovery: SO_BROADCAST not set: %v", err)
	}

	d.wg.Add(2)
	go d.broadcastLoop()
	go d.receiveLoop()
	return nil
}

// Stop announces departure (a zero-port beacon, spec.md §4.7) and
// shuts the socket down.
func (d *Discovery) Stop() error {
	select {
	case <-d.closing:
		return nil
	default:
		close(d.closing)
	}
	if d.conn != nil {
		frame := encodeBeacon(d.self, 0)
		broadcastOnce(d.conn, frame)
		err := d.conn.Close()
		d.wg.Wait()
		return err
	}
	return nil
}

// GetPeers returns the current set of known peer endpoints (spec.md
// §4.7: get_peers()).
func (d *Discovery) GetPeers() []Peer {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Peer, 0, len(d.peers))
	for _, p := range d.peers {
		out = append(out, *p)
	}
	return out
}

// setBroadcast sets SO_BROADCAST on conn so writes to the limited
// broadcast address (255.255.255.255) aren't rejected by the kernel.
// Go's net package has no portable way to set this socket option, so
// it's reached via golang.org/x/sys/unix directly on the raw fd.
func setBroadcast(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	return sockErr
}

func broadcastAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4bcast, Port: Port}
}

func broadcastOnce(conn *net.UDPConn, frame []byte) {
	if _, err := conn.WriteToUDP(frame, broadcastAddr()); err != nil {
		klog.Debugf("discovery: beacon write failed: %v", err)
	}
}

func (d *Discovery) broadcastLoop() {
	defer d.wg.Done()
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	frame := encodeBeacon(d.self, d.port)
	broadcastOnce(d.conn, frame)
	for {
		select {
		case <-d.closing:
			return
		case <-ticker.C:
			broadcastOnce(d.conn, frame)
		}
	}
}

func (d *Discovery) receiveLoop() {
	defer d.wg.Done()
	buf := make([]byte, 256)
	for {
		n, from, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-d.closing:
			default:
				klog.Debugf("discovery: read error: %v", err)
			}
			return
		}
		d.handleFrame(from, buf[:n])
	}
}

func (d *Discovery) handleFrame(from *net.UDPAddr, buf []byte) {
	id, port, err := decodeBeacon(buf)
	if err != nil {
		return
	}
	if id.String() == d.self.String() {
		return // our own broadcast, echoed back by some broadcast configurations
	}

	key := id.String()
	if port == 0 {
		d.mu.Lock()
		_, existed := d.peers[key]
		delete(d.peers, key)
		d.mu.Unlock()
		if existed && d.onLeave != nil {
			d.onLeave(id)
		}
		kmetrics.BeaconPeersKnown.Update(int64(d.peerCount()))
		return
	}

	peer := Peer{ID: id, Addr: &net.UDPAddr{IP: from.IP, Port: int(port)}, LastSeen: time.Now()}
	d.mu.Lock()
	d.peers[key] = &peer
	d.mu.Unlock()
	kmetrics.BeaconPeersKnown.Update(int64(d.peerCount()))
	if d.onJoin != nil {
		d.onJoin(peer)
	}
}

func (d *Discovery) peerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.peers)
}

// ReapStale removes peers whose last beacon predates maxAge and fires
// onLeave for each, mirroring the teacher's pack periodic staleness
// reaping pattern; callers schedule this on a ticker of their own
// choosing (spec.md §5: "scheduled periodic work as timer-driven
// tasks").
func (d *Discovery) ReapStale(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)
	var stale []uuid.UUID
	d.mu.Lock()
	for key, p := range d.peers {
		if p.LastSeen.Before(cutoff) {
			stale = append(stale, p.ID)
			delete(d.peers, key)
		}
	}
	count := len(d.peers)
	d.mu.Unlock()
	kmetrics.BeaconPeersKnown.Update(int64(count))
	for _, id := range stale {
		if d.onLeave != nil {
			d.onLeave(id)
		}
	}
}
