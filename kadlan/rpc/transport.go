package rpc

import (
	"container/list"
	"net"
	"time"

	"github.com/beevik/ntp"
	"github.com/kademlan/kadlan"
	"github.com/kademlan/kadlan/internal/klog"
	"github.com/kademlan/kadlan/internal/kmetrics"
	"github.com/kademlan/kadlan/wire"
)

// DefaultTimeout is the per-call RPC timeout (spec.md §5: rpc_timeout
// default 5s).
const DefaultTimeout = 5 * time.Second

const (
	ntpFailureThreshold = 32               // consecutive timeouts before an NTP check
	ntpWarningCooldown  = 10 * time.Minute // minimum gap between NTP warnings
	driftThreshold      = 10 * time.Second // drift past which we log a warning
)

// Handler answers an inbound request. It returns the wire value to
// send back, or an error to report as ErrUnknownMethod / a handler
// failure (spec.md §4.4: "Unknown methods in inbound requests return
// an error result").
type Handler func(sender kadlan.NodeID, from *net.UDPAddr, args wire.Value) (wire.Value, error)

// ContactObserver is notified of every inbound message whose sender id
// is known, so the caller can run add_contact (spec.md §4.4: "Every
// inbound message whose sender id is known updates the routing
// table").
type ContactObserver func(n kadlan.Node)

type packetConn interface {
	WriteTo(b []byte, addr net.Addr) (int, error)
	ReadFrom(b []byte) (int, net.Addr, error)
	Close() error
	LocalAddr() net.Addr
}

// pending is a single outstanding outbound call, modeled directly on
// the teacher's udp.pending.
type pending struct {
	id       RpcID
	deadline time.Time
	createAt time.Time
	result   chan<- callResult
}

type callResult struct {
	value wire.Value
	err   error
}

type inboundReply struct {
	resp *decodedResponse
}

// Transport is the UDP RPC endpoint: it multiplexes outbound calls
// (keyed by rpc_id) against a single socket and dispatches inbound
// requests to registered Handlers.
type Transport struct {
	conn     packetConn
	self     kadlan.NodeID
	timeout  time.Duration
	handlers map[string]Handler
	observer ContactObserver

	pendings chan *pending
	gotreply chan inboundReply
	closing  chan struct{}
	closed   chan struct{}
}

// NewTransport wraps an already-bound UDP connection (typically from
// net.ListenUDP) as an RPC transport for self. A timeout <= 0 falls
// back to DefaultTimeout (spec.md §6: "rpc_timeout (default 5s)").
func NewTransport(conn *net.UDPConn, self kadlan.NodeID, timeout time.Duration) *Transport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	t := &Transport{
		conn:     conn,
		self:     self,
		timeout:  timeout,
		handlers: make(map[string]Handler),
		pendings: make(chan *pending),
		gotreply: make(chan inboundReply),
		closing:  make(chan struct{}),
		closed:   make(chan struct{}),
	}
	go t.loop()
	go t.readLoop()
	return t
}

// Handle registers the handler for an inbound method name. Call before
// traffic starts arriving; not safe for concurrent registration.
func (t *Transport) Handle(method string, h Handler) {
	t.handlers[method] = h
}

// OnContact sets the callback invoked for every inbound message with a
// recognizable sender id.
func (t *Transport) OnContact(fn ContactObserver) {
	t.observer = fn
}

// LocalAddr returns the transport's bound UDP address.
func (t *Transport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// Close cancels all outstanding calls with ErrShuttingDown and shuts
// the socket down.
func (t *Transport) Close() error {
	select {
	case <-t.closing:
		return nil
	default:
		close(t.closing)
	}
	err := t.conn.Close()
	<-t.closed
	return err
}

// Call sends method(args) to addr and blocks until a matching rpc_id
// response arrives or the transport's timeout (DefaultTimeout unless
// NewTransport was given another) elapses (spec.md §4.4: "Exactly
// one outstanding future per rpc_id").
func (t *Transport) Call(addr *net.UDPAddr, method string, args wire.Value) (wire.Value, error) {
	id := newRpcID()
	buf := encodeRequest(id, method, args, t.self)
	if err := checkSize(buf); err != nil {
		return nil, err
	}

	ch := make(chan callResult, 1)
	p := &pending{id: id, result: ch}
	select {
	case t.pendings <- p:
	case <-t.closing:
		return nil, kadlan.ErrShuttingDown
	}

	if _, err := t.conn.WriteTo(buf, addr); err != nil {
		kmetrics.RpcCallFailed.Inc(1)
		return nil, err
	}
	kmetrics.RpcCallsSent.Inc(1)

	select {
	case r := <-ch:
		return r.value, r.err
	case <-t.closing:
		return nil, kadlan.ErrShuttingDown
	}
}

// loop runs in its own goroutine and owns the pending-call table, in
// the shape of the teacher's udp.loop(): a doubly-linked list ordered
// by deadline, a single timer reset to the earliest deadline, and two
// channels (pendings, gotreply) feeding state changes into it.
func (t *Transport) loop() {
	defer close(t.closed)

	var (
		plist        = list.New()
		timer        = time.NewTimer(time.Hour)
		nextTimeout  *pending
		contTimeouts int
		ntpWarnTime  time.Time
	)
	timer.Stop()
	defer timer.Stop()

	resetTimer := func() {
		front := plist.Front()
		if front == nil {
			nextTimeout = nil
			timer.Stop()
			return
		}
		if nextTimeout == front.Value {
			return
		}
		nextTimeout = front.Value.(*pending)
		d := time.Until(nextTimeout.deadline)
		if d < 0 {
			d = 0
		}
		timer.Reset(d)
	}

	for {
		resetTimer()
		select {
		case <-t.closing:
			for el := plist.Front(); el != nil; el = el.Next() {
				el.Value.(*pending).result <- callResult{err: kadlan.ErrShuttingDown}
			}
			return

		case p := <-t.pendings:
			p.createAt = time.Now()
			p.deadline = p.createAt.Add(t.timeout)
			plist.PushBack(p)

		case r := <-t.gotreply:
			matched := false
			for el := plist.Front(); el != nil; el = el.Next() {
				p := el.Value.(*pending)
				if p.id == r.resp.id {
					matched = true
					if r.resp.ok {
						p.result <- callResult{value: r.resp.payload}
					} else {
						p.result <- callResult{err: remoteError(r.resp.payload)}
					}
					plist.Remove(el)
					contTimeouts = 0
					break
				}
			}
			if !matched {
				klog.Debugf("rpc: discarding unmatched or late reply id=%x", r.resp.id[:4])
			}

		case now := <-timer.C:
			nextTimeout = nil
			var next *list.Element
			for el := plist.Front(); el != nil; el = next {
				next = el.Next()
				p := el.Value.(*pending)
				if !now.Before(p.deadline) {
					p.result <- callResult{err: kadlan.ErrRpcTimeout}
					plist.Remove(el)
					contTimeouts++
					kmetrics.RpcCallsTimedOut.Inc(1)
				}
			}
			if contTimeouts > ntpFailureThreshold {
				if time.Since(ntpWarnTime) >= ntpWarningCooldown {
					ntpWarnTime = time.Now()
					go checkClockDrift()
				}
				contTimeouts = 0
			}
		}
	}
}

// checkClockDrift queries a public NTP server and warns if the local
// clock has drifted enough to plausibly explain a run of RPC
// timeouts, mirroring the teacher's checkClockDrift helper.
func checkClockDrift() {
	resp, err := ntp.Query("pool.ntp.org")
	if err != nil {
		klog.Debugf("rpc: ntp check failed: %v", err)
		return
	}
	if resp.ClockOffset > driftThreshold || resp.ClockOffset < -driftThreshold {
		klog.Warnf("rpc: local clock drift %v exceeds threshold; repeated RPC timeouts may be clock skew, not peer loss", resp.ClockOffset)
	}
}

// readLoop runs in its own goroutine, decoding inbound datagrams and
// either dispatching them to a registered handler (requests) or
// routing them to the loop goroutine for pending-call matching
// (responses).
func (t *Transport) readLoop() {
	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := t.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-t.closing:
			default:
				klog.Debugf("rpc: read error: %v", err)
			}
			return
		}
		udpAddr, ok := from.(*net.UDPAddr)
		if !ok {
			continue
		}
		t.handleDatagram(udpAddr, append([]byte(nil), buf[:n]...))
	}
}

func (t *Transport) handleDatagram(from *net.UDPAddr, buf []byte) {
	isRequest, req, resp, err := decodeDatagram(buf)
	if err != nil {
		klog.Debugf("rpc: malformed datagram from %v: %v", from, err)
		return
	}

	if isRequest {
		t.handleRequest(from, req)
		return
	}

	select {
	case t.gotreply <- inboundReply{resp: resp}:
	case <-t.closing:
	}
}

func (t *Transport) handleRequest(from *net.UDPAddr, req *decodedRequest) {
	if t.observer != nil {
		t.observer(kadlan.Node{ID: req.sender, IP: from.IP, Port: uint16(from.Port)})
	}

	h, ok := t.handlers[req.method]
	if !ok {
		t.reply(from, req.id, nil, kadlan.ErrUnknownMethod)
		return
	}
	result, err := h(req.sender, from, req.args)
	t.reply(from, req.id, result, err)
}

func (t *Transport) reply(to *net.UDPAddr, id RpcID, result wire.Value, err error) {
	var buf []byte
	if err != nil {
		buf = encodeResponse(id, false, err.Error())
	} else {
		buf = encodeResponse(id, true, result)
	}
	if e := checkSize(buf); e != nil {
		klog.Warnf("rpc: dropping oversize response to %v: %v", to, e)
		return
	}
	if _, e := t.conn.WriteTo(buf, to); e != nil {
		klog.Debugf("rpc: write error to %v: %v", to, e)
	}
}

// remoteError turns an error-response payload back into a Go error,
// recognizing the one sentinel a peer can legitimately report
// (unknown method); anything else becomes an opaque remote error.
func remoteError(payload wire.Value) error {
	msg, _ := wire.Str(payload)
	if msg == kadlan.ErrUnknownMethod.Error() {
		return kadlan.ErrUnknownMethod
	}
	return &RemoteError{Message: msg}
}

// RemoteError wraps an error string a peer's handler returned.
type RemoteError struct{ Message string }

func (e *RemoteError) Error() string { return "rpc: remote error: " + e.Message }
