package kadlan

import "errors"

// Error kinds surfaced by the overlay engine (spec.md §7). RPC-layer
// failures never propagate as panics; they resolve a pending call's
// error channel with one of these, and the crawler folds every RPC
// failure into a plain node-level timeout.
var (
	// ErrRpcTimeout is returned when no response arrives within the
	// configured RPC timeout.
	ErrRpcTimeout = errors.New("kadlan: rpc timeout")
	// ErrNoNeighbors is surfaced from Get/Set when the routing table
	// has no contacts to start a crawl from.
	ErrNoNeighbors = errors.New("kadlan: no neighbors")
	// ErrNotFound is surfaced from Get when a value crawl converges
	// without anyone returning the value.
	ErrNotFound = errors.New("kadlan: value not found")
	// ErrMessageTooLarge is returned when an outbound payload would
	// exceed the UDP MTU.
	ErrMessageTooLarge = errors.New("kadlan: message too large")
	// ErrMalformedMessage marks an inbound datagram that failed to
	// parse; it is logged and dropped, never surfaced to a caller.
	ErrMalformedMessage = errors.New("kadlan: malformed message")
	// ErrShuttingDown is returned by RPC calls attempted during or
	// after transport shutdown (Server.Stop closes the transport).
	ErrShuttingDown = errors.New("kadlan: shutting down")
	// ErrUnknownMethod is the error result sent back for an inbound
	// request naming a method the transport doesn't implement.
	ErrUnknownMethod = errors.New("kadlan: unknown method")
)
