// Package storage implements spec.md §4.3's Storage component: a
// mapping from key-digest to (value, insertion_time) with a TTL or
// bounded-capacity eviction policy, plus iteration over entries older
// than a threshold for republish.
package storage

import (
	"time"

	"github.com/kademlan/kadlan"
)

// Entry pairs a stored value with when it was set, as spec.md §3
// describes Storage's value type.
type Entry struct {
	Value    []byte
	StoredAt time.Time
}

// Storage is the interface every backend (TTL map, bounded LRU,
// on-disk) satisfies, matching spec.md §4.3's operations.
type Storage interface {
	// Set stores value under key, as a fresh insertion.
	Set(key kadlan.NodeID, value []byte)
	// Get returns the value for key and whether it was present.
	Get(key kadlan.NodeID) ([]byte, bool)
	// IterOlderThan returns every (key, value) whose insertion time
	// predates now-age, for republish.
	IterOlderThan(age time.Duration) []KV
	// Cull drops expired entries, a no-op for backends without TTL.
	Cull()
	// Close releases any resources (file handles, etc).
	Close() error
}

// KV is a single key/value pair returned by IterOlderThan.
type KV struct {
	Key   kadlan.NodeID
	Value []byte
}
