package storage

import (
	"time"

	"github.com/kademlan/kadlan"
	gocache "github.com/patrickmn/go-cache"
)

// DefaultTTL is the expiry window from spec.md §4.3: one week.
const DefaultTTL = 7 * 24 * time.Hour

// TTLStore is the default Storage backend: a TTL-bounded in-memory
// map. It wraps github.com/patrickmn/go-cache, whose own expiration
// and janitor goroutine implement spec.md's "TTL expiry" policy and
// Cull directly.
type TTLStore struct {
	ttl time.Duration
	c   *gocache.Cache
}

// NewTTLStore builds a TTLStore with the given TTL, cleaned up twice
// as often as the TTL itself.
func NewTTLStore(ttl time.Duration) *TTLStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TTLStore{ttl: ttl, c: gocache.New(ttl, ttl/2)}
}

func (s *TTLStore) Set(key kadlan.NodeID, value []byte) {
	s.c.Set(key.String(), Entry{Value: value, StoredAt: time.Now()}, s.ttl)
}

func (s *TTLStore) Get(key kadlan.NodeID) ([]byte, bool) {
	v, ok := s.c.Get(key.String())
	if !ok {
		return nil, false
	}
	return v.(Entry).Value, true
}

func (s *TTLStore) IterOlderThan(age time.Duration) []KV {
	cutoff := time.Now().Add(-age)
	var out []KV
	for k, item := range s.c.Items() {
		e := item.Object.(Entry)
		if e.StoredAt.Before(cutoff) {
			id, err := parseHexID(k)
			if err != nil {
				continue
			}
			out = append(out, KV{Key: id, Value: e.Value})
		}
	}
	return out
}

func (s *TTLStore) Cull() {
	s.c.DeleteExpired()
}

func (s *TTLStore) Close() error { return nil }
