package storage

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/simplelru"
	"github.com/kademlan/kadlan"
)

// LRUStore is the bounded-capacity Storage variant from spec.md §4.3:
// "a bounded-capacity variant evicts the earliest-inserted entry when
// full." github.com/hashicorp/golang-lru's simplelru.LRU evicts the
// least-recently-used entry on Add once Len==size; since LRUStore never
// calls Get on the underlying LRU (reads use Peek, which leaves recency
// untouched), "least recently used" and "earliest inserted" coincide
// here.
type LRUStore struct {
	mu  sync.Mutex
	lru *simplelru.LRU
}

// NewLRUStore builds an LRUStore holding at most capacity entries.
func NewLRUStore(capacity int) *LRUStore {
	if capacity <= 0 {
		capacity = 1024
	}
	l, _ := simplelru.NewLRU(capacity, nil)
	return &LRUStore{lru: l}
}

func (s *LRUStore) Set(key kadlan.NodeID, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lru.Add(key.String(), Entry{Value: value, StoredAt: time.Now()})
}

func (s *LRUStore) Get(key kadlan.NodeID) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.lru.Peek(key.String())
	if !ok {
		return nil, false
	}
	return v.(Entry).Value, true
}

func (s *LRUStore) IterOlderThan(age time.Duration) []KV {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-age)
	var out []KV
	for _, k := range s.lru.Keys() {
		v, ok := s.lru.Peek(k)
		if !ok {
			continue
		}
		e := v.(Entry)
		if e.StoredAt.Before(cutoff) {
			id, err := parseHexID(k.(string))
			if err != nil {
				continue
			}
			out = append(out, KV{Key: id, Value: e.Value})
		}
	}
	return out
}

// Cull is a no-op: LRUStore has no TTL, only a capacity bound.
func (s *LRUStore) Cull() {}

func (s *LRUStore) Close() error { return nil }
