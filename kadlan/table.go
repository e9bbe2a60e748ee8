package kadlan

import (
	"sort"
	"sync"
	"time"

	"github.com/kademlan/kadlan/internal/klog"
	"github.com/kademlan/kadlan/internal/kmetrics"
)

// DefaultBucketSize is the Kademlia k parameter: bucket capacity and
// candidate-list size (spec.md §6).
const DefaultBucketSize = 20

// DefaultRefreshInterval is how long a bucket may sit idle before
// RefreshIDs proposes a lookup target inside it (spec.md §4.2).
const DefaultRefreshInterval = time.Hour

// Pinger is the liveness-challenge dependency a RoutingTable uses when
// a full, unsplittable bucket needs to evict its head (spec.md §4.2).
// The RPC transport satisfies this interface; tests use a fake.
type Pinger interface {
	Ping(n Node) error
}

// RoutingTable is an ordered list of KBuckets plus the local NodeID
// (spec.md §3). Buckets partition [0, 2^160) with no overlap (I1);
// every bucket holds at most k contacts (I2); only the bucket
// containing the local ID may ever split (I3).
type RoutingTable struct {
	mu      sync.Mutex
	self    NodeID
	k       int
	buckets []*kbucket // ordered by increasing range
	pinger  Pinger
}

// NewRoutingTable builds a table seeded with a single bucket spanning
// the whole ID space, as spec.md §3 requires.
func NewRoutingTable(self NodeID, k int, pinger Pinger) *RoutingTable {
	if k <= 0 {
		k = DefaultBucketSize
	}
	lo, hi := fullRangeBounds()
	return &RoutingTable{
		self:    self,
		k:       k,
		buckets: []*kbucket{newBucket(lo, hi)},
		pinger:  pinger,
	}
}

// Self returns the local node ID.
func (t *RoutingTable) Self() NodeID { return t.self }

// locate finds the (sole) bucket covering id. The caller must hold t.mu.
func (t *RoutingTable) locate(id NodeID) int {
	v := idToBig(id)
	return sort.Search(len(t.buckets), func(i int) bool {
		return v.Cmp(t.buckets[i].hi) <= 0
	})
}

// AddContact implements spec.md §4.2's add_contact: refresh an
// existing entry, append to a bucket with room, split a splittable
// full bucket and retry, or launch an asynchronous liveness challenge
// against an unsplittable full bucket's head.
func (t *RoutingTable) AddContact(n Node) {
	if n.ID == t.self {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.addContactLocked(n)
	t.recordMetricsLocked()
}

// recordMetricsLocked refreshes the bucket-occupancy/bucket-count
// gauges. The caller must hold t.mu.
func (t *RoutingTable) recordMetricsLocked() {
	var occupancy int64
	for _, b := range t.buckets {
		occupancy += int64(len(b.contacts))
	}
	kmetrics.BucketOccupancy.Update(occupancy)
	kmetrics.BucketCount.Update(int64(len(t.buckets)))
}

func (t *RoutingTable) addContactLocked(n Node) {
	idx := t.locate(n.ID)
	b := t.buckets[idx]

	if b.bumpToTail(n.ID) {
		return
	}
	if !b.full(t.k) {
		b.appendTail(n)
		return
	}
	if b.splittable(t.self) {
		low, high := b.split()
		t.buckets[idx] = low
		t.buckets = append(t.buckets, nil)
		copy(t.buckets[idx+2:], t.buckets[idx+1:])
		t.buckets[idx+1] = high
		t.addContactLocked(n) // retry against the (now two) halves
		return
	}
	// Full and unsplittable: at most one pending challenge per bucket.
	if b.pending != nil {
		return
	}
	challenger := n
	b.pending = &challenger
	go t.challenge(idx, b, challenger)
}

// challenge runs the liveness challenge against a bucket's head
// contact. It is launched as its own goroutine so AddContact never
// blocks the caller (spec.md §4.2, §5's "suspension points").
func (t *RoutingTable) challenge(idx int, b *kbucket, candidate Node) {
	head := b.contacts[0].Node
	var alive bool
	if t.pinger != nil {
		alive = t.pinger.Ping(head) == nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// The bucket may have been split or mutated while the challenge was
	// in flight; re-resolve it by range rather than trusting idx/b.
	cur := t.buckets[t.locate(head.ID)]
	if cur != b {
		b.pending = nil
		return
	}
	defer func() { b.pending = nil }()

	if alive {
		b.bumpToTail(head.ID)
		klog.Debugf("routing: head %s alive, dropping challenger %s", head, candidate)
		return
	}
	if len(b.contacts) > 0 && b.contacts[0].ID == head.ID {
		b.removeHead()
	}
	b.appendTail(candidate)
	klog.Debugf("routing: head %s unresponsive, evicted for %s", head, candidate)
}

// RemoveContact implements spec.md §4.2's remove_contact.
func (t *RoutingTable) RemoveContact(id NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.buckets[t.locate(id)]
	b.remove(id)
	t.recordMetricsLocked()
}

// FindNeighbors returns up to count contacts with smallest XOR
// distance to target, excluding any ID present in exclude
// (spec.md §4.2's find_neighbors).
func (t *RoutingTable) FindNeighbors(target NodeID, count int, exclude map[NodeID]bool) []Node {
	t.mu.Lock()
	var all []Node
	for _, b := range t.buckets {
		for _, c := range b.contacts {
			if exclude != nil && exclude[c.ID] {
				continue
			}
			all = append(all, c.Node)
		}
	}
	t.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		return Cmp(target, all[i].ID, all[j].ID) < 0
	})
	if count > 0 && len(all) > count {
		all = all[:count]
	}
	return all
}

// RefreshIDs implements spec.md §4.2's get_refresh_ids: for each bucket
// whose last_updated predates interval, yield a random ID drawn from
// that bucket's own range.
func (t *RoutingTable) RefreshIDs(interval time.Duration) []NodeID {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := time.Now().Add(-interval)
	var ids []NodeID
	for _, b := range t.buckets {
		if b.lastUpdated.Before(cutoff) {
			ids = append(ids, b.randomID())
		}
	}
	return ids
}

// Len returns the total number of cached contacts across all buckets.
func (t *RoutingTable) Len() int {
	n := 0
	for _, b := range t.buckets {
		n += len(b.contacts)
	}
	return n
}

// BucketCount returns the current number of buckets, mostly useful for
// tests asserting split behavior.
func (t *RoutingTable) BucketCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buckets)
}
