package kadlan

import (
	"math/big"
	"time"
)

// kbucket is a bounded ordered sequence of contacts covering a closed
// range [lo, hi] of the ID space (spec.md §3). The head of contacts is
// the least-recently-seen entry, the tail the most-recently-seen.
type kbucket struct {
	lo, hi      *big.Int
	contacts    []Contact
	pending     *Node // at most one contact awaiting a liveness challenge
	lastUpdated time.Time
}

func newBucket(lo, hi *big.Int) *kbucket {
	return &kbucket{lo: lo, hi: hi, lastUpdated: time.Now()}
}

// contains reports whether id falls within this bucket's range.
func (b *kbucket) contains(id NodeID) bool {
	v := idToBig(id)
	return v.Cmp(b.lo) >= 0 && v.Cmp(b.hi) <= 0
}

// splittable reports whether this bucket covers the local node's ID;
// only such a bucket may legally be split (I3).
func (b *kbucket) splittable(self NodeID) bool {
	return b.contains(self)
}

func (b *kbucket) indexOf(id NodeID) int {
	for i, c := range b.contacts {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// bumpToTail moves an already-present contact to the tail and
// refreshes its last-seen time. Reports whether the contact was found.
func (b *kbucket) bumpToTail(id NodeID) bool {
	i := b.indexOf(id)
	if i < 0 {
		return false
	}
	c := b.contacts[i]
	c.LastSeen = time.Now()
	b.contacts = append(append(b.contacts[:i], b.contacts[i+1:]...), c)
	b.lastUpdated = time.Now()
	return true
}

func (b *kbucket) full(k int) bool {
	return len(b.contacts) >= k
}

// appendTail adds a brand-new contact at the tail.
func (b *kbucket) appendTail(n Node) {
	b.contacts = append(b.contacts, newContact(n))
	b.lastUpdated = time.Now()
}

// removeHead evicts and returns the least-recently-seen contact.
func (b *kbucket) removeHead() Contact {
	c := b.contacts[0]
	b.contacts = b.contacts[1:]
	return c
}

// remove drops a contact by ID if present.
func (b *kbucket) remove(id NodeID) bool {
	i := b.indexOf(id)
	if i < 0 {
		return false
	}
	b.contacts = append(b.contacts[:i], b.contacts[i+1:]...)
	return true
}

// midpoint returns lo + (hi-lo+1)/2, the split point from spec.md §4.2.
func (b *kbucket) midpoint() *big.Int {
	span := new(big.Int).Sub(b.hi, b.lo)
	span.Add(span, big.NewInt(1))
	span.Rsh(span, 1)
	return span.Add(span, b.lo)
}

// split partitions the bucket at its midpoint into two equal-range
// halves, redistributing contacts and inheriting last_updated
// (spec.md §4.2). The pending slot, if any, is dropped: splits only
// happen on the path that never populated it.
func (b *kbucket) split() (low, high *kbucket) {
	mid := b.midpoint()
	low = newBucket(new(big.Int).Set(b.lo), new(big.Int).Sub(mid, big.NewInt(1)))
	high = newBucket(new(big.Int).Set(mid), new(big.Int).Set(b.hi))
	low.lastUpdated = b.lastUpdated
	high.lastUpdated = b.lastUpdated
	for _, c := range b.contacts {
		if idToBig(c.ID).Cmp(mid) < 0 {
			low.contacts = append(low.contacts, c)
		} else {
			high.contacts = append(high.contacts, c)
		}
	}
	return low, high
}

// randomID returns a uniformly random ID within [lo, hi], used by
// RoutingTable.RefreshIDs to pick a refresh target in an idle bucket.
func (b *kbucket) randomID() NodeID {
	span := new(big.Int).Sub(b.hi, b.lo)
	span.Add(span, big.NewInt(1))
	r, err := randBigInt(span)
	if err != nil {
		return bigToID(b.lo)
	}
	r.Add(r, b.lo)
	return bigToID(r)
}
