package crawler

import (
	"sort"

	"github.com/kademlan/kadlan"
)

// candidateList is the crawl's shared, sorted-by-distance, capped
// working set (spec.md §4.6: "a candidate list of Node descriptors,
// maintained sorted by XOR-distance to target, capped at k entries").
type candidateList struct {
	target kadlan.NodeID
	k      int
	nodes  []kadlan.Node
}

func newCandidateList(target kadlan.NodeID, k int) *candidateList {
	return &candidateList{target: target, k: k}
}

// insert merges n into the list, deduping by id, preserving the
// distance-sort invariant, and truncating to k. It reports nothing;
// the crawl detects a round's progress by comparing bestDistance
// before and after the round.
func (c *candidateList) insert(n kadlan.Node) {
	for _, e := range c.nodes {
		if e.ID == n.ID {
			return
		}
	}
	idx := sort.Search(len(c.nodes), func(i int) bool {
		return kadlan.Cmp(c.target, c.nodes[i].ID, n.ID) > 0
	})
	c.nodes = append(c.nodes, kadlan.Node{})
	copy(c.nodes[idx+1:], c.nodes[idx:])
	c.nodes[idx] = n
	if len(c.nodes) > c.k {
		c.nodes = c.nodes[:c.k]
	}
}

// remove drops id from the candidate list entirely, used when a
// contacted node times out (spec.md §4.6 step 5: "remove from
// candidate list").
func (c *candidateList) remove(id kadlan.NodeID) {
	for i, e := range c.nodes {
		if e.ID == id {
			c.nodes = append(c.nodes[:i], c.nodes[i+1:]...)
			return
		}
	}
}

// bestDistance returns the XOR distance of the closest candidate, or
// nil if the list is empty.
func (c *candidateList) bestDistance() *kadlan.Distance {
	if len(c.nodes) == 0 {
		return nil
	}
	d := kadlan.XorDistance(c.target, c.nodes[0].ID)
	return &d
}

// pickUncontacted returns up to n candidates, nearest-first, that are
// not yet present in contacted (spec.md §4.6 step 1).
func (c *candidateList) pickUncontacted(contacted map[kadlan.NodeID]bool, n int) []kadlan.Node {
	var out []kadlan.Node
	for _, e := range c.nodes {
		if contacted[e.ID] {
			continue
		}
		out = append(out, e)
		if len(out) == n {
			break
		}
	}
	return out
}

// snapshot returns the candidate list contents in current sorted
// order.
func (c *candidateList) snapshot() []kadlan.Node {
	out := make([]kadlan.Node, len(c.nodes))
	copy(out, c.nodes)
	return out
}
