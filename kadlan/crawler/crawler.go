// Package crawler implements the iterative, α-bounded lookup
// described by spec.md §4.6: NodeSpiderCrawl and ValueSpiderCrawl.
// It is grounded on two sources: the α-bounded concurrent fan-out and
// closest-set accumulation of go-ethereum's Table.lookup
// (p2p/discover/table.go), adapted from that table's continuous
// single-pending-slot scheduling to spec.md's explicit round
// structure (wait for all α responses before evaluating the
// termination rule), and on original_source/kademLAN/network.py's
// Server.get/set, which is the source of the "ValueSpiderCrawl caches
// the value on the closest reached node that didn't have it" step.
package crawler

import (
	"github.com/kademlan/kadlan"
	"github.com/kademlan/kadlan/internal/kmetrics"
)

// DefaultAlpha is the Kademlia concurrency parameter (spec.md §4.6).
const DefaultAlpha = 3

// FindNodeFunc issues a find_node RPC to n for target and returns the
// neighbors it reports, or an error on any RPC failure (timeout,
// malformed reply, transport error) — the crawler treats all of these
// identically as a node-level failure (spec.md §5, §7).
type FindNodeFunc func(n kadlan.Node, target kadlan.NodeID) ([]kadlan.Node, error)

// FindValueFunc issues a find_value RPC to n for key. Exactly one of
// (value, neighbors) is meaningful per the found flag.
type FindValueFunc func(n kadlan.Node, key kadlan.NodeID) (value []byte, neighbors []kadlan.Node, found bool, err error)

// StoreFunc issues a store RPC to n, used for ValueSpiderCrawl's
// caching step.
type StoreFunc func(n kadlan.Node, key kadlan.NodeID, value []byte) error

type roundResult struct {
	node      kadlan.Node
	neighbors []kadlan.Node
	value     []byte
	found     bool
	err       error
}

// runRounds drives the shared round loop (spec.md §4.6 algorithm,
// steps 1–5 and 7) and calls query for every node contacted. It
// returns the up-to-k nodes that actually answered ("reached"),
// sorted by distance to target, plus the first value hit observed
// (for ValueSpiderCrawl; nil for NodeSpiderCrawl since its query never
// sets found).
func runRounds(target kadlan.NodeID, seeds []kadlan.Node, k, alpha int, query func(kadlan.Node) roundResult) (reachedNodes []kadlan.Node, valueHit *roundResult) {
	if alpha <= 0 {
		alpha = DefaultAlpha
	}
	if k <= 0 {
		k = kadlan.DefaultBucketSize
	}

	cl := newCandidateList(target, k)
	for _, s := range seeds {
		cl.insert(s)
	}
	contacted := make(map[kadlan.NodeID]bool)
	reached := make(map[kadlan.NodeID]bool)
	var reachedOrder []kadlan.Node

	rounds := 0
	for {
		rounds++
		batch := cl.pickUncontacted(contacted, alpha)
		if len(batch) == 0 {
			break
		}

		bestBefore := cl.bestDistance()

		results := make(chan roundResult, len(batch))
		for _, n := range batch {
			go func(n kadlan.Node) {
				results <- query(n)
			}(n)
		}

		for i := 0; i < len(batch); i++ {
			r := <-results
			contacted[r.node.ID] = true
			if r.err != nil {
				cl.remove(r.node.ID)
				continue
			}
			if !reached[r.node.ID] {
				reached[r.node.ID] = true
				reachedOrder = append(reachedOrder, r.node)
			}
			if r.found && valueHit == nil {
				cp := r
				valueHit = &cp
			}
			for _, nb := range r.neighbors {
				if nb.ID == target {
					continue
				}
				cl.insert(nb)
			}
		}

		if valueHit != nil {
			break
		}

		bestAfter := cl.bestDistance()
		addedCloser := closerThan(bestAfter, bestBefore)
		uncontactedInTopK := cl.pickUncontacted(contacted, 1)
		if !addedCloser && (len(uncontactedInTopK) == 0 || len(reached) >= k) {
			break
		}
	}

	kmetrics.CrawlRounds.Update(int64(rounds))

	sortByDistance(target, reachedOrder)
	if len(reachedOrder) > k {
		reachedOrder = reachedOrder[:k]
	}
	return reachedOrder, valueHit
}

// closerThan reports whether after is strictly closer than before (a
// nil before/after means "no candidate", treated as not closer).
func closerThan(after, before *kadlan.Distance) bool {
	if after == nil {
		return false
	}
	if before == nil {
		return true
	}
	return after.Less(*before)
}

func sortByDistance(target kadlan.NodeID, nodes []kadlan.Node) {
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && kadlan.Cmp(target, nodes[j].ID, nodes[j-1].ID) < 0; j-- {
			nodes[j], nodes[j-1] = nodes[j-1], nodes[j]
		}
	}
}

// NodeSpiderCrawl runs spec.md §4.6's NodeSpiderCrawl: it terminates
// with up to k closest reached nodes.
func NodeSpiderCrawl(target kadlan.NodeID, seeds []kadlan.Node, k, alpha int, find FindNodeFunc) []kadlan.Node {
	query := func(n kadlan.Node) roundResult {
		neighbors, err := find(n, target)
		return roundResult{node: n, neighbors: neighbors, err: err}
	}
	reached, _ := runRounds(target, seeds, k, alpha, query)
	return reached
}

// ValueSpiderCrawl runs spec.md §4.6's ValueSpiderCrawl. On the first
// value reported, it returns that value and caches it (via store) on
// the closest reached node that did not already have it. If no
// responder ever reports a value, it returns the up-to-k closest
// reached nodes instead, mirroring NodeSpiderCrawl's finalization.
func ValueSpiderCrawl(target kadlan.NodeID, seeds []kadlan.Node, k, alpha int, find FindValueFunc, store StoreFunc) (value []byte, nodes []kadlan.Node, found bool) {
	query := func(n kadlan.Node) roundResult {
		v, neighbors, ok, err := find(n, target)
		return roundResult{node: n, neighbors: neighbors, value: v, found: ok, err: err}
	}
	reached, hit := runRounds(target, seeds, k, alpha, query)
	if hit == nil {
		return nil, reached, false
	}

	// Cache the value on the closest reached node that didn't return
	// it (spec.md §4.6 finalization). reached is sorted by distance,
	// so the first entry whose id isn't the value's source is the
	// closest miss.
	if store != nil {
		for _, n := range reached {
			if n.ID == hit.node.ID {
				continue
			}
			_ = store(n, target, hit.value)
			break
		}
	}
	return hit.value, reached, true
}
