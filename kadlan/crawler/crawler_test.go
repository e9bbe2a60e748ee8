package crawler

import (
	"sync"
	"testing"

	"github.com/kademlan/kadlan"
	"github.com/stretchr/testify/require"
)

// fakeNetwork is an in-memory overlay used to drive the crawl without
// any real RPC transport: each node answers find_node/find_value with
// its own fixed neighbor table.
type fakeNetwork struct {
	mu          sync.Mutex
	neighbors   map[kadlan.NodeID][]kadlan.Node
	values      map[kadlan.NodeID]map[kadlan.NodeID][]byte // node -> key -> value
	stored      []storeCall
	unreachable map[kadlan.NodeID]bool
}

type storeCall struct {
	to    kadlan.NodeID
	key   kadlan.NodeID
	value []byte
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		neighbors:   make(map[kadlan.NodeID][]kadlan.Node),
		values:      make(map[kadlan.NodeID]map[kadlan.NodeID][]byte),
		unreachable: make(map[kadlan.NodeID]bool),
	}
}

func (f *fakeNetwork) findNode(n kadlan.Node, target kadlan.NodeID) ([]kadlan.Node, error) {
	if f.unreachable[n.ID] {
		return nil, kadlan.ErrRpcTimeout
	}
	return f.neighbors[n.ID], nil
}

func (f *fakeNetwork) findValue(n kadlan.Node, key kadlan.NodeID) ([]byte, []kadlan.Node, bool, error) {
	if f.unreachable[n.ID] {
		return nil, nil, false, kadlan.ErrRpcTimeout
	}
	if byKey, ok := f.values[n.ID]; ok {
		if v, ok := byKey[key]; ok {
			return v, nil, true, nil
		}
	}
	return nil, f.neighbors[n.ID], false, nil
}

func (f *fakeNetwork) store(n kadlan.Node, key kadlan.NodeID, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, storeCall{to: n.ID, key: key, value: value})
	return nil
}

func nodeAt(b byte) kadlan.Node {
	var id kadlan.NodeID
	id[0] = b
	return kadlan.Node{ID: id}
}

// buildChain wires up a small network where each node's neighbor list
// points progressively closer to target (id 0x00...), so a crawl
// starting from the farthest node has to hop through intermediaries.
func buildChain(net *fakeNetwork, nodes []kadlan.Node) {
	for i := 0; i < len(nodes)-1; i++ {
		net.neighbors[nodes[i].ID] = []kadlan.Node{nodes[i+1]}
	}
}

func TestNodeSpiderCrawlConvergesThroughChain(t *testing.T) {
	target := kadlan.NodeID{} // all-zero: the "closest" id in our synthetic chain
	far := nodeAt(0x40)
	mid := nodeAt(0x20)
	near := nodeAt(0x01)
	chain := []kadlan.Node{far, mid, near}

	net := newFakeNetwork()
	buildChain(net, chain)

	result := NodeSpiderCrawl(target, []kadlan.Node{far}, 20, 3, net.findNode)

	ids := make(map[kadlan.NodeID]bool)
	for _, n := range result {
		ids[n.ID] = true
	}
	require.True(t, ids[far.ID])
	require.True(t, ids[mid.ID])
	require.True(t, ids[near.ID])
}

func TestNodeSpiderCrawlDropsTimedOutNodes(t *testing.T) {
	target := kadlan.NodeID{}
	reachable := nodeAt(0x01)
	dead := nodeAt(0x02)

	net := newFakeNetwork()
	net.unreachable[dead.ID] = true

	result := NodeSpiderCrawl(target, []kadlan.Node{reachable, dead}, 20, 3, net.findNode)

	require.Len(t, result, 1)
	require.Equal(t, reachable.ID, result[0].ID)
}

func TestNodeSpiderCrawlResultSortedByDistance(t *testing.T) {
	target := kadlan.NodeID{}
	a := nodeAt(0x01)
	b := nodeAt(0x02)
	c := nodeAt(0x04)

	net := newFakeNetwork()
	result := NodeSpiderCrawl(target, []kadlan.Node{c, a, b}, 20, 3, net.findNode)

	require.Len(t, result, 3)
	require.Equal(t, a.ID, result[0].ID)
	require.Equal(t, b.ID, result[1].ID)
	require.Equal(t, c.ID, result[2].ID)
}

func TestValueSpiderCrawlReturnsValueAndCaches(t *testing.T) {
	target := kadlan.DigestString("some-key")
	far := nodeAt(0x40)
	holder := nodeAt(0x20)
	closerMiss := nodeAt(0x01)

	net := newFakeNetwork()
	net.neighbors[far.ID] = []kadlan.Node{holder}
	net.neighbors[holder.ID] = []kadlan.Node{closerMiss}
	net.values[holder.ID] = map[kadlan.NodeID][]byte{target: []byte("the-value")}

	value, nodes, found := ValueSpiderCrawl(target, []kadlan.Node{far}, 20, 3, net.findValue, net.store)
	require.True(t, found)
	require.Equal(t, []byte("the-value"), value)
	require.NotEmpty(t, nodes)

	require.Len(t, net.stored, 1)
	require.Equal(t, []byte("the-value"), net.stored[0].value)
	require.NotEqual(t, holder.ID, net.stored[0].to)
}

func TestValueSpiderCrawlNotFoundReturnsClosestNodes(t *testing.T) {
	target := kadlan.DigestString("missing-key")
	a := nodeAt(0x01)
	b := nodeAt(0x02)

	net := newFakeNetwork()

	value, nodes, found := ValueSpiderCrawl(target, []kadlan.Node{a, b}, 20, 3, net.findValue, net.store)
	require.False(t, found)
	require.Nil(t, value)
	require.Len(t, nodes, 2)
	require.Empty(t, net.stored)
}

func TestCandidateListInsertDedupsAndCaps(t *testing.T) {
	target := kadlan.NodeID{}
	cl := newCandidateList(target, 2)
	cl.insert(nodeAt(0x10))
	cl.insert(nodeAt(0x05))
	cl.insert(nodeAt(0x05)) // duplicate, ignored
	cl.insert(nodeAt(0x20)) // farther than both, should not displace

	snap := cl.snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, byte(0x05), snap[0].ID[0])
	require.Equal(t, byte(0x10), snap[1].ID[0])
}
