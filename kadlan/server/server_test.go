package server

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/kademlan/kadlan"
	"github.com/kademlan/kadlan/storage"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(Config{
		Port:             0,
		K:                4,
		Alpha:            3,
		Storage:          storage.NewTTLStore(time.Hour),
		RPCTimeout:       300 * time.Millisecond,
		RefreshInterval:  time.Hour,
		BeaconInterval:   time.Hour,
		GetPeersInterval: time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.transport.Close() })
	return s
}

func (s *Server) testAddr() *net.UDPAddr {
	return s.LocalAddr().(*net.UDPAddr)
}

func TestBootstrapJoinsExistingNode(t *testing.T) {
	seed := newTestServer(t)
	joiner := newTestServer(t)

	reached := joiner.Bootstrap([]*net.UDPAddr{seed.testAddr()})
	require.Len(t, reached, 1)
	require.Equal(t, seed.Self(), reached[0].ID)
	require.Equal(t, 1, joiner.table.Len())
}

func TestBootstrapWithNoResponseReturnsEmpty(t *testing.T) {
	joiner := newTestServer(t)

	dead, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	deadAddr := dead.LocalAddr().(*net.UDPAddr)
	dead.Close()

	reached := joiner.Bootstrap([]*net.UDPAddr{deadAddr})
	require.Empty(t, reached)
}

func TestSetAndGetRoundTrip(t *testing.T) {
	a := newTestServer(t)
	b := newTestServer(t)

	a.Bootstrap([]*net.UDPAddr{b.testAddr()})
	b.Bootstrap([]*net.UDPAddr{a.testAddr()})

	key := kadlan.RandomID()
	value := []byte("hello kademlia")

	err := a.Set(key, value)
	require.NoError(t, err)

	got, err := b.Get(key)
	require.NoError(t, err)
	require.Equal(t, value, got)
}

func TestGetMissingKeyReturnsNotFound(t *testing.T) {
	a := newTestServer(t)
	b := newTestServer(t)
	a.Bootstrap([]*net.UDPAddr{b.testAddr()})

	_, err := a.Get(kadlan.RandomID())
	require.ErrorIs(t, err, kadlan.ErrNotFound)
}

func TestSetWithNoNeighborsFails(t *testing.T) {
	lone := newTestServer(t)
	err := lone.Set(kadlan.RandomID(), []byte("x"))
	require.ErrorIs(t, err, kadlan.ErrNoNeighbors)
}

func TestVisibleIPsReflectsLoopback(t *testing.T) {
	a := newTestServer(t)
	b := newTestServer(t)
	a.Bootstrap([]*net.UDPAddr{b.testAddr()})

	ips := a.VisibleIPs()
	require.NotEmpty(t, ips)
	require.True(t, ips[0].IsLoopback())
}

func TestSaveAndLoadStateRoundTrip(t *testing.T) {
	a := newTestServer(t)
	b := newTestServer(t)
	a.Bootstrap([]*net.UDPAddr{b.testAddr()})

	var buf bytes.Buffer
	require.NoError(t, a.SaveState(&buf))

	restored, neighbors, err := LoadState(&buf, Config{
		Port:       0,
		Storage:    storage.NewTTLStore(time.Hour),
		RPCTimeout: 300 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { restored.transport.Close() })

	require.Equal(t, a.Self(), restored.Self())
	require.Equal(t, a.cfg.K, restored.cfg.K)
	require.Len(t, neighbors, 1)
	require.Equal(t, b.testAddr().Port, neighbors[0].Port)
}

func TestRefreshTableRepublishesStaleEntries(t *testing.T) {
	a := newTestServer(t)
	b := newTestServer(t)
	a.Bootstrap([]*net.UDPAddr{b.testAddr()})
	b.Bootstrap([]*net.UDPAddr{a.testAddr()})

	key := kadlan.RandomID()
	a.storage.Set(key, []byte("stale value"))
	a.storage = staleStorage{a.storage}

	require.NoError(t, a.RefreshTable())
	v, ok := b.storage.Get(key)
	require.True(t, ok)
	require.Equal(t, []byte("stale value"), v)
}

// staleStorage reports every entry as older than any threshold, so
// RefreshTable's republish pass picks it up without waiting an hour.
type staleStorage struct{ storage.Storage }

func (s staleStorage) IterOlderThan(time.Duration) []storage.KV {
	return s.Storage.IterOlderThan(0)
}
