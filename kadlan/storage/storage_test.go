package storage

import (
	"io/ioutil"
	"os"
	"testing"
	"time"

	"github.com/kademlan/kadlan"
	"github.com/stretchr/testify/require"
)

func testKey(b byte) kadlan.NodeID {
	var id kadlan.NodeID
	id[0] = b
	return id
}

func runStorageContract(t *testing.T, s Storage) {
	t.Helper()
	key := testKey(1)

	_, ok := s.Get(key)
	require.False(t, ok)

	s.Set(key, []byte("world"))
	v, ok := s.Get(key)
	require.True(t, ok)
	require.Equal(t, []byte("world"), v)
}

func TestTTLStoreContract(t *testing.T) {
	s := NewTTLStore(time.Hour)
	defer s.Close()
	runStorageContract(t, s)
}

func TestTTLStoreExpires(t *testing.T) {
	s := NewTTLStore(20 * time.Millisecond)
	defer s.Close()
	key := testKey(1)
	s.Set(key, []byte("v"))
	time.Sleep(60 * time.Millisecond)
	s.Cull()
	_, ok := s.Get(key)
	require.False(t, ok, "entry must expire after its TTL")
}

func TestTTLStoreIterOlderThan(t *testing.T) {
	s := NewTTLStore(time.Hour)
	defer s.Close()
	s.Set(testKey(1), []byte("old"))
	time.Sleep(20 * time.Millisecond)
	old := s.IterOlderThan(10 * time.Millisecond)
	require.Len(t, old, 1)
	require.Equal(t, []byte("old"), old[0].Value)
}

func TestLRUStoreContract(t *testing.T) {
	s := NewLRUStore(8)
	defer s.Close()
	runStorageContract(t, s)
}

func TestLRUStoreEvictsEarliestWhenFull(t *testing.T) {
	s := NewLRUStore(2)
	defer s.Close()
	s.Set(testKey(1), []byte("a"))
	s.Set(testKey(2), []byte("b"))
	s.Set(testKey(3), []byte("c")) // should evict key 1, the earliest inserted

	_, ok := s.Get(testKey(1))
	require.False(t, ok)
	_, ok = s.Get(testKey(2))
	require.True(t, ok)
	_, ok = s.Get(testKey(3))
	require.True(t, ok)
}

func TestLevelDBStoreContract(t *testing.T) {
	dir, err := ioutil.TempDir("", "kadlan-leveldb")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	s, err := OpenLevelDBStore(dir, time.Hour)
	require.NoError(t, err)
	defer s.Close()
	runStorageContract(t, s)
}

func TestLevelDBStoreCull(t *testing.T) {
	dir, err := ioutil.TempDir("", "kadlan-leveldb")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	s, err := OpenLevelDBStore(dir, 20*time.Millisecond)
	require.NoError(t, err)
	defer s.Close()

	s.Set(testKey(1), []byte("v"))
	time.Sleep(60 * time.Millisecond)
	s.Cull()
	_, ok := s.Get(testKey(1))
	require.False(t, ok)
}
