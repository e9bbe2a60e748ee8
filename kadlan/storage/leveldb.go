package storage

import (
	"encoding/binary"
	"time"

	"github.com/kademlan/kadlan"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBStore is an on-disk Storage backend for long-lived
// deployments that want their entries to survive a restart, backed by
// github.com/syndtr/goleveldb. LevelDB has no native expiry; Get hides
// and Cull scans for and deletes anything older than the store's TTL
// (DefaultTTL unless OpenLevelDBStore was given another).
type LevelDBStore struct {
	db  *leveldb.DB
	ttl time.Duration
}

// OpenLevelDBStore opens (creating if needed) a LevelDB database at
// dir for use as a Storage backend.
func OpenLevelDBStore(dir string, ttl time.Duration) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &LevelDBStore{db: db, ttl: ttl}, nil
}

// record is the on-disk encoding: 8-byte big-endian Unix-nano
// timestamp followed by the raw value bytes.
func encodeRecord(storedAt time.Time, value []byte) []byte {
	buf := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(buf[:8], uint64(storedAt.UnixNano()))
	copy(buf[8:], value)
	return buf
}

func decodeRecord(buf []byte) (time.Time, []byte) {
	if len(buf) < 8 {
		return time.Time{}, nil
	}
	nanos := binary.BigEndian.Uint64(buf[:8])
	return time.Unix(0, int64(nanos)), buf[8:]
}

func (s *LevelDBStore) Set(key kadlan.NodeID, value []byte) {
	_ = s.db.Put(key[:], encodeRecord(time.Now(), value), nil)
}

func (s *LevelDBStore) Get(key kadlan.NodeID) ([]byte, bool) {
	buf, err := s.db.Get(key[:], nil)
	if err != nil {
		return nil, false
	}
	storedAt, value := decodeRecord(buf)
	if time.Since(storedAt) > s.ttl {
		return nil, false
	}
	return value, true
}

func (s *LevelDBStore) IterOlderThan(age time.Duration) []KV {
	cutoff := time.Now().Add(-age)
	var out []KV
	iter := s.db.NewIterator(&util.Range{}, nil)
	defer iter.Release()
	for iter.Next() {
		var id kadlan.NodeID
		copy(id[:], iter.Key())
		storedAt, value := decodeRecord(iter.Value())
		if storedAt.Before(cutoff) {
			out = append(out, KV{Key: id, Value: append([]byte(nil), value...)})
		}
	}
	return out
}

// Cull deletes any entry older than the store's configured TTL.
func (s *LevelDBStore) Cull() {
	cutoff := time.Now().Add(-s.ttl)
	iter := s.db.NewIterator(&util.Range{}, nil)
	defer iter.Release()
	var stale [][]byte
	for iter.Next() {
		storedAt, _ := decodeRecord(iter.Value())
		if storedAt.Before(cutoff) {
			stale = append(stale, append([]byte(nil), iter.Key()...))
		}
	}
	for _, k := range stale {
		_ = s.db.Delete(k, nil)
	}
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
