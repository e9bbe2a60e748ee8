package storage

import (
	"encoding/hex"

	"github.com/kademlan/kadlan"
)

// parseHexID reverses kadlan.NodeID.String(), used to recover a typed
// key when a backend's native storage only gives us a string key back
// (go-cache, goleveldb both iterate as raw keys/strings).
func parseHexID(s string) (kadlan.NodeID, error) {
	var id kadlan.NodeID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(b) != kadlan.IDLength {
		return id, hex.ErrLength
	}
	copy(id[:], b)
	return id, nil
}
