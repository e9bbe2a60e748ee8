// Package kadlan implements the Kademlia overlay engine: identifiers,
// node descriptors, the XOR-metric routing table and its bucket
// splitting/replacement policy.
package kadlan

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math/rand"
)

// IDLength is the width of a NodeID in bytes (160 bits).
const IDLength = sha1.Size

// NodeID is a 160-bit Kademlia identifier.
type NodeID [IDLength]byte

// Digest hashes x with SHA-1 to produce the NodeID that represents it
// in the key space. Equal byte strings always hash to the same ID
// (I7).
func Digest(x []byte) NodeID {
	return NodeID(sha1.Sum(x))
}

// DigestString is a convenience wrapper around Digest for string keys.
func DigestString(s string) NodeID {
	return Digest([]byte(s))
}

// RandomID returns a NodeID drawn from math/rand bits. It is used to
// seed the local identity when none is configured and as the rpc_id
// nonce for outbound calls.
func RandomID() NodeID {
	var id NodeID
	rand.Read(id[:])
	return id
}

// Distance is the bitwise XOR of two IDs, interpreted as an unsigned
// 160-bit integer (I8): Distance(a,a)=0, Distance(a,b)=Distance(b,a).
type Distance [IDLength]byte

// XorDistance computes the Kademlia distance metric between a and b.
func XorDistance(a, b NodeID) Distance {
	var d Distance
	for i := 0; i < IDLength; i++ {
		d[i] = a[i] ^ b[i]
	}
	return d
}

// Less reports whether d is strictly closer than other; equal
// distances are not less than each other. The comparison is a plain
// big-endian unsigned compare, consistent with "lower = closer".
func (d Distance) Less(other Distance) bool {
	return bytes.Compare(d[:], other[:]) < 0
}

// Cmp orders two NodeIDs by ascending XOR-distance to target, breaking
// exact ties (impossible for distinct IDs but kept for totality) by
// ascending ID value, as spec.md §4.1 requires for determinism.
func Cmp(target, a, b NodeID) int {
	da, db := XorDistance(target, a), XorDistance(target, b)
	if c := bytes.Compare(da[:], db[:]); c != 0 {
		return c
	}
	return bytes.Compare(a[:], b[:])
}

// BitLen returns the position (0 = most significant bit) of the
// highest set bit in d, or IDLength*8 if d is zero. The routing table
// does not use it: buckets are located by their [lo, hi] range.
func (d Distance) BitLen() int {
	for i := 0; i < IDLength; i++ {
		if d[i] != 0 {
			for bit := 0; bit < 8; bit++ {
				if d[i]&(0x80>>uint(bit)) != 0 {
					return i*8 + bit
				}
			}
		}
	}
	return IDLength * 8
}

// String renders the ID as lowercase hex for logs.
func (id NodeID) String() string {
	const hextable = "0123456789abcdef"
	buf := make([]byte, IDLength*2)
	for i, b := range id {
		buf[i*2] = hextable[b>>4]
		buf[i*2+1] = hextable[b&0x0f]
	}
	return string(buf)
}

// Equal reports whether two IDs are identical.
func (id NodeID) Equal(other NodeID) bool {
	return id == other
}

// IsZero reports whether id is the all-zero identifier.
func (id NodeID) IsZero() bool {
	return id == NodeID{}
}

// ParseID decodes a hex-encoded NodeID, as used for a configured
// fixed node_id (spec.md §6).
func ParseID(s string) (NodeID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return NodeID{}, err
	}
	if len(b) != IDLength {
		return NodeID{}, fmt.Errorf("kadlan: node id must be %d bytes, got %d", IDLength, len(b))
	}
	var id NodeID
	copy(id[:], b)
	return id, nil
}
