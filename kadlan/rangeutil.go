package kadlan

import (
	"crypto/rand"
	"math/big"
)

// idSpaceBits is the width of the Kademlia key space in bits (160).
const idSpaceBits = IDLength * 8

// idToBig interprets a NodeID as a big-endian unsigned integer.
func idToBig(id NodeID) *big.Int {
	return new(big.Int).SetBytes(id[:])
}

// bigToID renders a big.Int back into a fixed-width NodeID, truncating
// silently if it somehow exceeds the space (callers keep values in
// range by construction).
func bigToID(v *big.Int) NodeID {
	var id NodeID
	b := v.Bytes()
	if len(b) > IDLength {
		b = b[len(b)-IDLength:]
	}
	copy(id[IDLength-len(b):], b)
	return id
}

// fullRangeBounds returns [0, 2^160 - 1], the span the initial bucket
// covers (spec.md §3: "Initial state: a single bucket covering the
// full range").
func fullRangeBounds() (lo, hi *big.Int) {
	lo = big.NewInt(0)
	hi = new(big.Int).Lsh(big.NewInt(1), idSpaceBits)
	hi.Sub(hi, big.NewInt(1))
	return lo, hi
}

// randBigInt returns a uniform random value in [0, span).
func randBigInt(span *big.Int) (*big.Int, error) {
	if span.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	return rand.Int(rand.Reader, span)
}
