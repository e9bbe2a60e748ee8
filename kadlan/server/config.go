package server

import (
	"time"

	"github.com/kademlan/kadlan"
	"github.com/kademlan/kadlan/discovery"
	"github.com/kademlan/kadlan/rpc"
	"github.com/kademlan/kadlan/storage"
)

// Config is the full set of construction-time options (spec.md §6).
type Config struct {
	// Port is the UDP port the Kademlia RPC transport binds.
	Port int
	// K is the bucket-capacity/candidate-list-size parameter
	// (default DefaultBucketSize).
	K int
	// Alpha is the lookup parallelism (default crawler.DefaultAlpha).
	Alpha int
	// NodeID is the local identity (default: a fresh random id).
	NodeID kadlan.NodeID
	// Storage is the key/value backend (default: a TTLStore with a
	// 1-week TTL).
	Storage storage.Storage
	// RPCTimeout is the per-call RPC timeout (default 5s).
	RPCTimeout time.Duration
	// RefreshInterval governs both how often RefreshTable runs
	// automatically and the age past which a bucket is considered
	// stale (default 3600s).
	RefreshInterval time.Duration
	// BeaconInterval is how often the LAN beacon is rebroadcast
	// (default 1s).
	BeaconInterval time.Duration
	// GetPeersInterval is how often discovered LAN peers are folded
	// into a bootstrap attempt (spec.md §4.8: "schedules get_peers
	// every 5s").
	GetPeersInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.K <= 0 {
		c.K = kadlan.DefaultBucketSize
	}
	if c.Alpha <= 0 {
		c.Alpha = defaultAlpha
	}
	if c.NodeID.IsZero() {
		c.NodeID = kadlan.RandomID()
	}
	if c.Storage == nil {
		c.Storage = storage.NewTTLStore(storage.DefaultTTL)
	}
	if c.RPCTimeout <= 0 {
		c.RPCTimeout = rpc.DefaultTimeout
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = kadlan.DefaultRefreshInterval
	}
	if c.BeaconInterval <= 0 {
		c.BeaconInterval = discovery.DefaultInterval
	}
	if c.GetPeersInterval <= 0 {
		c.GetPeersInterval = defaultGetPeersInterval
	}
	return c
}
