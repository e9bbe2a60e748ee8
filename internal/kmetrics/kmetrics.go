// Package kmetrics exposes the module's runtime counters and gauges
// through github.com/rcrowley/go-metrics, the metrics library the
// teacher's dependency tree already carries (used elsewhere in the
// pack for node/peer instrumentation). Every counter here is process-
// wide and registered once at init, mirroring the package-level
// metrics.GetOrRegisterCounter idiom that library's callers use.
package kmetrics

import "github.com/rcrowley/go-metrics"

var (
	// RpcCallsSent counts outbound RPC calls that were written to the
	// socket successfully.
	RpcCallsSent = metrics.NewRegisteredCounter("kadlan/rpc/calls_sent", metrics.DefaultRegistry)
	// RpcCallFailed counts outbound calls that failed before a
	// response could even be awaited (e.g. a socket write error).
	RpcCallFailed = metrics.NewRegisteredCounter("kadlan/rpc/calls_failed", metrics.DefaultRegistry)
	// RpcCallsTimedOut counts outbound calls that resolved with
	// ErrRpcTimeout.
	RpcCallsTimedOut = metrics.NewRegisteredCounter("kadlan/rpc/calls_timed_out", metrics.DefaultRegistry)

	// CrawlRounds measures the number of α-bounded rounds a single
	// lookup took to converge.
	CrawlRounds = metrics.NewRegisteredHistogram("kadlan/crawler/rounds", metrics.DefaultRegistry, metrics.NewUniformSample(512))

	// BucketOccupancy tracks the total number of contacts held across
	// all buckets in the routing table.
	BucketOccupancy = metrics.NewRegisteredGauge("kadlan/table/occupancy", metrics.DefaultRegistry)
	// BucketCount tracks how many buckets the routing table currently
	// holds (it grows only by splitting).
	BucketCount = metrics.NewRegisteredGauge("kadlan/table/bucket_count", metrics.DefaultRegistry)

	// BeaconPeersKnown tracks the current size of the LAN beacon peer
	// table.
	BeaconPeersKnown = metrics.NewRegisteredGauge("kadlan/discovery/peers_known", metrics.DefaultRegistry)
)
