package metrics

import "github.com/prometheus/client_golang/prometheus/testutil"

// Snapshot is a point-in-time read of every counter and gauge, for a CLI
// stats command or a test assertion; it avoids scraping /metrics just to
// check one number.
type Snapshot struct {
	RowsMerged           float64
	RowsRejected         float64
	DigestsSent          float64
	DigestsReceived      float64
	DebounceCoalesced    float64
	DiscoveryCompletions float64
	DiscoveredPeers      float64
}

// Snapshot reads the current value of every instrument.
func (r *Recorder) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	return Snapshot{
		RowsMerged:           testutil.ToFloat64(r.rowsMerged),
		RowsRejected:         testutil.ToFloat64(r.rowsRejected),
		DigestsSent:          testutil.ToFloat64(r.digestsSent),
		DigestsReceived:      testutil.ToFloat64(r.digestsReceived),
		DebounceCoalesced:    testutil.ToFloat64(r.debounceCoalesced),
		DiscoveryCompletions: testutil.ToFloat64(r.discoveryCompletions),
		DiscoveredPeers:      testutil.ToFloat64(r.discoveredPeers),
	}
}
