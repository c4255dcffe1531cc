// Package metrics exposes the sync engine and store's operational
// counters as Prometheus instruments: a private registry, one field per
// gauge/counter, a constructor that registers everything up front, and
// an HTTP handler exposing them on demand.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Recorder holds every counter and gauge the gossip engine and store
// report against. A nil *Recorder is valid everywhere it is accepted:
// every method on a nil receiver is a no-op, so instrumentation is always
// optional.
type Recorder struct {
	registry *prometheus.Registry

	rowsMerged           prometheus.Counter
	rowsRejected         prometheus.Counter
	digestsSent          prometheus.Counter
	digestsReceived      prometheus.Counter
	debounceCoalesced    prometheus.Counter
	discoveryCompletions prometheus.Counter
	discoveredPeers      prometheus.Gauge
}

// New builds a Recorder and registers all of its instruments on a fresh
// private registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		rowsMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gossipkv_rows_merged_total",
			Help: "Rows accepted by the LWW merge, from any source.",
		}),
		rowsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gossipkv_rows_rejected_total",
			Help: "Rows that failed per-row import validation and were dropped with a warning.",
		}),
		digestsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gossipkv_digests_sent_total",
			Help: "Digest messages broadcast by this peer.",
		}),
		digestsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gossipkv_digests_received_total",
			Help: "Digest messages received from other peers.",
		}),
		debounceCoalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gossipkv_debounce_coalesced_total",
			Help: "Inbound messages dropped by the (messageType, peerId) debounce bucket.",
		}),
		discoveryCompletions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gossipkv_discovery_completions_total",
			Help: "Discovery rounds that reached the quiet-period or max-time completion predicate.",
		}),
		discoveredPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gossipkv_discovered_peers",
			Help: "Peers currently held in the discovery directory.",
		}),
	}
	reg.MustRegister(
		r.rowsMerged,
		r.rowsRejected,
		r.digestsSent,
		r.digestsReceived,
		r.debounceCoalesced,
		r.discoveryCompletions,
		r.discoveredPeers,
	)
	return r
}

// Registry exposes the private Prometheus registry, e.g. for a chi-based
// /metrics handler (see Recorder.NewDebugServer in server.go).
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

func (r *Recorder) RowMerged() {
	if r != nil {
		r.rowsMerged.Inc()
	}
}

func (r *Recorder) RowRejected() {
	if r != nil {
		r.rowsRejected.Inc()
	}
}

func (r *Recorder) DigestSent() {
	if r != nil {
		r.digestsSent.Inc()
	}
}

func (r *Recorder) DigestReceived() {
	if r != nil {
		r.digestsReceived.Inc()
	}
}

func (r *Recorder) DebounceCoalesced() {
	if r != nil {
		r.debounceCoalesced.Inc()
	}
}

func (r *Recorder) DiscoveryCompleted() {
	if r != nil {
		r.discoveryCompletions.Inc()
	}
}

func (r *Recorder) SetDiscoveredPeers(n int) {
	if r != nil {
		r.discoveredPeers.Set(float64(n))
	}
}
