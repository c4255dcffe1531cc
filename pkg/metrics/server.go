package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ExportFunc returns the value an /export call should serve: whatever
// shape the caller's db.Instance.Export produces.
type ExportFunc func() (any, error)

// PeersFunc returns the value a /peers call should serve.
type PeersFunc func() any

// NewDebugServer builds a chi router exposing /metrics (this Recorder's
// Prometheus registry), /export, and /peers. Both exportFn and peersFn
// may be nil, in which case the matching route answers 404; this keeps
// the debug server usable even when only metrics are wanted.
func (r *Recorder) NewDebugServer(exportFn ExportFunc, peersFn PeersFunc) http.Handler {
	mux := chi.NewRouter()
	mux.Handle("/metrics", promhttp.HandlerFor(r.Registry(), promhttp.HandlerOpts{}))

	mux.Get("/export", func(w http.ResponseWriter, req *http.Request) {
		if exportFn == nil {
			http.NotFound(w, req)
			return
		}
		data, err := exportFn()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(data)
	})

	mux.Get("/peers", func(w http.ResponseWriter, req *http.Request) {
		if peersFn == nil {
			http.NotFound(w, req)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(peersFn())
	})

	return mux
}
