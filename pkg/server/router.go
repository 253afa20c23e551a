package server

import (
	"encoding/json"
	"net/http"

	"github.com/zoff-tech/event-pipeline/pkg/dashboard"
	"github.com/zoff-tech/event-pipeline/pkg/dlq"
	"github.com/zoff-tech/event-pipeline/pkg/gateway"
	"github.com/zoff-tech/event-pipeline/pkg/worker"
)

// NewRouter constructs a ServeMux with all pipeline routes registered.
func NewRouter(g *gateway.Handler, w *worker.Handler, d *dashboard.Handler, q *dlq.Handler) http.Handler {
	mux := http.NewServeMux()

	// Ingestion
	mux.HandleFunc("/events", g.HandleIngest)

	// Broker push deliveries
	mux.HandleFunc("/pubsub", w.HandlePush)

	// Dashboard read API
	mux.HandleFunc("/api/stats/minute", d.HandleMinuteStats)
	mux.HandleFunc("/api/events", d.HandleRecentEvents)

	// Dead-letter operations, mounted only when a source is configured
	if q != nil {
		mux.HandleFunc("/api/dlq", q.HandlePull)
		mux.HandleFunc("/api/dlq/replay", q.HandleReplay)
	}

	// Health
	mux.HandleFunc("/healthz", handleHealth)

	return mux
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}
