package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/zoff-tech/event-pipeline/pkg/counter"
	"github.com/zoff-tech/event-pipeline/pkg/store"
)

const defaultEventsLimit = 20

// Handler serves the read side of the pipeline: current-minute throughput
// and the latest processed events.
type Handler struct {
	repo    store.EventRepository
	counter *counter.ShardedCounter
	timeout time.Duration
}

func NewHandler(repo store.EventRepository, c *counter.ShardedCounter, timeout time.Duration) *Handler {
	return &Handler{repo: repo, counter: c, timeout: timeout}
}

func (h *Handler) HandleMinuteStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	totals, err := h.counter.Read(ctx, counter.BucketID(time.Now()))
	if err != nil {
		sendError(w, http.StatusInternalServerError, "stats read failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, totals)
}

func (h *Handler) HandleRecentEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := defaultEventsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			sendError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	records, err := h.repo.ListRecent(ctx, limit)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "events read failed: "+err.Error())
		return
	}
	if records == nil {
		records = []store.EventRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"events": records})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func sendError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"error": detail})
}
