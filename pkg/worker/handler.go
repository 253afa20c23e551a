package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/zoff-tech/event-pipeline/pkg/counter"
	"github.com/zoff-tech/event-pipeline/pkg/envelope"
	"github.com/zoff-tech/event-pipeline/pkg/store"
)

// Handler consumes push deliveries from the broker. The HTTP status is the
// acknowledgment: a 2xx acks the message, anything else triggers the
// broker's own redelivery and, past its failure threshold, dead-lettering.
// Deliveries are at-least-once, so the store's conditional insert is what
// keeps reprocessing a no-op.
type Handler struct {
	repo            store.EventRepository
	counter         *counter.ShardedCounter
	timeout         time.Duration
	poisonEventType string
}

func NewHandler(repo store.EventRepository, c *counter.ShardedCounter, timeout time.Duration, poisonEventType string) *Handler {
	return &Handler{
		repo:            repo,
		counter:         c,
		timeout:         timeout,
		poisonEventType: poisonEventType,
	}
}

type pushResponse struct {
	OK       bool   `json:"ok"`
	StoredAs string `json:"storedAs"`
	Status   string `json:"status,omitempty"`
}

func (h *Handler) HandlePush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		sendError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	defer r.Body.Close()

	env, delivery, err := envelope.DecodePush(body)
	if err != nil {
		log.Printf("Bad push delivery: %v", err)
		sendError(w, http.StatusBadRequest, "bad push delivery: "+err.Error())
		return
	}

	// Deliberate failure hook for exercising the dead-letter path. Only
	// active when the debug config names a sentinel type.
	if h.poisonEventType != "" && env.EventType == h.poisonEventType {
		log.Printf("Poison event type %q, failing delivery messageId=%s", env.EventType, delivery.MessageID)
		sendError(w, http.StatusInternalServerError, "intentional failure for dead-letter testing")
		return
	}

	// Malformed producers may omit eventId; the broker message id still
	// gives the record a stable key.
	eventID := env.EventID
	if eventID == "" {
		eventID = delivery.MessageID
	}
	if eventID == "" {
		sendError(w, http.StatusBadRequest, "missing eventId")
		return
	}
	env.EventID = eventID

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if _, err := h.repo.GetEvent(ctx, eventID); err == nil {
		log.Printf("Duplicate event skipped eventId=%s", eventID)
		writeJSON(w, http.StatusOK, pushResponse{OK: true, StoredAs: eventID, Status: "duplicate"})
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		log.Printf("Store lookup failed eventId=%s: %v", eventID, err)
		sendError(w, http.StatusInternalServerError, "store lookup failed: "+err.Error())
		return
	}

	record := store.NewEventRecord(env, delivery)
	if err := h.repo.CreateEvent(ctx, record); err != nil {
		// A concurrent delivery of the same id can slip between the lookup
		// and the insert; the conditional create reports it as a duplicate
		// rather than racing to a second record.
		if errors.Is(err, store.ErrDuplicateEvent) {
			log.Printf("Duplicate event skipped on insert eventId=%s", eventID)
			writeJSON(w, http.StatusOK, pushResponse{OK: true, StoredAs: eventID, Status: "duplicate"})
			return
		}
		log.Printf("Store write failed eventId=%s eventType=%s: %v", eventID, env.EventType, err)
		sendError(w, http.StatusInternalServerError, "store write failed: "+err.Error())
		return
	}

	// The counter is telemetry, not a ledger: a failed increment is logged
	// and the delivery still acks, so the record is never reprocessed just
	// to fix a statistic.
	bucket := counter.BucketID(time.Now())
	if err := h.counter.Increment(ctx, bucket); err != nil {
		log.Printf("Counter increment failed bucket=%s eventId=%s: %v", bucket, eventID, err)
	}

	writeJSON(w, http.StatusOK, pushResponse{OK: true, StoredAs: eventID})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func sendError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"error": detail})
}
