package dlq

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"
)

// ErrInvalidReplay marks replay requests rejected before touching the broker.
var ErrInvalidReplay = errors.New("invalid replay request")

const defaultPullLimit = 10

// Handler exposes the controller over HTTP for the operator dashboard.
type Handler struct {
	controller *Controller
	timeout    time.Duration
}

func NewHandler(controller *Controller, timeout time.Duration) *Handler {
	return &Handler{controller: controller, timeout: timeout}
}

type replayRequest struct {
	AckID string          `json:"ackId"`
	Data  json.RawMessage `json:"data"`
}

type replayResponse struct {
	OK              bool   `json:"ok"`
	ReplayedEventID string `json:"replayedEventId"`
}

func (h *Handler) HandlePull(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := defaultPullLimit
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

	letters, err := h.controller.Pull(ctx, limit)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "pull failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": letters})
}

func (h *Handler) HandleReplay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req replayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	defer r.Body.Close()

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	eventID, err := h.controller.Replay(ctx, req.AckID, req.Data)
	if err != nil {
		if errors.Is(err, ErrInvalidReplay) {
			sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		sendError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, replayResponse{OK: true, ReplayedEventID: eventID})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func sendError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"error": detail})
}
