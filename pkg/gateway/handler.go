package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/zoff-tech/event-pipeline/pkg/broker"
	"github.com/zoff-tech/event-pipeline/pkg/envelope"
)

// Handler accepts event submissions, assigns identity and hands the
// envelope to the broker. It adds no durability of its own: a publish
// failure is surfaced to the caller, who is expected to retry.
type Handler struct {
	publisher broker.Publisher
	topic     string
	timeout   time.Duration
	validate  *validator.Validate
}

func NewHandler(publisher broker.Publisher, topic string, timeout time.Duration) *Handler {
	return &Handler{
		publisher: publisher,
		topic:     topic,
		timeout:   timeout,
		validate:  validator.New(),
	}
}

type ingestRequest struct {
	EventType     string                 `json:"eventType" validate:"required,max=128"`
	Source        string                 `json:"source" validate:"omitempty,max=128"`
	Payload       map[string]interface{} `json:"payload"`
	EventID       string                 `json:"eventId" validate:"omitempty,max=128"`
	SchemaVersion int                    `json:"schemaVersion" validate:"omitempty,min=1"`
}

type ingestResponse struct {
	Status    string `json:"status"`
	EventID   string `json:"eventId"`
	MessageID string `json:"messageId"`
}

func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(&req); err != nil {
		sendError(w, http.StatusBadRequest, "validation failed: "+err.Error())
		return
	}

	if req.SchemaVersion == 0 {
		req.SchemaVersion = envelope.SupportedSchemaVersion
	}
	if req.SchemaVersion != envelope.SupportedSchemaVersion {
		sendError(w, http.StatusBadRequest, "unsupported schemaVersion")
		return
	}

	// Client-supplied ids are kept verbatim; they are the idempotency key
	// a retrying producer relies on.
	eventID := req.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	}

	env := envelope.New(eventID, req.EventType, req.Source, req.Payload)
	data, err := env.Encode()
	if err != nil {
		sendError(w, http.StatusInternalServerError, "failed to encode envelope")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	messageID, err := h.publisher.Publish(ctx, h.topic, data, env.Attributes())
	if err != nil {
		log.Printf("Publish failed for eventId=%s eventType=%s: %v", eventID, req.EventType, err)
		sendError(w, http.StatusInternalServerError, "publish failed: "+err.Error())
		return
	}

	log.Printf("Accepted event eventId=%s eventType=%s messageId=%s", eventID, req.EventType, messageID)

	writeJSON(w, http.StatusAccepted, ingestResponse{
		Status:    "accepted",
		EventID:   eventID,
		MessageID: messageID,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func sendError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"error": detail})
}
