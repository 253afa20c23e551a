package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrMissingBody = errors.New("push delivery is missing message.data")

// PushRequest is the wrapper the broker POSTs to the worker endpoint:
//
//	{"message": {"data": "base64...", "attributes": {...}, "messageId": "...",
//	 "publishTime": "..."}, "subscription": "..."}
type PushRequest struct {
	Message      PushMessage `json:"message"`
	Subscription string      `json:"subscription"`
}

// PushMessage carries the broker-assigned delivery metadata alongside the
// base64-encoded envelope body.
type PushMessage struct {
	Data        []byte            `json:"data"`
	Attributes  map[string]string `json:"attributes"`
	MessageID   string            `json:"messageId"`
	PublishTime time.Time         `json:"publishTime"`
}

// Delivery is the broker metadata attached to an envelope while it is being
// processed. It is transient context, never authoritative identity.
type Delivery struct {
	MessageID   string            `json:"messageId" bson:"messageId"`
	PublishTime time.Time         `json:"publishTime" bson:"publishTime"`
	Attributes  map[string]string `json:"attributes,omitempty" bson:"attributes,omitempty"`
}

// DecodePush parses a push delivery into the envelope it carries plus the
// delivery metadata. A request without a body is permanently malformed and
// reported as such so the caller can answer with a client error instead of
// inviting endless redelivery.
func DecodePush(body []byte) (*Envelope, *Delivery, error) {
	var req PushRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, nil, fmt.Errorf("invalid push payload: %w", err)
	}
	if len(req.Message.Data) == 0 {
		return nil, nil, ErrMissingBody
	}

	env, err := Decode(req.Message.Data)
	if err != nil {
		return nil, nil, err
	}

	delivery := &Delivery{
		MessageID:   req.Message.MessageID,
		PublishTime: req.Message.PublishTime,
		Attributes:  req.Message.Attributes,
	}
	return env, delivery, nil
}
