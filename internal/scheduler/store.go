package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"comms-orchestrator/internal/comms"
)

var ErrInvalidItem = errors.New("scheduler: invalid item")

// Item is one future-dated send waiting for its due time.
type Item struct {
	CommunicationID string
	Request         comms.Request
	DueAt           time.Time
	ClaimedAt       *time.Time
}

// Store persists scheduled sends.
//
// ClaimDue hands out each due item to one caller at a time. A claimed item
// that is never marked done becomes claimable again once its lease expires.
type Store interface {
	Enqueue(ctx context.Context, it Item) error
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]Item, error)
	MarkDone(ctx context.Context, communicationID string, at time.Time) error
}

func (it Item) validate() error {
	if it.CommunicationID == "" {
		return fmt.Errorf("%w: communication_id required", ErrInvalidItem)
	}
	if it.DueAt.IsZero() {
		return fmt.Errorf("%w: due_at required", ErrInvalidItem)
	}
	return nil
}

// envelope is the stored form of a request. The typed payload is kept as
// raw JSON next to the request and decoded by message type on load.
type envelope struct {
	Request comms.Request   `json:"request"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func encodeRequest(req comms.Request) ([]byte, error) {
	env := envelope{Request: req}
	if req.Payload != nil {
		raw, err := json.Marshal(req.Payload)
		if err != nil {
			return nil, fmt.Errorf("scheduler: encode payload: %w", err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

func decodeRequest(b []byte) (comms.Request, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return comms.Request{}, fmt.Errorf("scheduler: decode request: %w", err)
	}
	p, err := comms.DecodePayload(env.Request.MessageType, env.Payload)
	if err != nil {
		return comms.Request{}, err
	}
	env.Request.Payload = p
	return env.Request, nil
}
