package comms

import (
	"fmt"
	"strings"
	"time"
)

// Request is one unit of work for the orchestrator.
//
// Context is the generic string map used by channel rendering (addresses,
// links). Payload is the typed per-message-type data; when present its fields
// take precedence over Context during rendering.
type Request struct {
	PlanID           string            `json:"plan_id"`
	ClientID         string            `json:"client_id"`
	MessageType      MessageType       `json:"message_type"`
	Context          map[string]string `json:"context,omitempty"`
	Payload          Payload           `json:"-"`
	Urgency          Urgency           `json:"urgency"`
	PreferredChannel *Channel          `json:"preferred_channel,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// Context keys understood by the senders.
const (
	CtxEmail       = "email"
	CtxClientEmail = "client_email"
	CtxPhone       = "phone"
	CtxClientPhone = "client_phone"
	CtxClientName  = "client_name"
	CtxSubject     = "subject"
)

// NewRequest validates and builds a Request. The context map is copied so the
// caller cannot mutate the request after construction.
func NewRequest(planID, clientID string, mt MessageType, urgency Urgency, ctx map[string]string, payload Payload, now time.Time) (Request, error) {
	if strings.TrimSpace(clientID) == "" {
		return Request{}, fmt.Errorf("%w: client_id required", ErrInvalidRequest)
	}
	if !mt.Valid() {
		return Request{}, fmt.Errorf("%w: unknown message_type %q", ErrInvalidRequest, mt)
	}
	if urgency == "" {
		urgency = UrgencyNormal
	}
	if !urgency.Valid() {
		return Request{}, fmt.Errorf("%w: unknown urgency %q", ErrInvalidRequest, urgency)
	}
	if payload != nil && payload.MessageType() != mt {
		return Request{}, ErrPayloadMismatch
	}
	return Request{
		PlanID:      planID,
		ClientID:    clientID,
		MessageType: mt,
		Context:     cloneMap(ctx),
		Payload:     payload,
		Urgency:     urgency,
		CreatedAt:   now.UTC(),
	}, nil
}

// WithPreferredChannel returns a copy of r that asks for ch first.
func (r Request) WithPreferredChannel(ch Channel) Request {
	c := ch
	r.PreferredChannel = &c
	r.Context = cloneMap(r.Context)
	return r
}

// Recipient resolves the channel address from the request context.
func (r Request) Recipient(ch Channel) (string, bool) {
	var keys []string
	switch ch {
	case ChannelEmail:
		keys = []string{CtxEmail, CtxClientEmail}
	case ChannelSMS, ChannelWhatsApp:
		keys = []string{CtxPhone, CtxClientPhone}
	default:
		return "", false
	}
	for _, k := range keys {
		if v := strings.TrimSpace(r.Context[k]); v != "" {
			return v, true
		}
	}
	return "", false
}

// RenderData merges the typed payload over the generic context.
func (r Request) RenderData() map[string]string {
	out := cloneMap(r.Context)
	if out == nil {
		out = map[string]string{}
	}
	if r.Payload != nil {
		for k, v := range r.Payload.Fields() {
			out[k] = v
		}
	}
	out["plan_id"] = r.PlanID
	out["client_id"] = r.ClientID
	out["message_type"] = string(r.MessageType)
	return out
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
