package channels

import (
	"context"
	"errors"
	"sort"

	"comms-orchestrator/internal/comms"
)

// Sender is the channel-agnostic delivery contract used by the orchestrator.
//
// Rules:
// - No provider SDK calls outside channel adapters.
// - A returned error means the transport failed (network, timeout, dial).
// - A provider rejection is reported as SendResponse{Success: false} with
//   ErrorMessage/ErrorCode populated.
type Sender interface {
	Channel() comms.Channel
	Send(ctx context.Context, req SendRequest) (SendResponse, error)
}

type SendRequest struct {
	// CommunicationID correlates provider callbacks with the history row.
	CommunicationID string `json:"communication_id"`

	Recipient   string             `json:"recipient"`
	MessageType comms.MessageType  `json:"message_type"`
	Subject     string             `json:"subject,omitempty"`
	Content     string             `json:"content"`
	Attachments []comms.Attachment `json:"attachments,omitempty"`
}

type SendResponse struct {
	Success           bool   `json:"success"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	ErrorMessage      string `json:"error_message,omitempty"`
	ErrorCode         string `json:"error_code,omitempty"`
	// HTTPStatus is set by HTTP-based providers alongside ErrorCode.
	HTTPStatus        int    `json:"http_status,omitempty"`
}

var ErrNoSender = errors.New("channels: no sender configured")

// Registry maps channels to senders. It is read-only after construction.
type Registry struct {
	senders map[comms.Channel]Sender
}

func NewRegistry(senders ...Sender) Registry {
	m := make(map[comms.Channel]Sender, len(senders))
	for _, s := range senders {
		if s == nil {
			continue
		}
		m[s.Channel()] = s
	}
	return Registry{senders: m}
}

func (r Registry) Get(ch comms.Channel) (Sender, error) {
	s, ok := r.senders[ch]
	if !ok {
		return nil, ErrNoSender
	}
	return s, nil
}

// Channels lists the configured channels in canonical order.
func (r Registry) Channels() []comms.Channel {
	out := make([]comms.Channel, 0, len(r.senders))
	for ch := range r.senders {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
