package channels

import (
	"context"
	"log/slog"

	"comms-orchestrator/internal/comms"

	"github.com/google/uuid"
)

// LogSender accepts every message and only logs it. It backs channels that
// have no provider credentials in local and dev environments.
type LogSender struct {
	ch  comms.Channel
	log *slog.Logger
}

func NewLogSender(ch comms.Channel, log *slog.Logger) *LogSender {
	if log == nil {
		log = slog.Default()
	}
	return &LogSender{ch: ch, log: log.With("component", "log_sender", "channel", string(ch))}
}

func (s *LogSender) Channel() comms.Channel { return s.ch }

func (s *LogSender) Send(ctx context.Context, req SendRequest) (SendResponse, error) {
	id := uuid.NewString()
	s.log.Info("message accepted",
		"communication_id", req.CommunicationID,
		"message_type", req.MessageType,
		"subject", req.Subject,
		"content_bytes", len(req.Content),
		"attachments", len(req.Attachments),
		"provider_message_id", id,
	)
	return SendResponse{Success: true, ProviderMessageID: id}, nil
}
