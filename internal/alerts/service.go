package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"comms-orchestrator/internal/comms"

	"github.com/google/uuid"
)

// Repository is the persistence contract for alert events. Append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service raises out-of-band alerts for on-call.
//
// Callers treat alerting as best-effort and ignore returned errors.
type Service struct {
	repo  Repository
	log   *slog.Logger
	clock func() time.Time
}

func NewService(repo Repository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, log: log.With("component", "alerts"), clock: time.Now}
}

var ErrInvalidEvent = errors.New("alerts: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("alerts: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// NotifyCriticalFailure records that a critical request could not be
// delivered on any channel.
func (s *Service) NotifyCriticalFailure(ctx context.Context, req comms.Request, res comms.Result) error {
	s.log.Error("critical communication failed",
		"communication_id", res.CommunicationID,
		"plan_id", req.PlanID,
		"client_id", req.ClientID,
		"message_type", req.MessageType,
		"channel", res.Channel,
		"error", res.Error,
	)
	md, _ := json.Marshal(map[string]any{
		"message_type":   req.MessageType,
		"urgency":        req.Urgency,
		"attempts":       res.Attempts,
		"error_category": res.ErrorCategory,
		"result_meta":    res.Metadata,
	})
	return s.Append(ctx, Event{
		Type:            EventCriticalFailure,
		CommunicationID: res.CommunicationID,
		PlanID:          req.PlanID,
		ClientID:        req.ClientID,
		Channel:         string(res.Channel),
		Message:         res.Error,
		Metadata:        string(md),
	})
}

// NotifyAuthFailure records a credential problem with a channel provider.
func (s *Service) NotifyAuthFailure(ctx context.Context, ch comms.Channel, msg string) error {
	s.log.Error("channel authentication failure", "channel", ch, "error", msg)
	return s.Append(ctx, Event{
		Type:    EventAuthFailure,
		Channel: string(ch),
		Message: msg,
	})
}
