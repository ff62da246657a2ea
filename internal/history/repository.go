package history

import (
	"context"
	"errors"
	"time"

	"comms-orchestrator/internal/comms"
)

var ErrNotFound = errors.New("history: not found")

// Filter selects communications for listing. Zero values match everything.
type Filter struct {
	ClientID string
	PlanID   string
	From     time.Time
	To       time.Time
	Limit    int
}

// Repository persists communication records and client preferences.
//
// Invariants:
// - SavePendingCommunication assigns the ID.
// - UpdateStatus appends a status event and folds it into the row; it
//   reports false when the communication does not exist.
// - GetClientPreferences returns nil, nil when the client has none stored.
type Repository interface {
	SavePendingCommunication(ctx context.Context, rec comms.Record) (string, error)
	UpdateStatus(ctx context.Context, id string, u comms.StatusUpdate) (bool, error)
	GetCommunication(ctx context.Context, id string) (comms.Record, error)
	ListCommunications(ctx context.Context, f Filter) ([]comms.Record, error)
	FindLatestByRecipient(ctx context.Context, recipient string) (comms.Record, error)

	CountPending(ctx context.Context, clientID string) (int, error)
	LastSentAt(ctx context.Context, clientID string) (*time.Time, error)

	GetClientPreferences(ctx context.Context, clientID string) (*comms.Preferences, error)
	SaveClientPreferences(ctx context.Context, p comms.Preferences) (bool, error)
}

func (f Filter) matches(r comms.Record) bool {
	if f.ClientID != "" && r.ClientID != f.ClientID {
		return false
	}
	if f.PlanID != "" && r.PlanID != f.PlanID {
		return false
	}
	if !f.From.IsZero() && r.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !r.CreatedAt.Before(f.To) {
		return false
	}
	return true
}
