package alerts

import "time"

// Event is an immutable operational alert record.
//
// Invariants:
// - Events are never updated or deleted.
// - Alerting is best-effort; it must not change the outcome of a delivery.
//
// Storage (Postgres): table alert_events, INSERT-only.
type Event struct {
	ID   string    `json:"id" db:"id"`
	Type EventType `json:"type" db:"type"`

	// Target identifiers; which ones are set depends on the type.
	CommunicationID string `json:"communication_id,omitempty" db:"communication_id"`
	PlanID          string `json:"plan_id,omitempty" db:"plan_id"`
	ClientID        string `json:"client_id,omitempty" db:"client_id"`
	Channel         string `json:"channel,omitempty" db:"channel"`

	// Message is a short human-readable description for on-call.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON with full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	// EventCriticalFailure: a critical-urgency request failed on every channel.
	EventCriticalFailure EventType = "critical_failure"
	// EventAuthFailure: a provider rejected our credentials.
	EventAuthFailure EventType = "auth_failure"
)
