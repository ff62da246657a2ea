package comms

import "time"

// Record is the persisted history row for one communication.
//
// Invariants:
// - ID is assigned once by the history store.
// - Status transitions are appended as events; the row holds the latest state.
type Record struct {
	ID          string      `json:"id" db:"id"`
	PlanID      string      `json:"plan_id" db:"plan_id"`
	ClientID    string      `json:"client_id" db:"client_id"`
	MessageType MessageType `json:"message_type" db:"message_type"`
	Urgency     Urgency     `json:"urgency" db:"urgency"`
	Priority    int         `json:"priority" db:"priority"`

	Channel Channel `json:"channel" db:"channel"`
	Status  Status  `json:"status" db:"status"`

	ScheduledFor  *time.Time        `json:"scheduled_for,omitempty" db:"scheduled_for"`
	SentAt        *time.Time        `json:"sent_at,omitempty" db:"sent_at"`
	DeliveredAt   *time.Time        `json:"delivered_at,omitempty" db:"delivered_at"`
	Error         string            `json:"error,omitempty" db:"error"`
	ErrorCategory ErrorCategory     `json:"error_category,omitempty" db:"error_category"`
	Attempts      int               `json:"attempts" db:"attempts"`
	Metadata      map[string]string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewRecord builds the pending row for req under strategy s.
func NewRecord(req Request, s Strategy, now time.Time) Record {
	rec := Record{
		PlanID:      req.PlanID,
		ClientID:    req.ClientID,
		MessageType: req.MessageType,
		Urgency:     req.Urgency,
		Priority:    s.Priority,
		Channel:     s.PrimaryChannel,
		Status:      StatusPending,
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}
	if s.SendTime.After(now) {
		at := s.SendTime.UTC()
		rec.ScheduledFor = &at
	}
	return rec
}

// StatusUpdate is one status transition. Empty fields leave the stored value
// unchanged; Metadata is merged.
type StatusUpdate struct {
	Status        Status
	Channel       Channel
	Error         string
	ErrorCategory ErrorCategory
	Attempts      int
	Metadata      map[string]string
	At            time.Time
}

// UpdateFromResult converts a terminal result into a status transition.
func UpdateFromResult(r Result, at time.Time) StatusUpdate {
	return StatusUpdate{
		Status:        r.Status,
		Channel:       r.Channel,
		Error:         r.Error,
		ErrorCategory: r.ErrorCategory,
		Attempts:      r.Attempts,
		Metadata:      r.Metadata,
		At:            at.UTC(),
	}
}

// Apply folds u into rec, setting lifecycle timestamps as statuses advance.
func (rec Record) Apply(u StatusUpdate) Record {
	if u.Status != "" {
		rec.Status = u.Status
	}
	if u.Channel != "" {
		rec.Channel = u.Channel
	}
	if u.Status.IsSuccessful() {
		// Errors from an interrupted or failed earlier run no longer apply.
		rec.Error, rec.ErrorCategory = u.Error, u.ErrorCategory
	} else {
		if u.Error != "" {
			rec.Error = u.Error
		}
		if u.ErrorCategory != "" {
			rec.ErrorCategory = u.ErrorCategory
		}
	}
	if u.Attempts > 0 {
		rec.Attempts = u.Attempts
	}
	if len(u.Metadata) > 0 {
		md := make(map[string]string, len(rec.Metadata)+len(u.Metadata))
		for k, v := range rec.Metadata {
			md[k] = v
		}
		for k, v := range u.Metadata {
			md[k] = v
		}
		rec.Metadata = md
	}
	if u.Status.IsSuccessful() && rec.Metadata[MetaCancelled] != "" {
		md := make(map[string]string, len(rec.Metadata))
		for k, v := range rec.Metadata {
			if k != MetaCancelled {
				md[k] = v
			}
		}
		rec.Metadata = md
	}
	at := u.At.UTC()
	switch u.Status {
	case StatusSent:
		if rec.SentAt == nil {
			rec.SentAt = &at
		}
	case StatusDelivered, StatusOpened, StatusClicked:
		if rec.SentAt == nil {
			rec.SentAt = &at
		}
		if rec.DeliveredAt == nil {
			rec.DeliveredAt = &at
		}
	}
	rec.UpdatedAt = at
	return rec
}
