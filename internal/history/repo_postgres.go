package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"comms-orchestrator/internal/comms"
	"comms-orchestrator/pkg/utils"

	"github.com/google/uuid"
)

// NOTE: PostgresRepo assumes the following tables exist:
//
//	communications        (one row per request, latest state)
//	communication_events  (append-only status transitions)
//	client_preferences    (one row per client)
//
// metadata and preferred_channels are JSONB.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const recordColumns = `id, plan_id, client_id, message_type, urgency, priority, channel, status,
scheduled_for, sent_at, delivered_at, error, error_category, attempts, metadata, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(s rowScanner) (comms.Record, error) {
	var (
		rec                           comms.Record
		scheduled, sent, delivered    sql.NullTime
		md                            []byte
		messageType, urgency, channel string
		status, category              string
	)
	if err := s.Scan(
		&rec.ID,
		&rec.PlanID,
		&rec.ClientID,
		&messageType,
		&urgency,
		&rec.Priority,
		&channel,
		&status,
		&scheduled,
		&sent,
		&delivered,
		&rec.Error,
		&category,
		&rec.Attempts,
		&md,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return comms.Record{}, err
	}
	rec.MessageType = comms.MessageType(messageType)
	rec.Urgency = comms.Urgency(urgency)
	rec.Channel = comms.Channel(channel)
	rec.Status = comms.Status(status)
	rec.ErrorCategory = comms.ErrorCategory(category)
	rec.ScheduledFor = utils.TimePtr(scheduled)
	rec.SentAt = utils.TimePtr(sent)
	rec.DeliveredAt = utils.TimePtr(delivered)
	if len(md) > 0 {
		if err := json.Unmarshal(md, &rec.Metadata); err != nil {
			return comms.Record{}, fmt.Errorf("history: decode metadata: %w", err)
		}
	}
	return rec, nil
}

func encodeMetadata(md map[string]string) ([]byte, error) {
	if md == nil {
		md = map[string]string{}
	}
	return json.Marshal(md)
}

func (r *PostgresRepo) SavePendingCommunication(ctx context.Context, rec comms.Record) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = comms.StatusPending
	}
	md, err := encodeMetadata(rec.Metadata)
	if err != nil {
		return "", err
	}
	const q = `
INSERT INTO communications (id, plan_id, client_id, message_type, urgency, priority, channel, status,
  scheduled_for, sent_at, delivered_at, error, error_category, attempts, metadata, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
`
	_, err = r.db.ExecContext(ctx, q,
		rec.ID, rec.PlanID, rec.ClientID, string(rec.MessageType), string(rec.Urgency), rec.Priority,
		string(rec.Channel), string(rec.Status),
		utils.NullTime(rec.ScheduledFor), utils.NullTime(rec.SentAt), utils.NullTime(rec.DeliveredAt),
		rec.Error, string(rec.ErrorCategory), rec.Attempts, md, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("history: save communication: %w", err)
	}
	return rec.ID, nil
}

// UpdateStatus locks the row, folds the update in and appends the event in
// one transaction.
func (r *PostgresRepo) UpdateStatus(ctx context.Context, id string, u comms.StatusUpdate) (bool, error) {
	if u.At.IsZero() {
		u.At = time.Now().UTC()
	}
	found := false
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		rec, err := scanRecord(tx.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM communications WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		found = true
		rec = rec.Apply(u)

		md, err := encodeMetadata(rec.Metadata)
		if err != nil {
			return err
		}
		const upd = `
UPDATE communications
SET channel = $2, status = $3, sent_at = $4, delivered_at = $5, error = $6, error_category = $7,
    attempts = $8, metadata = $9, updated_at = $10
WHERE id = $1
`
		if _, err := tx.ExecContext(ctx, upd, id, string(rec.Channel), string(rec.Status),
			utils.NullTime(rec.SentAt), utils.NullTime(rec.DeliveredAt), rec.Error, string(rec.ErrorCategory),
			rec.Attempts, md, rec.UpdatedAt); err != nil {
			return err
		}

		evMeta, err := encodeMetadata(u.Metadata)
		if err != nil {
			return err
		}
		const ins = `
INSERT INTO communication_events (id, communication_id, status, channel, error, error_category, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`
		_, err = tx.ExecContext(ctx, ins, uuid.NewString(), id, string(u.Status), string(u.Channel),
			u.Error, string(u.ErrorCategory), evMeta, u.At.UTC())
		return err
	})
	if err != nil {
		return false, fmt.Errorf("history: update status: %w", err)
	}
	return found, nil
}

func (r *PostgresRepo) GetCommunication(ctx context.Context, id string) (comms.Record, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM communications WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return comms.Record{}, ErrNotFound
		}
		return comms.Record{}, err
	}
	return rec, nil
}

func (r *PostgresRepo) ListCommunications(ctx context.Context, f Filter) ([]comms.Record, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.ClientID != "" {
		add("client_id = $%d", f.ClientID)
	}
	if f.PlanID != "" {
		add("plan_id = $%d", f.PlanID)
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From.UTC())
	}
	if !f.To.IsZero() {
		add("created_at < $%d", f.To.UTC())
	}

	q := `SELECT ` + recordColumns + ` FROM communications`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at, id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: list communications: %w", err)
	}
	defer rows.Close()

	out := make([]comms.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) FindLatestByRecipient(ctx context.Context, recipient string) (comms.Record, error) {
	const q = `SELECT ` + recordColumns + ` FROM communications
WHERE metadata->>'recipient' = $1
ORDER BY updated_at DESC
LIMIT 1`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, q, recipient))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return comms.Record{}, ErrNotFound
		}
		return comms.Record{}, err
	}
	return rec, nil
}

func (r *PostgresRepo) CountPending(ctx context.Context, clientID string) (int, error) {
	const q = `SELECT COUNT(*) FROM communications WHERE client_id = $1 AND status IN ('pending', 'queued')`
	var n int
	if err := r.db.QueryRowContext(ctx, q, clientID).Scan(&n); err != nil {
		return 0, fmt.Errorf("history: count pending: %w", err)
	}
	return n, nil
}

func (r *PostgresRepo) LastSentAt(ctx context.Context, clientID string) (*time.Time, error) {
	const q = `SELECT MAX(sent_at) FROM communications WHERE client_id = $1`
	var nt sql.NullTime
	if err := r.db.QueryRowContext(ctx, q, clientID).Scan(&nt); err != nil {
		return nil, fmt.Errorf("history: last sent: %w", err)
	}
	return utils.TimePtr(nt), nil
}

func (r *PostgresRepo) GetClientPreferences(ctx context.Context, clientID string) (*comms.Preferences, error) {
	const q = `
SELECT client_id, preferred_channels, timezone, quiet_hours_start, quiet_hours_end,
       opt_out_email, opt_out_sms, opt_out_whatsapp, language, updated_at
FROM client_preferences
WHERE client_id = $1
`
	var (
		p        comms.Preferences
		channels []byte
	)
	err := r.db.QueryRowContext(ctx, q, clientID).Scan(
		&p.ClientID,
		&channels,
		&p.Timezone,
		&p.QuietHoursStart,
		&p.QuietHoursEnd,
		&p.OptOutEmail,
		&p.OptOutSMS,
		&p.OptOutWhatsApp,
		&p.Language,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("history: get preferences: %w", err)
	}
	if len(channels) > 0 {
		if err := json.Unmarshal(channels, &p.PreferredChannels); err != nil {
			return nil, fmt.Errorf("history: decode preferred channels: %w", err)
		}
	}
	return &p, nil
}

// SaveClientPreferences upserts p. The bool reports whether a new row was
// created.
func (r *PostgresRepo) SaveClientPreferences(ctx context.Context, p comms.Preferences) (bool, error) {
	channels, err := json.Marshal(p.PreferredChannels)
	if err != nil {
		return false, err
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	const q = `
INSERT INTO client_preferences (client_id, preferred_channels, timezone, quiet_hours_start, quiet_hours_end,
  opt_out_email, opt_out_sms, opt_out_whatsapp, language, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (client_id) DO UPDATE SET
  preferred_channels = EXCLUDED.preferred_channels,
  timezone = EXCLUDED.timezone,
  quiet_hours_start = EXCLUDED.quiet_hours_start,
  quiet_hours_end = EXCLUDED.quiet_hours_end,
  opt_out_email = EXCLUDED.opt_out_email,
  opt_out_sms = EXCLUDED.opt_out_sms,
  opt_out_whatsapp = EXCLUDED.opt_out_whatsapp,
  language = EXCLUDED.language,
  updated_at = EXCLUDED.updated_at
RETURNING (xmax = 0)
`
	var inserted bool
	if err := r.db.QueryRowContext(ctx, q, p.ClientID, channels, p.Timezone, p.QuietHoursStart, p.QuietHoursEnd,
		p.OptOutEmail, p.OptOutSMS, p.OptOutWhatsApp, p.Language, p.UpdatedAt.UTC()).Scan(&inserted); err != nil {
		return false, fmt.Errorf("history: save preferences: %w", err)
	}
	return inserted, nil
}
