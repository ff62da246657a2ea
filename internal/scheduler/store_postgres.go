package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"comms-orchestrator/pkg/utils"
)

// NOTE: PostgresStore assumes the following table exists:
//
//	CREATE TABLE scheduled_sends (
//	  communication_id TEXT PRIMARY KEY,
//	  request          JSONB NOT NULL,
//	  due_at           TIMESTAMPTZ NOT NULL,
//	  claimed_at       TIMESTAMPTZ NULL,
//	  done_at          TIMESTAMPTZ NULL
//	);
//	CREATE INDEX scheduled_sends_due_idx ON scheduled_sends (due_at) WHERE done_at IS NULL;
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) Enqueue(ctx context.Context, it Item) error {
	if err := it.validate(); err != nil {
		return err
	}
	body, err := encodeRequest(it.Request)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scheduled_sends (communication_id, request, due_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (communication_id) DO UPDATE
		SET request = EXCLUDED.request, due_at = EXCLUDED.due_at, claimed_at = NULL, done_at = NULL
	`, it.CommunicationID, body, it.DueAt.UTC())
	return err
}

// ClaimDue locks due rows with SKIP LOCKED so concurrent dispatchers never
// claim the same item.
func (s *PostgresStore) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = 100
	}
	now = now.UTC()
	var out []Item

	err := utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		out = out[:0]
		rows, err := tx.QueryContext(ctx, `
			SELECT communication_id, request, due_at
			FROM scheduled_sends
			WHERE done_at IS NULL
			  AND due_at <= $1
			  AND (claimed_at IS NULL OR claimed_at < $2)
			ORDER BY due_at, communication_id
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		`, now, now.Add(-lease), limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				it   Item
				body []byte
			)
			if err := rows.Scan(&it.CommunicationID, &body, &it.DueAt); err != nil {
				return err
			}
			req, err := decodeRequest(body)
			if err != nil {
				return fmt.Errorf("scheduled send %s: %w", it.CommunicationID, err)
			}
			it.Request = req
			it.ClaimedAt = &now
			out = append(out, it)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for _, it := range out {
			if _, err := tx.ExecContext(ctx,
				`UPDATE scheduled_sends SET claimed_at = $2 WHERE communication_id = $1`,
				it.CommunicationID, now,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) MarkDone(ctx context.Context, communicationID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_sends SET done_at = $2 WHERE communication_id = $1 AND done_at IS NULL`,
		communicationID, at.UTC(),
	)
	return err
}
