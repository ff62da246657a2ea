package alerts

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema:
//
//	CREATE TABLE alert_events (
//	  id               UUID PRIMARY KEY,
//	  type             TEXT NOT NULL,
//	  communication_id TEXT,
//	  plan_id          TEXT,
//	  client_id        TEXT,
//	  channel          TEXT,
//	  message          TEXT,
//	  metadata         JSONB,
//	  created_at       TIMESTAMPTZ NOT NULL
//	);
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	var md any
	if e.Metadata != "" {
		md = e.Metadata
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO alert_events (id, type, communication_id, plan_id, client_id, channel, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, string(e.Type), e.CommunicationID, e.PlanID, e.ClientID, e.Channel, e.Message, md, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("alerts: append: %w", err)
	}
	return nil
}
