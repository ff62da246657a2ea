package utils

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestNullTimeRoundTrip(t *testing.T) {
	if NullTime(nil).Valid {
		t.Fatalf("expected invalid for nil")
	}
	if TimePtr(sql.NullTime{}) != nil {
		t.Fatalf("expected nil for invalid")
	}

	loc := time.FixedZone("x", 3600)
	in := time.Date(2026, 1, 2, 3, 4, 5, 0, loc)
	out := TimePtr(NullTime(&in))
	if out == nil || !out.Equal(in) || out.Location() != time.UTC {
		t.Fatalf("unexpected round trip: %v", out)
	}
}

func TestPoolConfigResolved(t *testing.T) {
	c := PoolConfig{}.resolved()
	if c.MaxOpen != 20 || c.MaxIdle != 20 || c.PingTimeout != 5*time.Second {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	c = PoolConfig{MaxOpen: 4, MaxIdle: 10, MaxLifetime: time.Minute}.resolved()
	if c.MaxIdle != 4 || c.MaxLifetime != time.Minute {
		t.Fatalf("expected idle capped at open and lifetime kept, got %+v", c)
	}
}

func TestIsRetryableTx(t *testing.T) {
	deadlock := fmt.Errorf("history: update status: %w", &pgconn.PgError{Code: "40P01"})
	if !IsRetryableTx(deadlock) {
		t.Fatalf("expected wrapped deadlock to be retryable")
	}
	if !IsRetryableTx(&pgconn.PgError{Code: "40001"}) {
		t.Fatalf("expected serialization failure to be retryable")
	}
	if IsRetryableTx(&pgconn.PgError{Code: "23505"}) || IsRetryableTx(errors.New("boom")) {
		t.Fatalf("expected other errors not to be retryable")
	}
}
