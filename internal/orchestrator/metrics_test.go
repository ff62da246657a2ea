package orchestrator

import (
	"context"
	"testing"
	"time"

	"comms-orchestrator/internal/comms"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordAttempt(comms.ChannelEmail, comms.Result{Status: comms.StatusSent})
	m.RecordResult(comms.Result{Status: comms.StatusFailed}, time.Second)
	m.RecordFallback()
	m.RecordRetryDelay(time.Minute)
}

func TestMetrics_SharedAndWired(t *testing.T) {
	m := NewMetrics()
	if m == nil || NewMetrics() != m {
		t.Fatalf("expected a shared metrics instance")
	}

	email := newScripted(comms.ChannelEmail, transportErr("connection timeout"), ok())
	o, _ := newTestOrchestrator(t, email)
	o.Metrics = m

	res := o.ProcessRequest(context.Background(), testRequest(comms.MessageWelcome, comms.UrgencyNormal), emailOnlyPrefs())
	if !res.Success() {
		t.Fatalf("expected success, got %+v", res)
	}
}
