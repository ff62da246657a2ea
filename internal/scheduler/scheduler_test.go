package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"comms-orchestrator/internal/comms"
)

type stubDeliverer struct {
	mu     sync.Mutex
	ids    []string
	cancel map[string]bool
}

func (d *stubDeliverer) Deliver(ctx context.Context, id string, req comms.Request) comms.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, id)
	if d.cancel[id] {
		return comms.FailedResult(id, comms.ChannelEmail, "delivery cancelled: context canceled", comms.CategoryTransient).
			WithMeta(comms.MetaCancelled, "true")
	}
	return comms.Result{CommunicationID: id, Status: comms.StatusSent, Channel: comms.ChannelEmail}
}

func (d *stubDeliverer) delivered() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.ids...)
}

func newTestDispatcher(store Store, del Deliverer, now time.Time) *Dispatcher {
	d := NewDispatcher(Config{Interval: time.Second, Workers: 1, RunTimeout: time.Minute, Lease: 10 * time.Minute}, store, del, nil)
	d.Now = func() time.Time { return now }
	return d
}

func TestRunOnce_DeliversOnlyDueItems(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	store := NewMemoryStore()
	del := &stubDeliverer{}
	d := newTestDispatcher(store, del, now)
	ctx := context.Background()

	req := comms.Request{ClientID: "client-1", MessageType: comms.MessageReminder, Urgency: comms.UrgencyLow}
	for id, at := range map[string]time.Time{
		"c-1": now.Add(-time.Minute),
		"c-2": now,
		"c-3": now.Add(time.Hour),
	} {
		if err := d.Schedule(ctx, id, req, at); err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
	}

	n, err := d.RunOnce(ctx)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}
	got := del.delivered()
	if len(got) != 2 || got[0] != "c-1" || got[1] != "c-2" {
		t.Fatalf("expected c-1, c-2 in due order, got %v", got)
	}
	if store.Pending() != 1 {
		t.Fatalf("expected 1 pending item, got %d", store.Pending())
	}

	// Nothing new is due.
	if n, _ := d.RunOnce(ctx); n != 0 {
		t.Fatalf("expected no deliveries, got %d", n)
	}

	d.Now = func() time.Time { return now.Add(2 * time.Hour) }
	if n, _ := d.RunOnce(ctx); n != 1 {
		t.Fatalf("expected the future item once due, got %d", n)
	}
	if store.Pending() != 0 {
		t.Fatalf("expected empty store, got %d", store.Pending())
	}
}

func TestRunOnce_CancelledDeliveryIsReclaimedAfterLease(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	store := NewMemoryStore()
	del := &stubDeliverer{cancel: map[string]bool{"c-1": true}}
	d := newTestDispatcher(store, del, now)
	ctx := context.Background()

	if err := d.Schedule(ctx, "c-1", comms.Request{ClientID: "client-1"}, now); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if n, _ := d.RunOnce(ctx); n != 0 {
		t.Fatalf("expected no terminal delivery, got %d", n)
	}

	// Still leased.
	d.Now = func() time.Time { return now.Add(time.Minute) }
	if _, err := d.RunOnce(ctx); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(del.delivered()) != 1 {
		t.Fatalf("expected leased item to be skipped, got %v", del.delivered())
	}

	del.mu.Lock()
	del.cancel = nil
	del.mu.Unlock()
	d.Now = func() time.Time { return now.Add(11 * time.Minute) }
	if n, _ := d.RunOnce(ctx); n != 1 {
		t.Fatalf("expected reclaimed delivery, got %d", n)
	}
}

func TestSchedule_RejectsInvalidItem(t *testing.T) {
	d := newTestDispatcher(NewMemoryStore(), &stubDeliverer{}, time.Unix(1700000000, 0).UTC())
	err := d.Schedule(context.Background(), "", comms.Request{}, time.Unix(1700000000, 0))
	if !errors.Is(err, ErrInvalidItem) {
		t.Fatalf("expected ErrInvalidItem, got %v", err)
	}
}

func TestClaimDue_RespectsLimit(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	store := NewMemoryStore()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_ = store.Enqueue(ctx, Item{CommunicationID: id, DueAt: now})
	}
	items, err := store.ClaimDue(ctx, now, time.Minute, 2)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(items) != 2 || items[0].CommunicationID != "a" || items[1].CommunicationID != "b" {
		t.Fatalf("unexpected claim: %+v", items)
	}
	rest, _ := store.ClaimDue(ctx, now, time.Minute, 10)
	if len(rest) != 1 || rest[0].CommunicationID != "c" {
		t.Fatalf("expected only the unclaimed item, got %+v", rest)
	}
}

func TestRequestEnvelopeKeepsTypedPayload(t *testing.T) {
	req := comms.Request{
		PlanID:      "plan-1",
		ClientID:    "client-1",
		MessageType: comms.MessageWelcome,
		Urgency:     comms.UrgencyLow,
		Context:     map[string]string{comms.CtxEmail: "ana@example.com"},
		Payload:     comms.WelcomePayload{ClientName: "Ana", EventName: "Garden Party"},
	}
	b, err := encodeRequest(req)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	got, err := decodeRequest(b)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	p, ok := got.Payload.(comms.WelcomePayload)
	if !ok || p.EventName != "Garden Party" {
		t.Fatalf("expected welcome payload, got %#v", got.Payload)
	}
	if got.Context[comms.CtxEmail] != "ana@example.com" || got.ClientID != "client-1" {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestStartStop(t *testing.T) {
	d := newTestDispatcher(NewMemoryStore(), &stubDeliverer{}, time.Unix(1700000000, 0).UTC())
	if err := d.Start(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	d.Stop()
}
