package alerts

import (
	"context"
	"strings"
	"testing"
	"time"

	"comms-orchestrator/internal/comms"
)

func TestService_AppendRequiresType(t *testing.T) {
	svc := NewService(NewMemoryRepo(), nil)
	if err := svc.Append(context.Background(), Event{Message: "x"}); err == nil {
		t.Fatalf("expected error")
	}
	if err := NewService(nil, nil).Append(context.Background(), Event{Type: EventAuthFailure}); err == nil {
		t.Fatalf("expected error without repository")
	}
}

func TestService_NotifyCriticalFailure(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)
	svc.clock = func() time.Time { return time.Unix(1700000000, 0) }

	req := comms.Request{PlanID: "p1", ClientID: "c1", MessageType: comms.MessageErrorNotification, Urgency: comms.UrgencyCritical}
	res := comms.FailedResult("id1", comms.ChannelSMS, "all channels failed", comms.CategoryTransient)
	if err := svc.NotifyCriticalFailure(context.Background(), req, res); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event")
	}
	e := evs[0]
	if e.Type != EventCriticalFailure || e.CommunicationID != "id1" || e.ClientID != "c1" {
		t.Fatalf("unexpected event: %+v", e)
	}
	if e.ID == "" || !e.CreatedAt.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("expected id and timestamp, got %+v", e)
	}
	if !strings.Contains(e.Metadata, `"urgency":"critical"`) {
		t.Fatalf("expected metadata to carry urgency, got %s", e.Metadata)
	}
}

func TestService_NotifyAuthFailure(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)
	if err := svc.NotifyAuthFailure(context.Background(), comms.ChannelEmail, "535 invalid credentials"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	evs := repo.Events()
	if len(evs) != 1 || evs[0].Type != EventAuthFailure || evs[0].Channel != "email" {
		t.Fatalf("unexpected events: %+v", evs)
	}
}
