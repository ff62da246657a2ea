package comms

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestStatus_IsSuccessful(t *testing.T) {
	ok := []Status{StatusSent, StatusDelivered, StatusOpened, StatusClicked}
	for _, s := range ok {
		if !s.IsSuccessful() {
			t.Fatalf("expected %q successful", s)
		}
	}
	bad := []Status{StatusPending, StatusQueued, StatusFailed, StatusBounced}
	for _, s := range bad {
		if s.IsSuccessful() {
			t.Fatalf("expected %q unsuccessful", s)
		}
	}
}

func TestAvailableChannels_PreferredMinusOptOut(t *testing.T) {
	p := DefaultPreferences("c1")
	p.OptOutWhatsApp = true

	got := p.AvailableChannels()
	if len(got) != 1 || got[0] != ChannelEmail {
		t.Fatalf("expected [email], got %v", got)
	}
}

func TestAvailableChannels_FallsBackToNonOptedOut(t *testing.T) {
	p := Preferences{ClientID: "c1", PreferredChannels: []Channel{ChannelEmail}, OptOutEmail: true}

	got := p.AvailableChannels()
	if len(got) != 2 || got[0] != ChannelSMS || got[1] != ChannelWhatsApp {
		t.Fatalf("expected [sms whatsapp], got %v", got)
	}
}

func TestAvailableChannels_AllOptedOutStillReturnsEmail(t *testing.T) {
	p := Preferences{ClientID: "c1", OptOutEmail: true, OptOutSMS: true, OptOutWhatsApp: true}

	got := p.AvailableChannels()
	if len(got) != 1 || got[0] != ChannelEmail {
		t.Fatalf("expected [email], got %v", got)
	}
}

func TestOptOut_ReturnsCopy(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	p := DefaultPreferences("c1")
	q := p.OptOut(ChannelSMS, now)
	if p.OptOutSMS {
		t.Fatalf("original must not change")
	}
	if !q.OptOutSMS || !q.UpdatedAt.Equal(now) {
		t.Fatalf("unexpected copy: %+v", q)
	}
	if q.OptIn(ChannelSMS, now).OptOutSMS {
		t.Fatalf("expected opt-in to clear flag")
	}
}

func TestNewRequest_CopiesContextAndValidates(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	ctx := map[string]string{"email": "a@example.com"}

	req, err := NewRequest("p1", "c1", MessageWelcome, "", ctx, nil, now)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	ctx["email"] = "changed@example.com"
	if got, _ := req.Recipient(ChannelEmail); got != "a@example.com" {
		t.Fatalf("request context must be copied, got %q", got)
	}
	if req.Urgency != UrgencyNormal {
		t.Fatalf("expected default urgency normal, got %q", req.Urgency)
	}

	if _, err := NewRequest("p1", "", MessageWelcome, UrgencyLow, nil, nil, now); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
	if _, err := NewRequest("p1", "c1", MessageWelcome, UrgencyLow, nil, ReminderPayload{}, now); !errors.Is(err, ErrPayloadMismatch) {
		t.Fatalf("expected payload mismatch, got %v", err)
	}
}

func TestRecipient_FallbackKeys(t *testing.T) {
	req := Request{Context: map[string]string{"client_phone": "+15551234567", "client_email": "b@example.com"}}
	if got, ok := req.Recipient(ChannelSMS); !ok || got != "+15551234567" {
		t.Fatalf("unexpected sms recipient %q", got)
	}
	if got, ok := req.Recipient(ChannelEmail); !ok || got != "b@example.com" {
		t.Fatalf("unexpected email recipient %q", got)
	}
	if _, ok := (Request{}).Recipient(ChannelWhatsApp); ok {
		t.Fatalf("expected missing recipient")
	}
}

func TestRenderData_PayloadOverridesContext(t *testing.T) {
	req := Request{
		PlanID:      "p1",
		ClientID:    "c1",
		MessageType: MessageSelectionConfirmation,
		Context:     map[string]string{"selection_label": "old", "link": "https://x"},
		Payload:     SelectionConfirmationPayload{SelectionLabel: "Venue A"},
	}
	d := req.RenderData()
	if d["selection_label"] != "Venue A" || d["link"] != "https://x" || d["plan_id"] != "p1" {
		t.Fatalf("unexpected render data: %v", d)
	}
}

func TestDecodePayload(t *testing.T) {
	p, err := DecodePayload(MessageBudgetSummary, json.RawMessage(`{"currency":"USD","total_minor":123456,"lines":[{"category":"venue","amount_minor":100000}]}`))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	f := p.Fields()
	if f["budget_total"] != "1234.56 USD" {
		t.Fatalf("unexpected total %q", f["budget_total"])
	}
	if f["budget_lines"] != "venue: 1000.00 USD" {
		t.Fatalf("unexpected lines %q", f["budget_lines"])
	}

	if p, err := DecodePayload(MessageWelcome, nil); err != nil || p != nil {
		t.Fatalf("expected nil payload, got %v %v", p, err)
	}
	if _, err := DecodePayload(MessageWelcome, json.RawMessage(`{"client_name":1}`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestRecordApply_SuccessClearsEarlierFailure(t *testing.T) {
	at := time.Unix(1700000000, 0).UTC()
	rec := Record{ID: "c1", Status: StatusQueued}
	rec = rec.Apply(StatusUpdate{
		Status:        StatusFailed,
		Error:         "delivery cancelled: context canceled",
		ErrorCategory: CategoryTransient,
		Metadata:      map[string]string{MetaCancelled: "true", MetaRecipient: "ana@example.com"},
		At:            at,
	})
	if rec.Error == "" || rec.ErrorCategory != CategoryTransient {
		t.Fatalf("expected failure recorded, got %+v", rec)
	}

	rec = rec.Apply(StatusUpdate{Status: StatusSent, Channel: ChannelEmail, Attempts: 1, At: at.Add(time.Minute)})
	if rec.Status != StatusSent || rec.Error != "" || rec.ErrorCategory != "" {
		t.Fatalf("expected clean sent record, got %+v", rec)
	}
	if _, ok := rec.Metadata[MetaCancelled]; ok {
		t.Fatalf("expected cancelled marker dropped, got %v", rec.Metadata)
	}
	if rec.Metadata[MetaRecipient] != "ana@example.com" || rec.SentAt == nil {
		t.Fatalf("unexpected record: %+v", rec)
	}

	rec = rec.Apply(StatusUpdate{Status: StatusFailed, Error: "provider error 30005", At: at.Add(2 * time.Minute)})
	if rec.Error != "provider error 30005" {
		t.Fatalf("expected later failure recorded, got %+v", rec)
	}
}
