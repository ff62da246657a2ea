package render

import (
	"strings"
	"testing"

	"comms-orchestrator/internal/comms"
)

func TestRender_AllTypesAllChannels(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	types := []comms.MessageType{
		comms.MessageWelcome, comms.MessageBudgetSummary, comms.MessageVendorOptions,
		comms.MessageSelectionConfirmation, comms.MessageBlueprintDelivery,
		comms.MessageErrorNotification, comms.MessageReminder,
	}
	for _, mt := range types {
		for _, ch := range comms.AllChannels() {
			c, err := r.Render(ch, comms.Request{ClientID: "c1", MessageType: mt})
			if err != nil {
				t.Fatalf("%s/%s: unexpected err: %v", mt, ch, err)
			}
			if c.Body == "" {
				t.Fatalf("%s/%s: empty body", mt, ch)
			}
			if strings.Contains(c.Body, "<no value>") {
				t.Fatalf("%s/%s: unresolved field in %q", mt, ch, c.Body)
			}
		}
	}
}

func TestRender_UsesTypedPayload(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	req := comms.Request{
		ClientID:    "c1",
		MessageType: comms.MessageSelectionConfirmation,
		Context:     map[string]string{"client_name": "Ana"},
		Payload:     comms.SelectionConfirmationPayload{SelectionLabel: "Garden Venue"},
	}

	sms, err := r.Render(comms.ChannelSMS, req)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if sms.Body != "Confirm Garden Venue? Reply YES to confirm or NO to cancel." {
		t.Fatalf("unexpected sms body %q", sms.Body)
	}

	email, err := r.Render(comms.ChannelEmail, req)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if email.Subject != "Please confirm your selection" {
		t.Fatalf("unexpected subject %q", email.Subject)
	}
	if !strings.Contains(email.Body, "Hi Ana,") || !strings.Contains(email.Body, "Garden Venue") {
		t.Fatalf("unexpected email body %q", email.Body)
	}
}

func TestRender_EscapesHTML(t *testing.T) {
	r, _ := New()
	req := comms.Request{
		ClientID:    "c1",
		MessageType: comms.MessageErrorNotification,
		Payload:     comms.ErrorNotificationPayload{ErrorSummary: "<script>x</script>"},
	}
	c, err := r.Render(comms.ChannelEmail, req)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if strings.Contains(c.Body, "<script>") {
		t.Fatalf("expected escaped html, got %q", c.Body)
	}
}

func TestRender_BlueprintAttachment(t *testing.T) {
	r, _ := New()
	req := comms.Request{
		ClientID:    "c1",
		MessageType: comms.MessageBlueprintDelivery,
		Payload:     comms.BlueprintDeliveryPayload{BlueprintURL: "https://x/b", AttachmentURL: "https://x/b.pdf"},
		Context:     map[string]string{"subject": "Final blueprint"},
	}
	c, err := r.Render(comms.ChannelEmail, req)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(c.Attachments) != 1 || c.Attachments[0].URL != "https://x/b.pdf" {
		t.Fatalf("unexpected attachments %+v", c.Attachments)
	}
	if c.Subject != "Final blueprint" {
		t.Fatalf("expected subject override, got %q", c.Subject)
	}
}
