package channels

import (
	"strings"
	"testing"
)

func TestRenderMessagingTwiML_Reply(t *testing.T) {
	out, err := RenderMessagingTwiML("Reply 1 or 2 & we'll book it")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !strings.Contains(out, "<Message>Reply 1 or 2 &amp; we&#39;ll book it</Message>") {
		t.Fatalf("expected escaped message verb, got %s", out)
	}
	if !strings.HasPrefix(out, "<?xml") {
		t.Fatalf("expected xml header, got %s", out)
	}
}

func TestRenderMessagingTwiML_Empty(t *testing.T) {
	out, err := RenderMessagingTwiML("   ")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if strings.Contains(out, "<Message") || !strings.Contains(out, "<Response>") {
		t.Fatalf("expected empty response, got %s", out)
	}
}
