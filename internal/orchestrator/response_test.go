package orchestrator

import (
	"context"
	"testing"
)

func TestParseIntent(t *testing.T) {
	cases := []struct {
		text      string
		intent    Intent
		selection int
	}{
		{"YES", IntentConfirmation, 0},
		{"  ok, sounds good!", IntentConfirmation, 0},
		{"No thanks", IntentRejection, 0},
		{"please cancel", IntentRejection, 0},
		{"2", IntentSelection, 2},
		{"I'll take option 3", IntentSelection, 3},
		{"the first option", IntentSelection, 0},
		{"help", IntentHelpRequest, 0},
		{"what does this cost?", IntentHelpRequest, 0},
		{"", IntentUnknown, 0},
		{"lovely weather", IntentUnknown, 0},
	}
	for _, tc := range cases {
		got := ParseIntent(tc.text)
		if got.Intent != tc.intent || got.Selection != tc.selection {
			t.Fatalf("%q: expected %s/%d, got %s/%d", tc.text, tc.intent, tc.selection, got.Intent, got.Selection)
		}
		if got.Text != tc.text {
			t.Fatalf("expected original text kept, got %q", got.Text)
		}
	}
}

func TestHandleClientResponse(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	cases := map[Intent]Action{
		IntentConfirmation: ActionProceed,
		IntentRejection:    ActionCancel,
		IntentSelection:    ActionSelect,
		IntentHelpRequest:  ActionHelp,
		IntentUnknown:      ActionReview,
	}
	for intent, want := range cases {
		got := o.HandleClientResponse(context.Background(), "plan-1", "client-1", ParsedResponse{Intent: intent})
		if got != want {
			t.Fatalf("%s: expected %s, got %s", intent, want, got)
		}
	}
}
