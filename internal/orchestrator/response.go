package orchestrator

import (
	"context"
	"strconv"
	"strings"
	"unicode"
)

type Intent string

const (
	IntentConfirmation Intent = "confirmation"
	IntentRejection    Intent = "rejection"
	IntentSelection    Intent = "selection"
	IntentHelpRequest  Intent = "help_request"
	IntentUnknown      Intent = "unknown"
)

// Action is the workflow step a client reply maps to.
type Action string

const (
	ActionProceed Action = "proceed"
	ActionCancel  Action = "cancel"
	ActionSelect  Action = "select"
	ActionHelp    Action = "help"
	ActionReview  Action = "review"
)

// ParsedResponse is an inbound client reply reduced to an intent.
// Selection is the 1-based option number for IntentSelection.
type ParsedResponse struct {
	Intent    Intent `json:"intent"`
	Selection int    `json:"selection,omitempty"`
	Text      string `json:"text"`
}

var (
	confirmWords = map[string]bool{"yes": true, "y": true, "confirm": true, "confirmed": true, "ok": true, "okay": true, "approve": true, "approved": true, "sure": true}
	rejectWords  = map[string]bool{"no": true, "n": true, "cancel": true, "stop": true, "reject": true, "decline": true}
	helpWords    = map[string]bool{"help": true, "info": true}
)

// ParseIntent is a keyword matcher for short SMS/WhatsApp replies.
// Order: confirmation, rejection, selection, help.
func ParseIntent(text string) ParsedResponse {
	out := ParsedResponse{Intent: IntentUnknown, Text: text}
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return out
	}
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	hasAny := func(set map[string]bool) bool {
		for _, w := range words {
			if set[w] {
				return true
			}
		}
		return false
	}

	switch {
	case hasAny(confirmWords):
		out.Intent = IntentConfirmation
	case hasAny(rejectWords):
		out.Intent = IntentRejection
	case firstNumber(words) > 0 || strings.Contains(lower, "option"):
		out.Intent = IntentSelection
		out.Selection = firstNumber(words)
	case hasAny(helpWords) || strings.Contains(lower, "?"):
		out.Intent = IntentHelpRequest
	}
	return out
}

func firstNumber(words []string) int {
	for _, w := range words {
		if n, err := strconv.Atoi(w); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

// HandleClientResponse maps a parsed reply to the next workflow action.
func (o *Orchestrator) HandleClientResponse(ctx context.Context, planID, clientID string, parsed ParsedResponse) Action {
	var a Action
	switch parsed.Intent {
	case IntentConfirmation:
		a = ActionProceed
	case IntentRejection:
		a = ActionCancel
	case IntentSelection:
		a = ActionSelect
	case IntentHelpRequest:
		a = ActionHelp
	default:
		a = ActionReview
	}
	o.log().Info("client response handled",
		"plan_id", planID, "client_id", clientID, "intent", parsed.Intent, "selection", parsed.Selection, "action", a)
	return a
}
