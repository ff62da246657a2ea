package orchestrator

import (
	"strconv"
	"strings"

	"comms-orchestrator/internal/comms"
)

// Failure is what an attempt reports when it does not succeed.
// Code is the provider or transport code when one is known (HTTP status,
// SMTP reply code, provider error number). HTTPStatus is consulted when
// Code is unknown.
type Failure struct {
	Message    string
	Code       string
	HTTPStatus string
}

// ErrorCategorizer maps a failed attempt to the category that drives retry
// and alert policy. Implementations must be pure.
type ErrorCategorizer interface {
	Categorize(f Failure) comms.ErrorCategory
}

var (
	authKeywords         = []string{"auth", "unauthorized", "forbidden", "invalid credentials", "access denied"}
	rateLimitKeywords    = []string{"rate limit", "quota", "too many requests", "throttle"}
	permanentKeywords    = []string{"invalid email", "invalid phone", "bounced", "unsubscribed", "blocked", "blacklisted", "does not exist"}
	invalidInputKeywords = []string{"validation", "invalid format", "malformed", "missing required"}
)

// KeywordCategorizer classifies by case-insensitive keywords in the message.
// Checks run in order: auth, rate limit, permanent, invalid input; anything
// else is transient.
type KeywordCategorizer struct{}

func (KeywordCategorizer) Categorize(f Failure) comms.ErrorCategory {
	return CategorizeMessage(f.Message)
}

// CategorizeMessage is the keyword classification on its own.
func CategorizeMessage(msg string) comms.ErrorCategory {
	m := strings.ToLower(msg)
	switch {
	case containsAny(m, authKeywords):
		return comms.CategoryAuthFailure
	case containsAny(m, rateLimitKeywords):
		return comms.CategoryRateLimit
	case containsAny(m, permanentKeywords):
		return comms.CategoryPermanent
	case containsAny(m, invalidInputKeywords):
		return comms.CategoryInvalidInput
	default:
		return comms.CategoryTransient
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// CodeCategorizer maps structured codes from the channel adapters and falls
// back to Fallback (keywords by default) for unknown or missing codes.
type CodeCategorizer struct {
	Fallback ErrorCategorizer
}

// Twilio REST error numbers we classify explicitly.
var twilioCodes = map[int]comms.ErrorCategory{
	20003: comms.CategoryAuthFailure,  // authentication failed
	20005: comms.CategoryAuthFailure,  // account not active
	20429: comms.CategoryRateLimit,    // too many requests
	14107: comms.CategoryRateLimit,    // message rate exceeded
	21211: comms.CategoryPermanent,    // invalid 'To' number
	21408: comms.CategoryPermanent,    // region not enabled
	21610: comms.CategoryPermanent,    // recipient replied STOP
	21612: comms.CategoryPermanent,    // unreachable 'To'
	21614: comms.CategoryPermanent,    // not a mobile number
	63003: comms.CategoryPermanent,    // whatsapp: invalid destination
	21602: comms.CategoryInvalidInput, // body required
	21604: comms.CategoryInvalidInput, // 'To' required
	21617: comms.CategoryInvalidInput, // body too long
	30001: comms.CategoryRateLimit,    // queue overflow
	30003: comms.CategoryTransient,    // handset unreachable
	30005: comms.CategoryPermanent,    // unknown destination
	30006: comms.CategoryPermanent,    // landline or unreachable carrier
}

func (c CodeCategorizer) Categorize(f Failure) comms.ErrorCategory {
	if cat, ok := categorizeCode(f.Code); ok {
		return cat
	}
	if cat, ok := categorizeCode(f.HTTPStatus); ok {
		return cat
	}
	if c.Fallback != nil {
		return c.Fallback.Categorize(f)
	}
	return CategorizeMessage(f.Message)
}

func categorizeCode(code string) (comms.ErrorCategory, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil || n <= 0 {
		return "", false
	}
	if cat, ok := twilioCodes[n]; ok {
		return cat, true
	}
	switch n {
	// HTTP statuses.
	case 401, 403:
		return comms.CategoryAuthFailure, true
	case 429:
		return comms.CategoryRateLimit, true
	case 400, 422:
		return comms.CategoryInvalidInput, true
	case 404, 410:
		return comms.CategoryPermanent, true
	// SMTP replies.
	case 530, 534, 535:
		return comms.CategoryAuthFailure, true
	case 501, 555:
		return comms.CategoryInvalidInput, true
	case 550, 551, 552, 553, 554:
		return comms.CategoryPermanent, true
	case 421, 450, 451, 452:
		return comms.CategoryTransient, true
	}
	return "", false
}
