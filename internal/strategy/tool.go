package strategy

import (
	"log/slog"
	"time"

	"comms-orchestrator/internal/comms"
)

// Tool computes a delivery strategy for a request.
//
// Order of evaluation:
//  1. Available channels (preferences minus opt-outs, never empty)
//  2. Urgency base ordering
//  3. Message-type re-rank
//  4. Send time (quiet hours, business hours)
//  5. Priority
//
// Returns a strategy only. No side effects (no I/O, inputs are not mutated).
type Tool struct {
	cfg Config
	log *slog.Logger
}

// Config holds the scheduling constants. Zero values fall back to defaults.
type Config struct {
	BusinessStart string
	BusinessEnd   string

	HighUrgencyDelay time.Duration

	// BatchPendingThreshold is the pending count at which normal messages batch.
	BatchPendingThreshold int
	// FreshConversationAfter disables batching once the last send is older than this.
	FreshConversationAfter time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	if out.BusinessStart == "" {
		out.BusinessStart = "09:00"
	}
	if out.BusinessEnd == "" {
		out.BusinessEnd = "18:00"
	}
	if out.HighUrgencyDelay <= 0 {
		out.HighUrgencyDelay = 5 * time.Minute
	}
	if out.BatchPendingThreshold <= 0 {
		out.BatchPendingThreshold = 3
	}
	if out.FreshConversationAfter <= 0 {
		out.FreshConversationAfter = 24 * time.Hour
	}
	return out
}

func New(cfg Config, log *slog.Logger) *Tool {
	if log == nil {
		log = slog.Default()
	}
	return &Tool{cfg: cfg.withDefaults(), log: log.With("component", "strategy")}
}

var baseOrder = map[comms.Urgency][]comms.Channel{
	comms.UrgencyCritical: {comms.ChannelSMS, comms.ChannelWhatsApp, comms.ChannelEmail},
	comms.UrgencyHigh:     {comms.ChannelWhatsApp, comms.ChannelEmail, comms.ChannelSMS},
	comms.UrgencyNormal:   {comms.ChannelEmail, comms.ChannelWhatsApp, comms.ChannelSMS},
	comms.UrgencyLow:      {comms.ChannelEmail, comms.ChannelWhatsApp, comms.ChannelSMS},
}

func isDetailed(mt comms.MessageType) bool {
	switch mt {
	case comms.MessageBudgetSummary, comms.MessageVendorOptions, comms.MessageBlueprintDelivery:
		return true
	}
	return false
}

func isQuickConfirmation(mt comms.MessageType) bool {
	return mt == comms.MessageSelectionConfirmation || mt == comms.MessageReminder
}

// DetermineStrategy picks primary/fallback channels, send time and priority.
func (t *Tool) DetermineStrategy(mt comms.MessageType, urgency comms.Urgency, prefs comms.Preferences, now time.Time) comms.Strategy {
	ordered := t.orderChannels(mt, urgency, prefs)
	return comms.Strategy{
		PrimaryChannel:   ordered[0],
		FallbackChannels: ordered[1:],
		SendTime:         t.CalculateOptimalSendTime(urgency, prefs, now),
		Priority:         calculatePriority(mt, urgency),
	}
}

// DetermineForRequest is DetermineStrategy plus the request's explicit channel
// preference, which is promoted to primary when the client can receive on it.
func (t *Tool) DetermineForRequest(req comms.Request, prefs comms.Preferences, now time.Time) comms.Strategy {
	s := t.DetermineStrategy(req.MessageType, req.Urgency, prefs, now)
	if req.PreferredChannel == nil || *req.PreferredChannel == s.PrimaryChannel {
		return s
	}
	want := *req.PreferredChannel
	all := s.Channels()
	idx := -1
	for i, ch := range all {
		if ch == want {
			idx = i
			break
		}
	}
	if idx < 0 {
		t.log.Debug("preferred channel unavailable", "client_id", req.ClientID, "channel", want)
		return s
	}
	reordered := make([]comms.Channel, 0, len(all))
	reordered = append(reordered, want)
	reordered = append(reordered, all[:idx]...)
	reordered = append(reordered, all[idx+1:]...)
	s.PrimaryChannel = reordered[0]
	s.FallbackChannels = reordered[1:]
	return s
}

func (t *Tool) orderChannels(mt comms.MessageType, urgency comms.Urgency, prefs comms.Preferences) []comms.Channel {
	available := prefs.AvailableChannels()

	base, ok := baseOrder[urgency]
	if !ok {
		base = baseOrder[comms.UrgencyNormal]
	}
	priority := append([]comms.Channel(nil), base...)
	switch {
	case isDetailed(mt):
		priority = moveToFront(priority, comms.ChannelEmail)
	case isQuickConfirmation(mt):
		if contains(priority, comms.ChannelSMS) {
			priority = moveToFront(priority, comms.ChannelSMS)
		} else {
			priority = moveToFront(priority, comms.ChannelWhatsApp)
		}
	}

	preferred := map[comms.Channel]bool{}
	for _, ch := range prefs.PreferredChannels {
		preferred[ch] = true
	}
	avail := map[comms.Channel]bool{}
	for _, ch := range available {
		avail[ch] = true
	}

	out := make([]comms.Channel, 0, len(available))
	for _, ch := range priority {
		if avail[ch] && preferred[ch] {
			out = append(out, ch)
		}
	}
	for _, ch := range priority {
		if avail[ch] && !preferred[ch] {
			out = append(out, ch)
		}
	}
	return out
}

func calculatePriority(mt comms.MessageType, urgency comms.Urgency) int {
	var score int
	switch urgency {
	case comms.UrgencyCritical:
		score = 10
	case comms.UrgencyHigh:
		score = 7
	case comms.UrgencyNormal:
		score = 5
	case comms.UrgencyLow:
		score = 2
	}
	switch mt {
	case comms.MessageErrorNotification:
		score += 2
	case comms.MessageBlueprintDelivery:
		score++
	}
	if score > 10 {
		score = 10
	}
	if score < 0 {
		score = 0
	}
	return score
}

// ShouldBatch decides whether a message can wait to be grouped with others.
func (t *Tool) ShouldBatch(urgency comms.Urgency, pendingCount int, lastSentAt *time.Time, now time.Time) bool {
	if urgency == comms.UrgencyCritical || urgency == comms.UrgencyHigh {
		return false
	}
	if lastSentAt != nil && now.Sub(*lastSentAt) > t.cfg.FreshConversationAfter {
		return false
	}
	if urgency == comms.UrgencyLow {
		return true
	}
	return pendingCount >= t.cfg.BatchPendingThreshold
}

func moveToFront(in []comms.Channel, ch comms.Channel) []comms.Channel {
	out := make([]comms.Channel, 0, len(in))
	out = append(out, ch)
	for _, c := range in {
		if c != ch {
			out = append(out, c)
		}
	}
	return out
}

func contains(in []comms.Channel, ch comms.Channel) bool {
	for _, c := range in {
		if c == ch {
			return true
		}
	}
	return false
}
