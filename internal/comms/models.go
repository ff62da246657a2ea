package comms

import (
	"errors"
	"strings"
	"time"
)

// Channel is a delivery mechanism for a communication.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// AllChannels returns every supported channel in canonical order.
func AllChannels() []Channel {
	return []Channel{ChannelEmail, ChannelSMS, ChannelWhatsApp}
}

func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelWhatsApp:
		return true
	default:
		return false
	}
}

// ParseChannel normalizes user input ("Email", " sms ") into a Channel.
func ParseChannel(s string) (Channel, error) {
	c := Channel(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", errors.New("comms: unknown channel " + s)
	}
	return c, nil
}

type MessageType string

const (
	MessageWelcome               MessageType = "welcome"
	MessageBudgetSummary         MessageType = "budget_summary"
	MessageVendorOptions         MessageType = "vendor_options"
	MessageSelectionConfirmation MessageType = "selection_confirmation"
	MessageBlueprintDelivery     MessageType = "blueprint_delivery"
	MessageErrorNotification     MessageType = "error_notification"
	MessageReminder              MessageType = "reminder"
)

func (m MessageType) Valid() bool {
	switch m {
	case MessageWelcome, MessageBudgetSummary, MessageVendorOptions, MessageSelectionConfirmation,
		MessageBlueprintDelivery, MessageErrorNotification, MessageReminder:
		return true
	default:
		return false
	}
}

// Urgency is the caller-declared importance of a request.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyHigh     Urgency = "high"
	UrgencyNormal   Urgency = "normal"
	UrgencyLow      Urgency = "low"
)

func (u Urgency) Valid() bool {
	switch u {
	case UrgencyCritical, UrgencyHigh, UrgencyNormal, UrgencyLow:
		return true
	default:
		return false
	}
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusQueued    Status = "queued"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusOpened    Status = "opened"
	StatusClicked   Status = "clicked"
	StatusFailed    Status = "failed"
	StatusBounced   Status = "bounced"
)

// IsSuccessful reports whether the status counts as a successful delivery.
func (s Status) IsSuccessful() bool {
	switch s {
	case StatusSent, StatusDelivered, StatusOpened, StatusClicked:
		return true
	default:
		return false
	}
}

// Strategy is the computed delivery plan for one request.
// FallbackChannels never contains PrimaryChannel. SendTime is UTC.
type Strategy struct {
	PrimaryChannel   Channel   `json:"primary_channel"`
	FallbackChannels []Channel `json:"fallback_channels"`
	SendTime         time.Time `json:"send_time"`
	Priority         int       `json:"priority"`
}

// Channels returns the primary channel followed by the fallbacks.
func (s Strategy) Channels() []Channel {
	out := make([]Channel, 0, 1+len(s.FallbackChannels))
	out = append(out, s.PrimaryChannel)
	return append(out, s.FallbackChannels...)
}

// Metadata keys written on results.
const (
	MetaFallbackUsed       = "fallback_used"
	MetaPrimaryError       = "primary_error"
	MetaPrimaryChannel     = "primary_channel"
	MetaAllChannelsFailed  = "all_channels_failed"
	MetaAttemptedFallbacks = "attempted_fallbacks"
	MetaProviderMessageID  = "provider_message_id"
	MetaScheduledFor       = "scheduled_for"
	MetaErrorCategory      = "error_category"
	MetaCancelled          = "cancelled"
	MetaPriority           = "strategy_priority"
	MetaRecipient          = "recipient"
	MetaProviderErrorCode  = "provider_error_code"
	MetaProviderHTTPStatus = "provider_http_status"
	MetaClientReply        = "client_reply"
	MetaReplyIntent        = "reply_intent"
	MetaReplyAction        = "reply_action"
	MetaReplySelection     = "reply_selection"
)

// Result is the terminal outcome of processing one request.
// Once returned it is not mutated; later engagement events are recorded as
// status transitions in the history store.
type Result struct {
	CommunicationID string            `json:"communication_id"`
	Status          Status            `json:"status"`
	Channel         Channel           `json:"channel"`
	SentAt          *time.Time        `json:"sent_at,omitempty"`
	DeliveredAt     *time.Time        `json:"delivered_at,omitempty"`
	Error           string            `json:"error,omitempty"`
	ErrorCategory   ErrorCategory     `json:"error_category,omitempty"`
	Attempts        int               `json:"attempts"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

func (r Result) Success() bool { return r.Status.IsSuccessful() }

// WithMeta returns a copy of r with k=v added to its metadata.
func (r Result) WithMeta(k, v string) Result {
	md := make(map[string]string, len(r.Metadata)+1)
	for mk, mv := range r.Metadata {
		md[mk] = mv
	}
	md[k] = v
	r.Metadata = md
	return r
}

// FailedResult builds a failed result on the given channel.
func FailedResult(id string, ch Channel, msg string, cat ErrorCategory) Result {
	return Result{CommunicationID: id, Status: StatusFailed, Channel: ch, Error: msg, ErrorCategory: cat}
}

// Attachment is a file delivered alongside a message. Senders that cannot
// carry binary content fall back to URL.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	URL         string `json:"url,omitempty"`
	Data        []byte `json:"-"`
}
