package reporting

import (
	"time"

	"comms-orchestrator/internal/comms"
)

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// DeliverySummaryRequest requests aggregated delivery outcomes.
// At least one of ClientID or PlanID is required.
type DeliverySummaryRequest struct {
	ClientID string    `json:"client_id,omitempty"`
	PlanID   string    `json:"plan_id,omitempty"`
	Range    TimeRange `json:"range"`
}

type DeliverySummary struct {
	ClientID string `json:"client_id,omitempty"`
	PlanID   string `json:"plan_id,omitempty"`

	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`

	ByStatus        map[comms.Status]int        `json:"by_status"`
	ByChannel       map[comms.Channel]int       `json:"by_channel"`
	ByErrorCategory map[comms.ErrorCategory]int `json:"by_error_category"`

	FallbacksUsed     int `json:"fallbacks_used"`
	AllChannelsFailed int `json:"all_channels_failed"`

	SuccessRate     float64 `json:"success_rate"`
	AverageAttempts float64 `json:"average_attempts"`
}

// EngagementRequest scopes engagement metrics the same way as
// DeliverySummaryRequest, optionally narrowed to one channel.
type EngagementRequest struct {
	ClientID string        `json:"client_id,omitempty"`
	PlanID   string        `json:"plan_id,omitempty"`
	Channel  comms.Channel `json:"channel,omitempty"`
	Range    TimeRange     `json:"range"`
}

// EngagementMetrics follows sent messages through delivery receipts to
// opens and clicks. Rates are relative to Sent.
type EngagementMetrics struct {
	ClientID string        `json:"client_id,omitempty"`
	PlanID   string        `json:"plan_id,omitempty"`
	Channel  comms.Channel `json:"channel,omitempty"`

	Sent      int `json:"sent"`
	Delivered int `json:"delivered"`
	Opened    int `json:"opened"`
	Clicked   int `json:"clicked"`
	Bounced   int `json:"bounced"`

	DeliveryRate float64 `json:"delivery_rate"`
	OpenRate     float64 `json:"open_rate"`
	ClickRate    float64 `json:"click_rate"`
}
