package comms

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Payload is the typed content for a specific message type.
// Each variant renders itself into flat fields for templates.
type Payload interface {
	MessageType() MessageType
	Fields() map[string]string
}

type WelcomePayload struct {
	ClientName  string `json:"client_name"`
	EventName   string `json:"event_name"`
	PlannerName string `json:"planner_name,omitempty"`
	PortalURL   string `json:"portal_url,omitempty"`
}

func (WelcomePayload) MessageType() MessageType { return MessageWelcome }

func (p WelcomePayload) Fields() map[string]string {
	return map[string]string{
		"client_name":  p.ClientName,
		"event_name":   p.EventName,
		"planner_name": p.PlannerName,
		"portal_url":   p.PortalURL,
	}
}

type BudgetLine struct {
	Category    string `json:"category"`
	AmountMinor int64  `json:"amount_minor"`
}

type BudgetSummaryPayload struct {
	Currency   string       `json:"currency"`
	TotalMinor int64        `json:"total_minor"`
	Lines      []BudgetLine `json:"lines,omitempty"`
	ReviewURL  string       `json:"review_url,omitempty"`
}

func (BudgetSummaryPayload) MessageType() MessageType { return MessageBudgetSummary }

func (p BudgetSummaryPayload) Fields() map[string]string {
	lines := make([]string, 0, len(p.Lines))
	for _, l := range p.Lines {
		lines = append(lines, fmt.Sprintf("%s: %s", l.Category, formatMinor(l.AmountMinor, p.Currency)))
	}
	return map[string]string{
		"budget_total": formatMinor(p.TotalMinor, p.Currency),
		"budget_lines": strings.Join(lines, "\n"),
		"review_url":   p.ReviewURL,
	}
}

type VendorOption struct {
	Name       string `json:"name"`
	Category   string `json:"category"`
	PriceMinor int64  `json:"price_minor"`
}

type VendorOptionsPayload struct {
	Currency string         `json:"currency"`
	Options  []VendorOption `json:"options"`
	ReplyBy  string         `json:"reply_by,omitempty"`
}

func (VendorOptionsPayload) MessageType() MessageType { return MessageVendorOptions }

func (p VendorOptionsPayload) Fields() map[string]string {
	opts := make([]string, 0, len(p.Options))
	for i, o := range p.Options {
		opts = append(opts, fmt.Sprintf("%d. %s (%s) %s", i+1, o.Name, o.Category, formatMinor(o.PriceMinor, p.Currency)))
	}
	return map[string]string{
		"vendor_options": strings.Join(opts, "\n"),
		"option_count":   strconv.Itoa(len(p.Options)),
		"reply_by":       p.ReplyBy,
	}
}

type SelectionConfirmationPayload struct {
	SelectionLabel string `json:"selection_label"`
	VendorName     string `json:"vendor_name,omitempty"`
}

func (SelectionConfirmationPayload) MessageType() MessageType { return MessageSelectionConfirmation }

func (p SelectionConfirmationPayload) Fields() map[string]string {
	return map[string]string{
		"selection_label": p.SelectionLabel,
		"vendor_name":     p.VendorName,
	}
}

type BlueprintDeliveryPayload struct {
	BlueprintURL  string `json:"blueprint_url"`
	AttachmentURL string `json:"attachment_url,omitempty"`
	Version       int    `json:"version,omitempty"`
}

func (BlueprintDeliveryPayload) MessageType() MessageType { return MessageBlueprintDelivery }

func (p BlueprintDeliveryPayload) Fields() map[string]string {
	return map[string]string{
		"blueprint_url":     p.BlueprintURL,
		"attachment_url":    p.AttachmentURL,
		"blueprint_version": strconv.Itoa(p.Version),
	}
}

type ErrorNotificationPayload struct {
	ErrorSummary string `json:"error_summary"`
	SupportURL   string `json:"support_url,omitempty"`
}

func (ErrorNotificationPayload) MessageType() MessageType { return MessageErrorNotification }

func (p ErrorNotificationPayload) Fields() map[string]string {
	return map[string]string{
		"error_summary": p.ErrorSummary,
		"support_url":   p.SupportURL,
	}
}

type ReminderPayload struct {
	Subject string `json:"subject"`
	DueDate string `json:"due_date,omitempty"`
}

func (ReminderPayload) MessageType() MessageType { return MessageReminder }

func (p ReminderPayload) Fields() map[string]string {
	return map[string]string{
		"reminder_subject": p.Subject,
		"due_date":         p.DueDate,
	}
}

// DecodePayload decodes raw JSON into the payload variant for mt.
// A nil or empty raw value yields a nil payload.
func DecodePayload(mt MessageType, raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var (
		p   Payload
		err error
	)
	switch mt {
	case MessageWelcome:
		var v WelcomePayload
		err = json.Unmarshal(raw, &v)
		p = v
	case MessageBudgetSummary:
		var v BudgetSummaryPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case MessageVendorOptions:
		var v VendorOptionsPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case MessageSelectionConfirmation:
		var v SelectionConfirmationPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case MessageBlueprintDelivery:
		var v BlueprintDeliveryPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case MessageErrorNotification:
		var v ErrorNotificationPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case MessageReminder:
		var v ReminderPayload
		err = json.Unmarshal(raw, &v)
		p = v
	default:
		return nil, fmt.Errorf("%w: unknown message_type %q", ErrInvalidRequest, mt)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrInvalidRequest, err)
	}
	return p, nil
}

func formatMinor(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	s := fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
	if currency != "" {
		s += " " + currency
	}
	return s
}
