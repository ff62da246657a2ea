package reporting

import (
	"context"
	"errors"
	"time"

	"comms-orchestrator/internal/comms"
	"comms-orchestrator/internal/history"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// IMPORTANT:
// - Reads must be scoped to a client or plan; the service never asks for
//   an unscoped listing.
type Repository interface {
	ListCommunications(ctx context.Context, f history.Filter) ([]comms.Record, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func validRange(r TimeRange) bool {
	return !r.From.IsZero() && !r.To.IsZero() && r.To.After(r.From)
}

func (s *Service) list(ctx context.Context, clientID, planID string, r TimeRange) ([]comms.Record, error) {
	if clientID == "" && planID == "" {
		return nil, ErrInvalidRequest
	}
	if !validRange(r) {
		return nil, ErrInvalidRequest
	}
	if s.repo == nil {
		return nil, errors.New("reporting: repository not configured")
	}
	return s.repo.ListCommunications(ctx, history.Filter{ClientID: clientID, PlanID: planID, From: r.From, To: r.To})
}

func (s *Service) DeliverySummary(ctx context.Context, req DeliverySummaryRequest) (DeliverySummary, error) {
	rows, err := s.list(ctx, req.ClientID, req.PlanID, req.Range)
	if err != nil {
		return DeliverySummary{}, err
	}

	out := DeliverySummary{
		ClientID:        req.ClientID,
		PlanID:          req.PlanID,
		ByStatus:        map[comms.Status]int{},
		ByChannel:       map[comms.Channel]int{},
		ByErrorCategory: map[comms.ErrorCategory]int{},
	}
	var attempts, finished int
	for _, r := range rows {
		out.Total++
		out.ByStatus[r.Status]++
		if r.Channel != "" {
			out.ByChannel[r.Channel]++
		}
		switch {
		case r.Status.IsSuccessful():
			out.Succeeded++
		case r.Status == comms.StatusFailed || r.Status == comms.StatusBounced:
			out.Failed++
			if r.ErrorCategory != "" {
				out.ByErrorCategory[r.ErrorCategory]++
			}
		default:
			// pending, queued
			out.Pending++
			continue
		}
		finished++
		attempts += r.Attempts
		if r.Metadata[comms.MetaFallbackUsed] == "true" {
			out.FallbacksUsed++
		}
		if r.Metadata[comms.MetaAllChannelsFailed] == "true" {
			out.AllChannelsFailed++
		}
	}
	if finished > 0 {
		out.SuccessRate = float64(out.Succeeded) / float64(finished)
		out.AverageAttempts = float64(attempts) / float64(finished)
	}
	return out, nil
}

func (s *Service) EngagementMetrics(ctx context.Context, req EngagementRequest) (EngagementMetrics, error) {
	if req.Channel != "" && !req.Channel.Valid() {
		return EngagementMetrics{}, ErrInvalidRequest
	}
	rows, err := s.list(ctx, req.ClientID, req.PlanID, req.Range)
	if err != nil {
		return EngagementMetrics{}, err
	}

	out := EngagementMetrics{ClientID: req.ClientID, PlanID: req.PlanID, Channel: req.Channel}
	for _, r := range rows {
		if req.Channel != "" && r.Channel != req.Channel {
			continue
		}
		// Statuses only advance, so a clicked message was also sent,
		// delivered and opened.
		switch r.Status {
		case comms.StatusClicked:
			out.Clicked++
			fallthrough
		case comms.StatusOpened:
			out.Opened++
			fallthrough
		case comms.StatusDelivered:
			out.Delivered++
			fallthrough
		case comms.StatusSent:
			out.Sent++
		case comms.StatusBounced:
			out.Bounced++
			out.Sent++
		}
	}
	if out.Sent > 0 {
		out.DeliveryRate = float64(out.Delivered) / float64(out.Sent)
		out.OpenRate = float64(out.Opened) / float64(out.Sent)
		out.ClickRate = float64(out.Clicked) / float64(out.Sent)
	}
	return out, nil
}

// LastDays is a convenience range ending at now.
func LastDays(now time.Time, days int) TimeRange {
	return TimeRange{From: now.AddDate(0, 0, -days), To: now}
}
