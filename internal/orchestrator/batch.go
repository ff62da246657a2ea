package orchestrator

import (
	"context"
	"time"

	"comms-orchestrator/internal/comms"

	"golang.org/x/sync/errgroup"
)

// ProcessBatch runs reqs concurrently with at most limit in flight and
// returns results in input order. Each request is independent; attempts
// within one request stay sequential.
func (o *Orchestrator) ProcessBatch(ctx context.Context, reqs []comms.Request, limit int) []comms.Result {
	if limit <= 0 {
		limit = 4
	}
	results := make([]comms.Result, len(reqs))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			results[i] = o.ProcessRequest(ctx, req, nil)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Plan is a dry run of the strategy for a request.
type Plan struct {
	Strategy    comms.Strategy    `json:"strategy"`
	Preferences comms.Preferences `json:"preferences"`
	QuietHours  bool              `json:"quiet_hours"`
	ShouldBatch bool              `json:"should_batch"`
	Scheduled   bool              `json:"scheduled"`
}

// Plan computes what ProcessRequest would decide for req without sending
// or persisting anything.
func (o *Orchestrator) Plan(ctx context.Context, req comms.Request, prefs *comms.Preferences) Plan {
	p := o.resolvePreferences(ctx, req.ClientID, prefs)
	now := o.now()
	s, batched := o.batchWindow(ctx, req, o.Strategy.DetermineForRequest(req, p, now), now)
	return Plan{
		Strategy:    s,
		Preferences: p,
		QuietHours:  o.Strategy.IsQuietHours(p, now),
		ShouldBatch: batched,
		Scheduled:   o.Scheduler != nil && s.SendTime.After(now),
	}
}

// batchWindow pushes s to the end of the batch window when req can wait.
// Batching needs a Scheduler to hold the message.
func (o *Orchestrator) batchWindow(ctx context.Context, req comms.Request, s comms.Strategy, now time.Time) (comms.Strategy, bool) {
	if !o.cfg.Batching || o.Scheduler == nil || !o.shouldBatch(ctx, req, now) {
		return s, false
	}
	if at := now.Add(o.cfg.BatchWindow).UTC(); at.After(s.SendTime) {
		s.SendTime = at
	}
	return s, true
}
