package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"comms-orchestrator/internal/channels"
	"comms-orchestrator/internal/comms"
	"comms-orchestrator/internal/events"
	"comms-orchestrator/internal/ratelimit"
	"comms-orchestrator/internal/render"
	"comms-orchestrator/internal/strategy"

	"github.com/google/uuid"
)

// Repository is the slice of the history store the orchestrator writes to.
// Implementations must be safe for concurrent use.
type Repository interface {
	SavePendingCommunication(ctx context.Context, rec comms.Record) (string, error)
	UpdateStatus(ctx context.Context, id string, u comms.StatusUpdate) (bool, error)
}

// HistoryReader feeds the batching decision.
type HistoryReader interface {
	CountPending(ctx context.Context, clientID string) (int, error)
	LastSentAt(ctx context.Context, clientID string) (*time.Time, error)
}

type PreferencesSource interface {
	GetClientPreferences(ctx context.Context, clientID string) (*comms.Preferences, error)
}

// Alerter raises out-of-band alerts. Errors are ignored.
type Alerter interface {
	NotifyCriticalFailure(ctx context.Context, req comms.Request, res comms.Result) error
	NotifyAuthFailure(ctx context.Context, ch comms.Channel, msg string) error
}

// Scheduler takes ownership of a future-dated send.
type Scheduler interface {
	Schedule(ctx context.Context, communicationID string, req comms.Request, at time.Time) error
}

type Renderer interface {
	Render(ch comms.Channel, req comms.Request) (render.Content, error)
}

// Orchestrator drives a request to a terminal Result with retries,
// categorized error handling and channel fallback.
//
// It holds configuration and collaborator handles only; every field is
// read-only after construction, so one Orchestrator serves concurrent
// requests. Optional collaborators may be nil.
type Orchestrator struct {
	cfg Config

	Strategy *strategy.Tool
	Senders  channels.Registry
	Renderer Renderer

	Repo        Repository
	History     HistoryReader
	Prefs       PreferencesSource
	Alerts      Alerter
	Scheduler   Scheduler
	Categorizer ErrorCategorizer
	Limiter     ratelimit.Limiter
	Events      events.Publisher
	Metrics     *Metrics
	Log         *slog.Logger

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	// RNG drives jitter. nil uses the global source.
	RNG   *rand.Rand
	rngMu sync.Mutex
}

func New(cfg Config, tool *strategy.Tool, senders channels.Registry, renderer Renderer, log *slog.Logger) *Orchestrator {
	cfg.ApplyDefaults()
	if tool == nil {
		tool = strategy.New(strategy.Config{}, log)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		cfg:         cfg,
		Strategy:    tool,
		Senders:     senders,
		Renderer:    renderer,
		Categorizer: CodeCategorizer{Fallback: KeywordCategorizer{}},
		Log:         log.With("component", "orchestrator"),
		Now:         time.Now,
		Sleep:       sleepContext,
	}
}

func (o *Orchestrator) Config() Config { return o.cfg }

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Orchestrator) log() *slog.Logger {
	if o.Log != nil {
		return o.Log
	}
	return slog.Default()
}

func (o *Orchestrator) randFloat() float64 {
	if o.RNG == nil {
		return rand.Float64()
	}
	o.rngMu.Lock()
	defer o.rngMu.Unlock()
	return o.RNG.Float64()
}

// ProcessRequest is the single entry point for a new request. It always
// returns a Result; panics anywhere in the pipeline become a failed Result.
//
// Future-dated sends are persisted and handed to the Scheduler, returning a
// queued Result. Without a Scheduler they are sent immediately.
func (o *Orchestrator) ProcessRequest(ctx context.Context, req comms.Request, prefs *comms.Preferences) (res comms.Result) {
	start := o.now()
	var (
		id      string
		primary comms.Channel
	)
	defer func() {
		if p := recover(); p != nil {
			o.log().Error("panic while processing communication",
				"communication_id", id, "client_id", req.ClientID, "panic", p, "stack", string(debug.Stack()))
			res = comms.FailedResult(id, primary, fmt.Sprintf("internal error: %v", p), comms.CategoryTransient)
		}
	}()

	p := o.resolvePreferences(ctx, req.ClientID, prefs)
	now := o.now()
	s, _ := o.batchWindow(ctx, req, o.Strategy.DetermineForRequest(req, p, now), now)
	primary = s.PrimaryChannel

	id = o.savePending(ctx, comms.NewRecord(req, s, now))
	log := o.log().With("communication_id", id, "plan_id", req.PlanID, "client_id", req.ClientID, "message_type", req.MessageType)

	if s.SendTime.After(now) {
		if o.Scheduler == nil {
			log.Warn("no scheduler configured; sending future-dated message now", "send_time", s.SendTime)
		} else if err := o.Scheduler.Schedule(ctx, id, req, s.SendTime); err != nil {
			log.Error("schedule failed; sending now", "send_time", s.SendTime, "err", err)
		} else {
			return o.queued(ctx, id, s)
		}
	}

	res = o.deliver(ctx, id, req, s, p)
	o.finish(ctx, req, res, start)
	return res
}

// Deliver runs a previously accepted request that is now due. The strategy
// is recomputed from current preferences; its send time is ignored.
func (o *Orchestrator) Deliver(ctx context.Context, communicationID string, req comms.Request) (res comms.Result) {
	start := o.now()
	defer func() {
		if p := recover(); p != nil {
			o.log().Error("panic while delivering communication",
				"communication_id", communicationID, "panic", p, "stack", string(debug.Stack()))
			res = comms.FailedResult(communicationID, "", fmt.Sprintf("internal error: %v", p), comms.CategoryTransient)
		}
	}()

	p := o.resolvePreferences(ctx, req.ClientID, nil)
	s := o.Strategy.DetermineForRequest(req, p, o.now())
	res = o.deliver(ctx, communicationID, req, s, p)
	if res.Metadata[comms.MetaCancelled] == "true" {
		// The item stays claimed and is redelivered after its lease; the
		// record keeps its queued status until then.
		o.log().Warn("scheduled delivery interrupted", "communication_id", communicationID, "error", res.Error)
		return res
	}
	o.finish(ctx, req, res, start)
	return res
}

func (o *Orchestrator) deliver(ctx context.Context, id string, req comms.Request, s comms.Strategy, p comms.Preferences) comms.Result {
	res := o.sendWithRetry(ctx, id, req, s.PrimaryChannel)
	if !res.Success() && res.Metadata[comms.MetaCancelled] != "true" {
		res = o.fallbackToAlternative(ctx, id, req, s, p, res)
	}
	return res.WithMeta(comms.MetaPriority, strconv.Itoa(s.Priority))
}

func (o *Orchestrator) resolvePreferences(ctx context.Context, clientID string, given *comms.Preferences) comms.Preferences {
	if given != nil {
		return *given
	}
	if o.Prefs != nil {
		p, err := o.Prefs.GetClientPreferences(ctx, clientID)
		if err != nil {
			o.log().Warn("preferences lookup failed; using defaults", "client_id", clientID, "err", err)
		} else if p != nil {
			return *p
		}
	}
	return comms.DefaultPreferences(clientID)
}

func (o *Orchestrator) shouldBatch(ctx context.Context, req comms.Request, now time.Time) bool {
	if o.History == nil {
		return false
	}
	pending, err := o.History.CountPending(ctx, req.ClientID)
	if err != nil {
		o.log().Warn("pending count failed; not batching", "client_id", req.ClientID, "err", err)
		return false
	}
	last, err := o.History.LastSentAt(ctx, req.ClientID)
	if err != nil {
		o.log().Warn("last send lookup failed; not batching", "client_id", req.ClientID, "err", err)
		return false
	}
	return o.Strategy.ShouldBatch(req.Urgency, pending, last, now)
}

// savePending records the request before any send. A storage failure does
// not stop delivery; the communication gets a local id instead.
func (o *Orchestrator) savePending(ctx context.Context, rec comms.Record) string {
	if o.Repo != nil {
		id, err := o.Repo.SavePendingCommunication(ctx, rec)
		if err == nil && id != "" {
			return id
		}
		o.log().Error("save pending communication failed", "client_id", rec.ClientID, "err", err)
	}
	return uuid.NewString()
}

func (o *Orchestrator) queued(ctx context.Context, id string, s comms.Strategy) comms.Result {
	at := s.SendTime.UTC().Format(time.RFC3339)
	res := comms.Result{
		CommunicationID: id,
		Status:          comms.StatusQueued,
		Channel:         s.PrimaryChannel,
		Metadata: map[string]string{
			comms.MetaScheduledFor: at,
			comms.MetaPriority:     strconv.Itoa(s.Priority),
		},
	}
	if o.Repo != nil {
		u := comms.StatusUpdate{Status: comms.StatusQueued, Channel: s.PrimaryChannel, Metadata: res.Metadata, At: o.now()}
		if _, err := o.Repo.UpdateStatus(context.WithoutCancel(ctx), id, u); err != nil {
			o.log().Error("status update failed", "communication_id", id, "err", err)
		}
	}
	o.log().Info("communication scheduled", "communication_id", id, "channel", s.PrimaryChannel, "send_time", at)
	return res
}

// finish persists and reports a terminal result. Nothing here can change
// the result; collaborator errors are logged and dropped.
func (o *Orchestrator) finish(ctx context.Context, req comms.Request, res comms.Result, start time.Time) {
	ctx = context.WithoutCancel(ctx)
	now := o.now()
	log := o.log().With(
		"communication_id", res.CommunicationID,
		"plan_id", req.PlanID,
		"client_id", req.ClientID,
		"message_type", req.MessageType,
		"urgency", req.Urgency,
		"channel", res.Channel,
		"status", res.Status,
		"attempts", res.Attempts,
	)

	if o.Repo != nil {
		if _, err := o.Repo.UpdateStatus(ctx, res.CommunicationID, comms.UpdateFromResult(res, now)); err != nil {
			log.Error("status update failed", "err", err)
		}
	}
	o.Metrics.RecordResult(res, now.Sub(start))

	if res.Success() {
		log.Info("communication delivered", "fallback_used", res.Metadata[comms.MetaFallbackUsed] == "true")
	} else {
		log.Warn("communication failed", "error", res.Error, "category", res.ErrorCategory)
	}

	if o.Events != nil {
		if err := o.Events.PublishDelivery(ctx, events.NewDeliveryEvent(req, res, now)); err != nil {
			log.Warn("delivery event publish failed", "err", err)
		}
	}
	if req.Urgency == comms.UrgencyCritical && !res.Success() && o.Alerts != nil {
		_ = o.Alerts.NotifyCriticalFailure(ctx, req, res)
	}
}
