package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"comms-orchestrator/internal/comms"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// Deliverer sends a due item under its existing communication id.
type Deliverer interface {
	Deliver(ctx context.Context, communicationID string, req comms.Request) comms.Result
}

type Config struct {
	// Interval between due-item sweeps.
	Interval time.Duration
	// BatchSize caps the items claimed per sweep.
	BatchSize int
	// Workers bounds concurrent deliveries within one sweep.
	Workers int
	// RunTimeout bounds one sweep, retries included.
	RunTimeout time.Duration
	// Lease is how long a claimed item stays invisible to other sweeps.
	Lease time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	if out.Interval <= 0 {
		out.Interval = 30 * time.Second
	}
	if out.BatchSize <= 0 {
		out.BatchSize = 50
	}
	if out.Workers <= 0 {
		out.Workers = 4
	}
	if out.RunTimeout <= 0 {
		out.RunTimeout = 30 * time.Minute
	}
	if out.Lease <= out.RunTimeout {
		out.Lease = out.RunTimeout + time.Minute
	}
	return out
}

// Dispatcher owns future-dated sends: Schedule stores them and a cron job
// hands due items to the Deliverer.
type Dispatcher struct {
	cfg       Config
	store     Store
	deliverer Deliverer
	cron      *cron.Cron
	log       *slog.Logger

	Now func() time.Time
}

func NewDispatcher(cfg Config, store Store, deliverer Deliverer, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "scheduler")
	cl := cronLogger{log: log}
	return &Dispatcher{
		cfg:       cfg.withDefaults(),
		store:     store,
		deliverer: deliverer,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log: log,
		Now: time.Now,
	}
}

// Schedule stores req for delivery at at.
func (d *Dispatcher) Schedule(ctx context.Context, communicationID string, req comms.Request, at time.Time) error {
	if err := d.store.Enqueue(ctx, Item{CommunicationID: communicationID, Request: req, DueAt: at}); err != nil {
		return fmt.Errorf("schedule %s: %w", communicationID, err)
	}
	d.log.Info("send scheduled", "communication_id", communicationID, "client_id", req.ClientID, "due_at", at.UTC())
	return nil
}

func (d *Dispatcher) Start() error {
	spec := "@every " + d.cfg.Interval.String()
	if _, err := d.cron.AddFunc(spec, d.sweep); err != nil {
		return fmt.Errorf("scheduler: add job %q: %w", spec, err)
	}
	d.cron.Start()
	d.log.Info("scheduler started", "interval", d.cfg.Interval)
	return nil
}

// Stop stops the cron engine and waits for a running sweep to finish.
func (d *Dispatcher) Stop() {
	ctx := d.cron.Stop()
	<-ctx.Done()
	d.log.Info("scheduler stopped")
}

func (d *Dispatcher) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.RunTimeout)
	defer cancel()
	if _, err := d.RunOnce(ctx); err != nil {
		d.log.Error("scheduled sweep failed", "err", err)
	}
}

// RunOnce claims due items and delivers them. It returns how many items
// reached a terminal result. Items whose delivery was cancelled stay claimed
// and are picked up again after the lease.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	now := d.Now()
	items, err := d.store.ClaimDue(ctx, now, d.cfg.Lease, d.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim due: %w", err)
	}
	if len(items) == 0 {
		return 0, nil
	}

	done := make([]bool, len(items))
	var g errgroup.Group
	g.SetLimit(d.cfg.Workers)
	for i, it := range items {
		i, it := i, it
		g.Go(func() error {
			res := d.deliverer.Deliver(ctx, it.CommunicationID, it.Request)
			log := d.log.With("communication_id", it.CommunicationID, "status", res.Status, "channel", res.Channel)
			if res.Metadata[comms.MetaCancelled] == "true" {
				log.Warn("scheduled delivery interrupted; will retry after lease", "error", res.Error)
				return nil
			}
			if err := d.store.MarkDone(context.WithoutCancel(ctx), it.CommunicationID, d.Now()); err != nil {
				log.Error("mark scheduled send done failed", "err", err)
				return nil
			}
			done[i] = true
			log.Info("scheduled delivery finished", "due_at", it.DueAt)
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, ok := range done {
		if ok {
			n++
		}
	}
	return n, nil
}

// cronLogger routes robfig/cron's logging into slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "err", err)...)
}
