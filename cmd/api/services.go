package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"comms-orchestrator/internal/alerts"
	"comms-orchestrator/internal/channels"
	"comms-orchestrator/internal/comms"
	"comms-orchestrator/internal/config"
	"comms-orchestrator/internal/events"
	"comms-orchestrator/internal/history"
	"comms-orchestrator/internal/orchestrator"
	"comms-orchestrator/internal/ratelimit"
	"comms-orchestrator/internal/render"
	"comms-orchestrator/internal/reporting"
	"comms-orchestrator/internal/scheduler"
	"comms-orchestrator/internal/strategy"
	"comms-orchestrator/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// services is the wired object graph behind the HTTP layer.
type services struct {
	History      history.Repository
	Prefs        history.PreferencesStore
	Orchestrator *orchestrator.Orchestrator
	Dispatcher   *scheduler.Dispatcher
	Reports      *reporting.Service

	db      *sql.DB
	rdb     *redis.Client
	closers []func() error
	log     *slog.Logger
}

func buildServices(ctx context.Context, cfg config.Config, log *slog.Logger) (*services, error) {
	svc := &services{log: log}

	var (
		alertRepo alerts.Repository
		store     scheduler.Store
		limiter   ratelimit.Limiter
	)
	limits := ratelimit.Limits{
		comms.ChannelEmail:    cfg.Comms.RateEmail,
		comms.ChannelSMS:      cfg.Comms.RateSMS,
		comms.ChannelWhatsApp: cfg.Comms.RateWhatsApp,
	}

	if cfg.UsesMemoryStorage() {
		log.Warn("using in-memory storage; history and scheduled sends are lost on restart")
		repo := history.NewMemoryRepo()
		svc.History, svc.Prefs = repo, repo
		alertRepo = alerts.NewMemoryRepo()
		store = scheduler.NewMemoryStore()
		limiter = ratelimit.NewLocalLimiter(limits)
	} else {
		db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PoolConfig{})
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		svc.db = db
		svc.closers = append(svc.closers, db.Close)

		rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			svc.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		svc.rdb = rdb
		svc.closers = append(svc.closers, rdb.Close)

		repo := history.NewPostgresRepo(db)
		svc.History = repo
		svc.Prefs = history.NewCachedPreferences(repo, rdb, cfg.Comms.PrefsCacheTTL, log)
		alertRepo = alerts.NewPostgresRepo(db)
		store = scheduler.NewPostgresStore(db)
		limiter = ratelimit.NewRedisLimiter(rdb, limits)
	}

	senders, err := buildSenders(cfg, log)
	if err != nil {
		svc.Close()
		return nil, err
	}
	rdr, err := render.New()
	if err != nil {
		svc.Close()
		return nil, err
	}

	var pub events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, log)
		if err != nil {
			svc.Close()
			return nil, err
		}
		pub = kp
		svc.closers = append(svc.closers, kp.Close)
	}

	cc := cfg.Comms
	orch := orchestrator.New(orchestrator.Config{
		MaxRetries:     cc.MaxRetries,
		InitialDelay:   cc.InitialDelay,
		MaxDelay:       cc.MaxDelay,
		BackoffBase:    cc.BackoffBase,
		Jitter:         cc.Jitter,
		AttemptTimeout: cc.AttemptTimeout,
		Batching:       cc.Batching,
		BatchWindow:    cc.BatchWindow,
	}, strategy.New(strategy.Config{}, log), senders, rdr, log)
	orch.Repo = svc.History
	orch.History = svc.History
	orch.Prefs = svc.Prefs
	orch.Alerts = alerts.NewService(alertRepo, log)
	orch.Limiter = limiter
	orch.Events = pub
	orch.Metrics = orchestrator.NewMetrics()

	svc.Dispatcher = scheduler.NewDispatcher(scheduler.Config{Interval: cc.SchedulerInterval}, store, orch, log)
	orch.Scheduler = svc.Dispatcher

	svc.Orchestrator = orch
	svc.Reports = reporting.NewService(svc.History)
	return svc, nil
}

// buildSenders uses real providers where credentials exist. Outside
// production the remaining channels get the log sender; in production they
// stay unregistered so sends fail over to a configured channel.
func buildSenders(cfg config.Config, log *slog.Logger) (channels.Registry, error) {
	var out []channels.Sender

	if cfg.SMTP.Host != "" {
		s, err := channels.NewSMTPSender(channels.SMTPConfig{
			Host:        cfg.SMTP.Host,
			Port:        cfg.SMTP.Port,
			Username:    cfg.SMTP.Username,
			Password:    cfg.SMTP.Password,
			FromAddress: cfg.SMTP.FromAddress,
			FromName:    cfg.SMTP.FromName,
		})
		if err != nil {
			return channels.Registry{}, err
		}
		out = append(out, s)
	}

	if cfg.Twilio.AccountSID != "" {
		client, err := channels.NewTwilioClient(channels.TwilioConfig{
			AccountSID:        cfg.Twilio.AccountSID,
			AuthToken:         cfg.Twilio.AuthToken,
			SMSFrom:           cfg.Twilio.SMSFrom,
			WhatsAppFrom:      cfg.Twilio.WhatsAppFrom,
			StatusCallbackURL: cfg.Twilio.StatusCallback,
		}, nil)
		if err != nil {
			return channels.Registry{}, err
		}
		if cfg.Twilio.SMSFrom != "" {
			out = append(out, channels.NewTwilioSMSSender(client))
		}
		if cfg.Twilio.WhatsAppFrom != "" {
			out = append(out, channels.NewTwilioWhatsAppSender(client))
		}
	}

	have := channels.NewRegistry(out...)
	for _, ch := range comms.AllChannels() {
		if _, err := have.Get(ch); err == nil {
			continue
		}
		if cfg.IsProduction() {
			log.Warn("no provider configured; channel disabled", "channel", ch)
			continue
		}
		out = append(out, channels.NewLogSender(ch, log))
	}
	return channels.NewRegistry(out...), nil
}

// Ready reports whether the backing stores answer.
func (s *services) Ready(ctx context.Context) error {
	var errs []error
	if s.db != nil {
		if err := utils.HealthCheck(ctx, s.db, 2*time.Second); err != nil {
			errs = append(errs, err)
		}
	}
	if s.rdb != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.rdb.Ping(pingCtx).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis ping failed: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close releases resources in reverse order of acquisition.
func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.log.Warn("close failed", "err", err)
		}
	}
	s.closers = nil
}

// sendBudget bounds one synchronous send: every channel may use all its
// attempts and the longest jittered backoff between them.
func sendBudget(cc config.CommsConfig) time.Duration {
	waits := time.Duration(cc.MaxRetries-1) * (cc.MaxDelay * 6 / 5)
	perChannel := time.Duration(cc.MaxRetries)*cc.AttemptTimeout + waits
	return time.Duration(len(comms.AllChannels()))*perChannel + time.Minute
}
