package main

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"comms-orchestrator/internal/channels"
	"comms-orchestrator/internal/comms"
	"comms-orchestrator/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildSenders_LocalFillsEveryChannel(t *testing.T) {
	cfg := config.Config{App: config.AppConfig{Env: "local"}}
	reg, err := buildSenders(cfg, discardLogger())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	for _, ch := range comms.AllChannels() {
		s, err := reg.Get(ch)
		if err != nil {
			t.Fatalf("expected sender for %s: %v", ch, err)
		}
		if _, ok := s.(*channels.LogSender); !ok {
			t.Fatalf("expected log sender for %s, got %T", ch, s)
		}
	}
}

func TestBuildSenders_ProductionLeavesUnconfiguredChannelsOut(t *testing.T) {
	cfg := config.Config{
		App:  config.AppConfig{Env: "production"},
		SMTP: config.SMTPConfig{Host: "smtp.example.com", Port: 587, FromAddress: "plans@example.com"},
	}
	reg, err := buildSenders(cfg, discardLogger())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if s, err := reg.Get(comms.ChannelEmail); err != nil {
		t.Fatalf("expected email sender: %v", err)
	} else if _, ok := s.(*channels.SMTPSender); !ok {
		t.Fatalf("expected smtp sender, got %T", s)
	}
	for _, ch := range []comms.Channel{comms.ChannelSMS, comms.ChannelWhatsApp} {
		if _, err := reg.Get(ch); !errors.Is(err, channels.ErrNoSender) {
			t.Fatalf("expected %s to be unregistered, got %v", ch, err)
		}
	}
}

func TestSendBudget_CoversRetriesOnEveryChannel(t *testing.T) {
	cc := config.CommsConfig{MaxRetries: 3, MaxDelay: 900 * time.Second, AttemptTimeout: 30 * time.Second}
	// per channel: 3*30s + 2*1080s = 2250s; three channels plus a minute.
	if got, want := sendBudget(cc), 3*2250*time.Second+time.Minute; got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
