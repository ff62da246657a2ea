package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"comms-orchestrator/internal/channels"
	"comms-orchestrator/internal/comms"
)

// sendWithRetry runs the attempt loop for one channel:
// ATTEMPT(n) -> SUCCESS | RETRY(n+1) | FAIL.
//
// Permanent and invalid-input failures stop at once. Auth failures alert
// and stop. Transient and rate-limit failures retry up to MaxRetries
// attempts in total with backoff between them. A failure that already
// carries a category (missing address, no sender, render error) is final
// and skips the categorizer. The returned Result.Attempts counts calls on
// this channel.
func (o *Orchestrator) sendWithRetry(ctx context.Context, id string, req comms.Request, ch comms.Channel) comms.Result {
	log := o.log().With("communication_id", id, "channel", ch)
	var last comms.Result

	for attempt := 1; attempt <= o.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return cancelledResult(id, ch, attempt-1, err)
		}

		res := o.attempt(ctx, id, req, ch)
		res.Attempts = attempt
		if res.Success() {
			o.Metrics.RecordAttempt(ch, res)
			log.Info("send attempt succeeded", "attempt", attempt)
			return res
		}
		if err := ctx.Err(); err != nil {
			return cancelledResult(id, ch, attempt, err)
		}

		direct := res.ErrorCategory != ""
		if !direct {
			res.ErrorCategory = o.categorize(res)
		}
		o.Metrics.RecordAttempt(ch, res)
		last = res

		if direct {
			log.Warn("send attempt failed without retry", "attempt", attempt, "category", res.ErrorCategory, "error", res.Error)
			return res
		}

		switch res.ErrorCategory {
		case comms.CategoryPermanent, comms.CategoryInvalidInput:
			log.Warn("send attempt failed permanently", "attempt", attempt, "category", res.ErrorCategory, "error", res.Error)
			return res
		case comms.CategoryAuthFailure:
			log.Error("channel authentication failed", "attempt", attempt, "error", res.Error)
			if o.Alerts != nil {
				_ = o.Alerts.NotifyAuthFailure(context.WithoutCancel(ctx), ch, res.Error)
			}
			return res
		}

		if attempt == o.cfg.MaxRetries {
			log.Warn("send attempts exhausted", "attempt", attempt, "category", res.ErrorCategory, "error", res.Error)
			break
		}

		delay := o.BackoffDelay(attempt, res.ErrorCategory)
		o.Metrics.RecordRetryDelay(delay)
		log.Info("send attempt failed; retrying", "attempt", attempt, "category", res.ErrorCategory, "delay", delay, "error", res.Error)

		if err := o.sleep(ctx, delay); err != nil {
			return cancelledResult(id, ch, attempt, err)
		}
	}
	return last
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	if o.Sleep != nil {
		return o.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func (o *Orchestrator) categorize(res comms.Result) comms.ErrorCategory {
	f := Failure{
		Message:    res.Error,
		Code:       res.Metadata[comms.MetaProviderErrorCode],
		HTTPStatus: res.Metadata[comms.MetaProviderHTTPStatus],
	}
	if o.Categorizer == nil {
		return KeywordCategorizer{}.Categorize(f)
	}
	return o.Categorizer.Categorize(f)
}

func cancelledResult(id string, ch comms.Channel, attempts int, err error) comms.Result {
	res := comms.FailedResult(id, ch, "delivery cancelled: "+err.Error(), comms.CategoryTransient)
	res.Attempts = attempts
	return res.WithMeta(comms.MetaCancelled, "true")
}

// attempt makes one rate-limited, time-bounded send.
func (o *Orchestrator) attempt(ctx context.Context, id string, req comms.Request, ch comms.Channel) comms.Result {
	if o.Limiter != nil {
		ok, err := o.Limiter.Allow(ctx, ch)
		if err != nil {
			o.log().Warn("rate limiter unavailable; allowing send", "channel", ch, "err", err)
		} else if !ok {
			return comms.FailedResult(id, ch, fmt.Sprintf("rate limit exceeded for channel %s", ch), "")
		}
	}

	actx, cancel := context.WithTimeout(ctx, o.cfg.AttemptTimeout)
	defer cancel()
	res := o.routeToSubAgent(actx, id, req, ch)
	if !res.Success() && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) && res.ErrorCategory == "" {
		res.Error = fmt.Sprintf("send timeout after %s: %s", o.cfg.AttemptTimeout, res.Error)
	}
	return res
}

// routeToSubAgent resolves the address, renders the content and hands it to
// the channel's sender. A missing address returns at once with
// invalid_input; it is never retried.
func (o *Orchestrator) routeToSubAgent(ctx context.Context, id string, req comms.Request, ch comms.Channel) comms.Result {
	recipient, ok := req.Recipient(ch)
	if !ok {
		return comms.FailedResult(id, ch, fmt.Sprintf("missing required recipient address for %s", ch), comms.CategoryInvalidInput)
	}
	sender, err := o.Senders.Get(ch)
	if err != nil {
		return comms.FailedResult(id, ch, fmt.Sprintf("no sender configured for channel %s", ch), comms.CategoryPermanent)
	}
	if o.Renderer == nil {
		return comms.FailedResult(id, ch, "no renderer configured", comms.CategoryPermanent)
	}
	content, err := o.Renderer.Render(ch, req)
	if err != nil {
		return comms.FailedResult(id, ch, err.Error(), comms.CategoryInvalidInput)
	}

	resp, err := callSender(ctx, sender, channels.SendRequest{
		CommunicationID: id,
		Recipient:       recipient,
		MessageType:     req.MessageType,
		Subject:         content.Subject,
		Content:         content.Body,
		Attachments:     content.Attachments,
	})
	if err != nil {
		return comms.FailedResult(id, ch, err.Error(), "")
	}
	if !resp.Success {
		msg := strings.TrimSpace(resp.ErrorMessage)
		if msg == "" {
			msg = "provider rejected message"
		}
		res := comms.FailedResult(id, ch, msg, "")
		if resp.ErrorCode != "" {
			res = res.WithMeta(comms.MetaProviderErrorCode, resp.ErrorCode)
		}
		if resp.HTTPStatus != 0 {
			res = res.WithMeta(comms.MetaProviderHTTPStatus, strconv.Itoa(resp.HTTPStatus))
		}
		return res.WithMeta(comms.MetaRecipient, recipient)
	}

	sentAt := o.now().UTC()
	return comms.Result{
		CommunicationID: id,
		Status:          comms.StatusSent,
		Channel:         ch,
		SentAt:          &sentAt,
		Metadata: map[string]string{
			comms.MetaProviderMessageID: resp.ProviderMessageID,
			comms.MetaRecipient:         recipient,
		},
	}
}

// callSender shields the loop from adapter panics.
func callSender(ctx context.Context, s channels.Sender, req channels.SendRequest) (resp channels.SendResponse, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("sender panic: %v", p)
		}
	}()
	return s.Send(ctx, req)
}

// fallbackToAlternative tries the strategy's fallback channels in order,
// skipping opted-out ones, with the full retry loop on each. The first
// success is returned tagged with fallback_used and the primary error.
// Otherwise the result is failed with all_channels_failed set.
// Attempts on the returned result count every send across channels.
func (o *Orchestrator) fallbackToAlternative(ctx context.Context, id string, req comms.Request, s comms.Strategy, p comms.Preferences, primary comms.Result) comms.Result {
	attempts := primary.Attempts
	var (
		tried  []string
		errs   []string
		failed comms.Result
	)

	for _, ch := range s.FallbackChannels {
		if ch == primary.Channel {
			continue
		}
		if p.IsOptedOut(ch) {
			o.log().Info("skipping opted-out fallback channel", "communication_id", id, "channel", ch)
			continue
		}

		o.log().Info("trying fallback channel", "communication_id", id, "channel", ch, "primary_channel", primary.Channel)
		res := o.sendWithRetry(ctx, id, req, ch)
		attempts += res.Attempts
		res.Attempts = attempts

		if res.Success() {
			o.Metrics.RecordFallback()
			return res.
				WithMeta(comms.MetaFallbackUsed, "true").
				WithMeta(comms.MetaPrimaryChannel, string(primary.Channel)).
				WithMeta(comms.MetaPrimaryError, primary.Error)
		}
		if res.Metadata[comms.MetaCancelled] == "true" {
			return res
		}
		tried = append(tried, string(ch))
		errs = append(errs, fmt.Sprintf("%s: %s", ch, res.Error))
		failed = res
	}

	fallbacks := "none"
	if len(errs) > 0 {
		fallbacks = strings.Join(errs, "; ")
	}
	out := comms.FailedResult(id, primary.Channel,
		fmt.Sprintf("all channels failed: primary %s: %s; fallbacks attempted: %s", primary.Channel, primary.Error, fallbacks),
		primary.ErrorCategory)
	out.Attempts = attempts
	out.Metadata = map[string]string{
		comms.MetaAllChannelsFailed:  "true",
		comms.MetaPrimaryChannel:     string(primary.Channel),
		comms.MetaPrimaryError:       primary.Error,
		comms.MetaAttemptedFallbacks: strings.Join(tried, ","),
	}
	if r := primary.Metadata[comms.MetaRecipient]; r != "" {
		out.Metadata[comms.MetaRecipient] = r
	} else if r := failed.Metadata[comms.MetaRecipient]; r != "" {
		out.Metadata[comms.MetaRecipient] = r
	}
	return out
}
