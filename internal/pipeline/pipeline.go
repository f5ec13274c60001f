// Package pipeline runs extraction, normalization and the dedup gate inline
// and hands novel OTPs to background delivery.
package pipeline

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"otprelay/internal/config"
	"otprelay/internal/constants"
	"otprelay/internal/deduplication"
	"otprelay/internal/extraction"
	"otprelay/internal/forwarding"
	"otprelay/internal/logger"
	"otprelay/internal/notify"
	"otprelay/internal/sender"
	apperrors "otprelay/pkg/errors"
	"otprelay/pkg/logging"
	"otprelay/pkg/metrics"
	"otprelay/pkg/models"
	"otprelay/pkg/tracing"
)

const (
	StatusDispatched = "dispatched"
	StatusNoOTP      = "no_otp"
	StatusDuplicate  = "duplicate"
	StatusMalformed  = "malformed"
	StatusCacheError = "cache_error"
	StatusStopped    = "stopped"
)

// Outcome reports what Submit did with one event. Delivery itself completes later.
type Outcome struct {
	Status    string `json:"status"`
	OTP       string `json:"otp,omitempty"`
	SenderKey string `json:"sender_key,omitempty"`
	Key       string `json:"dedup_key,omitempty"`
}

// Gate is the dedup service contract used by the pipeline.
type Gate interface {
	Claim(ctx context.Context, otp, sender string) (deduplication.Claim, error)
	Release(ctx context.Context, key string) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, req forwarding.Request) forwarding.ForwardResult
}

type Pipeline struct {
	live       *config.Live
	extractor  *extraction.Extractor
	normalizer *sender.Normalizer
	gate       Gate
	dispatcher Dispatcher
	notifier   notify.Notifier
	logger     logger.Logger

	workers *semaphore.Weighted
	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

func New(live *config.Live, gate Gate, dispatcher Dispatcher, n notify.Notifier, log logger.Logger) *Pipeline {
	if n == nil {
		n = notify.Nop()
	}
	workers := live.Forwarding().Workers
	if workers <= 0 {
		workers = constants.DefaultDispatchWorkers
	}

	p := &Pipeline{
		live:       live,
		extractor:  extraction.New(),
		normalizer: sender.New(senderOverrides(live.Sender())),
		gate:       gate,
		dispatcher: dispatcher,
		notifier:   n,
		logger:     log,
		workers:    semaphore.NewWeighted(int64(workers)),
	}
	live.OnChange(func(s config.Settings) {
		p.normalizer.SetOverrides(senderOverrides(s.Sender))
	})
	return p
}

// Submit processes one raw event. It returns once the OTP is claimed and
// scheduled, never waiting for delivery.
func (p *Pipeline) Submit(ctx context.Context, ev models.RawMessageEvent) (Outcome, error) {
	ctx, span := tracing.GetTracer("relay-pipeline").Start(ctx, "pipeline.submit")
	defer span.End()

	ctx = logging.WithOrigin(logging.WithEventID(ctx, ev.ID), ev.Origin)

	if p.isStopped() {
		return p.finish(ev, Outcome{Status: StatusStopped}), apperrors.ErrStopped
	}

	if field := ev.Validate(); field != "" {
		p.logger.WarnwCtx(ctx, "Dropping malformed event", "field", field, "kind", ev.Kind)
		return p.finish(ev, Outcome{Status: StatusMalformed}), apperrors.ErrMalformedEvent.WithDetail("field", field)
	}

	start := time.Now()
	extractionCfg := p.live.Extraction()
	otp, found := p.extractor.Extract(ev.Text, extractionConfig(extractionCfg))
	metrics.ObserveExtraction(time.Since(start), found)
	if !found {
		p.logger.DebugwCtx(ctx, "No OTP in message", "kind", ev.Kind)
		if extractionCfg.ReportMisses {
			p.notifier.Show(ctx, notify.Notification{
				Title:    "No OTP found",
				Body:     "A message from " + ev.Sender + " did not contain a recognizable OTP",
				Channel:  notify.ChannelExtraction,
				Priority: notify.PriorityLow,
			})
		}
		return p.finish(ev, Outcome{Status: StatusNoOTP}), nil
	}

	senderKey := p.normalizer.Normalize(ev.Sender)
	out := Outcome{OTP: otp, SenderKey: senderKey}

	claim, err := p.gate.Claim(ctx, otp, senderKey)
	out.Key = claim.Key
	if err != nil {
		p.logger.ErrorwCtx(ctx, "Dedup gate failed, dropping OTP", "error", err, "sender_key", senderKey)
		out.Status = StatusCacheError
		return p.finish(ev, out), err
	}
	if !claim.Claimed {
		p.logger.DebugwCtx(ctx, "Duplicate OTP suppressed", "sender_key", senderKey, "key", claim.Key)
		out.Status = StatusDuplicate
		return p.finish(ev, out), nil
	}

	req := forwarding.Request{
		Key:       claim.Key,
		MessageID: ev.ID,
		OTP:       otp,
		Text:      ev.Text,
		Sender:    ev.Sender,
		SenderKey: senderKey,
		Kind:      string(ev.Kind),
		Origin:    ev.Origin,
		Timestamp: ev.SourceTimestamp,
	}
	if !p.schedule(ctx, req) {
		if err := p.gate.Release(ctx, claim.Key); err != nil {
			p.logger.WarnwCtx(ctx, "Failed to release claim after shutdown", "error", err)
		}
		out.Status = StatusStopped
		return p.finish(ev, out), apperrors.ErrStopped
	}

	out.Status = StatusDispatched
	return p.finish(ev, out), nil
}

// schedule starts delivery in the background. Deliveries are detached from the
// caller's cancellation so a relay in flight is never interrupted.
func (p *Pipeline) schedule(ctx context.Context, req forwarding.Request) bool {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return false
	}
	p.wg.Add(1)
	p.mu.Unlock()

	dctx := context.WithoutCancel(ctx)
	go func() {
		defer p.wg.Done()
		if err := p.workers.Acquire(dctx, 1); err != nil {
			return
		}
		defer p.workers.Release(1)

		p.dispatcher.Dispatch(dctx, req)
	}()
	return true
}

func (p *Pipeline) finish(ev models.RawMessageEvent, out Outcome) Outcome {
	origin := ev.Origin
	if origin == "" {
		origin = "unknown"
	}
	metrics.RelayEventsTotal.WithLabelValues(origin, out.Status).Inc()
	return out
}

func (p *Pipeline) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// Stop refuses new events and waits for deliveries already scheduled.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.wg.Wait()
}

// Wait blocks until every scheduled delivery has finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Intake adapts Submit to the source intake signature.
func (p *Pipeline) Intake(ctx context.Context, ev models.RawMessageEvent) error {
	_, err := p.Submit(ctx, ev)
	return err
}

func extractionConfig(cfg config.ExtractionConfig) extraction.Config {
	return extraction.Config{
		MinLength: cfg.MinLength,
		MaxLength: cfg.MaxLength,
		Keywords:  cfg.Keywords,
		Regexes:   cfg.Regexes,
	}
}

func senderOverrides(cfg config.SenderConfig) []sender.Override {
	out := make([]sender.Override, 0, len(cfg.Overrides))
	for _, o := range cfg.Overrides {
		out = append(out, sender.Override{Match: o.Match, Token: o.Token})
	}
	return out
}
