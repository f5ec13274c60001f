package forwarding

import (
	"context"
	"fmt"
	"time"

	"otprelay/internal/config"
	"otprelay/internal/constants"
	"otprelay/internal/eventbus"
	"otprelay/internal/journal"
	"otprelay/internal/logger"
	"otprelay/internal/notify"
	"otprelay/internal/state"
	apperrors "otprelay/pkg/errors"
	"otprelay/pkg/metrics"
	"otprelay/pkg/tracing"
)

// Releaser rolls back a dedup claim.
type Releaser interface {
	Release(ctx context.Context, key string) error
}

// RelayedEvent is the payload of the otp_relayed bus event.
type RelayedEvent struct {
	OTP       string    `json:"otp"`
	Sender    string    `json:"sender"`
	SenderKey string    `json:"sender_key"`
	Timestamp time.Time `json:"timestamp"`
}

type Deps struct {
	Live        *config.Live
	Webhook     WebhookPoster
	Mailer      MailSender
	Releaser    Releaser
	LastRelayed *state.LastRelayed
	Bus         eventbus.Bus
	Journal     journal.Journal
	Notifier    notify.Notifier
	Logger      logger.Logger
	Clock       func() time.Time
}

// Dispatcher delivers claimed OTPs and settles the claim: success updates the
// last relayed surface, failure releases the claim for a later detection.
type Dispatcher struct {
	deps Deps
}

func NewDispatcher(deps Deps) *Dispatcher {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop()
	}
	if deps.Journal == nil {
		deps.Journal = journal.NewMemoryJournal()
	}
	return &Dispatcher{deps: deps}
}

func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (result ForwardResult) {
	ctx, span := tracing.GetTracer("relay-forwarding").Start(ctx, "forwarding.dispatch")
	defer span.End()

	fwd := d.deps.Live.Forwarding()
	transport := fwd.Mode

	metrics.DispatchInFlight.Inc()
	defer metrics.DispatchInFlight.Dec()

	defer func() {
		if r := recover(); r != nil {
			err := apperrors.RecoverPanic(r)
			d.deps.Logger.ErrorwCtx(ctx, "Panic recovered during dispatch", "error", err, "transport", transport)
			result = d.fail(ctx, req, transport, err)
		}
	}()

	start := time.Now()
	err := d.deliver(ctx, fwd, req)
	if !apperrors.Is(err, apperrors.ErrConfiguration) {
		metrics.ObserveForward(transport, time.Since(start), err == nil)
	}
	if err != nil {
		return d.fail(ctx, req, transport, err)
	}
	return d.succeed(ctx, req, transport)
}

func (d *Dispatcher) deliver(ctx context.Context, fwd config.ForwardingConfig, req Request) error {
	device := LocalDevice(fwd.Device)

	switch fwd.Mode {
	case constants.ForwardModeWebhook:
		if fwd.Webhook.URL == "" {
			return apperrors.ErrConfiguration.WithMessage("webhook url is not configured")
		}
		if fwd.Webhook.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, fwd.Webhook.Timeout)
			defer cancel()
		}

		payload := BuildWebhookPayload(req, device, d.deps.Clock())
		status, err := d.deps.Webhook.PostJSON(ctx, fwd.Webhook.URL, fwd.Webhook.Headers, payload)
		if err != nil {
			return apperrors.ErrTransport.WithCause(err)
		}
		if !is2xx(status) {
			return apperrors.ErrTransport.WithMessage(fmt.Sprintf("webhook returned HTTP %d", status)).WithDetail("status", status)
		}
		return nil

	case constants.ForwardModeEmail:
		if !fwd.SMTP.Complete() {
			return apperrors.ErrConfiguration.WithMessage("smtp settings are incomplete")
		}
		subject, body := BuildEmail(req, device)
		if err := d.deps.Mailer.SendEmail(ctx, fwd.SMTP, subject, body); err != nil {
			return apperrors.ErrTransport.WithCause(err)
		}
		return nil

	default:
		return apperrors.ErrConfiguration.WithMessage(fmt.Sprintf("unknown forwarding mode %q", fwd.Mode))
	}
}

func (d *Dispatcher) succeed(ctx context.Context, req Request, transport string) ForwardResult {
	now := d.deps.Clock()

	if d.deps.LastRelayed != nil {
		err := d.deps.LastRelayed.Set(ctx, state.LastRelayedOtp{OTP: req.OTP, Sender: req.Sender, Timestamp: now})
		if err != nil {
			d.deps.Logger.WarnwCtx(ctx, "Failed to persist last relayed OTP", "error", err)
		}
	}
	if d.deps.Bus != nil {
		d.deps.Bus.Publish(eventbus.Event{
			Type: constants.EventOTPRelayed,
			Time: now,
			Data: RelayedEvent{OTP: req.OTP, Sender: req.Sender, SenderKey: req.SenderKey, Timestamp: now},
		})
	}
	d.record(ctx, req, transport, true, "")

	d.deps.Logger.InfowCtx(ctx, "OTP relayed",
		"transport", transport,
		"sender_key", req.SenderKey,
		"otp", journal.MaskOTP(req.OTP),
	)
	return ForwardResult{Success: true}
}

func (d *Dispatcher) fail(ctx context.Context, req Request, transport string, err error) ForwardResult {
	diagnostic := err.Error()

	if req.Key != "" && d.deps.Releaser != nil {
		if relErr := d.deps.Releaser.Release(ctx, req.Key); relErr != nil {
			d.deps.Logger.ErrorwCtx(ctx, "Failed to release dedup claim", "error", relErr, "key", req.Key)
		}
	}

	title := "OTP relay failed"
	if apperrors.Is(err, apperrors.ErrConfiguration) {
		title = "OTP relay is not configured"
	}
	d.deps.Notifier.Show(ctx, notify.Notification{
		Title:    title,
		Body:     fmt.Sprintf("Could not forward OTP from %s via %s: %s", req.Sender, transport, diagnostic),
		Channel:  notify.ChannelDelivery,
		Priority: notify.PriorityHigh,
	})
	d.record(ctx, req, transport, false, diagnostic)

	d.deps.Logger.WarnwCtx(ctx, "OTP relay failed",
		"transport", transport,
		"sender_key", req.SenderKey,
		"error", err,
	)
	return ForwardResult{Success: false, Diagnostic: diagnostic}
}

func (d *Dispatcher) record(ctx context.Context, req Request, transport string, success bool, diagnostic string) {
	err := d.deps.Journal.Record(ctx, journal.Entry{
		At:         d.deps.Clock().UTC(),
		MessageID:  req.MessageID,
		OTPMasked:  journal.MaskOTP(req.OTP),
		SenderKey:  req.SenderKey,
		Origin:     req.Origin,
		Kind:       req.Kind,
		Transport:  transport,
		Success:    success,
		Diagnostic: diagnostic,
	})
	if err != nil {
		d.deps.Logger.WarnwCtx(ctx, "Failed to write journal entry", "error", err)
	}
}

func is2xx(status int) bool {
	return status >= constants.HTTPStatusOKMin && status < constants.HTTPStatusOKMax
}
