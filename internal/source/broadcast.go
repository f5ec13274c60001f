package source

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"otprelay/internal/broker"
	"otprelay/internal/constants"
	"otprelay/internal/logger"
	apperrors "otprelay/pkg/errors"
	"otprelay/pkg/logging"
	"otprelay/pkg/metrics"
	"otprelay/pkg/models"
	"otprelay/pkg/tracing"
)

// BroadcastReceiver accepts one inbound SMS per call and hands it to the
// durable queue within the hand-off budget. Processing happens in Consume.
type BroadcastReceiver struct {
	producer broker.Producer
	topic    string
	budget   time.Duration
	logger   logger.Logger
}

func NewBroadcastReceiver(producer broker.Producer, topic string, budget time.Duration, log logger.Logger) *BroadcastReceiver {
	if topic == "" {
		topic = constants.DefaultInboundTopic
	}
	if budget <= 0 {
		budget = constants.BroadcastHandoffBudget
	}
	return &BroadcastReceiver{
		producer: producer,
		topic:    topic,
		budget:   budget,
		logger:   log,
	}
}

// Receive joins multipart bodies in order and enqueues the resulting event.
// It returns the event id once the queue accepted it.
func (r *BroadcastReceiver) Receive(ctx context.Context, sender string, parts []string, ts time.Time) (string, error) {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	ev := models.RawMessageEvent{
		ID:              uuid.New().String(),
		Text:            strings.Join(parts, ""),
		Sender:          sender,
		SourceTimestamp: ts,
		Kind:            models.KindSMS,
		Origin:          models.OriginBroadcast,
	}
	return r.Enqueue(ctx, ev)
}

// Enqueue hands an already-built event to the queue.
func (r *BroadcastReceiver) Enqueue(ctx context.Context, ev models.RawMessageEvent) (string, error) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if field := ev.Validate(); field != "" {
		return "", apperrors.ErrMalformedEvent.WithDetail("field", field)
	}

	handoffCtx, cancel := context.WithTimeout(ctx, r.budget)
	defer cancel()

	envelope := models.NewMessageEnvelope(ev.ID, ev)
	envelope.TraceID = tracing.TraceID(ctx)
	if err := r.producer.Publish(handoffCtx, r.topic, envelope); err != nil {
		r.logger.ErrorwCtx(ctx, "Broadcast hand-off failed", "error", err, "topic", r.topic)
		return "", apperrors.ErrServiceUnavailable.WithCause(err).WithDetail("topic", r.topic)
	}
	return ev.ID, nil
}

// Consume drains the queue into intake until ctx is done.
func (r *BroadcastReceiver) Consume(ctx context.Context, consumer broker.Consumer, intake Intake) error {
	metrics.SetSourceEnabled(NameBroadcast, true)
	defer metrics.SetSourceEnabled(NameBroadcast, false)

	return consumer.Consume(ctx, r.topic, func(ctx context.Context, env models.Envelope) error {
		if env.Message == nil {
			return apperrors.ErrMalformedEvent.WithDetail("envelope_type", env.Type)
		}

		ctx = logging.WithOrigin(ctx, env.Message.Origin)
		err := intake(ctx, *env.Message)
		if apperrors.Is(err, apperrors.ErrMalformedEvent) {
			r.logger.WarnwCtx(ctx, "Dropping malformed broadcast event", "error", err)
			return nil
		}
		return err
	})
}
