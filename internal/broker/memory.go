package broker

import (
	"context"
	"fmt"
	"sync"

	"otprelay/internal/config"
	"otprelay/internal/logger"
	"otprelay/pkg/errors"
	"otprelay/pkg/logging"
	"otprelay/pkg/metrics"
	"otprelay/pkg/models"
	"otprelay/pkg/retry"
)

const defaultMemoryBuffer = 256

// MemoryBroker is an in-process queue with the same contract as the Kafka pair.
// Each topic is a buffered channel shared by all of its consumers.
type MemoryBroker struct {
	cfg         config.MemoryConfig
	logger      logger.Logger
	serviceName string

	mu     sync.Mutex
	topics map[string]chan models.Envelope
	closed bool
	wg     sync.WaitGroup
}

func NewMemoryBroker(cfg config.MemoryConfig, log logger.Logger) *MemoryBroker {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultMemoryBuffer
	}
	return &MemoryBroker{
		cfg:         cfg,
		logger:      log,
		serviceName: "unknown",
		topics:      make(map[string]chan models.Envelope),
	}
}

func (b *MemoryBroker) SetServiceName(name string) {
	b.serviceName = name
}

func (b *MemoryBroker) topic(name string) (chan models.Envelope, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.ErrStopped.WithMessage("memory broker is closed")
	}
	ch, ok := b.topics[name]
	if !ok {
		ch = make(chan models.Envelope, b.cfg.BufferSize)
		b.topics[name] = ch
	}
	return ch, nil
}

// Publish enqueues msg, waiting for buffer space until ctx is done.
func (b *MemoryBroker) Publish(ctx context.Context, topic string, msg models.Envelope) error {
	ch, err := b.topic(topic)
	if err != nil {
		return err
	}

	select {
	case ch <- msg:
		metrics.SetQueueDepth(topic, len(ch))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue to %s: %w", topic, ctx.Err())
	}
}

func (b *MemoryBroker) Consume(ctx context.Context, topic string, handler HandlerFunc) error {
	ch, err := b.topic(topic)
	if err != nil {
		return err
	}

	policy := retry.FromConfig(b.cfg.Retry)
	consumeCtx := logging.WithServiceName(ctx, b.serviceName)
	b.logger.InfowCtx(consumeCtx, "Started consuming",
		"topic", topic,
	)

	b.wg.Add(1)
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			b.logger.InfowCtx(consumeCtx, "Stopped consuming",
				"topic", topic,
				"reason", "context canceled",
			)
			return ctx.Err()
		case envelope := <-ch:
			metrics.SetQueueDepth(topic, len(ch))

			msgCtx := logging.WithEventID(consumeCtx, envelope.ID)
			if envelope.TraceID != "" {
				msgCtx = logging.WithTraceID(msgCtx, envelope.TraceID)
			}

			if err := processWithRetry(msgCtx, b.logger, policy, b.serviceName, topic, envelope, handler); err != nil {
				metrics.DLQMessagesTotal.WithLabelValues(b.serviceName, topic, "dropped").Inc()
				b.logger.ErrorwCtx(msgCtx, "Failed to process message after retries, dropping",
					"error", err,
					"topic", topic,
				)
			}
		}
	}
}

// Close rejects further publishes and waits for running consumers to return.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}
