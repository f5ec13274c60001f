package broker

import (
	"context"
	"time"

	"otprelay/internal/logger"
	"otprelay/pkg/errors"
	"otprelay/pkg/metrics"
	"otprelay/pkg/models"
	"otprelay/pkg/retry"
)

// processWithRetry runs handler under the retry policy. Panics become fatal errors.
func processWithRetry(ctx context.Context, log logger.Logger, policy retry.Policy, service, topic string, envelope models.Envelope, handler HandlerFunc) error {
	return retry.RetryWithCallback(ctx, policy, func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.RecoverPanic(r)
				log.ErrorwCtx(ctx, "Panic recovered during message processing",
					"error", err,
					"topic", topic,
				)
			}
		}()
		return handler(ctx, envelope)
	}, func(attempt int, err error, nextDelay time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues(service, topic).Inc()
		log.WarnwCtx(ctx, "Retrying message processing",
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"next_delay", nextDelay,
			"error", err,
			"topic", topic,
		)
	})
}
