package forwarding

import (
	"context"
	"fmt"

	"otprelay/internal/config"
	"otprelay/pkg/circuitbreaker"
)

// CircuitBreakerPoster stops hammering a webhook that keeps failing.
// Non-2xx responses count as failures.
type CircuitBreakerPoster struct {
	poster WebhookPoster
	cb     *circuitbreaker.Wrapper
}

func NewCircuitBreakerPoster(poster WebhookPoster, cfg circuitbreaker.Config) *CircuitBreakerPoster {
	return &CircuitBreakerPoster{
		poster: poster,
		cb:     circuitbreaker.NewWrapper(cfg),
	}
}

func (p *CircuitBreakerPoster) PostJSON(ctx context.Context, url string, headers map[string]string, body interface{}) (int, error) {
	var status int
	err := p.cb.Do(ctx, func() error {
		var err error
		status, err = p.poster.PostJSON(ctx, url, headers, body)
		if err != nil {
			return err
		}
		if !is2xx(status) {
			return fmt.Errorf("webhook returned HTTP %d", status)
		}
		return nil
	})
	if err != nil && p.cb.IsOpen() {
		return status, fmt.Errorf("circuit breaker is open for %s: %w", p.cb.Name(), err)
	}
	return status, err
}

func (p *CircuitBreakerPoster) IsOpen() bool {
	return p.cb.IsOpen()
}

type CircuitBreakerMailer struct {
	mailer MailSender
	cb     *circuitbreaker.Wrapper
}

func NewCircuitBreakerMailer(mailer MailSender, cfg circuitbreaker.Config) *CircuitBreakerMailer {
	return &CircuitBreakerMailer{
		mailer: mailer,
		cb:     circuitbreaker.NewWrapper(cfg),
	}
}

func (m *CircuitBreakerMailer) SendEmail(ctx context.Context, smtp config.SMTPConfig, subject, body string) error {
	err := m.cb.Do(ctx, func() error {
		return m.mailer.SendEmail(ctx, smtp, subject, body)
	})
	if err != nil && m.cb.IsOpen() {
		return fmt.Errorf("circuit breaker is open for %s: %w", m.cb.Name(), err)
	}
	return err
}

func (m *CircuitBreakerMailer) IsOpen() bool {
	return m.cb.IsOpen()
}

// BreakerConfig maps the circuit breaker section onto a named breaker.
func BreakerConfig(name string, cfg config.CircuitBreakerConfig) circuitbreaker.Config {
	return circuitbreaker.FromConfig(name, cfg)
}
