package forwarding

import (
	"context"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"

	"otprelay/internal/config"
	"otprelay/internal/constants"
)

type MailSender interface {
	SendEmail(ctx context.Context, smtp config.SMTPConfig, subject, body string) error
}

type Mailer struct{}

func NewMailer() *Mailer {
	return &Mailer{}
}

func (m *Mailer) SendEmail(ctx context.Context, smtp config.SMTPConfig, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(smtp.Sender); err != nil {
		return fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(smtp.Recipient); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	client, err := mail.NewClient(smtp.Host, clientOptions(smtp)...)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	return nil
}

func clientOptions(smtp config.SMTPConfig) []mail.Option {
	timeout := smtp.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultSMTPTimeout
	}
	opts := []mail.Option{
		mail.WithPort(smtp.Port),
		mail.WithTimeout(timeout),
	}

	switch strings.ToLower(smtp.TLS) {
	case "tls":
		opts = append(opts, mail.WithSSL())
	case "none":
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}

	if smtp.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(smtp.Username),
			mail.WithPassword(smtp.Password),
		)
	}
	return opts
}
