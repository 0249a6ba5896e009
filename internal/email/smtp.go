package email

import (
	"context"
	"fmt"
	"sync"

	"gopkg.in/gomail.v2"

	"github.com/domainstack/api/pkg/errors"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// smtpMailer sends through a plain SMTP relay. SMTP has no provider-side
// idempotency, so the mailer keeps its own in-process sent-key set; the
// durable dedup lives in the notification table, this only guards
// step-retries inside one process lifetime.
type smtpMailer struct {
	dialer *gomail.Dialer
	from   string

	mu   sync.Mutex
	sent map[string]string
}

func NewSMTPMailer(cfg SMTPConfig) Mailer {
	return &smtpMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		sent:   make(map[string]string),
	}
}

func (m *smtpMailer) Send(ctx context.Context, msg Message, idempotencyKey string) (string, error) {
	m.mu.Lock()
	if id, ok := m.sent[idempotencyKey]; ok {
		m.mu.Unlock()
		return id, nil
	}
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	messageID := fmt.Sprintf("<%s@domainstack>", idempotencyKey)

	mail := gomail.NewMessage()
	mail.SetHeader("From", m.from)
	mail.SetHeader("To", msg.To)
	mail.SetHeader("Subject", msg.Subject)
	mail.SetHeader("Message-ID", messageID)
	mail.SetHeader("X-Idempotency-Key", idempotencyKey)
	if msg.Text != "" {
		mail.SetBody("text/plain", msg.Text)
		if msg.HTML != "" {
			mail.AddAlternative("text/html", msg.HTML)
		}
	} else {
		mail.SetBody("text/html", msg.HTML)
	}

	if err := m.dialer.DialAndSend(mail); err != nil {
		// Transient relay failures must bubble up to the step retry.
		return "", errors.Retryable(fmt.Errorf("failed to send email: %w", err))
	}

	m.mu.Lock()
	m.sent[idempotencyKey] = messageID
	m.mu.Unlock()

	return messageID, nil
}
