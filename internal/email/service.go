package email

import (
	"context"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Mailer delivers messages. Implementations must honor the idempotency key:
// sending the same key twice must not produce a second message, so a retry
// racing a slow first delivery is safe.
type Mailer interface {
	// Send returns the provider's message ID for support troubleshooting.
	Send(ctx context.Context, msg Message, idempotencyKey string) (string, error)
}
