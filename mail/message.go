package mail

import (
	"context"

	"github.com/MrEthical07/shelfauth/internal/logging"
)

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers one message synchronously.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// LogSender writes messages to a logger instead of delivering them. Used in
// development when no SMTP server is configured.
type LogSender struct {
	Logger logging.Logger
	// IncludeBody logs the message body. Leave off anywhere logs are shipped.
	IncludeBody bool
}

// Send logs msg.
func (s LogSender) Send(ctx context.Context, msg Message) error {
	if s.Logger == nil {
		return nil
	}
	args := []any{"to", msg.To, "subject", msg.Subject}
	if s.IncludeBody {
		args = append(args, "body", msg.Body)
	}
	s.Logger.Info(ctx, "mail not delivered, logging instead", args...)
	return nil
}
