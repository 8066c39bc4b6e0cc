// Package email sends transactional mail through a pluggable Sender.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Message is a fully rendered email.
type Message struct {
	From     string
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// Sender delivers a rendered message. Implementations must honor ctx.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

var ErrNotConfigured = errors.New("email sender not configured")

// ProviderError is returned when the provider answered but refused the message.
type ProviderError struct {
	Provider string
	Status   int
	Message  string
}

func (e *ProviderError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s rejected message: %s", e.Provider, e.Message)
	}
	if e.Message == "" {
		return fmt.Sprintf("%s rejected message: status %d", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s rejected message: status %d: %s", e.Provider, e.Status, e.Message)
}

// NoopSender logs messages instead of delivering them.
type NoopSender struct {
	logger *slog.Logger
}

func NewNoopSender(logger *slog.Logger) *NoopSender {
	return &NoopSender{logger: logger.With("component", "email")}
}

func (s *NoopSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("email delivery disabled, message dropped", "to", msg.To, "subject", msg.Subject)
	return nil
}
