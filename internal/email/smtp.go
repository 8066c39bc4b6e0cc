package email

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"

	"gopkg.in/gomail.v2"
)

// SMTPSender delivers mail through an SMTP relay.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
}

func NewSMTPSender(host string, port int, username, password string) *SMTPSender {
	return &SMTPSender{host: host, port: port, username: username, password: password}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if s.host == "" {
		return ErrNotConfigured
	}

	m := gomail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.TextBody)
	if msg.HTMLBody != "" {
		m.AddAlternative("text/html", msg.HTMLBody)
	}

	d := gomail.NewDialer(s.host, s.port, s.username, s.password)

	// gomail has no context support; the send goroutine outlives a cancelled ctx.
	done := make(chan error, 1)
	go func() {
		done <- d.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("send email: %w", ctx.Err())
	case err := <-done:
		if err == nil {
			return nil
		}
		var tpErr *textproto.Error
		if errors.As(err, &tpErr) {
			return &ProviderError{Provider: "smtp", Status: tpErr.Code, Message: tpErr.Msg}
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			return fmt.Errorf("send email: %w", err)
		}
		// Failures after the session is established are relay refusals.
		return &ProviderError{Provider: "smtp", Message: err.Error()}
	}
}
