package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"log/slog"
	"net/url"
	"strings"
	texttemplate "text/template"
	"time"
)

type Kind string

const (
	KindInvitation   Kind = "invitation"
	KindVerification Kind = "verification"
)

type Category string

const (
	CategoryValidation Category = "validation"
	CategoryProvider   Category = "provider"
	CategoryNetwork    Category = "network"
)

// DispatchError wraps every failure returned by Dispatcher.Send.
type DispatchError struct {
	Category Category
	Err      error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("email dispatch (%s): %v", e.Category, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// Payload carries the values a template needs. OrganizationName is only used
// by invitations.
type Payload struct {
	Token            string
	OrganizationName string
	ExpiresAt        time.Time
}

// Recorder receives one observation per dispatch attempt.
type Recorder interface {
	EmailDispatched(kind, outcome string)
}

type notification struct {
	subject *texttemplate.Template
	text    *texttemplate.Template
	html    *htmltemplate.Template
	path    string
}

var notifications = map[Kind]notification{
	KindInvitation: {
		subject: texttemplate.Must(texttemplate.New("subject").Parse(
			`You've been invited to {{.OrganizationName}} on Reqlab`)),
		text: texttemplate.Must(texttemplate.New("text").Parse(
			"You've been invited to join {{.OrganizationName}} on Reqlab.\n\n" +
				"Accept the invitation here:\n\n{{.Link}}\n\n" +
				"This invitation expires on {{.Expires}}.\n")),
		html: htmltemplate.Must(htmltemplate.New("html").Parse(
			`<p>You've been invited to join <strong>{{.OrganizationName}}</strong> on Reqlab.</p>` +
				`<p><a href="{{.Link}}">Accept the invitation</a></p>` +
				`<p>This invitation expires on {{.Expires}}.</p>`)),
		path: "/invitations/accept",
	},
	KindVerification: {
		subject: texttemplate.Must(texttemplate.New("subject").Parse(
			`Verify your email address`)),
		text: texttemplate.Must(texttemplate.New("text").Parse(
			"Confirm your email address by opening the link below:\n\n{{.Link}}\n\n" +
				"This link expires on {{.Expires}}.\n")),
		html: htmltemplate.Must(htmltemplate.New("html").Parse(
			`<p>Confirm your email address by opening the link below:</p>` +
				`<p><a href="{{.Link}}">Verify email</a></p>` +
				`<p>This link expires on {{.Expires}}.</p>`)),
		path: "/auth/verify",
	},
}

type view struct {
	OrganizationName string
	Link             string
	Expires          string
}

// Dispatcher renders templated notifications and hands them to a Sender.
type Dispatcher struct {
	sender   Sender
	from     string
	baseURL  string
	timeout  time.Duration
	recorder Recorder
	logger   *slog.Logger
}

type DispatcherOption func(*Dispatcher)

func WithTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.timeout = d
		}
	}
}

func WithRecorder(r Recorder) DispatcherOption {
	return func(disp *Dispatcher) {
		disp.recorder = r
	}
}

func NewDispatcher(sender Sender, from, baseURL string, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		sender:  sender,
		from:    from,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: DefaultTimeout,
		logger:  logger.With("component", "email"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Send renders the template for kind and delivers it to a single recipient.
// It makes exactly one delivery attempt.
func (d *Dispatcher) Send(ctx context.Context, kind Kind, to string, payload Payload) error {
	err := d.send(ctx, kind, to, payload)

	outcome := "sent"
	if err != nil {
		var de *DispatchError
		if errors.As(err, &de) {
			outcome = string(de.Category)
		}
		d.logger.Error("email dispatch failed", "kind", kind, "to", to, "error", err)
	}
	if d.recorder != nil {
		d.recorder.EmailDispatched(string(kind), outcome)
	}
	return err
}

func (d *Dispatcher) send(ctx context.Context, kind Kind, to string, payload Payload) error {
	msg, err := d.render(kind, to, payload)
	if err != nil {
		return &DispatchError{Category: CategoryValidation, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.sender.Send(ctx, msg); err != nil {
		return &DispatchError{Category: classify(err), Err: err}
	}
	return nil
}

func (d *Dispatcher) render(kind Kind, to string, payload Payload) (Message, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return Message{}, errors.New("recipient is required")
	}
	tmpl, ok := notifications[kind]
	if !ok {
		return Message{}, fmt.Errorf("unknown notification kind %q", kind)
	}
	if payload.Token == "" {
		return Message{}, errors.New("token is required")
	}
	if kind == KindInvitation && payload.OrganizationName == "" {
		return Message{}, errors.New("organization name is required")
	}

	v := view{
		OrganizationName: payload.OrganizationName,
		Link:             d.baseURL + tmpl.path + "?token=" + url.QueryEscape(payload.Token),
		Expires:          payload.ExpiresAt.UTC().Format("January 2, 2006 15:04 MST"),
	}

	var subject, text, html bytes.Buffer
	if err := tmpl.subject.Execute(&subject, v); err != nil {
		return Message{}, fmt.Errorf("render subject: %w", err)
	}
	if err := tmpl.text.Execute(&text, v); err != nil {
		return Message{}, fmt.Errorf("render text body: %w", err)
	}
	if err := tmpl.html.Execute(&html, v); err != nil {
		return Message{}, fmt.Errorf("render html body: %w", err)
	}

	return Message{
		From:     d.from,
		To:       to,
		Subject:  subject.String(),
		HTMLBody: html.String(),
		TextBody: text.String(),
	}, nil
}

func classify(err error) Category {
	var pe *ProviderError
	if errors.As(err, &pe) || errors.Is(err, ErrNotConfigured) {
		return CategoryProvider
	}
	return CategoryNetwork
}
