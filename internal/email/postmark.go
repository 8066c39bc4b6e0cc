package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const postmarkURL = "https://api.postmarkapp.com/email"

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 10 * time.Second

type PostmarkClient struct {
	serverToken string
	httpClient  *http.Client
}

type Option func(*PostmarkClient)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *PostmarkClient) {
		cl.httpClient = c
	}
}

func NewPostmarkClient(serverToken string, opts ...Option) *PostmarkClient {
	c := &PostmarkClient{
		serverToken: serverToken,
		httpClient:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *PostmarkClient) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

type postmarkError struct {
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
}

func (c *PostmarkClient) Send(ctx context.Context, msg Message) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	body, err := json.Marshal(postmarkEmail{
		From:     msg.From,
		To:       msg.To,
		Subject:  msg.Subject,
		HtmlBody: msg.HTMLBody,
		TextBody: msg.TextBody,
	})
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postmarkURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		pe := &ProviderError{Provider: "postmark", Status: resp.StatusCode}
		var apiErr postmarkError
		if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&apiErr); err == nil {
			pe.Message = apiErr.Message
		}
		return pe
	}

	return nil
}
