// Package verification issues and decodes stateless email-verification tokens.
//
// A token is an HS256 JWT whose subject is the email address. Decoding needs
// only the signing secret, never a database lookup.
package verification

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const purpose = "email-verification"

// DefaultTTL is the validity window used when none is configured.
const DefaultTTL = 24 * time.Hour

type Status int

const (
	Invalid Status = iota
	Expired
	Valid
)

func (s Status) String() string {
	switch s {
	case Valid:
		return "valid"
	case Expired:
		return "expired"
	default:
		return "invalid"
	}
}

// Result is the outcome of decoding a token. Email is empty for Invalid.
type Result struct {
	Status Status
	Email  string
}

type claims struct {
	jwt.RegisteredClaims
	Purpose string `json:"purpose"`
}

type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Codec)

// WithClock overrides the time source used for issuance and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

func NewCodec(secret []byte, ttl time.Duration, opts ...Option) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("verification secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Codec{secret: secret, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL returns the validity window of issued tokens.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue returns a signed token binding email to the current instant.
func (c *Codec) Issue(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", errors.New("email is required")
	}
	now := c.now().UTC()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		Purpose: purpose,
	})
	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign verification token: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and reports whether the token is valid,
// expired, or invalid. Expired is only returned for authentic tokens.
func (c *Codec) Decode(token string) Result {
	token = strings.TrimSpace(token)
	if token == "" {
		return Result{Status: Invalid}
	}

	var parsed claims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Result{Status: Invalid}
	}
	if parsed.Purpose != purpose || parsed.Subject == "" || parsed.ExpiresAt == nil {
		return Result{Status: Invalid}
	}

	if !parsed.ExpiresAt.Time.After(c.now()) {
		return Result{Status: Expired, Email: parsed.Subject}
	}
	return Result{Status: Valid, Email: parsed.Subject}
}
