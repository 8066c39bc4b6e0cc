// Package selection keeps the caller's active application and environment in
// signed cookies scoped to their current organization.
package selection

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	ApplicationCookie = "activeApplicationId"
	EnvironmentCookie = "activeEnvironmentId"
)

const (
	kindApplication = "application"
	kindEnvironment = "environment"
)

var ErrEmptySelection = errors.New("selection id is required")

type claims struct {
	jwt.RegisteredClaims
	Selected       string `json:"sel"`
	OrganizationID string `json:"org"`
	Kind           string `json:"kind"`
}

// Manager reads and writes the selection cookies.
type Manager struct {
	secret []byte
	secure bool
}

func NewManager(secret []byte, secure bool) *Manager {
	return &Manager{secret: secret, secure: secure}
}

func (m *Manager) SetActiveApplication(w http.ResponseWriter, organizationID, applicationID string) error {
	return m.set(w, ApplicationCookie, kindApplication, organizationID, applicationID)
}

func (m *Manager) SetActiveEnvironment(w http.ResponseWriter, organizationID, environmentID string) error {
	return m.set(w, EnvironmentCookie, kindEnvironment, organizationID, environmentID)
}

// ActiveApplication returns the selected application for organizationID.
// A missing, tampered or foreign cookie reads as no selection.
func (m *Manager) ActiveApplication(r *http.Request, organizationID string) (string, bool) {
	return m.get(r, ApplicationCookie, kindApplication, organizationID)
}

func (m *Manager) ActiveEnvironment(r *http.Request, organizationID string) (string, bool) {
	return m.get(r, EnvironmentCookie, kindEnvironment, organizationID)
}

// Clear expires both selection cookies.
func (m *Manager) Clear(w http.ResponseWriter) {
	for _, name := range []string{ApplicationCookie, EnvironmentCookie} {
		c := m.cookie(name, "")
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		http.SetCookie(w, c)
	}
}

func (m *Manager) set(w http.ResponseWriter, name, kind, organizationID, id string) error {
	if id == "" || organizationID == "" {
		return ErrEmptySelection
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Selected:       id,
		OrganizationID: organizationID,
		Kind:           kind,
	}).SignedString(m.secret)
	if err != nil {
		return err
	}
	http.SetCookie(w, m.cookie(name, signed))
	return nil
}

func (m *Manager) get(r *http.Request, name, kind, organizationID string) (string, bool) {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}

	var parsed claims
	_, err = jwt.ParseWithClaims(c.Value, &parsed, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
	)
	if err != nil {
		return "", false
	}
	if parsed.Kind != kind || parsed.OrganizationID != organizationID || parsed.Selected == "" {
		return "", false
	}
	return parsed.Selected, true
}

func (m *Manager) cookie(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
