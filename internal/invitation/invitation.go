// Package invitation manages the lifecycle of organization invitations:
// creation, resend, cancellation, acceptance and expiry cleanup.
package invitation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/dukerupert/reqlab/internal/email"
	"github.com/dukerupert/reqlab/internal/model"
	"github.com/dukerupert/reqlab/internal/store"
	"github.com/dukerupert/reqlab/internal/websocket"
)

// DefaultTTL is how long an invitation stays valid.
const DefaultTTL = 7 * 24 * time.Hour

type Store interface {
	Create(ctx context.Context, organizationID, email string, now time.Time, ttl time.Duration) (*model.Invitation, error)
	GetValid(ctx context.Context, organizationID, id string, now time.Time) (*model.Invitation, error)
	GetValidByToken(ctx context.Context, token string, now time.Time) (*model.Invitation, error)
	GetByID(ctx context.Context, organizationID, id string) (*model.Invitation, error)
	List(ctx context.Context, organizationID string) ([]model.Invitation, error)
	MarkAccepted(ctx context.Context, id string, at time.Time) (bool, error)
	Delete(ctx context.Context, organizationID, id string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type Organizations interface {
	GetByID(ctx context.Context, id string) (*model.Organization, error)
	GetMember(ctx context.Context, organizationID, userID string) (*model.OrganizationMember, error)
	AddMember(ctx context.Context, organizationID, userID, role string) (*model.OrganizationMember, error)
}

type Users interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

type Notifier interface {
	Send(ctx context.Context, kind email.Kind, to string, payload email.Payload) error
}

type Broadcaster interface {
	Broadcast(msg websocket.Message)
}

// Recorder counts lifecycle transitions.
type Recorder interface {
	InvitationEvent(action string, n int)
}

type Manager struct {
	store       Store
	orgs        Organizations
	users       Users
	notifier    Notifier
	broadcaster Broadcaster
	recorder    Recorder
	ttl         time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

func WithBroadcaster(b Broadcaster) Option {
	return func(m *Manager) {
		m.broadcaster = b
	}
}

func WithRecorder(r Recorder) Option {
	return func(m *Manager) {
		m.recorder = r
	}
}

func NewManager(s Store, orgs Organizations, users Users, notifier Notifier, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:    s,
		orgs:     orgs,
		users:    users,
		notifier: notifier,
		ttl:      DefaultTTL,
		now:      time.Now,
		logger:   logger.With("component", "invitation"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NormalizeEmail trims and lower-cases an address and checks its syntax.
func NormalizeEmail(raw string) (string, error) {
	addr := strings.ToLower(strings.TrimSpace(raw))
	if addr == "" {
		return "", fmt.Errorf("%w: email is required", ErrValidation)
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr || !strings.Contains(addr[strings.LastIndex(addr, "@")+1:], ".") {
		return "", fmt.Errorf("%w: %q is not a valid email address", ErrValidation, raw)
	}
	return addr, nil
}

// Create issues a new invitation and emails it. When the email cannot be
// sent the invitation is kept and ErrDispatchFailed is returned with it.
func (m *Manager) Create(ctx context.Context, organizationID, rawEmail string) (*model.Invitation, error) {
	addr, err := NormalizeEmail(rawEmail)
	if err != nil {
		return nil, err
	}

	org, err := m.orgs.GetByID(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	if org == nil {
		return nil, fmt.Errorf("organization %s: %w", organizationID, ErrNotFound)
	}

	inv, err := m.store.Create(ctx, organizationID, addr, m.now(), m.ttl)
	if errors.Is(err, store.ErrDuplicate) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("create invitation: %w", err)
	}

	m.logger.Info("invitation created", "invitation_id", inv.ID, "organization_id", organizationID)
	m.record("created", inv)

	if err := m.dispatch(ctx, org, inv); err != nil {
		return inv, err
	}
	return inv, nil
}

// Resend re-sends a pending invitation with its original token and expiry.
func (m *Manager) Resend(ctx context.Context, organizationID, invitationID string) error {
	inv, err := m.store.GetValid(ctx, organizationID, invitationID, m.now())
	if err != nil {
		return fmt.Errorf("get invitation: %w", err)
	}
	if inv == nil {
		return ErrNotFound
	}

	org, err := m.orgs.GetByID(ctx, organizationID)
	if err != nil {
		return fmt.Errorf("get organization: %w", err)
	}
	if org == nil {
		return ErrNotFound
	}

	if err := m.dispatch(ctx, org, inv); err != nil {
		return err
	}

	m.logger.Info("invitation resent", "invitation_id", inv.ID, "organization_id", organizationID)
	m.record("resent", inv)
	return nil
}

// Cancel deletes an invitation in any state. A second call returns ErrNotFound.
func (m *Manager) Cancel(ctx context.Context, organizationID, invitationID string) error {
	inv, err := m.store.GetByID(ctx, organizationID, invitationID)
	if err != nil {
		return fmt.Errorf("get invitation: %w", err)
	}
	if inv == nil {
		return ErrNotFound
	}

	deleted, err := m.store.Delete(ctx, organizationID, invitationID)
	if err != nil {
		return fmt.Errorf("delete invitation: %w", err)
	}
	if !deleted {
		return ErrNotFound
	}

	m.logger.Info("invitation cancelled", "invitation_id", inv.ID, "organization_id", organizationID)
	m.record("cancelled", inv)
	return nil
}

// Listing pairs an invitation with its status at the time of the call.
type Listing struct {
	model.Invitation
	Status model.InvitationStatus `json:"status"`
}

func (m *Manager) List(ctx context.Context, organizationID string) ([]Listing, error) {
	invs, err := m.store.List(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	now := m.now()
	out := make([]Listing, 0, len(invs))
	for _, inv := range invs {
		out = append(out, Listing{Invitation: inv, Status: inv.Status(now)})
	}
	return out, nil
}

// Accept redeems a pending invitation for userID and makes them a member.
// An existing membership is left unchanged.
// Preview describes a pending invitation to whoever holds its token.
type Preview struct {
	OrganizationID   string    `json:"organization_id"`
	OrganizationName string    `json:"organization_name"`
	Email            string    `json:"email"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// Preview resolves a pending invitation by token without accepting it.
// Expired, accepted and unknown tokens return ErrNotFound.
func (m *Manager) Preview(ctx context.Context, token string) (*Preview, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: token is required", ErrValidation)
	}
	inv, err := m.store.GetValidByToken(ctx, token, m.now())
	if err != nil {
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	if inv == nil {
		return nil, ErrNotFound
	}
	org, err := m.orgs.GetByID(ctx, inv.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	if org == nil {
		return nil, ErrNotFound
	}
	return &Preview{
		OrganizationID:   org.ID,
		OrganizationName: org.Name,
		Email:            inv.Email,
		ExpiresAt:        inv.ExpiresAt,
	}, nil
}

func (m *Manager) Accept(ctx context.Context, token, userID string) (*model.Invitation, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: token is required", ErrValidation)
	}

	now := m.now()
	inv, err := m.store.GetValidByToken(ctx, token, now)
	if err != nil {
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	if inv == nil {
		return nil, ErrNotFound
	}

	user, err := m.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrNotFound
	}
	if !strings.EqualFold(user.Email, inv.Email) {
		return nil, ErrForbidden
	}

	member, err := m.orgs.GetMember(ctx, inv.OrganizationID, userID)
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	if member == nil {
		if _, err := m.orgs.AddMember(ctx, inv.OrganizationID, userID, model.RoleMember); err != nil && !errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("add member: %w", err)
		}
	}

	ok, err := m.store.MarkAccepted(ctx, inv.ID, now)
	if err != nil {
		return nil, fmt.Errorf("mark accepted: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	at := now.UTC()
	inv.AcceptedAt = &at

	m.logger.Info("invitation accepted", "invitation_id", inv.ID, "organization_id", inv.OrganizationID, "user_id", userID)
	m.record("accepted", inv)
	return inv, nil
}

// PurgeExpired deletes expired, unaccepted invitations and reports how many.
func (m *Manager) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := m.store.DeleteExpired(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("purge expired invitations: %w", err)
	}
	if m.recorder != nil {
		m.recorder.InvitationEvent("purged", int(n))
	}
	return n, nil
}

func (m *Manager) dispatch(ctx context.Context, org *model.Organization, inv *model.Invitation) error {
	err := m.notifier.Send(ctx, email.KindInvitation, inv.Email, email.Payload{
		Token:            inv.Token,
		OrganizationName: org.Name,
		ExpiresAt:        inv.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}
	return nil
}

func (m *Manager) record(action string, inv *model.Invitation) {
	if m.recorder != nil {
		m.recorder.InvitationEvent(action, 1)
	}
	if m.broadcaster != nil {
		m.broadcaster.Broadcast(websocket.NewMessage(inv.OrganizationID, "invitation", action, inv.ID,
			map[string]any{"email": inv.Email}))
	}
}
