package model

import "time"

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationExpired  InvitationStatus = "expired"
	InvitationAccepted InvitationStatus = "accepted"
)

type Invitation struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	OrganizationID string     `json:"organization_id"`
	Token          string     `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	AcceptedAt     *time.Time `json:"accepted_at"`
}

// Status derives the lifecycle state at the given instant. Cancelled
// invitations are deleted, so they never reach this point.
func (i *Invitation) Status(now time.Time) InvitationStatus {
	switch {
	case i.AcceptedAt != nil:
		return InvitationAccepted
	case !now.Before(i.ExpiresAt):
		return InvitationExpired
	default:
		return InvitationPending
	}
}

// Valid reports whether the invitation can still be resent or accepted.
func (i *Invitation) Valid(now time.Time) bool {
	return i.Status(now) == InvitationPending
}
