package model

import "time"

type Session struct {
	ID             string    `json:"id"`
	Token          string    `json:"-"`
	UserID         string    `json:"user_id"`
	OrganizationID string    `json:"organization_id"`
	ExpiresAt      time.Time `json:"expires_at"`
	CreatedAt      time.Time `json:"created_at"`
}
