package model

import (
	"time"

	"github.com/google/uuid"
)

// ShareLink lets anonymous takers start sessions from a link-visible
// template. The URL token is stored as a SHA-256 hex hash; the cleartext
// is returned once at creation.
type ShareLink struct {
	ID         uuid.UUID  `json:"id"`
	TemplateID uuid.UUID  `json:"template_id"`
	TokenHash  string     `json:"-"`
	CreatedBy  string     `json:"created_by"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	MaxUses    *int       `json:"max_uses,omitempty"`
	UseCount   int        `json:"use_count"`
	Revoked    bool       `json:"revoked"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Usable reports whether the link can mint new sessions at now.
func (l ShareLink) Usable(now time.Time) bool {
	if l.Revoked {
		return false
	}
	if l.ExpiresAt != nil && l.ExpiresAt.Before(now) {
		return false
	}
	if l.MaxUses != nil && l.UseCount >= *l.MaxUses {
		return false
	}
	return true
}
