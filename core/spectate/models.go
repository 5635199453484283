package spectate

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Permission statuses
const (
	StatusGranted = "granted"
	StatusNone    = "none"
)

// Permission is a user's consent to be spectated by an admin.
type Permission struct {
	UserID            string     `json:"user_id"`
	Status            string     `json:"status"`
	GrantedAt         *time.Time `json:"granted_at"`
	ExpiresAt         *time.Time `json:"expires_at"`
	SpectatingAdminID string     `json:"spectating_admin_id"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Active reports whether admins may start spectating at `now`.
func (p Permission) Active(now time.Time) bool {
	return p.Status == StatusGranted && p.ExpiresAt != nil && p.ExpiresAt.After(now)
}

type Grant struct {
	Hours int `json:"hours" validate:"required,oneof=1 24 168"`
}

func (g Grant) Validate(validate *validator.Validate) error { return validate.Struct(g) }

// Log records a spectate session.
type Log struct {
	ID        string     `json:"id"`
	AdminID   string     `json:"admin_id"`
	AdminName string     `json:"admin_name"`
	UserID    string     `json:"user_id"`
	UserName  string     `json:"user_name"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`
}
