package domain

import (
	"time"

	"github.com/lanstar128/jjds-auth-service/internal/device"
)

// Metadata is the login context recorded on a session.
type Metadata struct {
	ClientVersion string `json:"client_version"`
	SystemInfo    string `json:"system_info"`
	DeviceID      string `json:"device_id"`
	IPAddress     string `json:"ip_address"`
}

// Session is one live login of a user on one device class. For a given
// (user, device class) pair at most one Session exists at any time; a new
// login of the same class atomically supersedes the prior one. Issued tokens
// are bound to the session id, so superseding a session invalidates them.
type Session struct {
	ID          string       `json:"id"`
	UserID      int64        `json:"user_id"`
	DeviceClass device.Class `json:"device_class"`
	Metadata

	// RefreshTokenHash is the SHA-256 hash of the session's current opaque
	// refresh token; rotated on every refresh.
	RefreshTokenHash string `json:"refresh_token_hash"`
	// RefreshExpiresAt bounds the session's life: a session whose refresh
	// token expired without renewal is dead.
	RefreshExpiresAt time.Time  `json:"refresh_expires_at"`
	CreatedAt        time.Time  `json:"created_at"`
	LastSeenAt       *time.Time `json:"last_seen_at,omitempty"`
}

// Expired reports whether the session's refresh window has passed at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.RefreshExpiresAt)
}
