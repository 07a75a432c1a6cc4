package domain

import "time"

// AuditLog is one persisted audit row for a login, logout, refresh, or
// eviction. UserID is zero when the action never resolved a user (e.g. a
// login attempt for an unknown phone).
type AuditLog struct {
	ID        string
	UserID    int64
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
