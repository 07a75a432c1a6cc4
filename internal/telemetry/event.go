// Package telemetry emits login lifecycle events and metrics. Emission is
// best-effort and asynchronous; a slow or down sink never blocks or fails a
// login.
package telemetry

import (
	"time"
)

// Event types for the login lifecycle.
const (
	EventLoginSuccess   = "login_success"
	EventLoginFailure   = "login_failure"
	EventSessionEvicted = "session_evicted"
	EventTokenRefreshed = "token_refreshed"
	EventLogout         = "logout"
)

// Event is one login lifecycle event, serialized as JSON on the wire.
// It never carries passwords or token material.
type Event struct {
	EventType        string    `json:"event_type"`
	UserID           int64     `json:"user_id,omitempty"`
	SessionID        string    `json:"session_id,omitempty"`
	DeviceClass      string    `json:"device_class,omitempty"`
	EvictedSessionID string    `json:"evicted_session_id,omitempty"`
	IPAddress        string    `json:"ip_address,omitempty"`
	ClientVersion    string    `json:"client_version,omitempty"`
	// FailureCode is the business error code (2001, 2002, ...) on
	// login_failure events.
	FailureCode int       `json:"failure_code,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
