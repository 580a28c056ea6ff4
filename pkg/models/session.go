package models

import "time"

// SessionState represents where the shared browser session is in its login lifecycle
type SessionState string

const (
	StateLoggedOut SessionState = "LOGGED_OUT"
	StateLoggingIn SessionState = "LOGGING_IN"
	StateLoggedIn  SessionState = "LOGGED_IN"
	StateFailed    SessionState = "FAILED"
)

// SessionStatus is the snapshot reported by GET /api/session
type SessionStatus struct {
	State       SessionState `json:"state"`
	LaunchedAt  *time.Time   `json:"launchedAt,omitempty"`
	LoggedInAt  *time.Time   `json:"loggedInAt,omitempty"`
	ActivePages int64        `json:"activePages"`
	LastError   string       `json:"lastError,omitempty"`
}
