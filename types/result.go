package types

import "time"

// SessionState is the state of a sync session.
type SessionState string

// Session states. Completed, Cancelled and Failed are terminal.
const (
	StateIdle      SessionState = "idle"
	StateRunning   SessionState = "running"
	StateCompleted SessionState = "completed"
	StateCancelled SessionState = "cancelled"
	StateFailed    SessionState = "failed"
)

// IsTerminal returns true for absorbing states.
func (s SessionState) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// SyncResult is the terminal result of a sync session.
type SyncResult struct {
	SyncID     string       `json:"sync_id" yaml:"sync_id"`
	PropertyID string       `json:"property_id" yaml:"property_id"`
	State      SessionState `json:"state" yaml:"state"`
	// Message is the human-readable failure reason for failed sessions.
	Message         string    `json:"message,omitempty" yaml:"message,omitempty"`
	Snapshot        Snapshot  `json:"snapshot" yaml:"snapshot"`
	StartedAt       time.Time `json:"started_at" yaml:"started_at"`
	EndedAt         time.Time `json:"ended_at" yaml:"ended_at"`
	DecodeErrors    int64     `json:"decode_errors" yaml:"decode_errors"`
	UnknownEvents   int64     `json:"unknown_events" yaml:"unknown_events"`
	CancelRequested bool      `json:"cancel_requested" yaml:"cancel_requested"`
}

// Duration returns the wall time of the session.
func (r *SyncResult) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// Diagnostic is an advisory, non-fatal problem surfaced to the caller,
// such as a frame whose payload could not be decoded.
type Diagnostic struct {
	EventType EventType
	Message   string
	Err       error
}
