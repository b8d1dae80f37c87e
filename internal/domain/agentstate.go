package domain

import (
	"context"
	"time"
)

// AgentState is a point-in-time snapshot of an agent's status, keyed by
// (AgentID, Timestamp). Append-only and time-bounded: rows expire after a
// retention window and are purged, never updated.
type AgentState struct {
	AgentID        string    `json:"agentId"`
	Timestamp      time.Time `json:"timestamp"`
	CurrentState   string    `json:"currentState"`
	PreviousState  string    `json:"previousState,omitempty"`
	StateStartTime time.Time `json:"stateStartTime"`
	Duration       int       `json:"duration"` // seconds in current state
	SupervisorID   string    `json:"supervisorId,omitempty"`
	AlertSent      bool      `json:"alertSent"`
	ContactID      string    `json:"contactId,omitempty"` // set when on a call
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// Validate checks required fields on a decoded agent-state image.
func (a *AgentState) Validate() error {
	if a.AgentID == "" {
		return NewValidationError("agent state: missing agentId")
	}
	if a.Timestamp.IsZero() {
		return NewValidationError("agent state: missing timestamp")
	}
	if a.CurrentState == "" {
		return NewValidationError("agent state: missing currentState")
	}
	return nil
}

type AgentStateRepository interface {
	Append(ctx context.Context, a *AgentState) error
	ListByAgent(ctx context.Context, agentID string, since time.Time) ([]*AgentState, error)

	// PurgeExpired deletes snapshots whose retention window has elapsed and
	// returns the number of rows removed.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
