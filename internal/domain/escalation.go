package domain

import (
	"context"
	"time"
)

type EscalationStatus string

const (
	EscalationStatusOpen       EscalationStatus = "open"
	EscalationStatusInProgress EscalationStatus = "in_progress"
	EscalationStatusResolved   EscalationStatus = "resolved"
	EscalationStatusBreached   EscalationStatus = "breached"
)

// ValidTransition checks if an escalation status transition is allowed.
// Allowed: open->{in_progress,resolved,breached}, in_progress->{resolved,breached}.
// Resolved and breached are terminal.
func (s EscalationStatus) ValidTransition(to EscalationStatus) bool {
	switch s {
	case EscalationStatusOpen:
		return to == EscalationStatusInProgress || to == EscalationStatusResolved || to == EscalationStatusBreached
	case EscalationStatusInProgress:
		return to == EscalationStatusResolved || to == EscalationStatusBreached
	default:
		return false
	}
}

// Active reports whether the status counts against the one-active-escalation-
// per-contact invariant.
func (s EscalationStatus) Active() bool {
	return s == EscalationStatusOpen || s == EscalationStatusInProgress
}

type EscalationPriority string

const (
	PriorityUrgent EscalationPriority = "urgent"
	PriorityHigh   EscalationPriority = "high"
	PriorityMedium EscalationPriority = "medium"
	PriorityLow    EscalationPriority = "low"
)

// Escalation is an SLA-tracked follow-up task on a contact, keyed by
// (ContactID, EscalationID). At most one open or in_progress escalation may
// exist per contact at a time.
type Escalation struct {
	ContactID      string             `json:"contactId"`
	EscalationID   string             `json:"escalationId"`
	Type           string             `json:"escalationType"`
	Priority       EscalationPriority `json:"priority"`
	Status         EscalationStatus   `json:"status"`
	SLADeadline    time.Time          `json:"slaDeadline"`
	AssignedQueue  string             `json:"assignedQueue,omitempty"`
	CustomerID     string             `json:"customerId,omitempty"`
	ExternalTaskID string             `json:"externalTaskId,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
	ResolvedAt     *time.Time         `json:"resolvedAt,omitempty"`
}

type EscalationRepository interface {
	// CreateIfNoneActive inserts e only when the contact has no open or
	// in_progress escalation. Returns false when one already exists.
	CreateIfNoneActive(ctx context.Context, e *Escalation) (bool, error)

	GetByID(ctx context.Context, contactID, escalationID string) (*Escalation, error)

	// TransitionStatus moves the escalation from the expected status to next.
	// Returns false when the stored status differs, so concurrent scan and
	// resolution paths cannot overwrite each other.
	TransitionStatus(ctx context.Context, contactID, escalationID string, expected, next EscalationStatus) (bool, error)

	// ListDueBefore returns escalations in the given status whose deadline is
	// at or before the cutoff, ordered by deadline ascending.
	ListDueBefore(ctx context.Context, status EscalationStatus, cutoff time.Time, limit int) ([]*Escalation, error)
}
