// Package sla derives escalation need from entity state, computes deadlines
// from per-category windows, and promotes overdue escalations to breached on
// a periodic scan.
package sla

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/casebridge/internal/domain"
)

// Escalation types produced by the rule set.
const (
	TypeNegativeSentiment = "negative_sentiment"
	TypeAgentDisposition  = "agent_disposition"
	TypeAgentStuck        = "agent_stuck"
)

// nonProductiveStates are agent states that trigger the stuck-agent rule
// when held too long during a call.
var nonProductiveStates = map[string]bool{ //nolint:gochecknoglobals // rule table
	"ACW":       true,
	"NOT_READY": true,
}

// Tracker applies the escalation rule set on incoming entity changes.
type Tracker struct {
	escalations     domain.EscalationRepository
	policies        PolicySet
	agentStuckAfter time.Duration

	now func() time.Time
}

func NewTracker(escalations domain.EscalationRepository, policies PolicySet, agentStuckAfter time.Duration) *Tracker {
	return &Tracker{
		escalations:     escalations,
		policies:        policies,
		agentStuckAfter: agentStuckAfter,
		now:             time.Now,
	}
}

// EvaluateSummary decides whether an updated call summary warrants an
// escalation and creates one when no open or in_progress escalation exists
// for the contact. Returns nil when nothing was created, including the case
// where an active escalation already holds the slot.
func (t *Tracker) EvaluateSummary(ctx context.Context, s *domain.CallSummary) (*domain.Escalation, error) {
	escalationType := ""
	switch {
	case s.EscalationRequested:
		escalationType = TypeAgentDisposition
	case s.Sentiment == domain.SentimentNegative && t.policies.Eligible(s.Category):
		escalationType = TypeNegativeSentiment
	default:
		return nil, nil
	}

	policy, ok := t.policies.For(s.Category)
	if !ok {
		log.Warn().Str("contact_id", s.ContactID).Str("category", s.Category).
			Msg("escalation warranted but no policy configured")
		return nil, nil
	}

	esc := &domain.Escalation{
		ContactID:     s.ContactID,
		EscalationID:  uuid.NewString(),
		Type:          escalationType,
		Priority:      policy.Priority,
		Status:        domain.EscalationStatusOpen,
		SLADeadline:   s.Timestamp.Add(policy.Window),
		AssignedQueue: policy.Queue,
		CustomerID:    s.CustomerID,
		CreatedAt:     t.now(),
	}

	return t.create(ctx, esc)
}

// EvaluateAgentState applies the stuck-agent rule: an agent held in a
// non-productive state beyond the configured threshold while associated with
// a contact warrants an escalation on that contact.
func (t *Tracker) EvaluateAgentState(ctx context.Context, a *domain.AgentState) (*domain.Escalation, error) {
	if a.ContactID == "" || a.AlertSent {
		return nil, nil
	}
	if !nonProductiveStates[a.CurrentState] {
		return nil, nil
	}
	if time.Duration(a.Duration)*time.Second < t.agentStuckAfter {
		return nil, nil
	}

	policy, ok := t.policies.For(DefaultCategory)
	if !ok {
		log.Warn().Str("agent_id", a.AgentID).Msg("stuck agent but no default policy configured")
		return nil, nil
	}

	esc := &domain.Escalation{
		ContactID:    a.ContactID,
		EscalationID: uuid.NewString(),
		Type:         TypeAgentStuck,
		Priority:     policy.Priority,
		Status:       domain.EscalationStatusOpen,
		SLADeadline:  a.Timestamp.Add(policy.Window),
		CreatedAt:    t.now(),
	}

	return t.create(ctx, esc)
}

// create inserts conditionally on "no active escalation for the contact",
// which keeps the invariant under concurrent and duplicate event delivery.
func (t *Tracker) create(ctx context.Context, esc *domain.Escalation) (*domain.Escalation, error) {
	created, err := t.escalations.CreateIfNoneActive(ctx, esc)
	if err != nil {
		return nil, fmt.Errorf("sla.Tracker: create escalation: %w", err)
	}
	if !created {
		log.Debug().Str("contact_id", esc.ContactID).Str("type", esc.Type).
			Msg("active escalation already exists")
		return nil, nil
	}

	log.Info().Str("contact_id", esc.ContactID).Str("escalation_id", esc.EscalationID).
		Str("type", esc.Type).Time("sla_deadline", esc.SLADeadline).
		Msg("escalation created")

	return esc, nil
}
