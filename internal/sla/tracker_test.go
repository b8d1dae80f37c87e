package sla

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/casebridge/internal/domain"
)

// fakeEscalationRepo is an in-memory EscalationRepository with optional
// hooks to force specific outcomes.
type fakeEscalationRepo struct {
	mu          sync.Mutex
	escalations []*domain.Escalation

	transitionHook func(contactID, escalationID string, expected, next domain.EscalationStatus) (bool, error)
}

func (r *fakeEscalationRepo) CreateIfNoneActive(_ context.Context, e *domain.Escalation) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.escalations {
		if existing.ContactID == e.ContactID && existing.Status.Active() {
			return false, nil
		}
	}
	clone := *e
	r.escalations = append(r.escalations, &clone)
	return true, nil
}

func (r *fakeEscalationRepo) GetByID(_ context.Context, contactID, escalationID string) (*domain.Escalation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.escalations {
		if e.ContactID == contactID && e.EscalationID == escalationID {
			clone := *e
			return &clone, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeEscalationRepo) TransitionStatus(_ context.Context, contactID, escalationID string, expected, next domain.EscalationStatus) (bool, error) {
	if r.transitionHook != nil {
		return r.transitionHook(contactID, escalationID, expected, next)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.escalations {
		if e.ContactID != contactID || e.EscalationID != escalationID {
			continue
		}
		if e.Status != expected || !expected.ValidTransition(next) {
			return false, nil
		}
		e.Status = next
		return true, nil
	}
	return false, domain.ErrNotFound
}

func (r *fakeEscalationRepo) ListDueBefore(_ context.Context, status domain.EscalationStatus, cutoff time.Time, limit int) ([]*domain.Escalation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.Escalation
	for _, e := range r.escalations {
		if e.Status == status && !e.SLADeadline.After(cutoff) {
			clone := *e
			out = append(out, &clone)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeEscalationRepo) all() []*domain.Escalation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.Escalation(nil), r.escalations...)
}

func trackerPolicies() PolicySet {
	return PolicySet{
		"billing": {Window: 4 * time.Hour, Priority: domain.PriorityHigh, Queue: "billing-escalations"},
		"default": {Window: 24 * time.Hour, Priority: domain.PriorityMedium, Queue: "general-escalations"},
	}
}

func newTestTracker(repo *fakeEscalationRepo, at time.Time) *Tracker {
	tracker := NewTracker(repo, trackerPolicies(), 15*time.Minute)
	tracker.now = func() time.Time { return at }
	return tracker
}

func TestTracker_EvaluateSummary_NegativeSentiment(t *testing.T) {
	t.Parallel()

	callTime := time.Date(2025, 11, 8, 10, 0, 0, 0, time.UTC)
	now := callTime.Add(time.Minute)

	repo := &fakeEscalationRepo{}
	tracker := newTestTracker(repo, now)

	esc, err := tracker.EvaluateSummary(context.Background(), &domain.CallSummary{
		ContactID:  "abc123",
		Timestamp:  callTime,
		AgentID:    "agent-001",
		Sentiment:  domain.SentimentNegative,
		Category:   "billing",
		CustomerID: "cust-42",
	})
	require.NoError(t, err)
	require.NotNil(t, esc)

	assert.Equal(t, TypeNegativeSentiment, esc.Type)
	assert.Equal(t, domain.PriorityHigh, esc.Priority)
	assert.Equal(t, domain.EscalationStatusOpen, esc.Status)
	assert.Equal(t, "billing-escalations", esc.AssignedQueue)
	assert.Equal(t, "cust-42", esc.CustomerID)
	assert.NotEmpty(t, esc.EscalationID)

	// The deadline is anchored on the call timestamp, not on wall clock.
	assert.Equal(t, callTime.Add(4*time.Hour), esc.SLADeadline)
	assert.Equal(t, now, esc.CreatedAt)
}

func TestTracker_EvaluateSummary_NotWarranted(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		summary domain.CallSummary
	}{
		{"neutral sentiment", domain.CallSummary{Sentiment: domain.SentimentNeutral, Category: "billing"}},
		{"positive sentiment", domain.CallSummary{Sentiment: domain.SentimentPositive, Category: "billing"}},
		{"negative but ineligible category", domain.CallSummary{Sentiment: domain.SentimentNegative, Category: "smalltalk"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := &fakeEscalationRepo{}
			tracker := newTestTracker(repo, time.Now())

			s := tt.summary
			s.ContactID = "abc123"
			s.Timestamp = time.Now()

			esc, err := tracker.EvaluateSummary(context.Background(), &s)
			require.NoError(t, err)
			assert.Nil(t, esc)
			assert.Empty(t, repo.all())
		})
	}
}

func TestTracker_EvaluateSummary_AgentDispositionUsesDefaultPolicy(t *testing.T) {
	t.Parallel()

	callTime := time.Date(2025, 11, 8, 10, 0, 0, 0, time.UTC)
	repo := &fakeEscalationRepo{}
	tracker := newTestTracker(repo, callTime)

	// The agent requested escalation on a category with no explicit policy:
	// the default entry supplies window, priority, and queue.
	esc, err := tracker.EvaluateSummary(context.Background(), &domain.CallSummary{
		ContactID:           "abc123",
		Timestamp:           callTime,
		Sentiment:           domain.SentimentPositive,
		Category:            "technical",
		EscalationRequested: true,
	})
	require.NoError(t, err)
	require.NotNil(t, esc)

	assert.Equal(t, TypeAgentDisposition, esc.Type)
	assert.Equal(t, domain.PriorityMedium, esc.Priority)
	assert.Equal(t, callTime.Add(24*time.Hour), esc.SLADeadline)
}

func TestTracker_EvaluateSummary_AtMostOneActivePerContact(t *testing.T) {
	t.Parallel()

	callTime := time.Date(2025, 11, 8, 10, 0, 0, 0, time.UTC)
	repo := &fakeEscalationRepo{}
	tracker := newTestTracker(repo, callTime)

	s := &domain.CallSummary{
		ContactID: "abc123",
		Timestamp: callTime,
		Sentiment: domain.SentimentNegative,
		Category:  "billing",
	}

	first, err := tracker.EvaluateSummary(context.Background(), s)
	require.NoError(t, err)
	require.NotNil(t, first)

	// Duplicate delivery while the first escalation is still active.
	second, err := tracker.EvaluateSummary(context.Background(), s)
	require.NoError(t, err)
	assert.Nil(t, second)
	assert.Len(t, repo.all(), 1)

	// Once the active escalation settles, a new one may open.
	ok, err := repo.TransitionStatus(context.Background(), first.ContactID, first.EscalationID,
		domain.EscalationStatusOpen, domain.EscalationStatusResolved)
	require.NoError(t, err)
	require.True(t, ok)

	third, err := tracker.EvaluateSummary(context.Background(), s)
	require.NoError(t, err)
	assert.NotNil(t, third)
	assert.Len(t, repo.all(), 2)
}

func TestTracker_EvaluateAgentState_Stuck(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 11, 8, 10, 0, 0, 0, time.UTC)
	repo := &fakeEscalationRepo{}
	tracker := newTestTracker(repo, at)

	esc, err := tracker.EvaluateAgentState(context.Background(), &domain.AgentState{
		AgentID:      "agent-001",
		Timestamp:    at,
		CurrentState: "NOT_READY",
		Duration:     16 * 60,
		ContactID:    "abc123",
	})
	require.NoError(t, err)
	require.NotNil(t, esc)

	assert.Equal(t, TypeAgentStuck, esc.Type)
	assert.Equal(t, "abc123", esc.ContactID)
	assert.Equal(t, at.Add(24*time.Hour), esc.SLADeadline)
}

func TestTracker_EvaluateAgentState_ThresholdBoundary(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 11, 8, 10, 0, 0, 0, time.UTC)

	// Exactly at the threshold triggers; one second under does not.
	for _, tt := range []struct {
		name     string
		duration int
		want     bool
	}{
		{"at threshold", 15 * 60, true},
		{"under threshold", 15*60 - 1, false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := &fakeEscalationRepo{}
			tracker := newTestTracker(repo, at)

			esc, err := tracker.EvaluateAgentState(context.Background(), &domain.AgentState{
				AgentID:      "agent-001",
				Timestamp:    at,
				CurrentState: "ACW",
				Duration:     tt.duration,
				ContactID:    "abc123",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, esc != nil)
		})
	}
}
