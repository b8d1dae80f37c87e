package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/casebridge/internal/domain"
	"github.com/gosuda/casebridge/internal/retry"
	"github.com/gosuda/casebridge/internal/sla"
	syncengine "github.com/gosuda/casebridge/internal/sync"
)

// agentStateRetention is how long agent state snapshots are kept before the
// purge loop removes them.
const agentStateRetention = 30 * 24 * time.Hour

// SummaryHandler mirrors call-summary images into the entity store, runs the
// escalation rule set, and drives the idempotent external sync under the
// retry policy.
type SummaryHandler struct {
	summaries domain.CallSummaryRepository
	engine    *syncengine.Engine
	tracker   *sla.Tracker
	policy    retry.Policy
}

func NewSummaryHandler(summaries domain.CallSummaryRepository, engine *syncengine.Engine, tracker *sla.Tracker, policy retry.Policy) *SummaryHandler {
	return &SummaryHandler{
		summaries: summaries,
		engine:    engine,
		tracker:   tracker,
		policy:    policy,
	}
}

func (h *SummaryHandler) Handle(ctx context.Context, rec domain.ChangeRecord) error {
	summary, err := decodeSummary(rec)
	if err != nil {
		return err
	}

	// Last-writer-wins on the entity timestamp: an out-of-order redelivery of
	// an older image cannot overwrite a newer one.
	if err := h.summaries.Put(ctx, summary); err != nil {
		return domain.NewDatabaseError("dispatch: store summary", err)
	}

	if _, err := h.tracker.EvaluateSummary(ctx, summary); err != nil {
		return err
	}

	advanced, err := h.summaries.CompareAndSwapStatus(ctx, summary.ContactID, summary.Timestamp,
		domain.SummaryStatusPending, domain.SummaryStatusProcessing)
	if err != nil {
		return domain.NewDatabaseError("dispatch: advance summary to processing", err)
	}
	if !advanced {
		current, getErr := h.summaries.Get(ctx, summary.ContactID, summary.Timestamp)
		if getErr != nil {
			return domain.NewDatabaseError("dispatch: reload summary", getErr)
		}
		if current.Status != domain.SummaryStatusProcessing {
			// Completed or failed already; redelivery has nothing left to do.
			log.Debug().Str("contact_id", summary.ContactID).Str("status", string(current.Status)).
				Msg("summary already settled, skipping sync")
			return nil
		}
		summary = current
	} else {
		summary.Status = domain.SummaryStatusProcessing
	}

	syncErr := h.policy.Do(ctx, func(ctx context.Context) error {
		_, err := h.engine.Sync(ctx, summary)
		return err
	})
	if syncErr == nil {
		return nil
	}

	// Credential rejection leaves the entity untouched so a future delivery
	// can retry once the secret rotates. Everything else that ends here has
	// used up its budget and the entity is marked failed.
	if errors.Is(syncErr, syncengine.ErrAuthFailed) {
		return syncErr
	}

	var exhausted *retry.ExhaustedError
	if errors.As(syncErr, &exhausted) {
		_, casErr := h.summaries.CompareAndSwapStatus(ctx, summary.ContactID, summary.Timestamp,
			domain.SummaryStatusProcessing, domain.SummaryStatusFailed)
		if casErr != nil {
			log.Error().Err(casErr).Str("contact_id", summary.ContactID).
				Msg("failed to mark summary failed after retry exhaustion")
		}
	}

	return syncErr
}

// AgentStateHandler appends agent state snapshots and applies the
// stuck-agent escalation rule.
type AgentStateHandler struct {
	states  domain.AgentStateRepository
	tracker *sla.Tracker
}

func NewAgentStateHandler(states domain.AgentStateRepository, tracker *sla.Tracker) *AgentStateHandler {
	return &AgentStateHandler{states: states, tracker: tracker}
}

func (h *AgentStateHandler) Handle(ctx context.Context, rec domain.ChangeRecord) error {
	state, err := decodeAgentState(rec)
	if err != nil {
		return err
	}

	if err := h.states.Append(ctx, state); err != nil {
		return domain.NewDatabaseError("dispatch: store agent state", err)
	}

	_, err = h.tracker.EvaluateAgentState(ctx, state)
	return err
}

// JourneyHandler appends IVR journey records.
type JourneyHandler struct {
	journeys domain.IVRJourneyRepository
}

func NewJourneyHandler(journeys domain.IVRJourneyRepository) *JourneyHandler {
	return &JourneyHandler{journeys: journeys}
}

func (h *JourneyHandler) Handle(ctx context.Context, rec domain.ChangeRecord) error {
	journey, err := decodeJourney(rec)
	if err != nil {
		return err
	}

	if err := h.journeys.Append(ctx, journey); err != nil {
		return domain.NewDatabaseError("dispatch: store ivr journey", err)
	}

	return nil
}

func decodeSummary(rec domain.ChangeRecord) (*domain.CallSummary, error) {
	if len(rec.NewImage) == 0 {
		return nil, domain.NewValidationError("dispatch: record " + rec.RecordID + " has no new image")
	}

	var s domain.CallSummary
	if err := json.Unmarshal(rec.NewImage, &s); err != nil {
		return nil, domain.NewValidationError(fmt.Sprintf("dispatch: decode summary image: %v", err))
	}
	if s.Status == "" {
		s.Status = domain.SummaryStatusPending
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	return &s, nil
}

func decodeAgentState(rec domain.ChangeRecord) (*domain.AgentState, error) {
	if len(rec.NewImage) == 0 {
		return nil, domain.NewValidationError("dispatch: record " + rec.RecordID + " has no new image")
	}

	var a domain.AgentState
	if err := json.Unmarshal(rec.NewImage, &a); err != nil {
		return nil, domain.NewValidationError(fmt.Sprintf("dispatch: decode agent state image: %v", err))
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if a.ExpiresAt.IsZero() {
		a.ExpiresAt = a.Timestamp.Add(agentStateRetention)
	}

	return &a, nil
}

func decodeJourney(rec domain.ChangeRecord) (*domain.IVRJourney, error) {
	if len(rec.NewImage) == 0 {
		return nil, domain.NewValidationError("dispatch: record " + rec.RecordID + " has no new image")
	}

	var j domain.IVRJourney
	if err := json.Unmarshal(rec.NewImage, &j); err != nil {
		return nil, domain.NewValidationError(fmt.Sprintf("dispatch: decode journey image: %v", err))
	}
	if j.SortKey == "" {
		j.SortKey = domain.JourneySortKeyMetadata
	}
	if err := j.Validate(); err != nil {
		return nil, err
	}

	return &j, nil
}
