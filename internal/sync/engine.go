// Package sync converts call summaries into external case-management records
// and upserts them exactly-once per idempotency key.
package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/casebridge/internal/domain"
	"github.com/gosuda/casebridge/internal/secrets"
)

// ErrAuthFailed is returned by CaseClient implementations when the external
// system rejects the supplied credentials.
var ErrAuthFailed = errors.New("sync: authentication failed") //nolint:gochecknoglobals // sentinel error

// CaseFields is the external representation of a call summary. The
// idempotency key is written onto the external record so the key lookup can
// find cases whose id write-back was lost.
type CaseFields struct {
	IdempotencyKey string
	Subject        string
	Description    string
	ContactID      string
	CustomerPhone  string
	Category       string
	Sentiment      string
	AgentID        string
	NextSteps      string
}

// CaseClient is the consumed upsert/lookup contract of the external
// case-management system. Implementations must return ErrAuthFailed (wrapped
// is fine) on credential rejection and tag other failures with domain error
// kinds so the engine can classify them.
type CaseClient interface {
	// Lookup finds an existing case by idempotency key. Returns "" when none
	// exists.
	Lookup(ctx context.Context, credentials, idempotencyKey string) (string, error)

	// Upsert creates or updates a case. A non-empty externalID selects the
	// update path. Returns the case's external identifier.
	Upsert(ctx context.Context, credentials, externalID string, fields CaseFields) (string, error)
}

// Engine performs the idempotent sync of one call summary. It holds no
// per-invocation state beyond the credential cache; correctness under
// concurrent invocations comes from the store's conditional writes.
type Engine struct {
	summaries  domain.CallSummaryRepository
	cases      CaseClient
	creds      *secrets.Cache
	secretName string
}

func NewEngine(summaries domain.CallSummaryRepository, cases CaseClient, creds *secrets.Cache, secretName string) *Engine {
	return &Engine{
		summaries:  summaries,
		cases:      cases,
		creds:      creds,
		secretName: secretName,
	}
}

// Sync upserts the summary into the external case system and returns the
// external case id. The idempotency key is the summary's internal key; the
// two-tier lookup (stored id, then key lookup) catches the case where a
// previous invocation created the external record but crashed before the
// write-back.
func (e *Engine) Sync(ctx context.Context, s *domain.CallSummary) (string, error) {
	credentials, err := e.creds.Get(ctx, e.secretName)
	if err != nil {
		return "", domain.NewExternalError("sync.Engine.Sync: acquire credentials", err, true)
	}

	externalID := s.ExternalCaseID
	if externalID == "" {
		externalID, err = e.cases.Lookup(ctx, credentials, s.IdempotencyKey())
		if err != nil {
			return "", e.classify(ctx, s, "lookup", err)
		}
	}

	caseID, err := e.cases.Upsert(ctx, credentials, externalID, fieldsFrom(s))
	if err != nil {
		return "", e.classify(ctx, s, "upsert", err)
	}

	if s.ExternalCaseID == "" {
		set, setErr := e.summaries.SetExternalCaseID(ctx, s.ContactID, s.Timestamp, caseID)
		if setErr != nil {
			return "", domain.NewDatabaseError("sync.Engine.Sync: write back case id", setErr)
		}
		if !set {
			// A concurrent invocation won the write-once race; both hold the
			// same case id via the idempotency-key lookup.
			log.Debug().Str("contact_id", s.ContactID).Str("case_id", caseID).
				Msg("external case id already set")
		}
	}

	done, err := e.summaries.CompareAndSwapStatus(ctx, s.ContactID, s.Timestamp,
		domain.SummaryStatusProcessing, domain.SummaryStatusCompleted)
	if err != nil {
		return "", domain.NewDatabaseError("sync.Engine.Sync: complete status", err)
	}
	if !done {
		log.Debug().Str("contact_id", s.ContactID).Msg("summary status already advanced")
	}

	return caseID, nil
}

// classify maps a case-client failure onto the engine's contract:
// credential rejection invalidates the cache and leaves entity status
// untouched; a permanent rejection marks the entity failed; anything else is
// a retryable external failure.
func (e *Engine) classify(ctx context.Context, s *domain.CallSummary, op string, err error) error {
	if errors.Is(err, ErrAuthFailed) {
		e.creds.Invalidate(e.secretName)
		return domain.NewExternalError(fmt.Sprintf("sync.Engine.Sync: %s", op), err, false)
	}

	if !domain.IsRetryable(err) {
		_, casErr := e.summaries.CompareAndSwapStatus(ctx, s.ContactID, s.Timestamp,
			domain.SummaryStatusProcessing, domain.SummaryStatusFailed)
		if casErr != nil {
			log.Error().Err(casErr).Str("contact_id", s.ContactID).
				Msg("failed to mark summary failed after permanent rejection")
		}
		return domain.NewExternalError(fmt.Sprintf("sync.Engine.Sync: %s rejected", op), err, false)
	}

	return domain.NewExternalError(fmt.Sprintf("sync.Engine.Sync: %s", op), err, true)
}

func fieldsFrom(s *domain.CallSummary) CaseFields {
	return CaseFields{
		IdempotencyKey: s.IdempotencyKey(),
		Subject:        fmt.Sprintf("Call %s: %s", s.ContactID, s.Issue),
		Description:    s.Resolution,
		ContactID:      s.ContactID,
		CustomerPhone:  s.CustomerPhone,
		Category:       s.Category,
		Sentiment:      string(s.Sentiment),
		AgentID:        s.AgentID,
		NextSteps:      s.NextSteps,
	}
}
