package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/casebridge/internal/domain"
)

type CallSummaryRepo struct {
	pool *pgxpool.Pool
}

func NewCallSummaryRepo(pool *pgxpool.Pool) *CallSummaryRepo {
	return &CallSummaryRepo{pool: pool}
}

const summaryColumns = `contact_id, ts, agent_id, customer_id, customer_phone, issue, resolution,
        next_steps, sentiment, category, escalation_requested, transcript, recording_url,
        external_case_id, cost, status, created_at, updated_at`

// Put upserts the summary image with last-writer-wins on updated_at, so an
// out-of-order redelivery of an older image never overwrites a newer one.
// The external_case_id and status columns are owned by the sync engine's
// conditional writes and are not touched by the image upsert.
func (r *CallSummaryRepo) Put(ctx context.Context, c *domain.CallSummary) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO call_summaries (`+summaryColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NULLIF($14, ''), $15, $16, $17, $18)
		 ON CONFLICT (contact_id, ts) DO UPDATE SET
		   agent_id = excluded.agent_id,
		   customer_id = excluded.customer_id,
		   customer_phone = excluded.customer_phone,
		   issue = excluded.issue,
		   resolution = excluded.resolution,
		   next_steps = excluded.next_steps,
		   sentiment = excluded.sentiment,
		   category = excluded.category,
		   escalation_requested = excluded.escalation_requested,
		   transcript = excluded.transcript,
		   recording_url = excluded.recording_url,
		   cost = excluded.cost,
		   updated_at = excluded.updated_at
		 WHERE excluded.updated_at >= call_summaries.updated_at`,
		c.ContactID, c.Timestamp, c.AgentID, c.CustomerID, c.CustomerPhone, c.Issue, c.Resolution,
		c.NextSteps, c.Sentiment, c.Category, c.EscalationRequested, c.Transcript, c.RecordingURL,
		c.ExternalCaseID, c.Cost, c.Status, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("callSummaryRepo.Put: %w", err)
	}

	return nil
}

func (r *CallSummaryRepo) Get(ctx context.Context, contactID string, ts time.Time) (*domain.CallSummary, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+summaryColumns+` FROM call_summaries WHERE contact_id = $1 AND ts = $2`,
		contactID, ts,
	)

	return scanSummary(row, "callSummaryRepo.Get")
}

func (r *CallSummaryRepo) ListByAgent(ctx context.Context, agentID string, limit int) ([]*domain.CallSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+summaryColumns+` FROM call_summaries
		 WHERE agent_id = $1 ORDER BY ts DESC LIMIT $2`,
		agentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("callSummaryRepo.ListByAgent: %w", err)
	}
	defer rows.Close()

	var summaries []*domain.CallSummary
	for rows.Next() {
		s, err := scanSummary(rows, "callSummaryRepo.ListByAgent")
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("callSummaryRepo.ListByAgent: rows: %w", err)
	}

	return summaries, nil
}

func (r *CallSummaryRepo) GetByExternalCaseID(ctx context.Context, externalCaseID string) (*domain.CallSummary, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+summaryColumns+` FROM call_summaries WHERE external_case_id = $1`,
		externalCaseID,
	)

	return scanSummary(row, "callSummaryRepo.GetByExternalCaseID")
}

// SetExternalCaseID is the write-once conditional write: it only succeeds
// while the column is still NULL.
func (r *CallSummaryRepo) SetExternalCaseID(ctx context.Context, contactID string, ts time.Time, externalCaseID string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE call_summaries SET external_case_id = $3, updated_at = now()
		 WHERE contact_id = $1 AND ts = $2 AND external_case_id IS NULL`,
		contactID, ts, externalCaseID,
	)
	if err != nil {
		return false, fmt.Errorf("callSummaryRepo.SetExternalCaseID: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// CompareAndSwapStatus transitions status only from the expected value,
// enforcing the monotonic pending->processing->{completed,failed} machine at
// the store boundary.
func (r *CallSummaryRepo) CompareAndSwapStatus(ctx context.Context, contactID string, ts time.Time, expected, next domain.SummaryStatus) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE call_summaries SET status = $4, updated_at = now()
		 WHERE contact_id = $1 AND ts = $2 AND status = $3`,
		contactID, ts, expected, next,
	)
	if err != nil {
		return false, fmt.Errorf("callSummaryRepo.CompareAndSwapStatus: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func scanSummary(row pgx.Row, caller string) (*domain.CallSummary, error) {
	var (
		s      domain.CallSummary
		caseID *string
	)

	err := row.Scan(
		&s.ContactID, &s.Timestamp, &s.AgentID, &s.CustomerID, &s.CustomerPhone, &s.Issue,
		&s.Resolution, &s.NextSteps, &s.Sentiment, &s.Category, &s.EscalationRequested,
		&s.Transcript, &s.RecordingURL, &caseID, &s.Cost, &s.Status, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", caller, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: scan: %w", caller, err)
	}

	if caseID != nil {
		s.ExternalCaseID = *caseID
	}

	return &s, nil
}
