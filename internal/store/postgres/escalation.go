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

type EscalationRepo struct {
	pool *pgxpool.Pool
}

func NewEscalationRepo(pool *pgxpool.Pool) *EscalationRepo {
	return &EscalationRepo{pool: pool}
}

const escalationColumns = `contact_id, escalation_id, escalation_type, priority, status,
        sla_deadline, assigned_queue, customer_id, external_task_id, created_at, resolved_at`

// CreateIfNoneActive inserts only when the contact has no open or
// in_progress escalation. The guarded INSERT ... SELECT makes the
// at-most-one-active invariant hold under concurrent and duplicate delivery
// without in-process locks.
func (r *EscalationRepo) CreateIfNoneActive(ctx context.Context, e *domain.Escalation) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO escalations (`+escalationColumns+`)
		 SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		 WHERE NOT EXISTS (
		   SELECT 1 FROM escalations
		   WHERE contact_id = $1 AND status IN ('open', 'in_progress')
		 )`,
		e.ContactID, e.EscalationID, e.Type, e.Priority, e.Status,
		e.SLADeadline, e.AssignedQueue, e.CustomerID, e.ExternalTaskID, e.CreatedAt, e.ResolvedAt,
	)
	if err != nil {
		return false, fmt.Errorf("escalationRepo.CreateIfNoneActive: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (r *EscalationRepo) GetByID(ctx context.Context, contactID, escalationID string) (*domain.Escalation, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+escalationColumns+` FROM escalations WHERE contact_id = $1 AND escalation_id = $2`,
		contactID, escalationID,
	)

	return scanEscalation(row, "escalationRepo.GetByID")
}

// TransitionStatus is the conditional status write shared by the breach scan
// and the external resolution path. The expected-status guard means a scan
// marking breached and a resolution arriving at the same moment cannot both
// win.
func (r *EscalationRepo) TransitionStatus(ctx context.Context, contactID, escalationID string, expected, next domain.EscalationStatus) (bool, error) {
	if !expected.ValidTransition(next) {
		return false, fmt.Errorf("escalationRepo.TransitionStatus: %s -> %s: %w", expected, next, domain.ErrConflict)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE escalations
		 SET status = $4,
		     resolved_at = CASE WHEN $4 = 'resolved' THEN now() ELSE resolved_at END
		 WHERE contact_id = $1 AND escalation_id = $2 AND status = $3`,
		contactID, escalationID, expected, next,
	)
	if err != nil {
		return false, fmt.Errorf("escalationRepo.TransitionStatus: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// ListDueBefore reads the status+deadline index ascending, so the earliest
// overdue escalations come first within a scan pass.
func (r *EscalationRepo) ListDueBefore(ctx context.Context, status domain.EscalationStatus, cutoff time.Time, limit int) ([]*domain.Escalation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+escalationColumns+` FROM escalations
		 WHERE status = $1 AND sla_deadline <= $2
		 ORDER BY sla_deadline ASC
		 LIMIT $3`,
		status, cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("escalationRepo.ListDueBefore: %w", err)
	}
	defer rows.Close()

	var escalations []*domain.Escalation
	for rows.Next() {
		e, err := scanEscalation(rows, "escalationRepo.ListDueBefore")
		if err != nil {
			return nil, err
		}
		escalations = append(escalations, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("escalationRepo.ListDueBefore: rows: %w", err)
	}

	return escalations, nil
}

func scanEscalation(row pgx.Row, caller string) (*domain.Escalation, error) {
	var e domain.Escalation

	err := row.Scan(
		&e.ContactID, &e.EscalationID, &e.Type, &e.Priority, &e.Status,
		&e.SLADeadline, &e.AssignedQueue, &e.CustomerID, &e.ExternalTaskID, &e.CreatedAt, &e.ResolvedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", caller, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: scan: %w", caller, err)
	}

	return &e, nil
}
