package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/casebridge/internal/domain"
)

type AgentStateRepo struct {
	pool *pgxpool.Pool
}

func NewAgentStateRepo(pool *pgxpool.Pool) *AgentStateRepo {
	return &AgentStateRepo{pool: pool}
}

// Append inserts a snapshot. Snapshots are append-only; a redelivered
// record with the same (agent_id, ts) key is a no-op.
func (r *AgentStateRepo) Append(ctx context.Context, a *domain.AgentState) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO agent_states (agent_id, ts, current_state, previous_state, state_start_time,
		        duration_seconds, supervisor_id, alert_sent, contact_id, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (agent_id, ts) DO NOTHING`,
		a.AgentID, a.Timestamp, a.CurrentState, a.PreviousState, a.StateStartTime,
		a.Duration, a.SupervisorID, a.AlertSent, a.ContactID, a.CreatedAt, a.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("agentStateRepo.Append: %w", err)
	}

	return nil
}

func (r *AgentStateRepo) ListByAgent(ctx context.Context, agentID string, since time.Time) ([]*domain.AgentState, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT agent_id, ts, current_state, previous_state, state_start_time,
		        duration_seconds, supervisor_id, alert_sent, contact_id, created_at, expires_at
		 FROM agent_states
		 WHERE agent_id = $1 AND ts >= $2
		 ORDER BY ts`,
		agentID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("agentStateRepo.ListByAgent: %w", err)
	}
	defer rows.Close()

	var states []*domain.AgentState
	for rows.Next() {
		var a domain.AgentState
		if err := rows.Scan(
			&a.AgentID, &a.Timestamp, &a.CurrentState, &a.PreviousState, &a.StateStartTime,
			&a.Duration, &a.SupervisorID, &a.AlertSent, &a.ContactID, &a.CreatedAt, &a.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("agentStateRepo.ListByAgent: scan: %w", err)
		}
		states = append(states, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agentStateRepo.ListByAgent: rows: %w", err)
	}

	return states, nil
}

// PurgeExpired enforces the retention window, standing in for the original
// store's TTL attribute.
func (r *AgentStateRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM agent_states WHERE expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("agentStateRepo.PurgeExpired: %w", err)
	}

	return tag.RowsAffected(), nil
}
