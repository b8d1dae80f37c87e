package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/casebridge/internal/domain"
)

type DeadLetterRepo struct {
	pool *pgxpool.Pool
}

func NewDeadLetterRepo(pool *pgxpool.Pool) *DeadLetterRepo {
	return &DeadLetterRepo{pool: pool}
}

func (r *DeadLetterRepo) Append(ctx context.Context, d *domain.DeadLetter) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO dead_letters (id, record_id, entity_kind, payload, error_kind, message, attempts, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.RecordID, d.EntityKind, []byte(d.Payload), d.ErrorKind, d.Message, d.Attempts, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("deadLetterRepo.Append: %w", err)
	}

	return nil
}

func (r *DeadLetterRepo) List(ctx context.Context, limit int) ([]*domain.DeadLetter, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, record_id, entity_kind, payload, error_kind, message, attempts, created_at
		 FROM dead_letters
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("deadLetterRepo.List: %w", err)
	}
	defer rows.Close()

	var letters []*domain.DeadLetter
	for rows.Next() {
		var (
			d       domain.DeadLetter
			payload []byte
		)
		if err := rows.Scan(&d.ID, &d.RecordID, &d.EntityKind, &payload, &d.ErrorKind, &d.Message, &d.Attempts, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("deadLetterRepo.List: scan: %w", err)
		}
		d.Payload = payload
		letters = append(letters, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("deadLetterRepo.List: rows: %w", err)
	}

	return letters, nil
}
