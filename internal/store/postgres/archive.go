package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/casebridge/internal/domain"
)

type ArchiveRepo struct {
	pool *pgxpool.Pool
}

func NewArchiveRepo(pool *pgxpool.Pool) *ArchiveRepo {
	return &ArchiveRepo{pool: pool}
}

// Append writes one accepted event to the ordered log. The sequence number
// comes from the table's bigserial; callers never supply it.
func (r *ArchiveRepo) Append(ctx context.Context, e *domain.ArchiveEntry) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO event_archive (source, record_id, entity_kind, event_type, payload, archived_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.Source, e.RecordID, e.EntityKind, e.EventType, []byte(e.Payload), e.ArchivedAt,
	)
	if err != nil {
		return fmt.Errorf("archiveRepo.Append: %w", err)
	}

	return nil
}

// Range returns entries archived within [from, to] in log order.
func (r *ArchiveRepo) Range(ctx context.Context, from, to time.Time) ([]*domain.ArchiveEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT seq, source, record_id, entity_kind, event_type, payload, archived_at
		 FROM event_archive
		 WHERE archived_at >= $1 AND archived_at <= $2
		 ORDER BY seq`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("archiveRepo.Range: %w", err)
	}
	defer rows.Close()

	var entries []*domain.ArchiveEntry
	for rows.Next() {
		var (
			e       domain.ArchiveEntry
			payload []byte
		)
		if err := rows.Scan(&e.Seq, &e.Source, &e.RecordID, &e.EntityKind, &e.EventType, &payload, &e.ArchivedAt); err != nil {
			return nil, fmt.Errorf("archiveRepo.Range: scan: %w", err)
		}
		e.Payload = payload
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archiveRepo.Range: rows: %w", err)
	}

	return entries, nil
}
