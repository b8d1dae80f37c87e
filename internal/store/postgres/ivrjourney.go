package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/casebridge/internal/domain"
)

type IVRJourneyRepo struct {
	pool *pgxpool.Pool
}

func NewIVRJourneyRepo(pool *pgxpool.Pool) *IVRJourneyRepo {
	return &IVRJourneyRepo{pool: pool}
}

// Append inserts a journey. Journeys are append-only; redelivery of the
// same (contact_id, sk) key is a no-op.
func (r *IVRJourneyRepo) Append(ctx context.Context, j *domain.IVRJourney) error {
	steps, err := json.Marshal(j.Steps)
	if err != nil {
		return fmt.Errorf("ivrJourneyRepo.Append: marshal steps: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO ivr_journeys (contact_id, sk, customer_phone, account_number, outcome,
		        steps, dropoff_point, total_duration, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (contact_id, sk) DO NOTHING`,
		j.ContactID, j.SortKey, j.CustomerPhone, j.AccountNumber, j.Outcome,
		steps, j.DropoffPoint, j.TotalDuration, j.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("ivrJourneyRepo.Append: %w", err)
	}

	return nil
}

func (r *IVRJourneyRepo) GetByContact(ctx context.Context, contactID string) (*domain.IVRJourney, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT contact_id, sk, customer_phone, account_number, outcome,
		        steps, dropoff_point, total_duration, created_at
		 FROM ivr_journeys WHERE contact_id = $1 AND sk = $2`,
		contactID, domain.JourneySortKeyMetadata,
	)

	return scanJourney(row, "ivrJourneyRepo.GetByContact")
}

// ListByPhone is the secondary lookup by customer phone and creation time,
// newest first.
func (r *IVRJourneyRepo) ListByPhone(ctx context.Context, customerPhone string, since time.Time) ([]*domain.IVRJourney, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT contact_id, sk, customer_phone, account_number, outcome,
		        steps, dropoff_point, total_duration, created_at
		 FROM ivr_journeys
		 WHERE customer_phone = $1 AND created_at >= $2
		 ORDER BY created_at DESC`,
		customerPhone, since,
	)
	if err != nil {
		return nil, fmt.Errorf("ivrJourneyRepo.ListByPhone: %w", err)
	}
	defer rows.Close()

	var journeys []*domain.IVRJourney
	for rows.Next() {
		j, err := scanJourney(rows, "ivrJourneyRepo.ListByPhone")
		if err != nil {
			return nil, err
		}
		journeys = append(journeys, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ivrJourneyRepo.ListByPhone: rows: %w", err)
	}

	return journeys, nil
}

func scanJourney(row pgx.Row, caller string) (*domain.IVRJourney, error) {
	var (
		j     domain.IVRJourney
		steps []byte
	)

	err := row.Scan(
		&j.ContactID, &j.SortKey, &j.CustomerPhone, &j.AccountNumber, &j.Outcome,
		&steps, &j.DropoffPoint, &j.TotalDuration, &j.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", caller, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: scan: %w", caller, err)
	}

	if err := json.Unmarshal(steps, &j.Steps); err != nil {
		return nil, fmt.Errorf("%s: unmarshal steps: %w", caller, err)
	}

	return &j, nil
}
