package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/casebridge/internal/domain"
)

type Store struct {
	pool        *pgxpool.Pool
	summaries   *CallSummaryRepo
	states      *AgentStateRepo
	journeys    *IVRJourneyRepo
	escalations *EscalationRepo
	deadLetters *DeadLetterRepo
	archive     *ArchiveRepo
}

func New(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	return &Store{
		pool:        pool,
		summaries:   NewCallSummaryRepo(pool),
		states:      NewAgentStateRepo(pool),
		journeys:    NewIVRJourneyRepo(pool),
		escalations: NewEscalationRepo(pool),
		deadLetters: NewDeadLetterRepo(pool),
		archive:     NewArchiveRepo(pool),
	}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Summaries() domain.CallSummaryRepository  { return s.summaries }
func (s *Store) AgentStates() domain.AgentStateRepository { return s.states }
func (s *Store) Journeys() domain.IVRJourneyRepository    { return s.journeys }
func (s *Store) Escalations() domain.EscalationRepository { return s.escalations }
func (s *Store) DeadLetters() domain.DeadLetterRepository { return s.deadLetters }
func (s *Store) Archive() domain.ArchiveRepository        { return s.archive }
