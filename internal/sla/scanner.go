package sla

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/gosuda/casebridge/internal/domain"
	"github.com/gosuda/casebridge/internal/notify"
)

// scannedStatuses are the escalation statuses eligible for breach promotion,
// in scan order.
var scannedStatuses = []domain.EscalationStatus{ //nolint:gochecknoglobals // fixed scan order
	domain.EscalationStatusOpen,
	domain.EscalationStatusInProgress,
}

// Scanner promotes overdue escalations to breached on a fixed cadence. It
// runs independently of the dispatcher; the conditional status transition is
// what keeps a concurrent resolution from being overwritten.
type Scanner struct {
	escalations domain.EscalationRepository
	notifier    *notify.Notifier
	limiter     *rate.Limiter
	interval    time.Duration
	batchSize   int

	now func() time.Time
}

// NewScanner creates a Scanner. notifyPerSecond bounds the notification rate
// during a backlog scan so the sink is not flooded.
func NewScanner(escalations domain.EscalationRepository, notifier *notify.Notifier, interval time.Duration, batchSize int, notifyPerSecond float64) *Scanner {
	return &Scanner{
		escalations: escalations,
		notifier:    notifier,
		limiter:     rate.NewLimiter(rate.Limit(notifyPerSecond), 1),
		interval:    interval,
		batchSize:   batchSize,
		now:         time.Now,
	}
}

// Run scans on every tick until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("sla breach scanner started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("sla breach scanner stopped")
			return
		case <-ticker.C:
			breached, err := s.Scan(ctx)
			if err != nil {
				log.Error().Err(err).Msg("breach scan failed")
			}
			if breached > 0 {
				log.Info().Int("breached", breached).Msg("breach scan pass complete")
			}
		}
	}
}

// Scan queries overdue escalations ordered by deadline ascending and marks
// each breached. Breach is a point-in-time predicate against the scan start
// time, so scan order cannot change the determination; ascending order only
// minimises notification latency for the oldest breaches. A single
// escalation's failure is logged and does not stop the pass.
func (s *Scanner) Scan(ctx context.Context) (int, error) {
	now := s.now()
	breached := 0

	for _, status := range scannedStatuses {
		due, err := s.escalations.ListDueBefore(ctx, status, now, s.batchSize)
		if err != nil {
			return breached, fmt.Errorf("sla.Scanner.Scan: list %s: %w", status, err)
		}

		for _, esc := range due {
			ok, err := s.escalations.TransitionStatus(ctx, esc.ContactID, esc.EscalationID, status, domain.EscalationStatusBreached)
			if err != nil {
				log.Error().Err(err).Str("contact_id", esc.ContactID).
					Str("escalation_id", esc.EscalationID).Msg("breach transition failed")
				continue
			}
			if !ok {
				// Resolved (or already breached) between query and update.
				continue
			}

			breached++

			if err := s.limiter.Wait(ctx); err != nil {
				return breached, fmt.Errorf("sla.Scanner.Scan: %w", err)
			}
			if err := s.notifier.Publish(ctx, notify.BreachEvent(esc, now)); err != nil {
				log.Warn().Err(err).Str("escalation_id", esc.EscalationID).
					Msg("breach notification failed")
			}
		}
	}

	return breached, nil
}
