// Package dispatch consumes ordered batches of change records, routes them
// to per-entity handlers, and isolates per-record failures: one bad record
// never aborts the rest of its batch.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/casebridge/internal/domain"
	"github.com/gosuda/casebridge/internal/retry"
)

// Handler processes one change record of a single entity kind. Validation
// failures must be tagged domain.KindValidation so the dispatcher can count
// them as skipped rather than failed.
type Handler interface {
	Handle(ctx context.Context, rec domain.ChangeRecord) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, rec domain.ChangeRecord) error

func (f HandlerFunc) Handle(ctx context.Context, rec domain.ChangeRecord) error {
	return f(ctx, rec)
}

// Result is the per-batch processing summary.
type Result struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Dispatcher routes change records by entity kind. Records within a batch
// are processed sequentially to preserve intra-batch ordering per entity
// key; separate batches may be dispatched concurrently, relying on the
// store's conditional writes for cross-invocation correctness.
type Dispatcher struct {
	handlers    map[domain.EntityKind]Handler
	archive     domain.ArchiveRepository
	deadLetters domain.DeadLetterRepository
}

func New(archive domain.ArchiveRepository, deadLetters domain.DeadLetterRepository) *Dispatcher {
	return &Dispatcher{
		handlers:    make(map[domain.EntityKind]Handler),
		archive:     archive,
		deadLetters: deadLetters,
	}
}

// Register wires a handler for an entity kind. Later registrations replace
// earlier ones.
func (d *Dispatcher) Register(kind domain.EntityKind, h Handler) {
	d.handlers[kind] = h
}

// ProcessBatch handles every record in the batch independently and returns
// the aggregated result. REMOVE events and unknown entity kinds are skipped;
// validation failures are skipped and counted; any other failure is
// dead-lettered and counted as failed. The batch itself always completes.
func (d *Dispatcher) ProcessBatch(ctx context.Context, batch domain.ChangeBatch) Result {
	logger := log.With().
		Str("batch_id", batch.BatchID).
		Str("source", batch.Source).
		Bool("replayed", batch.Replayed).
		Logger()

	var res Result
	for _, rec := range batch.Records {
		switch {
		case rec.EventType == domain.EventRemove:
			res.Skipped++
			continue
		case rec.EventType != domain.EventInsert && rec.EventType != domain.EventModify:
			logger.Warn().Str("record_id", rec.RecordID).Str("event_type", string(rec.EventType)).
				Msg("unknown event type, skipping")
			res.Skipped++
			continue
		}

		handler, ok := d.handlers[rec.EntityKind]
		if !ok {
			logger.Debug().Str("record_id", rec.RecordID).Str("entity_kind", string(rec.EntityKind)).
				Msg("no handler for entity kind, skipping")
			res.Skipped++
			continue
		}

		err := d.handleRecord(ctx, handler, rec)
		if err == nil {
			res.Processed++
			if !batch.Replayed {
				d.archiveRecord(ctx, &logger, batch.Source, rec)
			}
			continue
		}

		if domain.KindOf(err) == domain.KindValidation {
			logger.Warn().Err(err).Str("record_id", rec.RecordID).Msg("invalid record, skipping")
			res.Skipped++
			continue
		}

		res.Failed++
		logger.Error().Err(err).Str("record_id", rec.RecordID).
			Str("entity_kind", string(rec.EntityKind)).Msg("record processing failed")
		d.deadLetter(ctx, &logger, rec, err)
	}

	logger.Info().Int("processed", res.Processed).Int("skipped", res.Skipped).
		Int("failed", res.Failed).Int("total", len(batch.Records)).Msg("batch handled")

	return res
}

// handleRecord invokes the handler, converting a panic into an internal
// error so a single poisoned record cannot take down the batch.
func (d *Dispatcher) handleRecord(ctx context.Context, h Handler, rec domain.ChangeRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.NewInternalError(fmt.Sprintf("dispatch: panic handling record %s: %v", rec.RecordID, r), nil)
		}
	}()

	return h.Handle(ctx, rec)
}

// archiveRecord appends the accepted event to the durable archive. Archive
// failures are logged, not fatal: the entity-store effects already applied
// and upstream redelivery will re-archive on the next delivery.
func (d *Dispatcher) archiveRecord(ctx context.Context, logger *zerolog.Logger, source string, rec domain.ChangeRecord) {
	entry := &domain.ArchiveEntry{
		Source:     source,
		RecordID:   rec.RecordID,
		EntityKind: rec.EntityKind,
		EventType:  rec.EventType,
		Payload:    rec.NewImage,
		ArchivedAt: time.Now(),
	}
	if err := d.archive.Append(ctx, entry); err != nil {
		logger.Error().Err(err).Str("record_id", rec.RecordID).Msg("archive append failed")
	}
}

// deadLetter records an exhausted or fatal failure for manual reprocessing.
func (d *Dispatcher) deadLetter(ctx context.Context, logger *zerolog.Logger, rec domain.ChangeRecord, cause error) {
	entry := &domain.DeadLetter{
		ID:         uuid.NewString(),
		RecordID:   rec.RecordID,
		EntityKind: rec.EntityKind,
		Payload:    rec.NewImage,
		ErrorKind:  domain.KindOf(cause),
		Message:    cause.Error(),
		Attempts:   retry.Attempts(cause),
		CreatedAt:  time.Now(),
	}
	if err := d.deadLetters.Append(ctx, entry); err != nil {
		logger.Error().Err(err).Str("record_id", rec.RecordID).Msg("dead-letter append failed")
	}
}
