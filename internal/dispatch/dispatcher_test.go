package dispatch_test

import (
	"context"
	"encoding/json"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/casebridge/internal/dispatch"
	"github.com/gosuda/casebridge/internal/domain"
	"github.com/gosuda/casebridge/internal/retry"
)

// ---------------------------------------------------------------------------
// In-memory fakes shared by the dispatcher and handler tests.
// ---------------------------------------------------------------------------

type memArchive struct {
	mu      gosync.Mutex
	nextSeq int64
	entries []*domain.ArchiveEntry
}

func (a *memArchive) Append(_ context.Context, e *domain.ArchiveEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.nextSeq++
	clone := *e
	clone.Seq = a.nextSeq
	a.entries = append(a.entries, &clone)
	return nil
}

func (a *memArchive) Range(_ context.Context, from, to time.Time) ([]*domain.ArchiveEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []*domain.ArchiveEntry
	for _, e := range a.entries {
		if !e.ArchivedAt.Before(from) && !e.ArchivedAt.After(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (a *memArchive) len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

type memDeadLetters struct {
	mu      gosync.Mutex
	letters []*domain.DeadLetter
}

func (d *memDeadLetters) Append(_ context.Context, l *domain.DeadLetter) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	clone := *l
	d.letters = append(d.letters, &clone)
	return nil
}

func (d *memDeadLetters) List(_ context.Context, limit int) ([]*domain.DeadLetter, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if limit > len(d.letters) {
		limit = len(d.letters)
	}
	return d.letters[:limit], nil
}

func (d *memDeadLetters) all() []*domain.DeadLetter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*domain.DeadLetter(nil), d.letters...)
}

func summaryImage(t *testing.T, contactID string) json.RawMessage {
	t.Helper()

	img, err := json.Marshal(&domain.CallSummary{
		ContactID:     contactID,
		Timestamp:     time.Date(2025, 11, 8, 10, 0, 0, 0, time.UTC),
		AgentID:       "agent-001",
		CustomerPhone: "+15551234567",
		Sentiment:     domain.SentimentNeutral,
		Category:      "billing",
	})
	require.NoError(t, err)
	return img
}

func record(id string, kind domain.EntityKind, image json.RawMessage) domain.ChangeRecord {
	return domain.ChangeRecord{
		RecordID:   id,
		EventType:  domain.EventInsert,
		EntityKind: kind,
		NewImage:   image,
	}
}

// ---------------------------------------------------------------------------
// Batch mechanics.
// ---------------------------------------------------------------------------

func TestDispatcher_ProcessBatch_RoutesByKind(t *testing.T) {
	t.Parallel()

	archive := &memArchive{}
	dlq := &memDeadLetters{}
	d := dispatch.New(archive, dlq)

	var summaries, states int
	d.Register(domain.KindCallSummary, dispatch.HandlerFunc(func(context.Context, domain.ChangeRecord) error {
		summaries++
		return nil
	}))
	d.Register(domain.KindAgentState, dispatch.HandlerFunc(func(context.Context, domain.ChangeRecord) error {
		states++
		return nil
	}))

	res := d.ProcessBatch(context.Background(), domain.ChangeBatch{
		BatchID: "b1",
		Source:  "stream",
		Records: []domain.ChangeRecord{
			record("r1", domain.KindCallSummary, summaryImage(t, "c1")),
			record("r2", domain.KindAgentState, json.RawMessage(`{}`)),
			record("r3", domain.KindCallSummary, summaryImage(t, "c2")),
		},
	})

	assert.Equal(t, dispatch.Result{Processed: 3}, res)
	assert.Equal(t, 2, summaries)
	assert.Equal(t, 1, states)
	assert.Equal(t, 3, archive.len())
	assert.Empty(t, dlq.all())
}

func TestDispatcher_ProcessBatch_SkipsRemoveUnknownEventAndUnknownKind(t *testing.T) {
	t.Parallel()

	archive := &memArchive{}
	dlq := &memDeadLetters{}
	d := dispatch.New(archive, dlq)

	calls := 0
	d.Register(domain.KindCallSummary, dispatch.HandlerFunc(func(context.Context, domain.ChangeRecord) error {
		calls++
		return nil
	}))

	res := d.ProcessBatch(context.Background(), domain.ChangeBatch{
		BatchID: "b1",
		Records: []domain.ChangeRecord{
			{RecordID: "r1", EventType: domain.EventRemove, EntityKind: domain.KindCallSummary},
			{RecordID: "r2", EventType: "TRUNCATE", EntityKind: domain.KindCallSummary},
			{RecordID: "r3", EventType: domain.EventInsert, EntityKind: "voicemail"},
		},
	})

	assert.Equal(t, dispatch.Result{Skipped: 3}, res)
	assert.Zero(t, calls)
	assert.Zero(t, archive.len())
	assert.Empty(t, dlq.all())
}

func TestDispatcher_ProcessBatch_ValidationFailureIsSkippedNotDeadLettered(t *testing.T) {
	t.Parallel()

	archive := &memArchive{}
	dlq := &memDeadLetters{}
	d := dispatch.New(archive, dlq)

	d.Register(domain.KindCallSummary, dispatch.HandlerFunc(func(context.Context, domain.ChangeRecord) error {
		return domain.NewValidationError("missing contactId")
	}))

	res := d.ProcessBatch(context.Background(), domain.ChangeBatch{
		BatchID: "b1",
		Records: []domain.ChangeRecord{record("r1", domain.KindCallSummary, json.RawMessage(`{}`))},
	})

	assert.Equal(t, dispatch.Result{Skipped: 1}, res)
	assert.Zero(t, archive.len())
	assert.Empty(t, dlq.all())
}

func TestDispatcher_ProcessBatch_FailureIsIsolatedAndDeadLettered(t *testing.T) {
	t.Parallel()

	archive := &memArchive{}
	dlq := &memDeadLetters{}
	d := dispatch.New(archive, dlq)

	cause := &retry.ExhaustedError{
		Attempts: 3,
		Last:     domain.NewExternalError("timeout", errors.New("504"), true),
	}
	d.Register(domain.KindCallSummary, dispatch.HandlerFunc(func(_ context.Context, rec domain.ChangeRecord) error {
		if rec.RecordID == "bad" {
			return cause
		}
		return nil
	}))

	img := summaryImage(t, "c1")
	res := d.ProcessBatch(context.Background(), domain.ChangeBatch{
		BatchID: "b1",
		Records: []domain.ChangeRecord{
			record("ok-1", domain.KindCallSummary, img),
			record("bad", domain.KindCallSummary, img),
			record("ok-2", domain.KindCallSummary, img),
		},
	})

	// One poisoned record never aborts the rest of the batch.
	assert.Equal(t, dispatch.Result{Processed: 2, Failed: 1}, res)
	assert.Equal(t, 2, archive.len())

	letters := dlq.all()
	require.Len(t, letters, 1)
	assert.NotEmpty(t, letters[0].ID)
	assert.Equal(t, "bad", letters[0].RecordID)
	assert.Equal(t, domain.KindCallSummary, letters[0].EntityKind)
	assert.Equal(t, domain.KindExternalService, letters[0].ErrorKind)
	assert.Equal(t, 3, letters[0].Attempts)
	assert.JSONEq(t, string(img), string(letters[0].Payload))
}

func TestDispatcher_ProcessBatch_PanicIsRecovered(t *testing.T) {
	t.Parallel()

	archive := &memArchive{}
	dlq := &memDeadLetters{}
	d := dispatch.New(archive, dlq)

	d.Register(domain.KindCallSummary, dispatch.HandlerFunc(func(_ context.Context, rec domain.ChangeRecord) error {
		if rec.RecordID == "boom" {
			panic("nil map write")
		}
		return nil
	}))

	img := summaryImage(t, "c1")
	res := d.ProcessBatch(context.Background(), domain.ChangeBatch{
		BatchID: "b1",
		Records: []domain.ChangeRecord{
			record("boom", domain.KindCallSummary, img),
			record("ok", domain.KindCallSummary, img),
		},
	})

	assert.Equal(t, dispatch.Result{Processed: 1, Failed: 1}, res)

	letters := dlq.all()
	require.Len(t, letters, 1)
	assert.Equal(t, "boom", letters[0].RecordID)
	assert.Equal(t, domain.KindInternal, letters[0].ErrorKind)
	assert.Equal(t, 1, letters[0].Attempts)
}

func TestDispatcher_ProcessBatch_ReplayedBatchIsNotRearchived(t *testing.T) {
	t.Parallel()

	archive := &memArchive{}
	dlq := &memDeadLetters{}
	d := dispatch.New(archive, dlq)

	d.Register(domain.KindCallSummary, dispatch.HandlerFunc(func(context.Context, domain.ChangeRecord) error {
		return nil
	}))

	res := d.ProcessBatch(context.Background(), domain.ChangeBatch{
		BatchID:  "replay-1",
		Source:   "archive",
		Replayed: true,
		Records:  []domain.ChangeRecord{record("r1", domain.KindCallSummary, summaryImage(t, "c1"))},
	})

	assert.Equal(t, dispatch.Result{Processed: 1}, res)
	assert.Zero(t, archive.len(), "replayed events must not be archived again")
}
