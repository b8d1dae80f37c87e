package domain

import (
	"context"
	"encoding/json"
	"time"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventModify EventType = "MODIFY"
	EventRemove EventType = "REMOVE"
)

type EntityKind string

const (
	KindCallSummary EntityKind = "call_summary"
	KindAgentState  EntityKind = "agent_state"
	KindIVRJourney  EntityKind = "ivr_journey"
)

// ChangeRecord is one entry from the upstream change log. Images are raw
// JSON; decoding into the typed entity happens at dispatch time.
type ChangeRecord struct {
	RecordID   string          `json:"recordId"`
	EventType  EventType       `json:"eventType"`
	EntityKind EntityKind      `json:"entityKind"`
	OldImage   json.RawMessage `json:"oldImage,omitempty"`
	NewImage   json.RawMessage `json:"newImage,omitempty"`
}

// ChangeBatch is one ordered delivery unit from the change stream. Replayed
// batches come from the archive and must not be re-archived.
type ChangeBatch struct {
	BatchID  string
	Source   string
	Replayed bool
	Records  []ChangeRecord
}

// ArchiveEntry is one accepted domain event in the append-only archive.
type ArchiveEntry struct {
	Seq        int64           `json:"seq"`
	Source     string          `json:"source"`
	RecordID   string          `json:"recordId"`
	EntityKind EntityKind      `json:"entityKind"`
	EventType  EventType       `json:"eventType"`
	Payload    json.RawMessage `json:"payload"`
	ArchivedAt time.Time       `json:"archivedAt"`
}

type ArchiveRepository interface {
	Append(ctx context.Context, e *ArchiveEntry) error

	// Range returns entries archived within [from, to], ordered by sequence.
	Range(ctx context.Context, from, to time.Time) ([]*ArchiveEntry, error)
}

// DeadLetter is a record that exhausted its retry budget or failed fatally,
// kept for manual reprocessing.
type DeadLetter struct {
	ID         string          `json:"id"`
	RecordID   string          `json:"recordId"`
	EntityKind EntityKind      `json:"entityKind"`
	Payload    json.RawMessage `json:"payload"`
	ErrorKind  ErrorKind       `json:"errorKind"`
	Message    string          `json:"message"`
	Attempts   int             `json:"attempts"`
	CreatedAt  time.Time       `json:"createdAt"`
}

type DeadLetterRepository interface {
	Append(ctx context.Context, d *DeadLetter) error
	List(ctx context.Context, limit int) ([]*DeadLetter, error)
}
