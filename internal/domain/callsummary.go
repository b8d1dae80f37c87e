package domain

import (
	"context"
	"time"
)

type SummaryStatus string

const (
	SummaryStatusPending    SummaryStatus = "pending"
	SummaryStatusProcessing SummaryStatus = "processing"
	SummaryStatusCompleted  SummaryStatus = "completed"
	SummaryStatusFailed     SummaryStatus = "failed"
)

// ValidTransition checks if a summary status transition is allowed.
// Status is monotonic: pending->processing->{completed,failed}, no backward moves.
func (s SummaryStatus) ValidTransition(to SummaryStatus) bool {
	switch s {
	case SummaryStatusPending:
		return to == SummaryStatusProcessing
	case SummaryStatusProcessing:
		return to == SummaryStatusCompleted || to == SummaryStatusFailed
	default:
		return false
	}
}

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// CallSummary is the AI-generated summary of a single contact-center call,
// keyed by (ContactID, Timestamp). ExternalCaseID is write-once: set by the
// sync engine after the external case exists, never cleared.
type CallSummary struct {
	ContactID           string        `json:"contactId"`
	Timestamp           time.Time     `json:"timestamp"`
	AgentID             string        `json:"agentId"`
	CustomerID          string        `json:"customerId,omitempty"`
	CustomerPhone       string        `json:"customerPhone"`
	Issue               string        `json:"issue"`
	Resolution          string        `json:"resolution"`
	NextSteps           string        `json:"nextSteps,omitempty"`
	Sentiment           Sentiment     `json:"sentiment"`
	Category            string        `json:"category"`
	EscalationRequested bool          `json:"escalationRequested,omitempty"`
	Transcript          string        `json:"transcript,omitempty"`
	RecordingURL        string        `json:"recordingUrl,omitempty"`
	ExternalCaseID      string        `json:"externalCaseId,omitempty"`
	Cost                float64       `json:"cost"`
	Status              SummaryStatus `json:"status"`
	CreatedAt           time.Time     `json:"createdAt"`
	UpdatedAt           time.Time     `json:"updatedAt"`
}

// IdempotencyKey is the stable key deduplicating external-system writes
// across retries and redelivery. It is derived from the internal key, not
// from any generated external identifier.
func (c *CallSummary) IdempotencyKey() string {
	return c.ContactID + "#" + c.Timestamp.UTC().Format(time.RFC3339)
}

// Validate checks required fields on a decoded summary image.
func (c *CallSummary) Validate() error {
	if c.ContactID == "" {
		return NewValidationError("call summary: missing contactId")
	}
	if c.Timestamp.IsZero() {
		return NewValidationError("call summary: missing timestamp")
	}
	if c.AgentID == "" {
		return NewValidationError("call summary: missing agentId")
	}
	switch c.Sentiment {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
	default:
		return NewValidationError("call summary: invalid sentiment " + string(c.Sentiment))
	}
	return nil
}

type CallSummaryRepository interface {
	Put(ctx context.Context, c *CallSummary) error
	Get(ctx context.Context, contactID string, ts time.Time) (*CallSummary, error)
	ListByAgent(ctx context.Context, agentID string, limit int) ([]*CallSummary, error)
	GetByExternalCaseID(ctx context.Context, externalCaseID string) (*CallSummary, error)

	// SetExternalCaseID writes the external case id only if still unset.
	// Returns false when another writer already set it.
	SetExternalCaseID(ctx context.Context, contactID string, ts time.Time, externalCaseID string) (bool, error)

	// CompareAndSwapStatus transitions status only from the expected value.
	// Returns false when the stored status differs.
	CompareAndSwapStatus(ctx context.Context, contactID string, ts time.Time, expected, next SummaryStatus) (bool, error)
}
