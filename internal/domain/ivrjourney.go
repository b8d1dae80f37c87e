package domain

import (
	"context"
	"time"
)

// JourneyStep is one step of a customer's IVR traversal.
type JourneyStep struct {
	Timestamp   time.Time `json:"timestamp"`
	StepType    string    `json:"stepType"` // IVR_MENU, AUTH_ATTEMPT, PAYMENT, ...
	Description string    `json:"description"`
	Success     bool      `json:"success"`
}

// IVRJourney is the ordered step sequence of one contact's IVR session,
// keyed by (ContactID, SortKey). Append-only.
type IVRJourney struct {
	ContactID     string        `json:"contactId"`
	SortKey       string        `json:"sk"`
	CustomerPhone string        `json:"customerPhone"`
	AccountNumber string        `json:"accountNumber,omitempty"`
	Outcome       string        `json:"outcome"`
	Steps         []JourneyStep `json:"steps"`
	DropoffPoint  string        `json:"dropoffPoint,omitempty"`
	TotalDuration int           `json:"totalDuration"` // seconds
	CreatedAt     time.Time     `json:"createdAt"`
}

// JourneySortKeyMetadata is the sort key of the journey metadata row.
const JourneySortKeyMetadata = "METADATA"

// Validate checks required fields on a decoded journey image.
func (j *IVRJourney) Validate() error {
	if j.ContactID == "" {
		return NewValidationError("ivr journey: missing contactId")
	}
	if j.CustomerPhone == "" {
		return NewValidationError("ivr journey: missing customerPhone")
	}
	return nil
}

type IVRJourneyRepository interface {
	Append(ctx context.Context, j *IVRJourney) error
	GetByContact(ctx context.Context, contactID string) (*IVRJourney, error)

	// ListByPhone returns journeys for a customer phone created at or after
	// since, newest first.
	ListByPhone(ctx context.Context, customerPhone string, since time.Time) ([]*IVRJourney, error)
}
