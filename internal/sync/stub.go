package sync

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// StubClient is an in-memory CaseClient for local development and smoke
// testing when no real case-management client is wired. It honours the
// lookup/upsert contract, including idempotency-key deduplication.
type StubClient struct {
	mu      sync.Mutex
	nextID  int
	byKey   map[string]string
	byID    map[string]CaseFields
	keyByID map[string]string
}

func NewStubClient() *StubClient {
	return &StubClient{
		byKey:   make(map[string]string),
		byID:    make(map[string]CaseFields),
		keyByID: make(map[string]string),
	}
}

func (c *StubClient) Lookup(_ context.Context, _ string, idempotencyKey string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.byKey[idempotencyKey], nil
}

func (c *StubClient) Upsert(_ context.Context, _ string, externalID string, fields CaseFields) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := fields.IdempotencyKey
	if externalID == "" {
		if existing, ok := c.byKey[key]; ok {
			externalID = existing
		} else {
			c.nextID++
			externalID = fmt.Sprintf("STUB-%05d", c.nextID)
			c.byKey[key] = externalID
			c.keyByID[externalID] = key
		}
	}
	c.byID[externalID] = fields

	log.Debug().Str("case_id", externalID).Str("contact_id", fields.ContactID).
		Msg("stub case client upsert")

	return externalID, nil
}
