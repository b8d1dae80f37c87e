// Package secrets exposes the get-secret contract consumed by the sync
// engine. Retrieval mechanics live behind Provider; this package owns only
// the TTL-bounded cache and a local env-backed provider.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

//nolint:gochecknoglobals // sentinel error
var ErrSecretNotFound = errors.New("secrets: not found")

// Provider fetches a named credential blob from the secret store.
type Provider interface {
	Get(ctx context.Context, name string) (string, error)
}

// EnvProvider resolves secrets from environment variables for local and test
// deployments. A secret name "salesforce/api" maps to PREFIX_SALESFORCE_API.
type EnvProvider struct {
	Prefix string
}

func (p *EnvProvider) Get(_ context.Context, name string) (string, error) {
	key := p.Prefix + strings.ToUpper(strings.NewReplacer("/", "_", "-", "_").Replace(name))
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("secrets.EnvProvider.Get: %s (%s): %w", name, key, ErrSecretNotFound)
	}
	return v, nil
}

type cacheEntry struct {
	value     string
	fetchedAt time.Time
}

// Cache wraps a Provider with a TTL-bounded in-memory cache. Invalidate
// drops an entry so the next Get refetches, used when the external system
// rejects the cached credentials.
type Cache struct {
	src Provider
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

func NewCache(src Provider, ttl time.Duration) *Cache {
	return &Cache{
		src:     src,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *Cache) Get(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	entry, ok := c.entries[name]
	fresh := ok && c.now().Sub(entry.fetchedAt) < c.ttl
	c.mu.Unlock()

	if fresh {
		return entry.value, nil
	}

	value, err := c.src.Get(ctx, name)
	if err != nil {
		return "", fmt.Errorf("secrets.Cache.Get: %w", err)
	}

	c.mu.Lock()
	c.entries[name] = cacheEntry{value: value, fetchedAt: c.now()}
	c.mu.Unlock()

	return value, nil
}

// Invalidate drops the cached entry for name.
func (c *Cache) Invalidate(name string) {
	c.mu.Lock()
	delete(c.entries, name)
	c.mu.Unlock()
}
