package federation

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// appleKeyCache holds Apple's signing keys and refetches them once the
// cached copy is older than ttl.
type appleKeyCache struct {
	url        string
	httpClient *http.Client
	ttl        time.Duration

	mu        sync.RWMutex
	set       jwk.Set
	expiresAt time.Time
}

func newAppleKeyCache(url string, client *http.Client, ttl time.Duration) *appleKeyCache {
	return &appleKeyCache{url: url, httpClient: client, ttl: ttl}
}

func (c *appleKeyCache) Get(ctx context.Context) (jwk.Set, error) {
	c.mu.RLock()
	if c.set != nil && time.Now().Before(c.expiresAt) {
		set := c.set
		c.mu.RUnlock()
		return set, nil
	}
	c.mu.RUnlock()

	set, err := jwk.Fetch(ctx, c.url, jwk.WithHTTPClient(c.httpClient))
	if err != nil {
		return nil, fmt.Errorf("fetch apple keys: %w", err)
	}

	c.mu.Lock()
	c.set = set
	c.expiresAt = time.Now().Add(c.ttl)
	c.mu.Unlock()
	return set, nil
}
