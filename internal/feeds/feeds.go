// Package feeds fetches news headlines and social page posts for the bot.
// Results are cached for a short TTL and concurrent misses share one request.
package feeds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// ErrNotConfigured is returned when a feed has no credentials.
var ErrNotConfigured = errors.New("feed not configured")

// Post is a single social feed entry.
type Post struct {
	Text string
	Link string
}

type cachedSource struct {
	cache *cache.Cache
	group singleflight.Group
}

func newCachedSource(ttl time.Duration) *cachedSource {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &cachedSource{cache: cache.New(ttl, 2*ttl)}
}

// load returns the cached value for key or runs fetch once for all concurrent callers.
func (s *cachedSource) load(ctx context.Context, key string, fetch func(context.Context) (any, error)) (any, error) {
	if v, ok := s.cache.Get(key); ok {
		return v, nil
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		s.cache.Set(key, v, cache.DefaultExpiration)
		return v, nil
	})
	return v, err
}

func getJSON(ctx context.Context, client *http.Client, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
