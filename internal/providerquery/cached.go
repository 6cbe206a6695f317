package providerquery

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/accessgate/internal/cache"
	"github.com/smallbiznis/accessgate/internal/clock"
	providerdomain "github.com/smallbiznis/accessgate/internal/providerquery/domain"
	"golang.org/x/sync/singleflight"
)

// Cached coalesces concurrent lookups for the same subscription and keeps
// successful and not-found answers for ttl.
type Cached struct {
	next  providerdomain.Client
	cache *cache.TTLCache[string, cachedResult]
	group singleflight.Group
	ttl   time.Duration
}

type cachedResult struct {
	snapshot *providerdomain.SubscriptionSnapshot
	notFound bool
}

func NewCached(next providerdomain.Client, ttl time.Duration, c clock.Clock) *Cached {
	return &Cached{
		next:  next,
		cache: cache.NewTTLCache[string, cachedResult](c),
		ttl:   ttl,
	}
}

func (c *Cached) FetchSubscription(ctx context.Context, subscriptionID string) (*providerdomain.SubscriptionSnapshot, error) {
	if subscriptionID == "" {
		return nil, providerdomain.ErrInvalidSubscriptionID
	}
	if hit, ok := c.cache.Get(subscriptionID); ok {
		return hit.result()
	}

	value, err, _ := c.group.Do(subscriptionID, func() (any, error) {
		snapshot, err := c.next.FetchSubscription(ctx, subscriptionID)
		switch {
		case err == nil:
			entry := cachedResult{snapshot: snapshot}
			c.cache.Set(subscriptionID, entry, c.ttl)
			return entry, nil
		case errors.Is(err, providerdomain.ErrSubscriptionNotFound):
			entry := cachedResult{notFound: true}
			c.cache.Set(subscriptionID, entry, c.ttl)
			return entry, nil
		default:
			return nil, err
		}
	})
	if err != nil {
		return nil, err
	}
	return value.(cachedResult).result()
}

// Purge drops expired snapshots.
func (c *Cached) Purge() int {
	return c.cache.Purge()
}

func (r cachedResult) result() (*providerdomain.SubscriptionSnapshot, error) {
	if r.notFound {
		return nil, providerdomain.ErrSubscriptionNotFound
	}
	snapshot := *r.snapshot
	return &snapshot, nil
}
