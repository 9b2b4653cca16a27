package templates

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/crestpointmarketing/eventra-app-sub000/pkg/logging"
)

const cacheKeyPrefix = "templates:v2:"

// storeIfNewer writes a cache entry only when it is not older than the one
// already stored, ordering by (version, usage). An empty payload stores a
// tombstone that keeps older reads from repopulating a deleted template.
var storeIfNewer = redis.NewScript(`
local cur = redis.call('HMGET', KEYS[1], 'version', 'usage')
local v, u = tonumber(ARGV[1]), tonumber(ARGV[2])
local cv, cu = tonumber(cur[1]), tonumber(cur[2])
if cv and (cv > v or (cv == v and cu and cu > u)) then
  return 0
end
redis.call('DEL', KEYS[1])
if ARGV[3] == '' then
  redis.call('HSET', KEYS[1], 'version', ARGV[1], 'usage', ARGV[2])
else
  redis.call('HSET', KEYS[1], 'version', ARGV[1], 'usage', ARGV[2], 'data', ARGV[3])
end
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return 1
`)

// FreshReader is implemented by repositories that can skip their read cache.
// Mutations load their target through it.
type FreshReader interface {
	GetFresh(ctx context.Context, id string) (*Template, error)
}

// CachedRepository is a read-through Redis cache in front of another
// Repository. Only Get is cached. Entries carry the template version and
// usage count, and a write never replaces a newer entry. Redis failures are
// logged and the call falls through to the inner repository.
type CachedRepository struct {
	inner  Repository
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewCachedRepository wraps inner. A nil client returns a pass-through cache.
func NewCachedRepository(inner Repository, client *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedRepository {
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedRepository{inner: inner, redis: client, ttl: ttl, logger: logger}
}

func (c *CachedRepository) key(id string) string {
	return cacheKeyPrefix + id
}

func (c *CachedRepository) Get(ctx context.Context, id string) (*Template, error) {
	if c.redis != nil {
		data, err := c.redis.HGet(ctx, c.key(id), "data").Bytes()
		switch {
		case err == nil:
			var t Template
			if jerr := json.Unmarshal(data, &t); jerr == nil {
				return &t, nil
			}
			c.logger.Warn("template cache entry unreadable", "template_id", id)
		case !errors.Is(err, redis.Nil):
			c.logger.Warn("template cache read failed", "template_id", id, "error", err)
		}
	}
	return c.GetFresh(ctx, id)
}

// GetFresh reads the inner repository and offers the result to the cache.
func (c *CachedRepository) GetFresh(ctx context.Context, id string) (*Template, error) {
	t, err := c.inner.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, t)
	return t, nil
}

func (c *CachedRepository) Insert(ctx context.Context, t *Template) error {
	return c.inner.Insert(ctx, t)
}

func (c *CachedRepository) List(ctx context.Context, filter ListFilter) ([]*Template, error) {
	return c.inner.List(ctx, filter)
}

func (c *CachedRepository) Update(ctx context.Context, t *Template, expectedVersion int) error {
	if err := c.inner.Update(ctx, t, expectedVersion); err != nil {
		return err
	}
	c.store(ctx, t)
	return nil
}

func (c *CachedRepository) IncrementUsage(ctx context.Context, id string) (int64, error) {
	n, err := c.inner.IncrementUsage(ctx, id)
	if err != nil {
		return n, err
	}
	if c.redis != nil {
		if _, err := c.GetFresh(ctx, id); err != nil {
			c.logger.Warn("template cache refresh failed", "template_id", id, "error", err)
		}
	}
	return n, nil
}

func (c *CachedRepository) Delete(ctx context.Context, id string, expectedVersion int) error {
	if err := c.inner.Delete(ctx, id, expectedVersion); err != nil {
		return err
	}
	c.write(ctx, id, expectedVersion+1, 0, nil)
	return nil
}

func (c *CachedRepository) store(ctx context.Context, t *Template) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(t)
	if err != nil {
		c.logger.Warn("template cache encode failed", "template_id", t.ID, "error", err)
		return
	}
	c.write(ctx, t.ID, t.Version, t.UsageCount, data)
}

func (c *CachedRepository) write(ctx context.Context, id string, version int, usage int64, data []byte) {
	if c.redis == nil {
		return
	}
	args := []any{
		strconv.Itoa(version),
		strconv.FormatInt(usage, 10),
		string(data),
		strconv.FormatInt(c.ttl.Milliseconds(), 10),
	}
	if err := storeIfNewer.Run(ctx, c.redis, []string{c.key(id)}, args...).Err(); err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Warn("template cache write failed", "template_id", id, "error", err)
	}
}
