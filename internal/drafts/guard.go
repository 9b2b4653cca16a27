package drafts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sendKeyPrefix  = "drafts:sent:v1:"
	DefaultSendTTL = 24 * time.Hour
)

// SendGuard makes confirmSent idempotent per template, lead and draft.
type SendGuard interface {
	// Acquire returns true the first time key is seen within ttl.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

func sendKey(templateID, leadID, hash string) string {
	return sendKeyPrefix + templateID + ":" + leadID + ":" + hash
}

// RedisSendGuard claims keys with SET NX so every API replica shares them.
type RedisSendGuard struct {
	client *redis.Client
}

func NewRedisSendGuard(client *redis.Client) *RedisSendGuard {
	if client == nil {
		panic("drafts: redis client cannot be nil")
	}
	return &RedisSendGuard{client: client}
}

func (g *RedisSendGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := g.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("drafts: claim send key: %w", err)
	}
	return ok, nil
}

func (g *RedisSendGuard) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("drafts: release send key: %w", err)
	}
	return nil
}

// MemorySendGuard is the single-process guard used without Redis.
type MemorySendGuard struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemorySendGuard() *MemorySendGuard {
	return &MemorySendGuard{expires: make(map[string]time.Time), now: time.Now}
}

func (g *MemorySendGuard) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if exp, ok := g.expires[key]; ok && now.Before(exp) {
		return false, nil
	}
	g.expires[key] = now.Add(ttl)
	return true, nil
}

func (g *MemorySendGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.expires, key)
	return nil
}
