// Package lease keeps at most one simulation running across processes that
// share a Redis instance.
package lease

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLeaseLost is returned by Refresh when the lease expired or was taken.
var ErrLeaseLost = errors.New("simulation lease lost")

const (
	renewScript = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("PEXPIRE", KEYS[1], ARGV[2])
		else
			return 0
		end
	`
	releaseScript = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
)

// RedisGuard holds a single Redis key while a simulation runs. The stored
// value is "<holder>|<eventID>".
type RedisGuard struct {
	client   *redis.Client
	key      string
	ttl      time.Duration
	holderID string

	mu    sync.Mutex
	value string
}

// NewRedisGuard creates a guard with a random holder id.
func NewRedisGuard(client *redis.Client, key string, ttl time.Duration) *RedisGuard {
	return &RedisGuard{
		client:   client,
		key:      key,
		ttl:      ttl,
		holderID: uuid.NewString(),
	}
}

// Acquire takes the lease for eventID. It returns false when another holder
// has it.
func (g *RedisGuard) Acquire(ctx context.Context, eventID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	value := g.holderID + "|" + eventID
	ok, err := g.client.SetNX(ctx, g.key, value, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}
	if ok {
		g.value = value
		return true, nil
	}

	current, err := g.client.Get(ctx, g.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check existing lease: %w", err)
	}
	if current != value {
		return false, nil
	}
	g.value = value
	return true, g.renew(ctx)
}

// Refresh extends the lease TTL. It is a no-op when nothing is held.
func (g *RedisGuard) Refresh(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.value == "" {
		return nil
	}
	return g.renew(ctx)
}

func (g *RedisGuard) renew(ctx context.Context) error {
	res, err := g.client.Eval(ctx, renewScript, []string{g.key}, g.value, g.ttl.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("failed to execute renew script: %w", err)
	}
	if n, ok := res.(int64); !ok || n != 1 {
		g.value = ""
		return ErrLeaseLost
	}
	return nil
}

// Release drops the lease if this guard still holds it.
func (g *RedisGuard) Release(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.value == "" {
		return nil
	}
	if _, err := g.client.Eval(ctx, releaseScript, []string{g.key}, g.value).Result(); err != nil {
		return fmt.Errorf("failed to execute release script: %w", err)
	}
	g.value = ""
	return nil
}

// Holder returns the event currently simulated under the lease, by any process.
func (g *RedisGuard) Holder(ctx context.Context) (string, bool, error) {
	val, err := g.client.Get(ctx, g.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get lease: %w", err)
	}
	_, eventID, _ := strings.Cut(val, "|")
	return eventID, true, nil
}
