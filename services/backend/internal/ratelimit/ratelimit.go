package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

func normalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "anonymous"
	}
	return key
}

// FixedWindow is an in-process limiter: at most limit hits per key per window.
// Expired windows are swept at most once per window.
type FixedWindow struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	byKey     map[string]windowState
	lastSweep time.Time
	now       func() time.Time
}

type windowState struct {
	start time.Time
	count int
}

func NewFixedWindow(limit int, window time.Duration) *FixedWindow {
	return &FixedWindow{
		limit:  limit,
		window: window,
		byKey:  map[string]windowState{},
		now:    time.Now,
	}
}

func (l *FixedWindow) Allow(_ context.Context, key string) (bool, error) {
	if l == nil || l.limit <= 0 {
		return true, nil
	}
	key = normalizeKey(key)
	now := l.now().UTC()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(now)
	cur := l.byKey[key]
	if cur.start.IsZero() || now.Sub(cur.start) >= l.window {
		l.byKey[key] = windowState{start: now, count: 1}
		return true, nil
	}
	if cur.count >= l.limit {
		return false, nil
	}
	cur.count++
	l.byKey[key] = cur
	return true, nil
}

func (l *FixedWindow) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now
	for k, st := range l.byKey {
		if now.Sub(st.start) >= l.window {
			delete(l.byKey, k)
		}
	}
}

// Redis shares the window across backend replicas. The first INCR in a
// window sets the key's expiry.
type Redis struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

func NewRedis(client *redis.Client, prefix string, limit int, window time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, limit: limit, window: window}
}

func (l *Redis) Allow(ctx context.Context, key string) (bool, error) {
	if l == nil || l.limit <= 0 {
		return true, nil
	}
	k := l.prefix + normalizeKey(key)
	n, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return false, err
		}
	}
	return n <= int64(l.limit), nil
}
