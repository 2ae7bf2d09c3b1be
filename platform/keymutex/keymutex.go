// Package keymutex provides a redis-backed advisory lock keyed by an
// arbitrary string. This is part of the platform layer and contains no
// business logic.
//
// Inbound call-outcome and booking-confirmation events for the same lead can
// arrive on different instances within milliseconds of each other. The store
// itself guards counters with conditional updates, but the reconciler's
// match-then-write sequence still needs per-key serialization. The lock is
// best-effort: TTL-bounded so a crashed holder cannot wedge a lead forever.
package keymutex

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL        = 10 * time.Second
	acquirePollPeriod = 25 * time.Millisecond
)

// Mutex acquires and releases named locks backed by redis SET NX.
type Mutex struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a keyed mutex using the given redis client.
func New(client *redis.Client) *Mutex {
	return &Mutex{client: client, ttl: defaultTTL}
}

// Lock blocks until the named lock is acquired or ctx is done. It returns an
// unlock function that releases the lock only if this caller still holds it.
func (m *Mutex) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	redisKey := "lock:" + key

	for {
		ok, err := m.client.SetNX(ctx, redisKey, token, m.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(acquirePollPeriod):
		}
	}

	unlock := func() {
		// Release only our own token; an expired lock may have been
		// re-acquired by another holder.
		m.client.Eval(context.WithoutCancel(ctx), releaseScript, []string{redisKey}, token)
	}
	return unlock, nil
}

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`
