package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "postflow:lease:"

// releaseScript deletes the key only if this owner still holds it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript pushes the expiry out only if this owner still holds the key.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

type leaseClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// Leaser hands out short redis leases so that only one beat process runs a
// given periodic job at a time.
type Leaser struct {
	rdb   leaseClient
	owner string
}

func NewLeaser(rdb leaseClient) *Leaser {
	return &Leaser{
		rdb:   rdb,
		owner: uuid.NewString(),
	}
}

// Acquire takes the named lease for ttl. It returns false when another
// process holds it.
func (l *Leaser) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, keyPrefix+name, l.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}
	return ok, nil
}

func (l *Leaser) Release(ctx context.Context, name string) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{keyPrefix + name}, l.owner).Err(); err != nil {
		return fmt.Errorf("failed to release lease %s: %w", name, err)
	}
	return nil
}

// Extend renews a held lease for another ttl. It returns false when the lease
// has already expired or passed to another process.
func (l *Leaser) Extend(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	n, err := extendScript.Run(ctx, l.rdb, []string{keyPrefix + name}, l.owner, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to extend lease %s: %w", name, err)
	}
	return n == 1, nil
}

// Connect opens a redis client and checks it with a ping.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return rdb, nil
}
