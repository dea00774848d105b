// Package guard provides the reentrancy flag that keeps an approval and a
// reconciliation of the same request from interleaving their write sequences.
package guard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrBusy is returned when the key is already held.
var ErrBusy = errors.New("operation already in progress")

// Guard hands out exclusive flags by key. The release func returned by a
// successful TryAcquire may be called more than once.
type Guard interface {
	TryAcquire(ctx context.Context, key string) (release func(), err error)
}

// Local is an in-process guard for single-node deployments and tests.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

func (l *Local) TryAcquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, ErrBusy
	}
	l.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

const redisPrefix = "guard:"

// Redis shares flags across processes with SET NX. TTL bounds how long a crashed
// holder can block others.
type Redis struct {
	Rdb *redis.Client
	TTL time.Duration
}

// compare-and-delete so an expired holder never frees a flag someone else now owns
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (r *Redis) TryAcquire(ctx context.Context, key string) (func(), error) {
	ttl := r.TTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	token := uuid.NewString()
	ok, err := r.Rdb.SetNX(ctx, redisPrefix+key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrBusy
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			_ = releaseScript.Run(context.Background(), r.Rdb, []string{redisPrefix + key}, token).Err()
		})
	}, nil
}
