// Package runtime implements the module runtime (C8): per-module
// execution with an exclusive lock so the same module never executes
// concurrently with itself, while independent modules run in parallel.
package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ModuleLock is the per-module-id exclusive lock contract. Two
// implementations back it: a local mutex map for the Lite (single
// process) profile, and a Redis-backed distributed lock for Standard
// (multi-process).
type ModuleLock interface {
	Acquire(ctx context.Context, moduleID string) (func(), error)
}

// LocalLock implements ModuleLock with an in-process map of mutexes,
// one per module ID, created lazily.
type LocalLock struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocalLock creates a LocalLock for single-process deployments.
func NewLocalLock() *LocalLock {
	return &LocalLock{locks: make(map[string]*sync.Mutex)}
}

func (l *LocalLock) moduleMutex(moduleID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[moduleID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[moduleID] = m
	}
	return m
}

// Acquire blocks until moduleID's mutex is free or ctx is canceled,
// returning a release function.
func (l *LocalLock) Acquire(ctx context.Context, moduleID string) (func(), error) {
	m := l.moduleMutex(moduleID)
	done := make(chan struct{})
	go func() {
		m.Lock()
		close(done)
	}()
	select {
	case <-done:
		return m.Unlock, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DistributedLock implements ModuleLock over Redis, for the Standard
// (multi-process) deployment profile, so two engine instances never
// run the same module at once.
type DistributedLock struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewDistributedLock creates a Redis-backed ModuleLock with the given
// per-acquisition TTL (the lock is auto-released if the holder crashes
// without releasing it).
func NewDistributedLock(client *redis.Client, ttl time.Duration) *DistributedLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &DistributedLock{client: client, ttl: ttl, prefix: "autodev:module-lock:"}
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Acquire performs a blocking SET NX poll loop until moduleID's lock
// key is free or ctx is canceled, returning a release function that
// only deletes the key if it still holds the token this call set.
func (d *DistributedLock) Acquire(ctx context.Context, moduleID string) (func(), error) {
	key := d.prefix + moduleID
	token := fmt.Sprintf("%d", time.Now().UnixNano())

	for {
		ok, err := d.client.SetNX(ctx, key, token, d.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquiring lock for %s: %w", moduleID, err)
		}
		if ok {
			release := func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				releaseScript.Run(releaseCtx, d.client, []string{key}, token)
			}
			return release, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}
