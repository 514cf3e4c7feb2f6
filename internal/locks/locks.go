// Package locks provides keyed mutual exclusion for pipeline
// operations. Mastery updates serialize per user; adaptive applies and
// plan synthesis serialize per plan.
package locks

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prepcoach/backend/internal/logger"
)

// Manager hands out exclusive locks by key.
type Manager interface {
	// Acquire blocks until the lock for key is held or ctx is done.
	// The returned release function must be called exactly once.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// keyedMutex is the in-process Manager. Entries are reference-counted
// so the map stays bounded by the number of keys currently in use.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex returns an in-process lock manager.
func NewKeyedMutex() Manager {
	return &keyedMutex{entries: make(map[string]*entry)}
}

func (m *keyedMutex) Acquire(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		m.put(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			<-e.ch
			m.put(key, e)
		})
	}
	return release, nil
}

func (m *keyedMutex) put(key string, e *entry) {
	m.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
	m.mu.Unlock()
}

// redisManager implements Manager on top of redis SET NX with a TTL,
// for deployments running more than one coach process.
type redisManager struct {
	client *redis.Client
	ttl    time.Duration
	poll   time.Duration
	log    *logger.Logger
}

// NewRedisManager returns a Manager backed by the given redis address.
func NewRedisManager(addr string, log *logger.Logger) Manager {
	return &redisManager{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    2 * time.Minute,
		poll:   50 * time.Millisecond,
		log:    log.With("component", "locks"),
	}
}

func (m *redisManager) Acquire(ctx context.Context, key string) (func(), error) {
	lockKey := "coach:lock:" + key
	for {
		ok, err := m.client.SetNX(ctx, lockKey, 1, m.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			var once sync.Once
			release := func() {
				once.Do(func() {
					if err := m.client.Del(context.Background(), lockKey).Err(); err != nil {
						m.log.Warn("Failed to release lock", "key", key, "error", err)
					}
				})
			}
			return release, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.poll):
		}
	}
}
