package cache

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/livedata/pkg/exception"
)

// Cache is a key value cache owning its capacity and eviction policy.
type Cache[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	Put(ctx context.Context, key K, value V)
}

// LRU keeps at most a fixed number of entries, evicting the least
// recently used one.
type LRU[K comparable, V any] struct {
	c *lru.Cache[K, V]
}

// NewLRU creates an LRU cache holding up to size entries.
func NewLRU[K comparable, V any](size int) (*LRU[K, V], error) {
	if size <= 0 {
		return nil, errors.Wrapf(exception.ErrInvalidArgument, "lru size: %d", size)
	}
	c, err := lru.New[K, V](size)
	if err != nil {
		return nil, errors.Wrap(err, "new lru")
	}
	return &LRU[K, V]{c: c}, nil
}

func (l *LRU[K, V]) Get(_ context.Context, key K) (V, bool) {
	return l.c.Get(key)
}

func (l *LRU[K, V]) Put(_ context.Context, key K, value V) {
	l.c.Add(key, value)
}

// Len returns the number of cached entries.
func (l *LRU[K, V]) Len() int {
	return l.c.Len()
}

// Unbounded never evicts.
type Unbounded[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

// NewUnbounded creates an empty unbounded cache.
func NewUnbounded[K comparable, V any]() *Unbounded[K, V] {
	return &Unbounded[K, V]{m: make(map[K]V)}
}

func (u *Unbounded[K, V]) Get(_ context.Context, key K) (V, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	v, ok := u.m[key]
	return v, ok
}

func (u *Unbounded[K, V]) Put(_ context.Context, key K, value V) {
	u.mu.Lock()
	u.m[key] = value
	u.mu.Unlock()
}

// Len returns the number of cached entries.
func (u *Unbounded[K, V]) Len() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.m)
}
