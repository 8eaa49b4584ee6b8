package store

import (
	"context"
	"sort"
	"sync"

	"github.com/yanun0323/livedata/internal/obs"
	"github.com/yanun0323/livedata/pkg/exception"
)

// ValueUpdateListener is told about every stored value.
type ValueUpdateListener func(key string, payload []byte)

// DataStateListener is told that the initial full snapshot has been loaded.
type DataStateListener func()

// Store keeps the latest payload per key plus a single completeness flag.
//
// All state is guarded by one mutex, and every change broadcasts on the
// condition used by Await. Listeners are called outside the lock.
type Store struct {
	mu       sync.Mutex
	cond     *sync.Cond
	values   map[string][]byte
	complete bool

	valueListener ValueUpdateListener
	stateListener DataStateListener
	observers     []observer
	nextObserver  uint64

	metrics *obs.Metrics
}

type observer struct {
	id uint64
	fn ValueUpdateListener
}

// New creates an empty, incomplete store. metrics may be nil.
func New(metrics *obs.Metrics) *Store {
	s := &Store{
		values:  make(map[string][]byte),
		metrics: metrics,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// StoreValue replaces the latest payload of key. The payload is kept as is
// and must not be modified afterwards.
func (s *Store) StoreValue(key string, payload []byte) {
	s.mu.Lock()
	s.values[key] = payload
	size := len(s.values)
	s.cond.Broadcast()
	listener := s.valueListener
	observers := s.observers
	s.mu.Unlock()

	s.metrics.ObserveStoreUpdate(size)

	if listener != nil {
		listener(key, payload)
	}
	for _, o := range observers {
		o.fn(key, payload)
	}
}

// LatestValue returns the stored payload of key.
func (s *Store) LatestValue(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// SetMarketDataComplete flips the completeness flag. Setting it to true
// fires the data state listener; setting it back to false retracts nothing.
func (s *Store) SetMarketDataComplete(complete bool) {
	s.mu.Lock()
	s.complete = complete
	s.cond.Broadcast()
	listener := s.stateListener
	s.mu.Unlock()

	if complete && listener != nil {
		listener()
	}
}

// MarketDataComplete reports the completeness flag.
func (s *Store) MarketDataComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.complete
}

// SetValueUpdateListener replaces the value listener. When the store is
// already complete the data state listener is fired once.
func (s *Store) SetValueUpdateListener(l ValueUpdateListener) {
	s.mu.Lock()
	s.valueListener = l
	s.mu.Unlock()
	s.catchUp()
}

// SetDataStateListener replaces the data state listener. When the store is
// already complete the new listener is fired once.
func (s *Store) SetDataStateListener(l DataStateListener) {
	s.mu.Lock()
	s.stateListener = l
	s.mu.Unlock()
	s.catchUp()
}

// catchUp replays a completion that happened before registration.
func (s *Store) catchUp() {
	s.mu.Lock()
	complete := s.complete
	listener := s.stateListener
	s.mu.Unlock()

	if complete && listener != nil {
		listener()
	}
}

// AddValueUpdateListener appends an observer and returns its removal func.
func (s *Store) AddValueUpdateListener(l ValueUpdateListener) (remove func()) {
	if l == nil {
		return func() {}
	}

	s.mu.Lock()
	s.nextObserver++
	id := s.nextObserver
	// copy on write so StoreValue can iterate without the lock
	observers := make([]observer, 0, len(s.observers)+1)
	observers = append(observers, s.observers...)
	s.observers = append(observers, observer{id: id, fn: l})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.removeObserver(id) })
	}
}

func (s *Store) removeObserver(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	observers := make([]observer, 0, len(s.observers))
	for _, o := range s.observers {
		if o.id != id {
			observers = append(observers, o)
		}
	}
	s.observers = observers
}

// Await blocks until key has a value, the store is complete without one,
// or ctx is done. A confirmed absence yields exception.ErrSnapshotNotFound.
func (s *Store) Await(ctx context.Context, key string) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if v, ok := s.values[key]; ok {
			return v, nil
		}
		if s.complete {
			return nil, exception.ErrSnapshotNotFound
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.cond.Wait()
	}
}

// Keys returns the stored keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}
