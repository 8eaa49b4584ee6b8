package distribution

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/livedata/internal/obs"
	"github.com/yanun0323/livedata/internal/store"
	"github.com/yanun0323/livedata/pkg/exception"
	"github.com/yanun0323/logs"
)

// Server serves the store by snapshot and by push subscription.
type Server struct {
	store   *store.Store
	factory SenderFactory
	metrics *obs.Metrics

	mu           sync.RWMutex
	distributors map[string]*Distributor
	stopped      bool

	ctx      context.Context
	cancel   context.CancelFunc
	wg       conc.WaitGroup
	unlisten func()
	stopOnce sync.Once
}

// NewServer attaches a server to st. metrics may be nil.
func NewServer(st *store.Store, factory SenderFactory, metrics *obs.Metrics) (*Server, error) {
	if st == nil {
		return nil, exception.ErrNilInstance
	}
	if factory == nil {
		return nil, exception.ErrNilSenderFactory
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		store:        st,
		factory:      factory,
		metrics:      metrics,
		distributors: make(map[string]*Distributor),
		ctx:          ctx,
		cancel:       cancel,
	}
	s.unlisten = st.AddValueUpdateListener(s.onValue)
	return s, nil
}

// Store returns the backing store.
func (s *Server) Store() *store.Store {
	return s.store
}

func (s *Server) onValue(key string, _ []byte) {
	s.mu.RLock()
	d := s.distributors[key]
	s.mu.RUnlock()
	if d != nil {
		d.notify()
	}
}

// Snapshot returns the latest value of key, waiting for it when absent.
//
// It fails with exception.ErrSnapshotNotFound once the store is complete
// without the key, and with exception.ErrSnapshotTimeout after timeout.
// A timeout <= 0 waits until ctx is done.
func (s *Server) Snapshot(ctx context.Context, key string, timeout time.Duration) ([]byte, error) {
	if key == "" {
		return nil, exception.ErrEmptyKey
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, timeout, exception.ErrSnapshotTimeout)
		defer cancel()
	}

	payload, err := s.store.Await(ctx, key)
	switch {
	case err == nil:
		s.metrics.ObserveSnapshot(obs.SnapshotHit)
		return payload, nil
	case err == exception.ErrSnapshotNotFound:
		s.metrics.ObserveSnapshot(obs.SnapshotNotFound)
		return nil, errors.Wrapf(exception.ErrSnapshotNotFound, "key: %s", key)
	case context.Cause(ctx) == exception.ErrSnapshotTimeout:
		s.metrics.ObserveSnapshot(obs.SnapshotTimeout)
		return nil, errors.Wrapf(exception.ErrSnapshotTimeout, "key: %s, timeout: %s", key, timeout)
	default:
		s.metrics.ObserveSnapshot(obs.SnapshotCanceled)
		return nil, err
	}
}

// Subscribe returns the distributor of key, creating it and its dispatch
// goroutine on first use. A key that already has a value is delivered
// right away.
func (s *Server) Subscribe(key string) (*Distributor, error) {
	if key == "" {
		return nil, exception.ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, exception.ErrServerStopped
	}
	if d, ok := s.distributors[key]; ok {
		return d, nil
	}

	d := newDistributor(s.ctx, key, s.store, s.metrics)
	senders, err := s.factory.Create(d)
	if err != nil {
		d.close()
		return nil, errors.Wrapf(err, "create senders, key: %s", key)
	}
	d.senders = senders
	s.distributors[key] = d
	s.metrics.AddDistributors(1)
	s.wg.Go(d.run)

	if _, ok := s.store.LatestValue(key); ok {
		d.notify()
	}
	logs.Infof("subscribed %s, distributor: %s, senders: %d", key, d.id, len(senders))
	return d, nil
}

// Unsubscribe stops the distributor of key and waits for its goroutine.
func (s *Server) Unsubscribe(key string) error {
	s.mu.Lock()
	d, ok := s.distributors[key]
	if ok {
		delete(s.distributors, key)
	}
	s.mu.Unlock()
	if !ok {
		return errors.Wrapf(exception.ErrUnknownSubscribe, "key: %s", key)
	}

	d.close()
	<-d.done
	s.metrics.AddDistributors(-1)
	return nil
}

// Distributors returns the active distributors ordered by key.
func (s *Server) Distributors() []*Distributor {
	s.mu.RLock()
	result := make([]*Distributor, 0, len(s.distributors))
	for _, d := range s.distributors {
		result = append(result, d)
	}
	s.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool { return result[i].key < result[j].key })
	return result
}

// Stop unregisters from the store, signals every distributor and waits for
// all dispatch goroutines to exit.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.unlisten()

		s.mu.Lock()
		s.stopped = true
		distributors := s.distributors
		s.distributors = make(map[string]*Distributor)
		s.mu.Unlock()

		s.cancel()
		for _, d := range distributors {
			d.close()
		}
		s.wg.Wait()
		s.metrics.AddDistributors(-len(distributors))
		logs.Infof("distribution server stopped, distributors: %d", len(distributors))
	})
}
