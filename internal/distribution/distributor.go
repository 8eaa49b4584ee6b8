package distribution

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
	"github.com/yanun0323/livedata/internal/obs"
	"github.com/yanun0323/livedata/internal/store"
	"github.com/yanun0323/logs"
)

// Distributor pushes the latest value of one key to its senders.
//
// Updates land in a one slot mailbox. The dispatch goroutine wakes, reads the
// current latest value and delivers it; updates arriving during a delivery
// only mark the mailbox, so at most one delivery is in flight and every
// value superseded meanwhile is skipped.
type Distributor struct {
	id      string
	key     string
	store   *store.Store
	senders []Sender
	metrics *obs.Metrics

	ctx        context.Context
	cancel     context.CancelFunc
	wake       chan struct{}
	done       chan struct{}
	notifiedAt atomic.Int64
	delivered  atomic.Uint64
}

func newDistributor(parent context.Context, key string, st *store.Store, metrics *obs.Metrics) *Distributor {
	ctx, cancel := context.WithCancel(parent)
	return &Distributor{
		id:      uuid.NewString(),
		key:     key,
		store:   st,
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// ID returns the unique distributor id.
func (d *Distributor) ID() string {
	return d.id
}

// Key returns the subscribed key.
func (d *Distributor) Key() string {
	return d.key
}

// Senders returns the senders created for this distributor.
func (d *Distributor) Senders() []Sender {
	return d.senders
}

// Delivered returns the number of completed delivery cycles.
func (d *Distributor) Delivered() uint64 {
	return d.delivered.Load()
}

// notify never blocks.
func (d *Distributor) notify() {
	d.notifiedAt.CompareAndSwap(0, time.Now().UnixNano())
	select {
	case d.wake <- struct{}{}:
	default:
		d.metrics.IncCoalesced()
	}
}

func (d *Distributor) run() {
	defer close(d.done)
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-d.wake:
		}

		since := d.notifiedAt.Swap(0)
		payload, ok := d.store.LatestValue(d.key)
		if !ok {
			continue
		}
		d.deliver(d.ctx, payload)
		d.delivered.Add(1)
		if since > 0 {
			d.metrics.ObserveDelivery(time.Duration(time.Now().UnixNano() - since))
		}
	}
}

func (d *Distributor) deliver(ctx context.Context, payload []byte) {
	for _, s := range d.senders {
		var (
			err     error
			catcher panics.Catcher
		)
		catcher.Try(func() { err = s.Send(ctx, payload) })
		if r := catcher.Recovered(); r != nil {
			d.metrics.IncSenderError()
			logs.Errorf("distributor %s, key: %s, sender panic: %+v", d.id, d.key, r.AsError())
			continue
		}
		if err != nil && ctx.Err() == nil {
			d.metrics.IncSenderError()
			logs.Errorf("distributor %s, key: %s, send, err: %+v", d.id, d.key, err)
		}
	}
}

// close cancels the context handed to senders and ends the dispatch loop.
func (d *Distributor) close() {
	d.cancel()
}
