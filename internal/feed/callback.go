package feed

import (
	"github.com/yanun0323/livedata/internal/store"
	"github.com/yanun0323/livedata/pkg/record"
	"github.com/yanun0323/logs"
)

// Update is one store write extracted from a record.
type Update struct {
	Key      string
	Payload  []byte
	Complete bool
}

// StoreCallback writes connector records into a store. A record flagged
// complete ends the initial snapshot and flips the store completeness.
type StoreCallback[T any] struct {
	name    string
	store   *store.Store
	extract func(T) Update
}

// NewStoreCallback returns a callback applying extract to every record.
func NewStoreCallback[T any](name string, st *store.Store, extract func(T) Update) *StoreCallback[T] {
	return &StoreCallback[T]{name: name, store: st, extract: extract}
}

// NewTickCallback stores frame ticks under their key.
func NewTickCallback(st *store.Store) *StoreCallback[record.Tick] {
	return NewStoreCallback("tick feed", st, func(t record.Tick) Update {
		return Update{Key: t.Key, Payload: t.Payload, Complete: t.SnapshotComplete()}
	})
}

// NewQuoteCallback stores quote lines under their symbol.
func NewQuoteCallback(st *store.Store) *StoreCallback[record.Quote] {
	return NewStoreCallback("quote feed", st, QuoteUpdate)
}

// QuoteUpdate maps a quote to its store write.
func QuoteUpdate(q record.Quote) Update {
	return Update{Key: q.Symbol, Payload: q.Raw, Complete: q.Complete}
}

func (c *StoreCallback[T]) Connected() {
	logs.Infof("%s connected, keys: %d", c.name, c.store.Len())
}

func (c *StoreCallback[T]) Received(rec T) {
	c.Apply(c.extract(rec))
}

// Disconnected keeps the store as is; completeness is never retracted.
func (c *StoreCallback[T]) Disconnected(err error) {
	if err != nil {
		logs.Errorf("%s disconnected, keys: %d, err: %+v", c.name, c.store.Len(), err)
		return
	}
	logs.Infof("%s disconnected, keys: %d", c.name, c.store.Len())
}

// Apply writes u into the store.
func (c *StoreCallback[T]) Apply(u Update) {
	if u.Key != "" {
		c.store.StoreValue(u.Key, u.Payload)
	}
	if u.Complete {
		c.store.SetMarketDataComplete(true)
	}
}
