package connector

import "sync"

const defaultHandoffSize = 1024

// handoff moves decoded records from the decode goroutine to the dispatching
// goroutine. Publish blocks when full; nothing is ever dropped.
type handoff[T any] struct {
	ch        chan T
	quit      chan struct{}
	closeOnce sync.Once
	quitOnce  sync.Once
}

func newHandoff[T any](capacity int) *handoff[T] {
	if capacity <= 0 {
		capacity = defaultHandoffSize
	}
	return &handoff[T]{
		ch:   make(chan T, capacity),
		quit: make(chan struct{}),
	}
}

// Publish blocks until the record is queued. It returns false once the
// consumer has abandoned the handoff.
func (h *handoff[T]) Publish(v T) bool {
	select {
	case h.ch <- v:
		return true
	case <-h.quit:
		return false
	}
}

// Close is called by the producer when no more records follow.
func (h *handoff[T]) Close() {
	h.closeOnce.Do(func() { close(h.ch) })
}

// Abandon is called by the consumer when it stops draining early.
func (h *handoff[T]) Abandon() {
	h.quitOnce.Do(func() { close(h.quit) })
}

// Run drains records until the producer closes the handoff or handler
// returns false.
func (h *handoff[T]) Run(handler func(T) bool) {
	for v := range h.ch {
		if !handler(v) {
			h.Abandon()
			return
		}
	}
}
