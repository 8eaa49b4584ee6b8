package connector

import (
	"context"
	"io"
)

// State is the lifecycle state of a single connection attempt.
type State uint32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateReading
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReading:
		return "reading"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Callback receives the events of one job run.
//
// Connected is called exactly once before any Received. Received is called in
// stream order. Disconnected is called exactly once after Connected, with nil
// on a clean end of stream, and is never called if Connected was not reached.
type Callback[T any] interface {
	Connected()
	Received(record T)
	Disconnected(err error)
}

// Transport supplies the connection hooks of a job.
type Transport interface {
	// Prepare runs before the connection is established.
	Prepare(ctx context.Context) error
	// Establish opens the connection and returns its input stream.
	Establish(ctx context.Context) (io.Reader, error)
	// Close ends the connection. It is always called once the run exits.
	Close() error
}

// Executor runs the decode goroutine of a pipelined job.
// *conc.WaitGroup and conc pools satisfy it.
type Executor interface {
	Go(fn func())
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(fn func())

// Go runs fn through f.
func (f ExecutorFunc) Go(fn func()) {
	f(fn)
}

// GoExecutor starts each function on a new goroutine.
var GoExecutor Executor = ExecutorFunc(func(fn func()) { go fn() })
