package connector

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/livedata/internal/obs"
	"github.com/yanun0323/livedata/pkg/exception"
	"github.com/yanun0323/livedata/pkg/record"
	"github.com/yanun0323/logs"
)

// Option configures a Job.
type Option struct {
	// Name tags log lines.
	Name string
	// Executor enables pipelined mode: decoding runs on a goroutine started
	// through it while Run dispatches. The executor must start fn promptly.
	Executor Executor
	// HandoffSize is the pipelined queue capacity.
	HandoffSize int
	Metrics     *obs.Metrics
}

// Job drives a single connection attempt: connect, read until the stream
// ends, disconnect. A Job runs at most once; restarting is the caller's job.
type Job[T any] struct {
	transport Transport
	callback  Callback[T]
	streams   record.StreamFactory[T]
	opt       Option

	state     atomic.Uint32
	connected atomic.Bool
	stopped   atomic.Bool
	stopCh    chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
}

// New creates an idle job.
func New[T any](transport Transport, callback Callback[T], streams record.StreamFactory[T], opt ...Option) (*Job[T], error) {
	if transport == nil {
		return nil, exception.ErrConnectorNilTransport
	}
	if callback == nil {
		return nil, exception.ErrConnectorNilCallback
	}
	if streams == nil {
		return nil, exception.ErrConnectorNilFactory
	}

	j := &Job[T]{
		transport: transport,
		callback:  callback,
		streams:   streams,
		stopCh:    make(chan struct{}),
	}
	if len(opt) > 0 {
		j.opt = opt[0]
	}
	if j.opt.Name == "" {
		j.opt.Name = "connector"
	}
	return j, nil
}

// State returns the current lifecycle state.
func (j *Job[T]) State() State {
	return State(j.state.Load())
}

// Established reports whether the run reached the connected state.
func (j *Job[T]) Established() bool {
	return j.connected.Load()
}

// Pipelined reports whether decoding and dispatch run on separate goroutines.
func (j *Job[T]) Pipelined() bool {
	return j.opt.Executor != nil
}

// Stop asks a running job to end. The transport is closed so a blocked read
// returns, and the loop observes the stop flag before the next record.
func (j *Job[T]) Stop() {
	j.stopped.Store(true)
	j.stopOnce.Do(func() { close(j.stopCh) })
}

// Run executes the connection attempt and returns the error that ended it,
// nil on a clean end of stream.
//
// Disconnected is delivered only when Connected was delivered; a failed
// Prepare or Establish is reported through the return value alone.
func (j *Job[T]) Run(ctx context.Context) error {
	if !j.state.CompareAndSwap(uint32(StateIdle), uint32(StateConnecting)) {
		return exception.ErrConnectorAlreadyRun
	}
	defer j.endConnection()

	if err := j.transport.Prepare(ctx); err != nil {
		j.setState(StateDisconnected)
		j.opt.Metrics.ObserveConnectorRun(err)
		return errors.Wrap(err, "prepare connection")
	}

	reader, err := j.transport.Establish(ctx)
	if err != nil {
		j.setState(StateDisconnected)
		j.opt.Metrics.ObserveConnectorRun(err)
		return errors.Wrap(err, "establish connection")
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-j.stopCh:
		case <-done:
			return
		}
		j.endConnection()
	}()

	j.setState(StateConnected)
	j.connected.Store(true)
	logs.Infof("%s connected, pipelined: %t", j.opt.Name, j.Pipelined())
	j.callback.Connected()

	stream := j.streams(reader)
	j.setState(StateReading)

	var runErr error
	if j.Pipelined() {
		runErr = j.readPipelined(ctx, stream)
	} else {
		runErr = j.readDirect(ctx, stream)
	}

	j.setState(StateDisconnected)
	if runErr != nil {
		logs.Warnf("%s disconnected, err: %+v", j.opt.Name, runErr)
	} else {
		logs.Infof("%s disconnected, end of stream", j.opt.Name)
	}
	j.callback.Disconnected(runErr)
	j.opt.Metrics.ObserveConnectorRun(runErr)
	return runErr
}

func (j *Job[T]) readDirect(ctx context.Context, stream record.Stream[T]) error {
	for {
		if err := j.interrupted(ctx); err != nil {
			return err
		}
		rec, err := stream.Next()
		if err != nil {
			return j.readError(ctx, err)
		}
		j.opt.Metrics.IncRecord()
		j.callback.Received(rec)
	}
}

func (j *Job[T]) readPipelined(ctx context.Context, stream record.Stream[T]) error {
	var (
		h       = newHandoff[T](j.opt.HandoffSize)
		readErr error
		decoded = make(chan struct{})
	)

	j.opt.Executor.Go(func() {
		defer close(decoded)
		defer h.Close()
		for {
			if err := j.interrupted(ctx); err != nil {
				readErr = err
				return
			}
			rec, err := stream.Next()
			if err != nil {
				readErr = j.readError(ctx, err)
				return
			}
			if !h.Publish(rec) {
				return
			}
		}
	})

	var dispatchErr error
	h.Run(func(rec T) bool {
		if err := j.interrupted(ctx); err != nil {
			dispatchErr = err
			return false
		}
		j.opt.Metrics.IncRecord()
		j.callback.Received(rec)
		return true
	})

	if dispatchErr != nil {
		// unblock a decoder parked on the socket
		j.endConnection()
		<-decoded
		return dispatchErr
	}
	<-decoded
	return readErr
}

func (j *Job[T]) interrupted(ctx context.Context) error {
	if j.stopped.Load() {
		return exception.ErrConnectorStopped
	}
	return ctx.Err()
}

func (j *Job[T]) readError(ctx context.Context, err error) error {
	if err == io.EOF {
		return nil
	}
	if cerr := j.interrupted(ctx); cerr != nil {
		return cerr
	}
	return errors.Wrap(err, "read record")
}

func (j *Job[T]) endConnection() {
	j.closeOnce.Do(func() {
		if err := j.transport.Close(); err != nil {
			logs.Warnf("%s close transport, err: %+v", j.opt.Name, err)
		}
	})
}

func (j *Job[T]) setState(s State) {
	j.state.Store(uint32(s))
}
