package connector

import (
	"context"
	"time"

	"github.com/yanun0323/logs"
)

// JobFunc builds a fresh job for each attempt.
type JobFunc[T any] func() (*Job[T], error)

// Supervise runs jobs until ctx is done, sleeping per backoff between
// attempts. The attempt counter resets after a run that connected.
func Supervise[T any](ctx context.Context, newJob JobFunc[T], backoff Backoff) error {
	attempt := 0
	for {
		job, err := newJob()
		if err != nil {
			return err
		}

		runErr := job.Run(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if job.Established() {
			attempt = 0
		}
		attempt++

		wait := backoff.Next(attempt)
		logs.Infof("reconnect in %s, attempt: %d, err: %+v", wait, attempt, runErr)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
