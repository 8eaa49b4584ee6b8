package exception

import "github.com/yanun0323/errors"

// Live data errors
var (
	ErrSnapshotTimeout  = errors.New("live data: snapshot timed out")
	ErrSnapshotNotFound = errors.New("live data: no value for key in complete snapshot")
	ErrServerStopped    = errors.New("live data: distribution server stopped")
	ErrNilSenderFactory = errors.New("live data: nil sender factory")
	ErrEmptyKey         = errors.New("live data: empty key")
	ErrUnknownSubscribe = errors.New("live data: unknown subscription")
)
