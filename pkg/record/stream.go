// Package record decodes raw feed bytes into typed records.
//
// A Stream is bound to a single connection. Next returns io.EOF once the
// underlying reader is exhausted; any other error is a transport or framing
// failure and ends the stream as well.
package record

import "io"

// Stream is a lazy, finite sequence of records decoded from one reader.
type Stream[T any] interface {
	Next() (T, error)
}

// StreamFactory builds a Stream over a freshly established input stream.
type StreamFactory[T any] func(r io.Reader) Stream[T]
