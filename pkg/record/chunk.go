package record

import (
	"io"

	"github.com/yanun0323/livedata/pkg/exception"
)

// DefaultChunkSize is the chunk size used by ChunkFactory when size <= 0.
const DefaultChunkSize = 4096

// ChunkStream splits the reader into fixed size chunks.
// A trailing partial chunk is returned as is.
type ChunkStream struct {
	r    io.Reader
	size int
}

// NewChunkStream creates a chunk stream with the given chunk size.
func NewChunkStream(r io.Reader, size int) *ChunkStream {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &ChunkStream{r: r, size: size}
}

// ChunkFactory returns a StreamFactory producing chunks of size bytes.
func ChunkFactory(size int) StreamFactory[[]byte] {
	return func(r io.Reader) Stream[[]byte] {
		return NewChunkStream(r, size)
	}
}

// Next returns a newly allocated chunk. The chunk is owned by the caller.
func (s *ChunkStream) Next() ([]byte, error) {
	if s == nil || s.r == nil {
		return nil, exception.ErrRecordInvalidChunkSize
	}
	buf := make([]byte, s.size)
	n, err := io.ReadFull(s.r, buf)
	switch {
	case err == nil:
		return buf, nil
	case err == io.ErrUnexpectedEOF:
		return buf[:n], nil
	default:
		return nil, err
	}
}
