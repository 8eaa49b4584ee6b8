package feed

import (
	"sync/atomic"

	"github.com/yanun0323/logs"
)

// ChunkCallback counts raw chunks from a connector reading an opaque stream.
type ChunkCallback struct {
	name   string
	chunks atomic.Int64
	bytes  atomic.Int64
}

// NewChunkCallback returns a counting callback tagged name.
func NewChunkCallback(name string) *ChunkCallback {
	return &ChunkCallback{name: name}
}

func (c *ChunkCallback) Connected() {
	logs.Infof("%s connected", c.name)
}

func (c *ChunkCallback) Received(chunk []byte) {
	c.chunks.Add(1)
	c.bytes.Add(int64(len(chunk)))
}

func (c *ChunkCallback) Disconnected(err error) {
	if err != nil {
		logs.Errorf("%s disconnected, chunks: %d, bytes: %d, err: %+v", c.name, c.chunks.Load(), c.bytes.Load(), err)
		return
	}
	logs.Infof("%s disconnected, chunks: %d, bytes: %d", c.name, c.chunks.Load(), c.bytes.Load())
}

// Chunks returns the number of chunks received.
func (c *ChunkCallback) Chunks() int64 {
	return c.chunks.Load()
}

// Bytes returns the number of bytes received.
func (c *ChunkCallback) Bytes() int64 {
	return c.bytes.Load()
}
