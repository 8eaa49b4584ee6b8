package feed

import (
	"bufio"
	"io"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/livedata/pkg/exception"
	"github.com/yanun0323/livedata/pkg/record"
)

// Record formats understood by the feed.
const (
	FormatFrame = "frame"
	FormatQuote = "quote"
	FormatChunk = "chunk"
)

// Encoder writes quotes in one wire format.
type Encoder interface {
	Encode(q record.Quote) error
	Flush() error
}

// NewEncoder returns an encoder of format writing to w.
func NewEncoder(format string, w io.Writer) (Encoder, error) {
	switch format {
	case FormatFrame:
		return &frameEncoder{w: record.NewFrameWriter(w)}, nil
	case FormatQuote, "":
		return &quoteEncoder{w: bufio.NewWriter(w)}, nil
	default:
		return nil, errors.Wrapf(exception.ErrArgumentUnsupported, "feed format: %s", format)
	}
}

type quoteEncoder struct {
	w *bufio.Writer
}

func (e *quoteEncoder) Encode(q record.Quote) error {
	data, err := sonic.Marshal(q)
	if err != nil {
		return errors.Wrap(err, "marshal quote")
	}
	if _, err := e.w.Write(data); err != nil {
		return err
	}
	return e.w.WriteByte('\n')
}

func (e *quoteEncoder) Flush() error {
	return e.w.Flush()
}

type frameEncoder struct {
	w   *record.FrameWriter
	seq uint64
}

func (e *frameEncoder) Encode(q record.Quote) error {
	payload, err := sonic.Marshal(q)
	if err != nil {
		return errors.Wrap(err, "marshal quote")
	}
	e.seq++
	tick := record.Tick{
		Key:     q.Symbol,
		Seq:     e.seq,
		TsEvent: q.TsEvent,
		Payload: payload,
	}
	if q.Complete {
		tick.Flags |= record.FlagSnapshotComplete
	}
	return e.w.Write(tick)
}

func (e *frameEncoder) Flush() error {
	return e.w.Flush()
}
