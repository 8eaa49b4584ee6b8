package record

import (
	"bufio"
	"bytes"
	"io"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/livedata/pkg/exception"
)

// Quote is one newline delimited JSON quote line.
type Quote struct {
	Symbol   string          `json:"s"`
	Bid      decimal.Decimal `json:"b"`
	Ask      decimal.Decimal `json:"a"`
	Last     decimal.Decimal `json:"l"`
	TsEvent  int64           `json:"t"`
	Complete bool            `json:"c,omitempty"`

	// Raw is the undecoded line without the trailing newline.
	Raw []byte `json:"-"`
}

// QuoteStream decodes newline delimited JSON quotes. Blank lines are skipped.
type QuoteStream struct {
	r *bufio.Reader
}

// NewQuoteStream wraps r with quote decoding.
func NewQuoteStream(r io.Reader) *QuoteStream {
	return &QuoteStream{r: bufio.NewReaderSize(r, 32<<10)}
}

// QuoteFactory returns a StreamFactory producing quotes.
func QuoteFactory() StreamFactory[Quote] {
	return func(r io.Reader) Stream[Quote] {
		return NewQuoteStream(r)
	}
}

// Next returns the next quote.
func (s *QuoteStream) Next() (Quote, error) {
	for {
		line, err := s.r.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			if err != nil {
				return Quote{}, err
			}
			continue
		}
		if err != nil && err != io.EOF {
			return Quote{}, err
		}

		var q Quote
		if uerr := sonic.ConfigFastest.Unmarshal(line, &q); uerr != nil {
			return Quote{}, errors.Wrap(exception.ErrRecordInvalidQuote, uerr.Error())
		}
		if q.Symbol == "" {
			return Quote{}, errors.Wrapf(exception.ErrRecordInvalidQuote, "empty symbol, line: %s", line)
		}
		q.Raw = line
		return q, nil
	}
}
