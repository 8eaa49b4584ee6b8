package feed

import (
	"time"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/livedata/pkg/exception"
	"github.com/yanun0323/livedata/pkg/record"
)

// Generator creates synthetic quotes cycling through its symbols.
type Generator struct {
	symbols   []string
	basePrice int64
	spread    decimal.Decimal
	index     int
}

// NewGenerator creates a generator for symbols.
func NewGenerator(symbols []string, basePrice, spread int64) (*Generator, error) {
	if len(symbols) == 0 {
		return nil, errors.Wrap(exception.ErrInvalidArgument, "generator has no symbols")
	}
	if spread < 0 {
		spread = 0
	}
	cp := make([]string, len(symbols))
	copy(cp, symbols)
	return &Generator{
		symbols:   cp,
		basePrice: basePrice,
		spread:    decimal.NewFromInt(spread),
	}, nil
}

// Symbols returns the generated symbols.
func (g *Generator) Symbols() []string {
	return g.symbols
}

// Next creates the next quote in sequence.
func (g *Generator) Next(now time.Time) record.Quote {
	symbol := g.symbols[g.index]
	g.index = (g.index + 1) % len(g.symbols)
	return g.quote(symbol, g.basePrice+int64(g.index), now)
}

// Snapshot returns one quote per symbol; the last one completes the snapshot.
func (g *Generator) Snapshot(now time.Time) []record.Quote {
	quotes := make([]record.Quote, 0, len(g.symbols))
	for i, symbol := range g.symbols {
		quotes = append(quotes, g.quote(symbol, g.basePrice+int64(i), now))
	}
	quotes[len(quotes)-1].Complete = true
	return quotes
}

func (g *Generator) quote(symbol string, price int64, now time.Time) record.Quote {
	last := decimal.NewFromInt(price)
	return record.Quote{
		Symbol:  symbol,
		Bid:     last.Sub(g.spread),
		Ask:     last.Add(g.spread),
		Last:    last,
		TsEvent: now.UnixNano(),
	}
}
