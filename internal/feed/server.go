package feed

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/livedata/internal/chaos"
	"github.com/yanun0323/livedata/pkg/exception"
	"github.com/yanun0323/livedata/pkg/record"
	"github.com/yanun0323/logs"
)

// ServerOption configures a synthetic feed server.
type ServerOption struct {
	Network  string
	Addr     string
	Format   string
	Symbols  []string
	Price    int64
	Spread   int64
	Interval time.Duration
	// Ticks per connection after the snapshot; 0 streams until stopped.
	Ticks int
	// Chaos disturbs the ticks; the snapshot is always sent intact.
	Chaos chaos.Config
}

// Server streams a snapshot followed by synthetic quotes to every client.
type Server struct {
	opt ServerOption

	mu     sync.Mutex
	ln     net.Listener
	wg     conc.WaitGroup
	served atomic.Int64
}

// NewServer validates opt.
func NewServer(opt ServerOption) (*Server, error) {
	if len(opt.Symbols) == 0 {
		return nil, errors.Wrap(exception.ErrInvalidConfig, "feed has no symbols")
	}
	if _, err := NewEncoder(opt.Format, nil); err != nil {
		return nil, err
	}
	if err := opt.Chaos.Validate(); err != nil {
		return nil, err
	}
	return &Server{opt: opt}, nil
}

// Listen binds the configured address.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return nil
	}
	ln, err := Listen(s.opt.Network, s.opt.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	return nil
}

// Addr returns the bound address, nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Served returns the number of accepted connections.
func (s *Server) Served() int64 {
	return s.served.Load()
}

// Serve accepts clients until ctx is done, then waits for their streams.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	defer s.wg.Wait()

	logs.Infof("feed server listening on %s, format: %s", ln.Addr(), s.opt.Format)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "accept")
		}
		s.served.Add(1)
		s.wg.Go(func() {
			defer conn.Close()
			if err := s.stream(ctx, conn); err != nil && ctx.Err() == nil {
				logs.Errorf("feed stream to %s, err: %+v", conn.RemoteAddr(), err)
			}
		})
	}
}

func (s *Server) stream(ctx context.Context, conn net.Conn) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	gen, err := NewGenerator(s.opt.Symbols, s.opt.Price, s.opt.Spread)
	if err != nil {
		return err
	}
	enc, err := NewEncoder(s.opt.Format, conn)
	if err != nil {
		return err
	}
	var disturb *chaos.Engine[record.Quote]
	if s.opt.Chaos.Enabled() {
		if disturb, err = chaos.NewEngine(s.opt.Chaos, delayQuote); err != nil {
			return err
		}
	}

	for _, q := range gen.Snapshot(time.Now().UTC()) {
		if err := enc.Encode(q); err != nil {
			return err
		}
	}
	if err := enc.Flush(); err != nil {
		return err
	}

	var timer *time.Timer
	if s.opt.Interval > 0 {
		timer = time.NewTimer(s.opt.Interval)
		defer timer.Stop()
	}
	for i := 0; s.opt.Ticks <= 0 || i < s.opt.Ticks; i++ {
		if timer != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-timer.C:
				timer.Reset(s.opt.Interval)
			}
		} else if ctx.Err() != nil {
			return nil
		}

		for _, q := range disturb.Process(gen.Next(time.Now().UTC())) {
			if err := enc.Encode(q); err != nil {
				return err
			}
		}
		if timer != nil || i%256 == 255 {
			if err := enc.Flush(); err != nil {
				return err
			}
		}
	}
	for _, q := range disturb.Flush() {
		if err := enc.Encode(q); err != nil {
			return err
		}
	}
	return enc.Flush()
}

func delayQuote(q record.Quote, d time.Duration) record.Quote {
	q.TsEvent += int64(d)
	return q
}
