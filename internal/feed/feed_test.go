package feed

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/decimal"
	"github.com/yanun0323/livedata/internal/chaos"
	"github.com/yanun0323/livedata/internal/connector"
	"github.com/yanun0323/livedata/internal/store"
	"github.com/yanun0323/livedata/pkg/record"
)

func TestGenerator(t *testing.T) {
	_, err := NewGenerator(nil, 100, 1)
	require.Error(t, err)

	g, err := NewGenerator([]string{"AAA", "BBB"}, 100, 1)
	require.NoError(t, err)
	now := time.Unix(1700000000, 0)

	snap := g.Snapshot(now)
	require.Len(t, snap, 2)
	require.False(t, snap[0].Complete)
	require.True(t, snap[1].Complete)

	q := g.Next(now)
	require.Equal(t, "AAA", q.Symbol)
	require.True(t, q.Last.Equal(decimal.NewFromInt(101)))
	require.True(t, q.Bid.Equal(decimal.NewFromInt(100)))
	require.True(t, q.Ask.Equal(decimal.NewFromInt(102)))
	require.Equal(t, now.UnixNano(), q.TsEvent)
	require.Equal(t, "BBB", g.Next(now).Symbol)
	require.Equal(t, "AAA", g.Next(now).Symbol)
}

func TestStoreCallback(t *testing.T) {
	st := store.New(nil)
	cb := NewTickCallback(st)
	cb.Connected()
	cb.Received(record.Tick{Key: "A", Payload: []byte("1")})
	require.False(t, st.MarketDataComplete())
	cb.Received(record.Tick{Key: "B", Payload: []byte("2"), Flags: record.FlagSnapshotComplete})
	require.True(t, st.MarketDataComplete())
	cb.Received(record.Tick{Flags: record.FlagSnapshotComplete})
	cb.Disconnected(nil)

	require.Equal(t, []string{"A", "B"}, st.Keys())
	require.True(t, st.MarketDataComplete())
}

func TestEncoderRoundTrip(t *testing.T) {
	g, err := NewGenerator([]string{"AAA", "BBB", "CCC"}, 10, 0)
	require.NoError(t, err)
	quotes := g.Snapshot(time.Now())

	t.Run("quote", func(t *testing.T) {
		var buf bytes.Buffer
		enc, err := NewEncoder(FormatQuote, &buf)
		require.NoError(t, err)
		for _, q := range quotes {
			require.NoError(t, enc.Encode(q))
		}
		require.NoError(t, enc.Flush())

		stream := record.NewQuoteStream(&buf)
		for _, want := range quotes {
			got, err := stream.Next()
			require.NoError(t, err)
			require.Equal(t, want.Symbol, got.Symbol)
			require.Equal(t, want.Complete, got.Complete)
			require.True(t, want.Last.Equal(got.Last))
		}
	})

	t.Run("frame", func(t *testing.T) {
		var buf bytes.Buffer
		enc, err := NewEncoder(FormatFrame, &buf)
		require.NoError(t, err)
		for _, q := range quotes {
			require.NoError(t, enc.Encode(q))
		}
		require.NoError(t, enc.Flush())

		stream := record.NewFrameStream(&buf, record.FrameOptions{})
		for i, want := range quotes {
			tick, err := stream.Next()
			require.NoError(t, err)
			require.Equal(t, want.Symbol, tick.Key)
			require.Equal(t, uint64(i+1), tick.Seq)
			require.Equal(t, want.Complete, tick.SnapshotComplete())

			var got record.Quote
			require.NoError(t, sonic.Unmarshal(tick.Payload, &got))
			require.Equal(t, want.Symbol, got.Symbol)
		}
	})

	_, err = NewEncoder("xml", nil)
	require.Error(t, err)
}

func TestServerToStore(t *testing.T) {
	symbols := []string{"AAA", "BBB", "CCC"}
	for _, format := range []string{FormatFrame, FormatQuote} {
		t.Run(format, func(t *testing.T) {
			srv, err := NewServer(ServerOption{
				Addr:    "127.0.0.1:0",
				Format:  format,
				Symbols: symbols,
				Price:   100,
				Spread:  1,
				Ticks:   30,
			})
			require.NoError(t, err)
			require.NoError(t, srv.Listen())

			ctx, cancel := context.WithCancel(context.Background())
			served := make(chan error, 1)
			go func() { served <- srv.Serve(ctx) }()
			defer func() {
				cancel()
				require.NoError(t, <-served)
			}()

			addr := srv.Addr().(*net.TCPAddr)
			st := store.New(nil)
			factory := connector.NetworkFactory[record.Tick]{Host: "127.0.0.1", Port: addr.Port}

			var runErr error
			if format == FormatFrame {
				job, err := factory.NewJob(NewTickCallback(st), record.FrameFactory(record.FrameOptions{}), connector.GoExecutor)
				require.NoError(t, err)
				runErr = job.Run(ctx)
			} else {
				qf := connector.NetworkFactory[record.Quote]{Host: "127.0.0.1", Port: addr.Port}
				job, err := qf.NewJob(NewQuoteCallback(st), record.QuoteFactory(), nil)
				require.NoError(t, err)
				runErr = job.Run(ctx)
			}
			require.NoError(t, runErr)

			require.True(t, st.MarketDataComplete())
			require.Equal(t, symbols, st.Keys())
			raw, ok := st.LatestValue("AAA")
			require.True(t, ok)
			var q record.Quote
			require.NoError(t, sonic.Unmarshal(raw, &q))
			require.Equal(t, "AAA", q.Symbol)
			require.Equal(t, int64(1), srv.Served())
		})
	}
}

func TestWebSocketFeedApply(t *testing.T) {
	st := store.New(nil)
	f := &WebSocketFeed{callback: NewStoreCallback("websocket feed", st, QuoteUpdate)}
	require.NoError(t, f.apply(record.Quote{Symbol: "AAA", Last: decimal.NewFromInt(5), Complete: true}))

	raw, ok := st.LatestValue("AAA")
	require.True(t, ok)
	var q record.Quote
	require.NoError(t, sonic.Unmarshal(raw, &q))
	require.True(t, q.Last.Equal(decimal.NewFromInt(5)))
	require.True(t, st.MarketDataComplete())
}

func TestListenUnix(t *testing.T) {
	path := t.TempDir() + "/feed.sock"
	ln, err := Listen("unix", path)
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	ln, err = Listen("unix", path)
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	_, err = Listen("tcp", "")
	require.Error(t, err)
}

func TestChunkCallback(t *testing.T) {
	cb := NewChunkCallback("chunks")
	job, err := connector.New[[]byte](connector.ReaderTransport{R: bytes.NewReader(make([]byte, 10000))}, cb, record.ChunkFactory(4096))
	require.NoError(t, err)
	require.NoError(t, job.Run(context.Background()))
	require.EqualValues(t, 3, cb.Chunks())
	require.EqualValues(t, 10000, cb.Bytes())
}

func TestServerChaos(t *testing.T) {
	cases := map[string]struct {
		cfg  chaos.Config
		want int
	}{
		"duplicate": {cfg: chaos.Config{Seed: 7, DuplicateRate: 1, ReorderWindow: 4}, want: 2 + 2*40},
		"drop":      {cfg: chaos.Config{Seed: 7, DropRate: 1}, want: 2},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv, err := NewServer(ServerOption{
				Addr:    "127.0.0.1:0",
				Format:  FormatQuote,
				Symbols: []string{"AAA", "BBB"},
				Price:   100,
				Spread:  1,
				Ticks:   40,
				Chaos:   tc.cfg,
			})
			require.NoError(t, err)
			require.NoError(t, srv.Listen())

			ctx, cancel := context.WithCancel(context.Background())
			served := make(chan error, 1)
			go func() { served <- srv.Serve(ctx) }()
			defer func() {
				cancel()
				require.NoError(t, <-served)
			}()

			conn, err := net.Dial("tcp", srv.Addr().String())
			require.NoError(t, err)
			defer conn.Close()

			stream := record.NewQuoteStream(conn)
			count, complete := 0, 0
			for {
				q, err := stream.Next()
				if err != nil {
					break
				}
				count++
				if q.Complete {
					complete++
				}
			}
			require.Equal(t, tc.want, count)
			require.Equal(t, 1, complete)
		})
	}

	_, err := NewServer(ServerOption{Format: FormatQuote, Symbols: []string{"AAA"}, Chaos: chaos.Config{DropRate: 2}})
	require.Error(t, err)
}
