package feed

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/livedata/internal/store"
	"github.com/yanun0323/livedata/pkg/record"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"
)

// WebSocketFeed ingests JSON quotes pushed over a websocket.
type WebSocketFeed struct {
	wss      *ws.WebSocket
	callback *StoreCallback[record.Quote]
}

// NewWebSocketFeed prepares a feed from url into st.
func NewWebSocketFeed(ctx context.Context, url string, st *store.Store) *WebSocketFeed {
	return &WebSocketFeed{
		wss:      ws.New(ctx, url),
		callback: NewStoreCallback("websocket feed", st, QuoteUpdate),
	}
}

// Start connects the websocket.
func (f *WebSocketFeed) Start(ctx context.Context) error {
	if err := f.wss.Start(ctx); err != nil {
		return errors.Wrap(err, "start wss")
	}
	f.callback.Connected()
	return nil
}

// Close disconnects the websocket.
func (f *WebSocketFeed) Close() {
	f.wss.Close()
	f.callback.Disconnected(nil)
}

type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

type subscribeResponse struct {
	ID     int64 `json:"id"`
	Result any   `json:"result"`
}

// Subscribe asks the remote end for symbols and waits for its answer.
func (f *WebSocketFeed) Subscribe(ctx context.Context, symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	payload := subscribeRequest{Method: "SUBSCRIBE", Params: symbols, ID: 1}
	if err := f.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, conn *ws.WebSocket) error {
			if err := conn.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write subscribe payload").With("payload", payload)
			}
			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			var resp subscribeResponse
			if err := m.Unmarshal(&resp); err != nil || resp.ID != payload.ID {
				return false, nil
			}
			if resp.Result != nil {
				return false, errors.Errorf("subscribe and wait, err: %+v", resp.Result)
			}
			return true, nil
		},
	}, true); err != nil {
		return errors.Wrap(err, "send and wait")
	}
	return nil
}

// Observe stores every received quote until ctx is done or shutdown.
func (f *WebSocketFeed) Observe(ctx context.Context) (unsubscribe func()) {
	ch, cancel := f.wss.Subscribe()

	go func() {
		defer cancel()
		for {
			select {
			case <-sys.Shutdown():
				return
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				q, ok := ws.ReadMessage[record.Quote](m)
				if !ok || q.Symbol == "" {
					continue
				}
				if err := f.apply(q); err != nil {
					logs.Errorf("apply websocket quote %s, err: %+v", q.Symbol, err)
				}
			}
		}
	}()

	return cancel
}

// apply stores q; Raw is rebuilt since the message arrives decoded.
func (f *WebSocketFeed) apply(q record.Quote) error {
	if len(q.Raw) == 0 {
		raw, err := sonic.Marshal(q)
		if err != nil {
			return errors.Wrap(err, "marshal quote")
		}
		q.Raw = raw
	}
	f.callback.Received(q)
	return nil
}
