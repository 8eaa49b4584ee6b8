package sender

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/livedata/internal/distribution"
	"github.com/yanun0323/livedata/internal/store"
)

type fakeRedis struct {
	mu       sync.Mutex
	channels []string
	messages [][]byte
	err      error
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, channel)
	f.messages = append(f.messages, message.([]byte))
	return redis.NewIntResult(1, f.err)
}

type fakeKafka struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (f *fakeKafka) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msgs...)
	return nil
}

type fakeNATS struct {
	mu       sync.Mutex
	subjects []string
	data     [][]byte
}

func (f *fakeNATS) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	f.data = append(f.data, data)
	return nil
}

func subscribe(t *testing.T, factory distribution.SenderFactory, key string) (*store.Store, *distribution.Distributor) {
	t.Helper()
	st := store.New(nil)
	srv, err := distribution.NewServer(st, factory, nil)
	require.NoError(t, err)
	t.Cleanup(srv.Stop)
	d, err := srv.Subscribe(key)
	require.NoError(t, err)
	return st, d
}

func TestChannelSender(t *testing.T) {
	ch := make(chan []byte, 1)
	st, d := subscribe(t, ChannelFactory(ch), "Foo")
	require.Len(t, d.Senders(), 1)
	require.Same(t, d, d.Senders()[0].Distributor())

	st.StoreValue("Foo", []byte("v"))
	select {
	case v := <-ch:
		require.Equal(t, []byte("v"), v)
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery")
	}
}

func TestChannelSenderCanceled(t *testing.T) {
	s := NewChannel(nil, make(chan []byte))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.Send(ctx, []byte("v")), context.Canceled)
}

func TestRedisSender(t *testing.T) {
	client := &fakeRedis{}
	factory, err := RedisFactory(client, nil)
	require.NoError(t, err)
	st, d := subscribe(t, factory, "AAPL")
	require.Equal(t, "LiveData.AAPL", d.Senders()[0].(*Redis).Channel())

	st.StoreValue("AAPL", []byte("quote"))
	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return len(client.messages) == 1
	}, 2*time.Second, time.Millisecond)
	require.Equal(t, []string{"LiveData.AAPL"}, client.channels)
	require.Equal(t, []byte("quote"), client.messages[0])
}

func TestRedisSenderError(t *testing.T) {
	client := &fakeRedis{err: errors.New("down")}
	r := &Redis{client: client, channel: "c"}
	require.Error(t, r.Send(context.Background(), []byte("v")))
}

func TestKafkaSender(t *testing.T) {
	writer := &fakeKafka{}
	factory, err := KafkaFactory(writer, PrefixTopic("md."))
	require.NoError(t, err)
	st, d := subscribe(t, factory, "AAPL")

	st.StoreValue("AAPL", []byte("quote"))
	require.Eventually(t, func() bool {
		writer.mu.Lock()
		defer writer.mu.Unlock()
		return len(writer.msgs) == 1
	}, 2*time.Second, time.Millisecond)

	msg := writer.msgs[0]
	require.Equal(t, "md.AAPL", msg.Topic)
	require.Equal(t, []byte("AAPL"), msg.Key)
	require.Equal(t, []byte("quote"), msg.Value)
	require.Equal(t, d.ID(), string(msg.Headers[0].Value))
}

func TestNATSSender(t *testing.T) {
	conn := &fakeNATS{}
	factory, err := NATSFactory(conn, PrefixTopic("live."))
	require.NoError(t, err)
	st, _ := subscribe(t, factory, "AAPL")

	st.StoreValue("AAPL", []byte("quote"))
	require.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return len(conn.data) == 1
	}, 2*time.Second, time.Millisecond)
	require.Equal(t, []string{"live.AAPL"}, conn.subjects)
}

func TestFactoryNilClient(t *testing.T) {
	_, err := RedisFactory(nil, nil)
	require.Error(t, err)
	_, err = KafkaFactory(nil, nil)
	require.Error(t, err)
	_, err = NATSFactory(nil, nil)
	require.Error(t, err)
}

func TestLogSender(t *testing.T) {
	_, d := subscribe(t, LogFactory(nil), "AAPL")
	senders := d.Senders()
	require.Len(t, senders, 1)
	require.Equal(t, "LiveData.AAPL", senders[0].(*Log).topic)
	require.NoError(t, senders[0].Send(context.Background(), []byte("quote")))
}
