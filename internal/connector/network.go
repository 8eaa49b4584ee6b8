package connector

import (
	"context"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/yanun0323/livedata/pkg/exception"
	"github.com/yanun0323/livedata/pkg/record"
)

const (
	DefaultDialTimeout = 10 * time.Second
	DefaultKeepAlive   = 30 * time.Second
)

// NetworkFactory builds jobs reading from a socket. Network is "tcp" when
// empty; for "unix" Host holds the socket path and Port is ignored.
type NetworkFactory[T any] struct {
	Network     string
	Host        string
	Port        int
	DialTimeout time.Duration
	KeepAlive   time.Duration
	Option      Option
}

// NewJob returns a job dialing the configured address. A non-nil executor
// switches the job to pipelined mode.
func (f NetworkFactory[T]) NewJob(callback Callback[T], streams record.StreamFactory[T], executor Executor) (*Job[T], error) {
	opt := f.Option
	opt.Executor = executor
	if opt.Name == "" {
		opt.Name = "connector " + f.Address()
	}
	return New(f.Transport(), callback, streams, opt)
}

// Address returns the dial address.
func (f NetworkFactory[T]) Address() string {
	if f.network() == "unix" {
		return f.Host
	}
	if f.Host == "" && f.Port == 0 {
		return ""
	}
	return net.JoinHostPort(f.Host, strconv.Itoa(f.Port))
}

// Transport returns a fresh socket transport for one run.
func (f NetworkFactory[T]) Transport() *NetTransport {
	return &NetTransport{
		Network:     f.network(),
		Addr:        f.Address(),
		DialTimeout: f.DialTimeout,
		KeepAlive:   f.KeepAlive,
	}
}

func (f NetworkFactory[T]) network() string {
	if f.Network == "" {
		return "tcp"
	}
	return f.Network
}

// NetTransport dials a stream socket.
type NetTransport struct {
	Network     string
	Addr        string
	DialTimeout time.Duration
	KeepAlive   time.Duration

	mu   sync.Mutex
	conn net.Conn
}

func (t *NetTransport) Prepare(ctx context.Context) error {
	if t.Addr == "" {
		return exception.ErrConnectorNoAddress
	}
	if t.DialTimeout <= 0 {
		t.DialTimeout = DefaultDialTimeout
	}
	if t.KeepAlive <= 0 {
		t.KeepAlive = DefaultKeepAlive
	}
	return nil
}

func (t *NetTransport) Establish(ctx context.Context) (io.Reader, error) {
	dialer := net.Dialer{
		Timeout:   t.DialTimeout,
		KeepAlive: t.KeepAlive,
	}
	conn, err := dialer.DialContext(ctx, t.Network, t.Addr)
	if err != nil {
		return nil, err
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
		_ = tcpConn.SetKeepAlive(true)
		_ = tcpConn.SetKeepAlivePeriod(t.KeepAlive)
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	return conn, nil
}

func (t *NetTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// ReaderTransport serves an already open stream, such as a file or a pipe.
type ReaderTransport struct {
	R io.Reader
}

func (t ReaderTransport) Prepare(context.Context) error {
	if t.R == nil {
		return exception.ErrConnectorNilTransport
	}
	return nil
}

func (t ReaderTransport) Establish(context.Context) (io.Reader, error) {
	return t.R, nil
}

func (t ReaderTransport) Close() error {
	if c, ok := t.R.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
