package transport

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/maxubrq/redisX/pkg/common"
)

const readBufSize = 16 * common.KB

var logger = common.InitLogger().WithName("transport")

// TCPTransport is a single-connection net.Conn transport: a net.Dialer
// with a Control hook that sets SO_REUSEADDR/SO_REUSEPORT, plus one
// background read loop that feeds EventSink.OnData. It has no write queue
// of its own — this transport is dumb plumbing; FIFO correlation is the
// session's job.
type TCPTransport struct {
	cfg  Config
	sink EventSink

	mu    sync.Mutex
	conn  net.Conn
	state atomic.Int32

	closeOnce sync.Once
	done      chan struct{}
}

func NewTCPTransport(cfg Config, sink EventSink) *TCPTransport {
	return &TCPTransport{cfg: cfg, sink: sink, done: make(chan struct{})}
}

func (t *TCPTransport) State() State {
	return State(t.state.Load())
}

func (t *TCPTransport) setState(s State) {
	t.state.Store(int32(s))
}

func (t *TCPTransport) Address() string {
	return fmt.Sprintf("%s:%d", t.cfg.address(), t.cfg.Port)
}

// Connect dials the configured address. Re-entry while Connecting or
// Connected fails; the caller is expected not to race Connect
// calls (the session serializes them).
func (t *TCPTransport) Connect(ctx context.Context) error {
	switch t.State() {
	case StateConnected:
		return common.NewErrorf(common.CodeInvalidState, "transport already connected")
	case StateConnecting:
		return common.NewErrorf(common.CodeInvalidState, "connect already in flight")
	}
	t.setState(StateConnecting)

	dialer := &net.Dialer{
		Control: func(network, address string, c syscall.RawConn) error {
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				if err := syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1); err != nil {
					ctrlErr = fmt.Errorf("set SO_REUSEADDR: %w", err)
					return
				}
				if err := syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
					ctrlErr = fmt.Errorf("set SO_REUSEPORT: %w", err)
					return
				}
			})
			if err != nil {
				return err
			}
			return ctrlErr
		},
	}
	if t.cfg.ConnectTimeout > 0 {
		dialer.Timeout = t.cfg.ConnectTimeout
	}

	conn, err := dialer.DialContext(ctx, "tcp", t.Address())
	if err != nil {
		t.setState(StateError)
		code := common.ClassifyDial(err)
		logger.Error(err, "dial failed", "addr", t.Address())
		return common.NewError(code, err)
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	t.setState(StateConnected)
	go t.readLoop()
	return nil
}

func (t *TCPTransport) readLoop() {
	buf := make([]byte, readBufSize)
	for {
		t.mu.Lock()
		conn := t.conn
		t.mu.Unlock()
		if conn == nil {
			return
		}
		n, err := conn.Read(buf)
		if n > 0 && t.sink.OnData != nil {
			// buf is reused by the next Read, so OnData gets its own copy.
			cp := make([]byte, n)
			copy(cp, buf[:n])
			t.sink.OnData(cp)
		}
		if err != nil {
			t.handleReadError(err)
			return
		}
	}
}

func (t *TCPTransport) handleReadError(err error) {
	if t.State() == StateClosing || t.State() == StateClosed {
		t.finishClose(nil)
		return
	}
	t.setState(StateError)
	if common.IsRetryableIO(err) {
		t.finishClose(common.NewError(common.CodeConnectionClosed, err))
		return
	}
	if t.sink.OnError != nil {
		t.sink.OnError(common.NewError(common.CodeUnknownIO, err))
	}
	t.finishClose(nil)
}

// Write pushes bytes directly to the connection. The transport has no
// internal outbound queue: back-pressure surfaces as a slow Write call,
// and the session layer is expected to serialize its own writes —
// exactly one writer per transport.
func (t *TCPTransport) Write(b []byte) error {
	if t.State() != StateConnected {
		return common.NewErrorf(common.CodeInvalidState, "write outside connected state")
	}
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return common.NewErrorf(common.CodeInvalidState, "write with no connection")
	}
	var buf bytes.Buffer
	buf.Write(b)
	for buf.Len() > 0 {
		n, err := conn.Write(buf.Bytes())
		if err != nil {
			return classifyWriteErr(err)
		}
		buf.Next(n)
	}
	if t.sink.OnDrain != nil {
		t.sink.OnDrain()
	}
	return nil
}

// Close is idempotent: once Closed or already closing, it is a no-op.
func (t *TCPTransport) Close() error {
	switch t.State() {
	case StateClosed, StateClosing:
		return nil
	}
	t.setState(StateClosing)
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	var closeErr error
	if conn != nil {
		closeErr = conn.Close()
	}
	t.finishClose(nil)
	return closeErr
}

func (t *TCPTransport) finishClose(cause error) {
	t.closeOnce.Do(func() {
		t.setState(StateClosed)
		close(t.done)
		if t.sink.OnClose != nil {
			t.sink.OnClose()
		}
		if cause != nil && t.sink.OnError != nil {
			t.sink.OnError(cause)
		}
	})
}
