// Package session implements the connection core that multiplexes
// commands over one transport: handshake, FIFO reply correlation with
// tombstone-based timeout/cancel handling, push routing, and per-command
// deadlines.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/multierr"

	"github.com/maxubrq/redisX/pkg/common"
	"github.com/maxubrq/redisX/pkg/resp"
	"github.com/maxubrq/redisX/pkg/transport"
)

var logger = common.InitLogger().WithName("session")

// State is the session lifecycle state machine.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateHandshaking
	StateConnected
	StateDisconnecting
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// TransportFactory builds a fresh Transport wired to the given event
// sink. Session calls it exactly once per Connect, supplying its own
// callbacks instead of owning the socket directly, so a test can
// substitute any Transport implementation.
type TransportFactory func(sink transport.EventSink) transport.Transport

// Options configures a Session. Validation of these values is the
// caller's responsibility (pkg/client.Config.Validate does this for the
// public surface); Session itself just applies defaults.
type Options struct {
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	AutoConnect    bool
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 5000 * time.Millisecond
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 5000 * time.Millisecond
	}
	return o
}

// Session is the single-actor connection core. All mutable state is
// guarded by mu; this is the permitted multi-threaded shape —
// one mutex standing in for the single logical actor, no fine-grained
// locking beneath it.
type Session struct {
	Id string

	opts    Options
	factory TransportFactory

	mu       sync.Mutex
	state    State
	tr       transport.Transport
	decoder  *resp.Decoder
	fifo     requestFIFO
	nextID   uint64
	connWait []chan error

	// writeMu serializes the push-to-FIFO-then-write-to-transport critical
	// section across concurrent Send callers. FIFO correlation
	// order must equal wire order; holding mu alone isn't enough since mu
	// is released before the (possibly slow) transport Write, which would
	// let two concurrent senders interleave their writes in a different
	// order than they queued onto the FIFO.
	writeMu sync.Mutex

	pushMu       sync.Mutex
	pushListener func(resp.Value)

	// ServerInfo caches the HELLO reply's map fields (server, version,
	// proto, id, mode, role, modules), keyed by field name, for callers
	// that want to inspect what the handshake negotiated. A concurrent
	// map is overkill for one session's single-writer update, but it
	// keeps the read side lock-free for callers polling it from another
	// goroutine while the session's own actor is mid-handshake.
	ServerInfo *xsync.MapOf[string, resp.Value]
}

// New constructs a Session that will build its Transport lazily, on the
// first Connect, via factory.
func New(factory TransportFactory, opts Options) *Session {
	return &Session{
		Id:         shortuuid.New(),
		opts:       opts.withDefaults(),
		factory:    factory,
		decoder:    resp.NewDecoder(),
		ServerInfo: xsync.NewMapOf[string, resp.Value](),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PendingCount reports how many commands are currently awaiting a
// correlated reply, for callers that want to observe backlog depth.
func (s *Session) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fifo.len()
}

// SetPushListener registers the sink for push frames. The
// listener is invoked synchronously from the decoder's feed path and
// MUST NOT block.
func (s *Session) SetPushListener(fn func(resp.Value)) {
	s.pushMu.Lock()
	s.pushListener = fn
	s.pushMu.Unlock()
}

// Connect drives disconnected→connecting→handshaking→connected. Re-entry
// while connecting/handshaking waits for that attempt to finish rather
// than starting a second one.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateConnected:
		s.mu.Unlock()
		return nil
	case StateConnecting, StateHandshaking:
		wait := make(chan error, 1)
		s.connWait = append(s.connWait, wait)
		s.mu.Unlock()
		select {
		case err := <-wait:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.state = StateConnecting
	s.decoder.OnReply = s.onReply
	s.decoder.OnPush = s.onPush
	s.decoder.OnError = s.onDecodeError
	s.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()

	tr := s.factory(transport.EventSink{
		OnData:  s.onData,
		OnClose: s.onTransportClose,
		OnError: s.onTransportError,
	})

	err := tr.Connect(cctx)
	if err != nil {
		s.finishConnect(common.NewError(common.CodeConnectionRefused, err))
		return err
	}

	s.mu.Lock()
	s.tr = tr
	s.state = StateHandshaking
	s.mu.Unlock()

	if err := s.handshake(cctx); err != nil {
		s.finishConnect(err)
		return err
	}

	s.mu.Lock()
	s.state = StateConnected
	s.mu.Unlock()
	s.finishConnect(nil)
	return nil
}

func (s *Session) finishConnect(err error) {
	s.mu.Lock()
	if err != nil {
		s.state = StateError
	}
	waiters := s.connWait
	s.connWait = nil
	s.mu.Unlock()
	for _, w := range waiters {
		w <- err
	}
}

// awaitConnected blocks until a concurrently in-flight Connect settles,
// used by Send's auto-connect gate.
func (s *Session) awaitConnected(ctx context.Context) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	switch state {
	case StateConnected:
		return nil
	case StateConnecting, StateHandshaking:
		return s.Connect(ctx)
	case StateDisconnected:
		if s.opts.AutoConnect {
			return s.Connect(ctx)
		}
	}
	return common.ErrConnectionRequired
}

// Send submits a command and blocks until it resolves, times out, is
// cancelled via ctx, or the session tears down. It is the sole
// public send operation; typed command helpers are a layer above this.
func (s *Session) Send(ctx context.Context, verb string, args ...any) (resp.Value, error) {
	if err := s.awaitConnected(ctx); err != nil {
		return resp.Value{}, err
	}
	return s.sendRaw(ctx, verb, args, s.opts.CommandTimeout)
}

func (s *Session) sendRaw(ctx context.Context, verb string, args []any, timeout time.Duration) (resp.Value, error) {
	enc := resp.NewEncoder()
	if err := enc.EncodeCommand(verb, args...); err != nil {
		return resp.Value{}, common.NewError(common.CodeInvalidOption, err)
	}

	s.writeMu.Lock()

	s.mu.Lock()
	if s.state != StateConnected && s.state != StateHandshaking {
		s.mu.Unlock()
		s.writeMu.Unlock()
		return resp.Value{}, common.ErrConnectionRequired
	}
	s.nextID++
	req := newPendingRequest(s.nextID, verb)
	s.fifo.push(req)
	req.timer = time.AfterFunc(timeout, func() { s.onTimeout(req) })
	tr := s.tr
	s.mu.Unlock()

	writeErr := tr.Write(enc.Bytes())
	s.writeMu.Unlock()
	if writeErr != nil {
		req.fail(writeErr)
		return resp.Value{}, writeErr
	}

	select {
	case res := <-req.resultCh:
		return res.value, res.err
	case <-ctx.Done():
		s.cancel(req)
		return resp.Value{}, common.ErrCommandCancelled
	}
}

func (s *Session) cancel(req *pendingRequest) {
	req.fail(common.NewError(common.CodeCommandCancelled, nil))
}

func (s *Session) onTimeout(req *pendingRequest) {
	req.fail(common.NewError(common.CodeCommandTimeout, nil))
}

// onData feeds raw bytes into the decoder. The transport guarantees this
// is called from one goroutine at a time, satisfying the decoder's
// single-owner requirement without an extra lock.
func (s *Session) onData(b []byte) {
	s.decoder.Feed(b)
}

// onReply pops the FIFO head and resolves it, converting a server `-`/`!`
// reply into the semantic error variant first. A non-push reply arriving
// with an empty FIFO is a protocol contract violation and is fatal.
func (s *Session) onReply(v resp.Value) {
	s.mu.Lock()
	req, ok := s.fifo.popFront()
	s.mu.Unlock()
	if !ok {
		logger.Error(common.ErrUnsolicitedReply, "reply arrived with empty FIFO", "sessionId", s.Id)
		s.fatal(common.NewError(common.CodeUnsolicitedReply, nil))
		return
	}
	if req.isTombstone() {
		return
	}
	if err := serverErrorOf(v); err != nil {
		req.fail(err)
		return
	}
	req.resolve(v)
}

// onPush routes a push frame to the registered listener. A push never
// correlates against the FIFO of pending requests: with no listener
// wired, it is dropped rather than consuming a pending request's reply
// slot.
func (s *Session) onPush(v resp.Value) {
	s.pushMu.Lock()
	listener := s.pushListener
	s.pushMu.Unlock()
	if listener != nil {
		listener(v)
	}
}

// onDecodeError destroys correlation: every pending request fails with
// decode-error, and the session transitions to error/closed.
func (s *Session) onDecodeError(err error) {
	logger.Error(err, "fatal decode error", "sessionId", s.Id)
	s.fatal(common.NewError(common.CodeDecodeError, err))
}

func (s *Session) onTransportClose() {
	s.teardown(common.ErrConnectionClosed)
}

func (s *Session) onTransportError(err error) {
	s.fatal(err)
}

// fatal marks the session's intermediate state as error (rather than the
// graceful disconnecting state Close() uses) before running the same
// teardown, matching the "any → fatal-decode → error → closed" arrow of
// the state diagram's distinct fatal-error arrow.
func (s *Session) fatal(cause error) {
	s.mu.Lock()
	if s.state != StateClosed {
		s.state = StateError
	}
	s.mu.Unlock()
	s.teardown(cause)
}

// serverErrorOf converts a RESP `-`/`!` reply into the semantic error
// taxonomy, preserving code+message.
func serverErrorOf(v resp.Value) error {
	switch v.Kind {
	case resp.KindError:
		return common.NewServerError(common.CodeServerError, v.Code, v.Message)
	case resp.KindBlobError:
		return common.NewServerError(common.CodeServerBlobError, v.Code, v.Message)
	default:
		return nil
	}
}

// Close tears the session down: fails all pending requests (which stops
// their timers) and drops the transport. The decoder, with any bytes it
// still buffers, is kept and reused by a later Connect.
func (s *Session) Close() error {
	return s.teardown(common.ErrConnectionClosed)
}

func (s *Session) teardown(cause error) error {
	s.mu.Lock()
	if s.state == StateClosed || s.state == StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	if s.state != StateError {
		s.state = StateDisconnecting
	}
	tr := s.tr
	s.tr = nil
	var errs error
	s.fifo.failAll(cause)
	s.state = StateClosed
	s.mu.Unlock()

	if tr != nil {
		if err := tr.Close(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}
