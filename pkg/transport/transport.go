// Package transport implements the byte-stream transport the session core
// consumes: connect/write/close operations plus a small event surface
// (data/drain/close/error) over a standalone, protocol-agnostic stream.
package transport

import (
	"context"
	"time"

	"github.com/maxubrq/redisX/pkg/common"
)

// State is the transport's lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Transport is the byte-stream contract the session core drives. One
// Transport is used by exactly one session; it is not shared.
//
// TCPTransport fails a Connect issued while it is Connecting or Connected
// with an invalid-state error (common.ErrInvalidState); it does not join
// an attempt already in flight.
type Transport interface {
	// Connect establishes the underlying stream, bounded by ctx.
	Connect(ctx context.Context) error
	// Write appends bytes to the outbound path. Writes outside the
	// Connected state fail with common.ErrInvalidState.
	Write(b []byte) error
	// Close flushes best-effort and tears the stream down. Idempotent.
	Close() error
	Address() string
	State() State
}

// EventSink is the set of callbacks a Transport drives. OnData fires from
// the transport's internal read goroutine; OnDrain fires inside Write, and
// OnClose/OnError fire from the read goroutine or from the goroutine that
// calls Close. Callers MUST NOT block in them, matching the decoder's own
// "do not block" contract for push listeners.
type EventSink struct {
	// OnData delivers inbound bytes in arrival order.
	OnData func(b []byte)
	// OnDrain fires at the end of every Write that has flushed all of its
	// bytes to the connection.
	OnDrain func()
	// OnClose fires exactly once, whether close was requested locally or
	// the peer closed first.
	OnClose func()
	// OnError fires for fatal, non-recoverable transport conditions.
	OnError func(err error)
}

// Config bounds Transport construction; ConnectTimeout governs the dial
// only (the session layer applies its own connect_timeout across dial +
// handshake).
type Config struct {
	Host           string
	Port           int
	ConnectTimeout time.Duration
}

func (c Config) address() string {
	if c.Host == "" {
		return "localhost"
	}
	return c.Host
}

func classifyWriteErr(err error) *common.Error {
	if err == nil {
		return nil
	}
	if common.IsRetryableIO(err) {
		return common.NewError(common.CodeConnectionReset, err)
	}
	return common.NewError(common.CodeWriteFailed, err)
}
