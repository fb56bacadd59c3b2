// Package client assembles the transport, decoder/encoder, and session
// core behind one public send surface — the top-level type an
// application actually imports.
package client

import (
	"context"
	"time"

	"github.com/maxubrq/redisX/pkg/common"
	"github.com/maxubrq/redisX/pkg/resp"
	"github.com/maxubrq/redisX/pkg/session"
	"github.com/maxubrq/redisX/pkg/transport"
)

var logger = common.InitLogger().WithName("client")

// Client is the single entry point applications hold: Connect, Send,
// Close, and push-listener registration — the whole surface. Typed
// command helpers (GET/SET/etc.) are deliberately absent — they are a
// layer above this core.
type Client struct {
	cfg *Config
	sess *session.Session
}

// New validates cfg and builds a Client wired to a TCPTransport. The
// session is not connected yet; Connect (or a Send with auto_connect
// enabled) does that.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{cfg: &cfg}
	c.sess = session.New(c.transportFactory(), session.Options{
		ConnectTimeout: time.Duration(cfg.ConnectTimeout) * time.Millisecond,
		CommandTimeout: time.Duration(cfg.CommandTimeout) * time.Millisecond,
		AutoConnect:    cfg.AutoConnect,
	})
	return c, nil
}

func (c *Client) transportFactory() session.TransportFactory {
	return func(sink transport.EventSink) transport.Transport {
		return transport.NewTCPTransport(transport.Config{
			Host:           c.cfg.Host,
			Port:           c.cfg.Port,
			ConnectTimeout: time.Duration(c.cfg.ConnectTimeout) * time.Millisecond,
		}, sink)
	}
}

// Connect performs the TCP dial, HELLO 3 handshake, and any configured
// post-handshake setup (AUTH, CLIENT SETNAME, SELECT) — the latter three
// are supplemental conveniences layered on top of the core handshake,
// issued as ordinary Send calls once the session reaches Connected.
func (c *Client) Connect(ctx context.Context) error {
	logger.Info("connecting", "addr", c.cfg.addr())
	if err := c.sess.Connect(ctx); err != nil {
		return err
	}
	return c.postHandshakeSetup(ctx)
}

func (c *Client) postHandshakeSetup(ctx context.Context) error {
	if c.cfg.Username != "" || c.cfg.Password != "" {
		var err error
		if c.cfg.Username != "" {
			_, err = c.sess.Send(ctx, "AUTH", c.cfg.Username, c.cfg.Password)
		} else {
			_, err = c.sess.Send(ctx, "AUTH", c.cfg.Password)
		}
		if err != nil {
			logger.Error(err, "post-handshake AUTH failed")
			return err
		}
	}
	if c.cfg.ClientName != "" {
		if _, err := c.sess.Send(ctx, "CLIENT", "SETNAME", c.cfg.ClientName); err != nil {
			return err
		}
	}
	if c.cfg.Database != 0 {
		if _, err := c.sess.Send(ctx, "SELECT", c.cfg.Database); err != nil {
			return err
		}
	}
	return nil
}

// Send is the one generic public operation: verb plus scalar args drawn
// from {text, integer, bytes, boolean}.
func (c *Client) Send(ctx context.Context, verb string, args ...any) (resp.Value, error) {
	return c.sess.Send(ctx, verb, args...)
}

// OnPush registers the push-frame listener. It is called synchronously
// from the decoder's feed path and must not block.
func (c *Client) OnPush(fn func(resp.Value)) {
	c.sess.SetPushListener(fn)
}

// ServerInfo exposes the HELLO map fields the handshake negotiated, if
// the server replied with a map rather than a bare OK.
func (c *Client) ServerInfo() map[string]resp.Value {
	out := make(map[string]resp.Value)
	c.sess.ServerInfo.Range(func(k string, v resp.Value) bool {
		out[k] = v
		return true
	})
	return out
}

// State reports the session's lifecycle state.
func (c *Client) State() session.State {
	return c.sess.State()
}

// Close tears the session and its transport down.
func (c *Client) Close() error {
	return c.sess.Close()
}
