package session

import (
	"context"

	"github.com/maxubrq/redisX/pkg/common"
	"github.com/maxubrq/redisX/pkg/resp"
)

// handshake sends HELLO 3 and consumes its own reply directly, reusing
// sendRaw so the HELLO command gets the same FIFO/timeout machinery as
// any other command, bounded by the session's connect timeout rather
// than its command timeout.
func (s *Session) handshake(ctx context.Context) error {
	v, err := s.sendRaw(ctx, "HELLO", []any{"3"}, s.opts.ConnectTimeout)
	if err != nil {
		return common.NewError(common.CodeHandshakeFailed, err)
	}

	switch v.Kind {
	case resp.KindSimpleString:
		if v.Text != "OK" {
			return common.NewErrorf(common.CodeHandshakeFailed, "unexpected HELLO reply %q", v.Text)
		}
		return nil
	case resp.KindMap:
		s.captureServerInfo(v)
		return nil
	default:
		return common.NewErrorf(common.CodeHandshakeFailed, "unexpected HELLO reply kind %s", v.Kind)
	}
}

// captureServerInfo stashes the HELLO map's fields (server, version,
// proto, id, mode, role, modules) into ServerInfo, keyed by the
// simple_string key's text. Non-simple-string keys are skipped — HELLO's
// map is always keyed by simple strings on every server this core talks
// to, so this is not a decode contract, just a defensive guard.
func (s *Session) captureServerInfo(v resp.Value) {
	for _, pair := range v.Map {
		if pair.Key.Kind != resp.KindSimpleString {
			continue
		}
		s.ServerInfo.Store(pair.Key.Text, pair.Value)
	}
}
