package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxubrq/redisX/pkg/common"
	"github.com/maxubrq/redisX/pkg/resp"
	"github.com/maxubrq/redisX/pkg/transport"
)

// fakeTransport is an in-memory stand-in for transport.Transport: writes
// are captured instead of hitting a socket, and test code drives OnData
// directly to simulate server replies.
type fakeTransport struct {
	mu      sync.Mutex
	sink    transport.EventSink
	state   transport.State
	writes  [][]byte
	onWrite func([]byte)
	failDial error
}

func newFakeTransportFactory(ft *fakeTransport) TransportFactory {
	return func(sink transport.EventSink) transport.Transport {
		ft.sink = sink
		return ft
	}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	if f.failDial != nil {
		f.state = transport.StateError
		return f.failDial
	}
	f.state = transport.StateConnected
	return nil
}

func (f *fakeTransport) Write(b []byte) error {
	f.mu.Lock()
	cp := make([]byte, len(b))
	copy(cp, b)
	f.writes = append(f.writes, cp)
	cb := f.onWrite
	f.mu.Unlock()
	if cb != nil {
		cb(cp)
	}
	return nil
}

func (f *fakeTransport) Close() error {
	f.state = transport.StateClosed
	if f.sink.OnClose != nil {
		f.sink.OnClose()
	}
	return nil
}

func (f *fakeTransport) Address() string   { return "fake:0" }
func (f *fakeTransport) State() transport.State { return f.state }

func (f *fakeTransport) feed(b []byte) {
	f.sink.OnData(b)
}

func (f *fakeTransport) lastWrite() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writes) == 0 {
		return nil
	}
	return f.writes[len(f.writes)-1]
}

func helloReply(t *testing.T) []byte {
	t.Helper()
	enc := resp.NewEncoder()
	require.NoError(t, enc.Encode(resp.SimpleString("OK")))
	return enc.Bytes()
}

func connectedSession(t *testing.T) (*Session, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{}
	s := New(newFakeTransportFactory(ft), Options{
		ConnectTimeout: time.Second,
		CommandTimeout: time.Second,
	})

	done := make(chan error, 1)
	go func() { done <- s.Connect(context.Background()) }()

	require.Eventually(t, func() bool { return ft.lastWrite() != nil }, time.Second, time.Millisecond)
	ft.feed(helloReply(t))

	require.NoError(t, <-done)
	assert.Equal(t, StateConnected, s.State())
	return s, ft
}

func TestSession_HandshakeSimpleOK(t *testing.T) {
	s, ft := connectedSession(t)
	assert.Equal(t, StateConnected, s.State())
	assert.Contains(t, string(ft.lastWrite()), "HELLO")
}

func TestSession_HandshakeMapReplyCapturesServerInfo(t *testing.T) {
	ft := &fakeTransport{}
	s := New(newFakeTransportFactory(ft), Options{ConnectTimeout: time.Second, CommandTimeout: time.Second})

	done := make(chan error, 1)
	go func() { done <- s.Connect(context.Background()) }()

	require.Eventually(t, func() bool { return ft.lastWrite() != nil }, time.Second, time.Millisecond)

	enc := resp.NewEncoder()
	require.NoError(t, enc.Encode(resp.Map([]resp.Pair{
		{Key: resp.SimpleString("server"), Value: resp.SimpleString("redisX")},
		{Key: resp.SimpleString("proto"), Value: resp.Integer(3)},
	})))
	ft.feed(enc.Bytes())

	require.NoError(t, <-done)
	v, ok := s.ServerInfo.Load("server")
	require.True(t, ok)
	assert.True(t, v.Equal(resp.SimpleString("redisX")))
}

func TestSession_HandshakeFailsOnErrorReply(t *testing.T) {
	ft := &fakeTransport{}
	s := New(newFakeTransportFactory(ft), Options{ConnectTimeout: time.Second, CommandTimeout: time.Second})

	done := make(chan error, 1)
	go func() { done <- s.Connect(context.Background()) }()
	require.Eventually(t, func() bool { return ft.lastWrite() != nil }, time.Second, time.Millisecond)

	enc := resp.NewEncoder()
	require.NoError(t, enc.Encode(resp.Err("ERR", "unsupported proto")))
	ft.feed(enc.Bytes())

	err := <-done
	require.Error(t, err)
	assert.Equal(t, StateError, s.State())
}

func TestSession_SendResolvesFIFOInOrder(t *testing.T) {
	s, ft := connectedSession(t)

	type result struct {
		v   resp.Value
		err error
	}
	// Submit one PING at a time, each only after the previous one reached
	// the wire, so the submission order is known. ft.writes already holds
	// the HELLO frame, hence the +2.
	results := make([]chan result, 3)
	for i := 0; i < 3; i++ {
		results[i] = make(chan result, 1)
		go func(i int) {
			v, err := s.Send(context.Background(), "PING")
			results[i] <- result{v: v, err: err}
		}(i)
		want := i + 2
		require.Eventually(t, func() bool { return len(ft.writes) >= want }, time.Second, time.Millisecond)
	}
	assert.Equal(t, 3, s.PendingCount())

	enc := resp.NewEncoder()
	require.NoError(t, enc.Encode(resp.SimpleString("R1")))
	require.NoError(t, enc.Encode(resp.SimpleString("R2")))
	require.NoError(t, enc.Encode(resp.SimpleString("R3")))
	ft.feed(enc.Bytes())

	got := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		r := <-results[i]
		require.NoError(t, r.err)
		got = append(got, r.v.Text)
	}
	assert.Equal(t, []string{"R1", "R2", "R3"}, got)
	assert.Equal(t, 0, s.PendingCount())
}

func TestSession_ConcurrentSendsWriteWholeFrames(t *testing.T) {
	s, ft := connectedSession(t)

	const n = 20
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, _ = s.Send(context.Background(), "SET", "k", i)
		}(i)
	}
	close(start)
	wg.Wait()

	// n SET frames plus the HELLO frame written during connect.
	require.Eventually(t, func() bool { return len(ft.writes) == n+1 }, time.Second, time.Millisecond)

	// Every write must be a complete, single EncodeCommand frame: wire
	// order is whatever order writeMu admitted callers in, but no two
	// concurrent Send calls may have interleaved their bytes mid-frame.
	ft.mu.Lock()
	defer ft.mu.Unlock()
	for _, w := range ft.writes {
		assert.True(t, len(w) > 0 && w[0] == '*', "write is not a complete array frame: %q", w)
	}
}

func TestSession_ServerErrorReplyFailsOnlyThatRequest(t *testing.T) {
	s, ft := connectedSession(t)

	resultCh := make(chan error, 1)
	go func() {
		_, err := s.Send(context.Background(), "BADCMD")
		resultCh <- err
	}()
	require.Eventually(t, func() bool { return len(ft.writes) >= 2 }, time.Second, time.Millisecond)

	enc := resp.NewEncoder()
	require.NoError(t, enc.Encode(resp.Err("ERR", "unknown command")))
	ft.feed(enc.Bytes())

	err := <-resultCh
	require.Error(t, err)
	var ce *common.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, common.CodeServerError, ce.Code)
	assert.Equal(t, "ERR", ce.ServerCode)
}

func TestSession_CommandTimeoutTombstonesLateReply(t *testing.T) {
	ft := &fakeTransport{}
	s := New(newFakeTransportFactory(ft), Options{
		ConnectTimeout: time.Second,
		CommandTimeout: 30 * time.Millisecond,
	})
	done := make(chan error, 1)
	go func() { done <- s.Connect(context.Background()) }()
	require.Eventually(t, func() bool { return ft.lastWrite() != nil }, time.Second, time.Millisecond)
	ft.feed(helloReply(t))
	require.NoError(t, <-done)

	resultCh := make(chan error, 1)
	go func() {
		_, err := s.Send(context.Background(), "SLOWCMD")
		resultCh <- err
	}()

	timedOut := <-resultCh
	require.Error(t, timedOut)
	var ce *common.Error
	require.ErrorAs(t, timedOut, &ce)
	assert.Equal(t, common.CodeCommandTimeout, ce.Code)

	// Late reply for the timed-out command arrives; it must be silently
	// discarded rather than resolve some unrelated future request.
	type result struct {
		v   resp.Value
		err error
	}
	secondCh := make(chan result, 1)
	go func() {
		v, err := s.Send(context.Background(), "PING")
		secondCh <- result{v: v, err: err}
	}()
	// HELLO, SLOWCMD, PING.
	require.Eventually(t, func() bool { return len(ft.writes) >= 3 }, time.Second, time.Millisecond)

	enc := resp.NewEncoder()
	require.NoError(t, enc.Encode(resp.SimpleString("late-for-slowcmd")))
	require.NoError(t, enc.Encode(resp.SimpleString("PONG")))
	ft.feed(enc.Bytes())

	second := <-secondCh
	require.NoError(t, second.err)
	assert.Equal(t, "PONG", second.v.Text)
}

func TestSession_PushRoutedToListenerNotFIFO(t *testing.T) {
	s, ft := connectedSession(t)

	pushes := make(chan resp.Value, 1)
	s.SetPushListener(func(v resp.Value) { pushes <- v })

	resultCh := make(chan resp.Value, 1)
	go func() {
		v, _ := s.Send(context.Background(), "PING")
		resultCh <- v
	}()
	require.Eventually(t, func() bool { return len(ft.writes) >= 2 }, time.Second, time.Millisecond)

	enc := resp.NewEncoder()
	require.NoError(t, enc.Encode(resp.Push([]resp.Value{resp.SimpleString("chan"), resp.SimpleString("msg")})))
	require.NoError(t, enc.Encode(resp.SimpleString("PONG")))
	ft.feed(enc.Bytes())

	push := <-pushes
	assert.True(t, push.Equal(resp.Push([]resp.Value{resp.SimpleString("chan"), resp.SimpleString("msg")})))
	got := <-resultCh
	assert.Equal(t, "PONG", got.Text)
}

func TestSession_CloseFailsAllPending(t *testing.T) {
	s, ft := connectedSession(t)

	resultCh := make(chan error, 1)
	go func() {
		_, err := s.Send(context.Background(), "PING")
		resultCh <- err
	}()
	require.Eventually(t, func() bool { return len(ft.writes) >= 2 }, time.Second, time.Millisecond)

	require.NoError(t, s.Close())
	err := <-resultCh
	require.Error(t, err)
	var ce *common.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, common.CodeConnectionClosed, ce.Code)
}

func TestSession_SendWithoutConnectFailsWhenAutoConnectDisabled(t *testing.T) {
	ft := &fakeTransport{}
	s := New(newFakeTransportFactory(ft), Options{AutoConnect: false})
	_, err := s.Send(context.Background(), "PING")
	require.Error(t, err)
}

func TestSession_ContextCancelResolvesCancelled(t *testing.T) {
	s, ft := connectedSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	resultCh := make(chan error, 1)
	go func() {
		_, err := s.Send(ctx, "PING")
		resultCh <- err
	}()
	require.Eventually(t, func() bool { return len(ft.writes) >= 2 }, time.Second, time.Millisecond)
	cancel()

	err := <-resultCh
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrCommandCancelled)
}

