package listener

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"deskd/internal/ipc"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoReq struct {
	V int `json:"v"`
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMux() *ipc.Mux {
	m := ipc.NewMux(discardLogger())
	ipc.Register(m, "test:echo", func(_ context.Context, req echoReq, _ ipc.Caller) (echoReq, error) {
		return req, nil
	}, ipc.WithLogger(discardLogger()))
	ipc.Register(m, "test:whoami", func(_ context.Context, _ json.RawMessage, caller ipc.Caller) (ipc.Caller, error) {
		return caller, nil
	}, ipc.WithLogger(discardLogger()))
	ipc.RegisterNoData(m, "test:fail", func(context.Context, echoReq, ipc.Caller) error {
		return ipc.NewError(ipc.CodeNotFound, "x missing")
	}, ipc.WithLogger(discardLogger()))
	return m
}

func startServer(t *testing.T, inv Invoker, cfg Config) (*Server, string) {
	t.Helper()
	s := New(inv, cfg, discardLogger())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.closeAll()
		ts.Close()
	})
	return s, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, url, nil, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func call(t *testing.T, c *Client, channel string, payload any) (Reply, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.Call(ctx, channel, payload)
}

func TestServer_RoundTrip(t *testing.T) {
	_, url := startServer(t, newTestMux(), Config{})
	c := dial(t, url)

	reply, err := call(t, c, "test:echo", echoReq{V: 42})
	require.NoError(t, err)
	assert.True(t, reply.Success)
	assert.JSONEq(t, `{"v":42}`, string(reply.Data))

	var out echoReq
	require.NoError(t, reply.Decode(&out))
	assert.Equal(t, 42, out.V)
	assert.NoError(t, reply.Err())
}

func TestServer_DomainFailure(t *testing.T) {
	_, url := startServer(t, newTestMux(), Config{})
	c := dial(t, url)

	reply, err := call(t, c, "test:fail", nil)
	require.NoError(t, err)
	assert.False(t, reply.Success)
	require.NotNil(t, reply.Error)
	assert.Equal(t, ipc.CodeNotFound, reply.Error.Code)

	de, ok := ipc.AsError(reply.Err())
	require.True(t, ok)
	assert.Equal(t, "x missing", de.Message)
}

func TestServer_UnknownChannel(t *testing.T) {
	_, url := startServer(t, newTestMux(), Config{})
	c := dial(t, url)

	_, err := call(t, c, "test:nope", nil)
	assert.ErrorIs(t, err, ipc.ErrUnknownChannel)
}

func TestServer_CallerIdentity(t *testing.T) {
	_, url := startServer(t, newTestMux(), Config{})
	c := dial(t, url)

	first, err := call(t, c, "test:whoami", nil)
	require.NoError(t, err)
	second, err := call(t, c, "test:whoami", nil)
	require.NoError(t, err)

	var a, b ipc.Caller
	require.NoError(t, first.Decode(&a))
	require.NoError(t, second.Decode(&b))
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, a.ID, b.ID, "one connection is one caller")

	other := dial(t, url)
	third, err := call(t, other, "test:whoami", nil)
	require.NoError(t, err)
	var cc ipc.Caller
	require.NoError(t, third.Decode(&cc))
	assert.NotEqual(t, a.ID, cc.ID)
}

func TestServer_BadFrame(t *testing.T) {
	_, url := startServer(t, newTestMux(), Config{})

	ws, _, err := websocket.DefaultDialer.Dial(url+Path, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"id":"1"}`)))
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))

	var f frame
	require.NoError(t, ws.ReadJSON(&f))
	assert.Equal(t, "1", f.ID)
	assert.Equal(t, FaultBadFrame, f.Fault)

	// соединение остается рабочим
	require.NoError(t, ws.WriteJSON(frame{ID: "2", Channel: "test:echo", Payload: json.RawMessage(`{"v":7}`)}))
	require.NoError(t, ws.ReadJSON(&f))
	assert.Equal(t, "2", f.ID)
	require.NotNil(t, f.Response)
	assert.True(t, f.Response.Success)
}

func TestServer_RequestsInterleave(t *testing.T) {
	m := newTestMux()
	release := make(chan struct{})
	ipc.RegisterNoData(m, "test:slow", func(ctx context.Context, _ json.RawMessage, _ ipc.Caller) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}, ipc.WithLogger(discardLogger()))

	_, url := startServer(t, m, Config{})
	c := dial(t, url)

	slowDone := make(chan error, 1)
	go func() {
		_, err := call(t, c, "test:slow", nil)
		slowDone <- err
	}()

	// a fast call completes while the slow one is still running
	reply, err := call(t, c, "test:echo", echoReq{V: 1})
	require.NoError(t, err)
	assert.True(t, reply.Success)

	select {
	case <-slowDone:
		t.Fatal("slow call finished before release")
	default:
	}

	close(release)
	select {
	case err := <-slowDone:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("slow call never finished")
	}
}

func TestServer_RequestTimeout(t *testing.T) {
	m := newTestMux()
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	ipc.RegisterNoData(m, "test:stuck", func(context.Context, json.RawMessage, ipc.Caller) error {
		<-block
		return nil
	}, ipc.WithLogger(discardLogger()))

	_, url := startServer(t, m, Config{RequestTimeout: 50 * time.Millisecond})
	c := dial(t, url)

	reply, err := call(t, c, "test:stuck", nil)
	require.NoError(t, err)
	assert.False(t, reply.Success)
	require.NotNil(t, reply.Error)
	assert.Equal(t, ipc.CodeUnknown, reply.Error.Code)
	assert.Equal(t, "request timed out", reply.Error.Message)
}

func TestServer_Broadcast(t *testing.T) {
	s, url := startServer(t, newTestMux(), Config{})
	a := dial(t, url)
	b := dial(t, url)

	require.Eventually(t, func() bool { return s.Connections() == 2 }, 2*time.Second, 10*time.Millisecond)

	s.Broadcast("change", map[string]string{"path": "/tmp/a.txt"})

	for _, c := range []*Client{a, b} {
		select {
		case ev := <-c.Events():
			assert.Equal(t, "change", ev.Name)
			assert.JSONEq(t, `{"path":"/tmp/a.txt"}`, string(ev.Data))
		case <-time.After(2 * time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestServer_ConnectionLimit(t *testing.T) {
	s, url := startServer(t, newTestMux(), Config{MaxConnections: 1})
	dial(t, url)
	require.Eventually(t, func() bool { return s.Connections() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, resp, err := websocket.DefaultDialer.Dial(url+Path, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_OriginCheck(t *testing.T) {
	_, url := startServer(t, newTestMux(), Config{AllowedOrigins: []string{"app://deskd"}})

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url+Path, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, url, http.Header{"Origin": []string{"app://deskd"}}, discardLogger())
	require.NoError(t, err)
	c.Close()
}

func TestServer_ServeStopsOnContext(t *testing.T) {
	s := New(newTestMux(), Config{}, discardLogger())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx, ln) }()

	c := dial(t, "ws://"+ln.Addr().String())
	reply, err := call(t, c, "test:echo", echoReq{V: 3})
	require.NoError(t, err)
	assert.True(t, reply.Success)

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return")
	}

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client connection still open after shutdown")
	}
}
