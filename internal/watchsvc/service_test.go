package watchsvc

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"deskd/internal/ipc"
	"deskd/internal/watcher"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type broadcast struct {
	event string
	data  any
}

type recorder struct {
	mu     sync.Mutex
	events []broadcast
}

func (r *recorder) Broadcast(event string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, broadcast{event: event, data: data})
}

func (r *recorder) find(fn func(broadcast) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.events {
		if fn(b) {
			return true
		}
	}
	return false
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T) (*Service, *recorder) {
	t.Helper()
	rec := &recorder{}
	svc := New(watcher.Config{
		StabilityThreshold: 20 * time.Millisecond,
		PollInterval:       10 * time.Millisecond,
	}, rec, discardLogger())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		svc.Stop(ctx)
	})
	return svc, rec
}

func startCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestService_StartStatusStop(t *testing.T) {
	svc, rec := newTestService(t)
	root := t.TempDir()

	assert.Equal(t, Status{}, svc.Status())

	st, err := svc.Start(startCtx(t), StartRequest{RootPath: root})
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.Equal(t, root, st.WatchPath)
	assert.Contains(t, st.Stats, "created")

	assert.True(t, rec.find(func(b broadcast) bool {
		return b.event == "ready" && b.data == PathEvent{WatchPath: root}
	}))

	require.NoError(t, svc.Stop(startCtx(t)))
	assert.Equal(t, Status{}, svc.Status())
	assert.True(t, rec.find(func(b broadcast) bool {
		return b.event == "stopped" && b.data == PathEvent{WatchPath: root}
	}))

	// второй Stop ничего не делает
	assert.NoError(t, svc.Stop(startCtx(t)))
}

func TestService_BroadcastsFileEvents(t *testing.T) {
	svc, rec := newTestService(t)
	root := t.TempDir()

	_, err := svc.Start(startCtx(t), StartRequest{RootPath: root})
	require.NoError(t, err)

	file := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("hello"), 0644))

	require.Eventually(t, func() bool {
		return rec.find(func(b broadcast) bool {
			ev, ok := b.data.(watcher.ChangeEvent)
			return b.event == "file" && ok && ev.Kind == watcher.KindCreated && ev.Path == file
		})
	}, 5*time.Second, 10*time.Millisecond)
}

func TestService_SameRootIsNoop(t *testing.T) {
	svc, rec := newTestService(t)
	root := t.TempDir()

	_, err := svc.Start(startCtx(t), StartRequest{RootPath: root})
	require.NoError(t, err)
	first := svc.current()

	st, err := svc.Start(startCtx(t), StartRequest{RootPath: root + string(filepath.Separator)})
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.Same(t, first, svc.current())
	assert.False(t, rec.find(func(b broadcast) bool { return b.event == "stopped" }))
}

func TestService_DifferentRootRestarts(t *testing.T) {
	svc, rec := newTestService(t)
	first := t.TempDir()
	second := t.TempDir()

	_, err := svc.Start(startCtx(t), StartRequest{RootPath: first})
	require.NoError(t, err)

	st, err := svc.Start(startCtx(t), StartRequest{RootPath: second})
	require.NoError(t, err)
	assert.Equal(t, second, st.WatchPath)
	assert.True(t, rec.find(func(b broadcast) bool {
		return b.event == "stopped" && b.data == PathEvent{WatchPath: first}
	}))
}

func TestService_DefaultRoot(t *testing.T) {
	root := t.TempDir()
	svc := New(watcher.Config{RootPath: root}, &recorder{}, discardLogger())
	defer svc.Stop(context.Background())

	st, err := svc.Start(startCtx(t), StartRequest{})
	require.NoError(t, err)
	assert.Equal(t, root, st.WatchPath)
}

func TestService_StartRejects(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	tests := []struct {
		name string
		req  StartRequest
		code ipc.Code
	}{
		{name: "no root", req: StartRequest{}, code: ipc.CodeValidation},
		{name: "relative root", req: StartRequest{RootPath: "docs"}, code: ipc.CodeValidation},
		{name: "missing root", req: StartRequest{RootPath: filepath.Join(root, "missing")}, code: ipc.CodeNotFound},
		{name: "file root", req: StartRequest{RootPath: file}, code: ipc.CodeNotDirectory},
		{name: "bad pattern", req: StartRequest{RootPath: root, IgnorePatterns: []string{"[a-"}}, code: ipc.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t)
			_, err := svc.Start(startCtx(t), tt.req)
			de, ok := ipc.AsError(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, tt.code, de.Code)
			assert.Equal(t, Status{}, svc.Status())
		})
	}
}

func TestRegister_Channels(t *testing.T) {
	svc, _ := newTestService(t)
	m := ipc.NewMux(discardLogger())
	Register(m, svc, discardLogger())
	root := t.TempDir()

	invoke := func(channel string, payload any) string {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		resp, err := m.Invoke(startCtx(t), channel, raw, ipc.Caller{})
		require.NoError(t, err)
		out, err := json.Marshal(resp)
		require.NoError(t, err)
		return string(out)
	}

	out := invoke(ipc.ChannelWatchStatus, nil)
	assert.JSONEq(t, `{"success":true,"data":{"running":false}}`, out)

	out = invoke(ipc.ChannelWatchStart, StartRequest{RootPath: root})
	var started struct {
		Success bool   `json:"success"`
		Data    Status `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &started))
	assert.True(t, started.Success)
	assert.True(t, started.Data.Running)
	assert.Equal(t, root, started.Data.WatchPath)

	out = invoke(ipc.ChannelWatchStop, nil)
	assert.JSONEq(t, `{"success":true}`, out)

	out = invoke(ipc.ChannelWatchStatus, nil)
	assert.JSONEq(t, `{"success":true,"data":{"running":false}}`, out)
}
