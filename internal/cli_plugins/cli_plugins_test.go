package cliplugins

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"deskd/internal/config"
	"deskd/internal/watcher"
	"deskd/pkg/cli"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger(string) *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func newTestCLI(app *AppContext) *cli.CLI {
	c := cli.NewCLI("deskd", "test")
	c.Root().PersistentFlags().StringVar(&app.ConfigPath, "config", "", "path to config file")
	c.RegisterPlugin(NewServeCommand(app))
	c.RegisterPlugin(NewWatchCommand(app))
	c.RegisterPlugin(NewCallCommand(app))
	c.RegisterPlugin(NewMigrateCommand(app))
	return c
}

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	log := discardLogger("")

	for _, driver := range []string{"", "bolt", "sqlite"} {
		kv, err := OpenStore(ctx, config.Storage{Driver: driver, Path: filepath.Join(dir, "state-"+driver)}, log)
		require.NoError(t, err, "driver %q", driver)
		require.NoError(t, kv.Put(ctx, "k", map[string]int{"v": 1}))
		require.NoError(t, kv.Close())
	}

	_, err := OpenStore(ctx, config.Storage{Driver: "redis"}, log)
	assert.Error(t, err)
}

func TestWatcherConfig(t *testing.T) {
	wc := WatcherConfig(config.Watch{
		Root:               "/srv",
		Ignore:             []string{"*.bak"},
		Persistent:         true,
		IgnoreInitial:      false,
		UsePolling:         true,
		StabilityThreshold: time.Second,
	}, nil)

	assert.Equal(t, "/srv", wc.RootPath)
	assert.Equal(t, []string{"*.bak"}, wc.IgnorePatterns)
	assert.True(t, wc.Persistent)
	require.NotNil(t, wc.IgnoreInitial)
	assert.False(t, *wc.IgnoreInitial)
	assert.True(t, wc.UsePolling)
	assert.Equal(t, time.Second, wc.StabilityThreshold)
}

func TestEventPrinter_JSON(t *testing.T) {
	out := &bytes.Buffer{}
	p := newEventPrinter(out, false)
	require.True(t, p.json, "a buffer is not a terminal")

	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p.event(watcher.ChangeEvent{Kind: watcher.KindModified, Path: "/srv/a.txt", ObservedAt: at})
	p.signal(watcher.SignalError, "boom")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"signal":"change","path":"/srv/a.txt","time":"2025-01-01T00:00:00Z"}`, lines[0])

	var errLine printedLine
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &errLine))
	assert.Equal(t, "error", errLine.Signal)
	assert.Equal(t, "boom", errLine.Error)
}

func TestWatchCommand_Once(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "x.js"), []byte("x"), 0644))

	t.Setenv("ENV", "local")
	app := NewAppContext(discardLogger)
	c := newTestCLI(app)
	out := &bytes.Buffer{}
	c.SetOutput(out, &bytes.Buffer{})
	c.SetArgs([]string{"watch", root, "--once", "--initial"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, c.Run(ctx))

	var signals []printedLine
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		var l printedLine
		require.NoError(t, json.Unmarshal([]byte(line), &l), line)
		signals = append(signals, l)
	}
	require.Len(t, signals, 3)
	assert.Equal(t, "add", signals[0].Signal)
	assert.Equal(t, filepath.Join(root, "a.txt"), signals[0].Path)
	assert.Equal(t, "ready", signals[1].Signal)
	assert.Equal(t, "stopped", signals[2].Signal)
}

func TestWatchCommand_RequiresPath(t *testing.T) {
	t.Setenv("WATCH_ROOT", "")
	app := NewAppContext(discardLogger)
	c := newTestCLI(app)
	c.SetOutput(&bytes.Buffer{}, &bytes.Buffer{})
	c.SetArgs([]string{"watch"})

	assert.Error(t, c.Run(context.Background()))
}

func TestServeAndCall(t *testing.T) {
	addr := freeAddr(t)
	cfgPath := writeConfig(t, fmt.Sprintf(`
env: local
http:
  address: %s
storage:
  driver: bolt
  path: %s
`, addr, filepath.Join(t.TempDir(), "state.db")))

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		app := NewAppContext(discardLogger)
		c := newTestCLI(app)
		c.SetOutput(io.Discard, io.Discard)
		c.SetArgs([]string{"serve", "--config", cfgPath})
		served <- c.Run(ctx)
	}()

	call := func(args ...string) (string, error) {
		app := NewAppContext(discardLogger)
		c := newTestCLI(app)
		out := &bytes.Buffer{}
		c.SetOutput(out, io.Discard)
		c.SetArgs(append([]string{"call", "--config", cfgPath}, args...))
		callCtx, callCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer callCancel()
		err := c.Run(callCtx)
		return out.String(), err
	}

	require.Eventually(t, func() bool {
		_, err := call("workspace:load")
		return err == nil
	}, 10*time.Second, 50*time.Millisecond)

	out, err := call("workspace:load")
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"data":null}`, out)

	root := t.TempDir()
	out, err = call("workspace:validate-paths", fmt.Sprintf(`{"paths":[%q]}`, root))
	require.NoError(t, err)
	assert.JSONEq(t, fmt.Sprintf(`{"success":true,"data":{"validPaths":[%q],"invalidPaths":[]}}`, root), out)

	out, err = call("workspace:remove-folder", `{"folderId":"x"}`)
	require.Error(t, err)
	assert.Contains(t, out, "NOT_FOUND")

	_, err = call("workspace:nope")
	assert.Error(t, err)

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}
