// Package watchsvc exposes a single change notifier over IPC: callers start,
// stop and inspect it, and its signals are pushed to every connected client.
package watchsvc

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"deskd/internal/ipc"
	"deskd/internal/util/logger/sl"
	"deskd/internal/watcher"
)

// Publisher pushes an event to connected clients. *listener.Server
// satisfies it.
type Publisher interface {
	Broadcast(event string, data any)
}

type StartRequest struct {
	RootPath       string   `json:"rootPath,omitempty"`
	IgnorePatterns []string `json:"ignorePatterns,omitempty"`
}

type Status struct {
	Running   bool           `json:"running"`
	WatchPath string         `json:"watchPath,omitempty"`
	Stats     map[string]any `json:"stats,omitempty"`
}

// ErrorEvent is the payload of a pushed error signal.
type ErrorEvent struct {
	Message string `json:"message"`
}

// PathEvent is the payload of pushed ready and stopped signals.
type PathEvent struct {
	WatchPath string `json:"watchPath"`
}

type Service struct {
	base watcher.Config
	pub  Publisher
	log  *slog.Logger

	// opMu serializes start and stop, mu guards the current notifier
	opMu   sync.Mutex
	mu     sync.Mutex
	n      *watcher.Notifier
	unsubs []func()
}

// New returns a stopped service. base supplies everything a start request
// does not override.
func New(base watcher.Config, pub Publisher, log *slog.Logger) *Service {
	if base.Logger == nil {
		base.Logger = log
	}
	return &Service{
		base: base,
		pub:  pub,
		log:  log.With(slog.String("component", "watchsvc")),
	}
}

// Start watches the requested root. Starting on the root already watched
// changes nothing; a different root replaces the current watch. Start waits
// for the initial scan until ctx expires and then reports whatever state
// the notifier is in.
func (s *Service) Start(ctx context.Context, req StartRequest) (Status, error) {
	const op = "watchsvc.Start"
	log := s.log.With(slog.String("op", op))

	root := req.RootPath
	if root == "" {
		root = s.base.RootPath
	}
	if root == "" {
		return Status{}, ipc.NewError(ipc.CodeValidation, "rootPath is required")
	}
	if !filepath.IsAbs(root) {
		return Status{}, ipc.NewError(ipc.CodeValidation, "rootPath must be absolute")
	}
	root = filepath.Clean(root)
	if err := checkDir(root); err != nil {
		return Status{}, err
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	if cur := s.current(); cur != nil {
		select {
		case <-cur.Done():
			// failed after a previous start gave up waiting
			s.detach(cur)
		default:
		}
	}
	if cur := s.current(); cur != nil {
		if cur.WatchPath() == root {
			return s.Status(), nil
		}
		log.Info("switching watch root", slog.String("from", cur.WatchPath()), slog.String("to", root))
		if err := s.stopLocked(ctx); err != nil {
			log.Warn("previous watch did not stop cleanly", sl.Err(err))
		}
	}

	cfg := s.base
	cfg.RootPath = root
	if req.IgnorePatterns != nil {
		cfg.IgnorePatterns = req.IgnorePatterns
	}

	n, err := watcher.NewNotifier(cfg)
	if err != nil {
		if errors.Is(err, watcher.ErrInvalidPattern) {
			return Status{}, ipc.Wrap(ipc.CodeValidation, "Invalid ignore pattern", err)
		}
		return Status{}, err
	}

	ready := make(chan struct{})
	var readyOnce sync.Once
	var lastErr error
	var errMu sync.Mutex

	unsubs := []func(){
		n.OnFile(func(ev watcher.ChangeEvent) {
			s.pub.Broadcast(string(watcher.SignalFile), ev)
		}),
		n.OnReady(func() {
			readyOnce.Do(func() { close(ready) })
			s.pub.Broadcast(string(watcher.SignalReady), PathEvent{WatchPath: root})
		}),
		n.OnStopped(func() {
			s.pub.Broadcast(string(watcher.SignalStopped), PathEvent{WatchPath: root})
		}),
		n.OnError(func(err error) {
			errMu.Lock()
			lastErr = err
			errMu.Unlock()
			log.Warn("watch error", sl.Err(err))
			s.pub.Broadcast(string(watcher.SignalError), ErrorEvent{Message: err.Error()})
		}),
	}

	s.mu.Lock()
	s.n = n
	s.unsubs = unsubs
	s.mu.Unlock()

	n.Start()

	select {
	case <-ready:
	case <-n.Done():
		// the watch could not be established
		s.detach(n)
		errMu.Lock()
		err := lastErr
		errMu.Unlock()
		if err == nil {
			err = errors.New("watcher stopped during startup")
		}
		return Status{}, ipc.Wrap(ipc.CodeUnknown, err.Error(), err)
	case <-ctx.Done():
		log.Debug("initial scan still running", slog.String("root", root))
	}

	return s.Status(), nil
}

// Stop ends the current watch. Stopping when nothing is watched does
// nothing.
func (s *Service) Stop(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.stopLocked(ctx)
}

func (s *Service) stopLocked(ctx context.Context) error {
	n := s.current()
	if n == nil {
		return nil
	}
	// stopped is still broadcast, subscriptions go after Stop
	err := n.Stop(ctx)
	s.detach(n)
	return err
}

func (s *Service) Status() Status {
	n := s.current()
	if n == nil {
		return Status{}
	}
	return Status{
		Running:   n.Running(),
		WatchPath: n.WatchPath(),
		Stats:     n.Metrics().GetStats(),
	}
}

func (s *Service) current() *watcher.Notifier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

func (s *Service) detach(n *watcher.Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.n != n {
		return
	}
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.n = nil
	s.unsubs = nil
}

func checkDir(path string) error {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ipc.Wrap(ipc.CodeNotFound, "Watch root does not exist", err)
	case errors.Is(err, fs.ErrPermission):
		return ipc.Wrap(ipc.CodeAccessDenied, "Cannot access watch root", err)
	case err != nil:
		return ipc.Wrap(ipc.CodeAccessDenied, "Cannot access watch root", err)
	case !info.IsDir():
		return ipc.NewError(ipc.CodeNotDirectory, "Watch root is not a directory")
	}
	return nil
}
