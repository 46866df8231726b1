package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FSNotifySource watches a directory tree with fsnotify. fsnotify is not
// recursive, so every directory below the root gets its own watch and new
// directories are added as they appear.
type FSNotifySource struct {
	opts SourceOptions
	log  *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	settler *settler
	closed  bool

	// touched only by Subscribe and then by the run goroutine
	root   string
	ignore *Matcher
	sink   Sink
	dirs   map[string]struct{}
	files  map[string]struct{}

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewFSNotifySource(opts SourceOptions) *FSNotifySource {
	opts = opts.withDefaults()
	return &FSNotifySource{
		opts:     opts,
		log:      opts.Logger.With(slog.String("source", "fsnotify")),
		dirs:     make(map[string]struct{}),
		files:    make(map[string]struct{}),
		stopChan: make(chan struct{}),
	}
}

func (s *FSNotifySource) Subscribe(root string, ignore *Matcher, sink Sink) error {
	root, err := checkRoot(root)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		w.Close()
		return ErrWatcherClosed
	}
	s.watcher = w
	s.settler = newSettler(s.opts.StabilityThreshold, s.opts.PollInterval, func(path string, op RawOp) {
		sink.Event(RawEvent{Op: op, Path: path})
	})
	s.mu.Unlock()

	s.root = root
	s.ignore = ignore
	s.sink = sink

	var initial []string
	if err := s.addTree(root, func(path string) { initial = append(initial, path) }); err != nil {
		if s.isClosed() {
			return ErrWatcherClosed
		}
		s.Close()
		return err
	}

	// Close may run concurrently with the scan; it must either see the
	// run goroutine counted or make us give up here
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrWatcherClosed
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.log.Debug("watching", slog.String("root", root), slog.Int("dirs", len(s.dirs)))

	if !s.opts.IgnoreInitial {
		for _, path := range initial {
			sink.Event(RawEvent{Op: RawCreate, Path: path})
		}
	}
	sink.Ready()

	go s.run()
	return nil
}

// addTree watches dir and every non-ignored directory below it, calling
// onFile for each regular file found.
func (s *FSNotifySource) addTree(dir string, onFile func(string)) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return fmt.Errorf("%w: %w", ErrInvalidPath, err)
			}
			// недоступные поддиректории пропускаем
			s.sink.Error(fmt.Errorf("failed to scan %s: %w", path, err))
			return nil
		}
		if s.isClosed() {
			return ErrWatcherClosed
		}

		if d.IsDir() {
			if path != s.root && s.ignore.Ignored(path, true) {
				return filepath.SkipDir
			}
			if err := s.watcher.Add(path); err != nil {
				if path == dir {
					return fmt.Errorf("failed to watch directory %s: %w", path, err)
				}
				s.sink.Error(fmt.Errorf("failed to watch directory %s: %w", path, err))
				return filepath.SkipDir
			}
			s.dirs[path] = struct{}{}
			return nil
		}

		if !d.Type().IsRegular() || s.ignore.Ignored(path, false) {
			return nil
		}
		s.files[path] = struct{}{}
		onFile(path)
		return nil
	})
}

func (s *FSNotifySource) run() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopChan:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.sink.Error(err)
		}
	}
}

func (s *FSNotifySource) handleEvent(event fsnotify.Event) {
	path := filepath.Clean(event.Name)

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		s.handleRemove(path)
	case event.Has(fsnotify.Create):
		s.handleCreate(path)
	case event.Has(fsnotify.Write):
		if _, known := s.files[path]; known {
			s.settler.Touch(path, RawWrite)
		}
	}
}

func (s *FSNotifySource) handleCreate(path string) {
	info, err := os.Lstat(path)
	if err != nil {
		// created and gone before we looked
		return
	}

	if info.IsDir() {
		if _, known := s.dirs[path]; known || s.ignore.Ignored(path, true) {
			return
		}
		// files written into the directory before its watch existed
		// produce no events of their own
		err := s.addTree(path, func(file string) { s.settler.Touch(file, RawCreate) })
		if err != nil && !errors.Is(err, ErrWatcherClosed) {
			s.sink.Error(err)
		}
		return
	}

	if !info.Mode().IsRegular() || s.ignore.Ignored(path, false) {
		return
	}
	if _, known := s.files[path]; known {
		// atomic save: the file was replaced in place
		s.settler.Touch(path, RawWrite)
		return
	}
	s.files[path] = struct{}{}
	s.settler.Touch(path, RawCreate)
}

func (s *FSNotifySource) handleRemove(path string) {
	if _, isDir := s.dirs[path]; isDir {
		prefix := path + string(filepath.Separator)
		for dir := range s.dirs {
			if dir == path || strings.HasPrefix(dir, prefix) {
				delete(s.dirs, dir)
				// the kernel already dropped the watch, Remove only cleans up
				_ = s.watcher.Remove(dir)
			}
		}
		for file := range s.files {
			if strings.HasPrefix(file, prefix) {
				s.removeFile(file)
			}
		}
		return
	}

	if _, known := s.files[path]; known {
		s.removeFile(path)
	}
}

func (s *FSNotifySource) removeFile(path string) {
	delete(s.files, path)
	if op, pending := s.settler.Cancel(path); pending && op == RawCreate {
		// never announced, nothing to take back
		return
	}
	s.sink.Event(RawEvent{Op: RawRemove, Path: path})
}

func (s *FSNotifySource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *FSNotifySource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stopChan)
	w, st := s.watcher, s.settler
	s.mu.Unlock()

	if st != nil {
		st.Stop()
	}
	s.wg.Wait()

	if w == nil {
		return nil
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}
