package watcher

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// PollSource detects changes by rescanning the tree on a fixed interval.
// It is meant for network and container mounts where inotify and friends
// do not deliver events.
type PollSource struct {
	opts SourceOptions
	log  *slog.Logger

	mu      sync.Mutex
	closed  bool
	settler *settler

	root     string
	ignore   *Matcher
	sink     Sink
	snapshot map[string]fileState

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewPollSource(opts SourceOptions) *PollSource {
	opts = opts.withDefaults()
	return &PollSource{
		opts:     opts,
		log:      opts.Logger.With(slog.String("source", "poll")),
		stopChan: make(chan struct{}),
	}
}

func (s *PollSource) Subscribe(root string, ignore *Matcher, sink Sink) error {
	root, err := checkRoot(root)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrWatcherClosed
	}
	s.settler = newSettler(s.opts.StabilityThreshold, s.opts.PollInterval, func(path string, op RawOp) {
		sink.Event(RawEvent{Op: op, Path: path})
	})
	s.mu.Unlock()

	s.root = root
	s.ignore = ignore
	s.sink = sink

	snapshot, err := s.scan()
	if err != nil {
		return err
	}
	s.snapshot = snapshot

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrWatcherClosed
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.log.Debug("polling", slog.String("root", root), slog.Duration("interval", s.opts.Interval))

	if !s.opts.IgnoreInitial {
		for _, path := range sortedKeys(snapshot) {
			sink.Event(RawEvent{Op: RawCreate, Path: path})
		}
	}
	sink.Ready()

	go s.run()
	return nil
}

func (s *PollSource) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			current, err := s.scan()
			if err != nil {
				s.sink.Error(err)
				continue
			}
			s.diff(current)
		}
	}
}

func (s *PollSource) diff(current map[string]fileState) {
	for _, path := range sortedKeys(current) {
		prev, known := s.snapshot[path]
		switch {
		case !known:
			s.settler.Touch(path, RawCreate)
		case prev != current[path]:
			s.settler.Touch(path, RawWrite)
		}
	}
	for _, path := range sortedKeys(s.snapshot) {
		if _, ok := current[path]; ok {
			continue
		}
		if op, pending := s.settler.Cancel(path); pending && op == RawCreate {
			continue
		}
		s.sink.Event(RawEvent{Op: RawRemove, Path: path})
	}
	s.snapshot = current
}

func (s *PollSource) scan() (map[string]fileState, error) {
	files := make(map[string]fileState)
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.root {
				return fmt.Errorf("%w: %w", ErrInvalidPath, err)
			}
			return nil
		}
		if d.IsDir() {
			if path != s.root && s.ignore.Ignored(path, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || s.ignore.Ignored(path, false) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files[path] = stateOf(info)
		return nil
	})
	return files, err
}

func (s *PollSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stopChan)
	st := s.settler
	s.mu.Unlock()

	if st != nil {
		st.Stop()
	}
	s.wg.Wait()
	return nil
}
