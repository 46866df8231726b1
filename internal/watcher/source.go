package watcher

import (
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// RawOp is the low-level change a Source reports.
type RawOp int

const (
	RawCreate RawOp = iota + 1
	RawWrite
	RawRemove
)

func (op RawOp) kind() Kind {
	switch op {
	case RawCreate:
		return KindCreated
	case RawWrite:
		return KindModified
	case RawRemove:
		return KindRemoved
	}
	return ""
}

// RawEvent is a single file change detected by a Source.
type RawEvent struct {
	Op   RawOp
	Path string
}

// Sink receives what a Source observes.
type Sink interface {
	Event(RawEvent)
	Error(error)
	// Ready is called once, after the initial scan and before any live event.
	Ready()
}

// Source is the platform watch mechanism behind a Notifier.
//
// Subscribe performs the initial scan of root, reports synthetic creates for
// pre-existing files when configured to, calls sink.Ready and then streams
// live changes until Close. Establishment failures are returned from
// Subscribe; later faults go to sink.Error. Close must be idempotent.
type Source interface {
	Subscribe(root string, ignore *Matcher, sink Sink) error
	Close() error
}

// SourceOptions configures the built-in sources.
type SourceOptions struct {
	IgnoreInitial      bool
	StabilityThreshold time.Duration
	PollInterval       time.Duration
	// Interval is the scan period of the polling source.
	Interval time.Duration
	Logger   *slog.Logger
}

func (o SourceOptions) withDefaults() SourceOptions {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Interval <= 0 {
		o.Interval = DefaultPollingInterval
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
	return o
}

type fileState struct {
	size    int64
	modTime time.Time
}

func stateOf(info fs.FileInfo) fileState {
	return fileState{size: info.Size(), modTime: info.ModTime()}
}

func checkRoot(root string) (string, error) {
	if root == "" {
		return "", ErrInvalidPath
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidPath, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidPath, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotDirectory, abs)
	}
	return abs, nil
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
