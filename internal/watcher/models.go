package watcher

import (
	"log/slog"
	"time"
)

// Kind is the normalized type of a filesystem change.
type Kind string

const (
	KindCreated  Kind = "created"
	KindModified Kind = "modified"
	KindRemoved  Kind = "removed"
)

// Signal returns the per-kind signal name subscribers listen on.
func (k Kind) Signal() Signal {
	switch k {
	case KindCreated:
		return SignalAdd
	case KindModified:
		return SignalChange
	case KindRemoved:
		return SignalUnlink
	}
	return ""
}

// ChangeEvent is one normalized filesystem change notification.
type ChangeEvent struct {
	Kind       Kind      `json:"kind"`
	Path       string    `json:"path"`
	ObservedAt time.Time `json:"observedAt"`
}

// Signal names a notification emitted by the Notifier.
type Signal string

const (
	SignalReady   Signal = "ready"
	SignalStopped Signal = "stopped"
	SignalError   Signal = "error"
	SignalFile    Signal = "file"
	SignalAdd     Signal = "add"
	SignalChange  Signal = "change"
	SignalUnlink  Signal = "unlink"
)

// Notification is what subscribers receive. Event is set for file and
// per-kind signals, Err for error.
type Notification struct {
	Signal Signal
	Event  *ChangeEvent
	Err    error
}

// Config содержит настройки для Notifier
type Config struct {
	RootPath       string
	IgnorePatterns []string
	// Persistent tells the host to stay alive while the notifier runs.
	Persistent bool
	// IgnoreInitial suppresses synthetic created events for entries that
	// exist at start. Nil means true.
	IgnoreInitial *bool
	UsePolling    bool
	// PollingInterval is the scan period of the polling source.
	PollingInterval time.Duration
	// StabilityThreshold is the quiet period after which a write counts as
	// finished; PollInterval is how often the file is checked meanwhile.
	StabilityThreshold time.Duration
	PollInterval       time.Duration
	BufferSize         int
	Logger             *slog.Logger
}

func (c Config) ignoreInitial() bool {
	if c.IgnoreInitial == nil {
		return true
	}
	return *c.IgnoreInitial
}

// Bool is a helper for optional config flags.
func Bool(v bool) *bool {
	return &v
}
