package watcher

import "errors"

var (
	ErrWatcherClosed  = errors.New("watcher is closed")
	ErrInvalidPath    = errors.New("invalid path")
	ErrNotDirectory   = errors.New("watch root is not a directory")
	ErrInvalidPattern = errors.New("invalid ignore pattern")
)
