package watcher

import (
	"time"
)

const (
	DefaultBufferSize         = 100
	DefaultStabilityThreshold = 200 * time.Millisecond
	DefaultPollInterval       = 100 * time.Millisecond
	DefaultPollingInterval    = time.Second
)

// DefaultIgnorePatterns are always unioned with the caller's patterns.
var DefaultIgnorePatterns = []string{
	// version control
	"**/.git/**",
	"**/.svn/**",
	"**/.hg/**",
	// dependencies
	"**/node_modules/**",
	"**/vendor/**",
	// build output
	"**/dist/**",
	"**/build/**",
	"**/out/**",
	"**/.next/**",
	// logs
	"**/*.log",
	// OS metadata and editor leftovers
	"**/.DS_Store",
	"**/Thumbs.db",
	"**/*:Zone.Identifier",
	"**/*.tmp",
	"**/*.swp",
	"**/*~",
}
