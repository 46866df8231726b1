package watcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergePatterns(t *testing.T) {
	merged := MergePatterns([]string{"**/*.bak", "**/.git/**", "  ", "**/*.bak"})

	require.Len(t, merged, len(DefaultIgnorePatterns)+1)
	assert.Equal(t, DefaultIgnorePatterns, merged[:len(DefaultIgnorePatterns)])
	assert.Equal(t, "**/*.bak", merged[len(merged)-1])
}

func TestDefaultIgnorePatterns(t *testing.T) {
	assert.Equal(t, []string{
		"**/.git/**", "**/.svn/**", "**/.hg/**",
		"**/node_modules/**", "**/vendor/**",
		"**/dist/**", "**/build/**", "**/out/**", "**/.next/**",
		"**/*.log",
		"**/.DS_Store", "**/Thumbs.db", "**/*:Zone.Identifier",
		"**/*.tmp", "**/*.swp", "**/*~",
	}, DefaultIgnorePatterns)
}

func TestMergePatterns_EmptyUserListKeepsDefaults(t *testing.T) {
	assert.Equal(t, DefaultIgnorePatterns, MergePatterns(nil))
	assert.Equal(t, DefaultIgnorePatterns, MergePatterns([]string{}))
}

func TestMatcher_Ignored(t *testing.T) {
	m, err := NewMatcher("/tmp/build/project", []string{"*.bak", "docs/private/**", "/var/cache/**"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		path    string
		isDir   bool
		ignored bool
	}{
		{name: "plain file", path: "/tmp/build/project/a.txt", ignored: false},
		{name: "git dir itself", path: "/tmp/build/project/.git", isDir: true, ignored: true},
		{name: "file inside git", path: "/tmp/build/project/.git/HEAD", ignored: true},
		{name: "nested node_modules", path: "/tmp/build/project/web/node_modules/x/index.js", ignored: true},
		{name: "build output", path: "/tmp/build/project/build/app.js", ignored: true},
		{name: "root under build dir is not swallowed", path: "/tmp/build/project/src/main.go", ignored: false},
		{name: "log file", path: "/tmp/build/project/logs/server.log", ignored: true},
		{name: "ds store", path: "/tmp/build/project/.DS_Store", ignored: true},
		{name: "zone identifier", path: "/tmp/build/project/a.txt:Zone.Identifier", ignored: true},
		{name: "editor backup", path: "/tmp/build/project/a.txt~", ignored: true},
		{name: "vim swap", path: "/tmp/build/project/src/.main.go.swp", ignored: true},
		{name: "vendored dependency", path: "/tmp/build/project/vendor/github.com/x/y.go", ignored: true},
		{name: "basename pattern at depth", path: "/tmp/build/project/x/y/old.bak", ignored: true},
		{name: "anchored pattern", path: "/tmp/build/project/docs/private/secret.md", ignored: true},
		{name: "anchored pattern elsewhere", path: "/tmp/build/project/src/docs/private/secret.md", ignored: false},
		{name: "absolute pattern", path: "/var/cache/thing", ignored: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ignored, m.Ignored(tt.path, tt.isDir))
		})
	}
}

func TestNewMatcher_InvalidPattern(t *testing.T) {
	_, err := NewMatcher("/tmp/project", []string{"[a-"})
	assert.ErrorIs(t, err, ErrInvalidPattern)
}
