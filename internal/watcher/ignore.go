package watcher

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// Matcher decides whether a path is excluded from observation.
//
// Relative patterns are matched against the path below the root written
// as "/rel/path", so a root that itself lives under a "build" directory is
// not swallowed by "**/build/**". Patterns without a slash match the base
// name at any depth ("*.bak" behaves like "**/*.bak"), other relative
// patterns are anchored at the root. Absolute patterns are matched against
// the absolute path.
type Matcher struct {
	root     string
	patterns []string
	relative []glob.Glob
	absolute []glob.Glob
}

// MergePatterns returns the default patterns followed by the caller's,
// with duplicates removed and order preserved.
func MergePatterns(user []string) []string {
	merged := make([]string, 0, len(DefaultIgnorePatterns)+len(user))
	seen := make(map[string]struct{}, cap(merged))
	for _, list := range [][]string{DefaultIgnorePatterns, user} {
		for _, p := range list {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			merged = append(merged, p)
		}
	}
	return merged
}

// NewMatcher compiles the default patterns plus the caller's patterns for
// the given root.
func NewMatcher(root string, patterns []string) (*Matcher, error) {
	root = filepath.ToSlash(filepath.Clean(root))
	merged := MergePatterns(patterns)

	m := &Matcher{
		root:     root,
		patterns: merged,
	}
	for _, p := range merged {
		abs := filepath.IsAbs(p)
		g, err := glob.Compile(normalizePattern(p, abs), '/')
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidPattern, p, err)
		}
		if abs {
			m.absolute = append(m.absolute, g)
		} else {
			m.relative = append(m.relative, g)
		}
	}
	return m, nil
}

func normalizePattern(pattern string, abs bool) string {
	pattern = filepath.ToSlash(pattern)
	switch {
	case abs, strings.HasPrefix(pattern, "**"):
		return pattern
	case !strings.Contains(pattern, "/"):
		return "**/" + pattern
	default:
		return "/" + strings.TrimPrefix(strings.TrimPrefix(pattern, "./"), "/")
	}
}

// Patterns returns the effective pattern list.
func (m *Matcher) Patterns() []string {
	out := make([]string, len(m.patterns))
	copy(out, m.patterns)
	return out
}

// Ignored reports whether path matches any pattern. Directories are also
// tested with a trailing slash so "**/.git/**" prunes the .git directory
// itself.
func (m *Matcher) Ignored(path string, isDir bool) bool {
	if m == nil {
		return false
	}
	abs := filepath.ToSlash(filepath.Clean(path))
	if matchAny(m.absolute, abs, isDir) {
		return true
	}

	rel := abs
	if abs == m.root {
		rel = "/"
	} else if strings.HasPrefix(abs, strings.TrimSuffix(m.root, "/")+"/") {
		rel = strings.TrimPrefix(abs, strings.TrimSuffix(m.root, "/"))
	}
	return matchAny(m.relative, rel, isDir)
}

func matchAny(globs []glob.Glob, p string, isDir bool) bool {
	for _, g := range globs {
		if g.Match(p) {
			return true
		}
		if isDir && g.Match(p+"/") {
			return true
		}
	}
	return false
}
