package workspace

import (
	"path/filepath"
	"strings"

	"deskd/internal/ipc"
)

// IsPathSafe accepts absolute paths with no NUL byte and no "..", checked
// both as given and after cleaning.
func IsPathSafe(path string) bool {
	if path == "" {
		return false
	}
	if strings.ContainsRune(path, 0) {
		return false
	}
	if !filepath.IsAbs(path) {
		return false
	}
	if strings.Contains(path, "..") {
		return false
	}
	return !strings.Contains(filepath.Clean(path), "..")
}

// ValidateState checks a state before it is stored or returned.
func ValidateState(s *PersistedState) error {
	if s == nil {
		return ipc.NewError(ipc.CodeParse, "Invalid state format")
	}
	if s.Version != StateVersion {
		return ipc.NewError(ipc.CodeParse, "Invalid version")
	}
	if s.Folders == nil {
		return ipc.NewError(ipc.CodeParse, "Folders must be an array")
	}

	for _, f := range s.Folders {
		switch {
		case f.ID == "":
			return ipc.NewError(ipc.CodeValidation, "Invalid folder id")
		case f.Path == "":
			return ipc.NewError(ipc.CodeValidation, "Invalid folder path")
		case strings.ContainsRune(f.Path, 0):
			return ipc.NewError(ipc.CodeValidation, "NULL character in path is not allowed")
		case strings.Contains(f.Path, ".."):
			return ipc.NewError(ipc.CodeValidation, "Path traversal is not allowed")
		case !filepath.IsAbs(f.Path):
			return ipc.NewError(ipc.CodeValidation, "Path must be absolute")
		}
	}
	return nil
}
