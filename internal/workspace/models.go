package workspace

import "time"

// StateVersion is the only schema version the state accepts.
const StateVersion = 1

// StateKey is the key the state is stored under.
const StateKey = "state"

// PersistedState is the workspace as the renderer persists it: the folders
// the user added plus a little UI state. Paths are references only; nothing
// on disk is touched when a folder is removed.
type PersistedState struct {
	Version              int       `json:"version"`
	Folders              []Folder  `json:"folders"`
	LastSelectedFilePath *string   `json:"lastSelectedFilePath"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

type Folder struct {
	ID            string    `json:"id"`
	Path          string    `json:"path"`
	DisplayName   string    `json:"displayName"`
	IsExpanded    bool      `json:"isExpanded"`
	ExpandedPaths []string  `json:"expandedPaths"`
	AddedAt       time.Time `json:"addedAt"`
}

type SaveRequest struct {
	State *PersistedState `json:"state"`
}

// AddFolderRequest names the folder to add. An empty path means the user
// dismissed the picker.
type AddFolderRequest struct {
	Path string `json:"path"`
}

// FolderCandidate describes a folder that passed validation. It is not
// persisted; the caller adds it to the state and saves.
type FolderCandidate struct {
	ID          string `json:"id"`
	Path        string `json:"path"`
	DisplayName string `json:"displayName"`
	Exists      bool   `json:"exists"`
	IsDirectory bool   `json:"isDirectory"`
}

type RemoveFolderRequest struct {
	FolderID string `json:"folderId"`
}

type ValidatePathsRequest struct {
	Paths []string `json:"paths"`
}

// InvalidReason tells why a path failed validation.
type InvalidReason string

const (
	ReasonNotFound     InvalidReason = "NOT_FOUND"
	ReasonNotDirectory InvalidReason = "NOT_DIRECTORY"
	ReasonAccessDenied InvalidReason = "ACCESS_DENIED"
)

type InvalidPath struct {
	Path   string        `json:"path"`
	Reason InvalidReason `json:"reason"`
}

type ValidatePathsResult struct {
	ValidPaths   []string      `json:"validPaths"`
	InvalidPaths []InvalidPath `json:"invalidPaths"`
}
