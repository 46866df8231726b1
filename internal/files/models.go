package files

import "time"

const (
	// MaxDepth bounds get-tree requests that ask for an explicit depth.
	MaxDepth = 10
	// MaxWriteSize is the largest content file:write accepts, in characters.
	MaxWriteSize = 10 * 1024 * 1024
)

type NodeType string

const (
	NodeFile   NodeType = "file"
	NodeFolder NodeType = "folder"
)

type GetTreeRequest struct {
	RootPath string `json:"rootPath"`
	// Depth nil means unlimited.
	Depth *int `json:"depth,omitempty"`
}

// Node is one entry of a directory tree. ID is the absolute path.
type Node struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Type     NodeType `json:"type"`
	Path     string   `json:"path"`
	Children []Node   `json:"children,omitempty"`
}

type ReadRequest struct {
	FilePath string `json:"filePath"`
	Encoding string `json:"encoding,omitempty"`
}

type Metadata struct {
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	Encoding     string    `json:"encoding"`
}

type ReadResult struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

type WriteRequest struct {
	FilePath string `json:"filePath"`
	Content  string `json:"content"`
	Encoding string `json:"encoding,omitempty"`
}

type RenameRequest struct {
	OldPath string `json:"oldPath"`
	NewPath string `json:"newPath"`
}

type RenameResult struct {
	OldPath string `json:"oldPath"`
	NewPath string `json:"newPath"`
}
