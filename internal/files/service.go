package files

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"deskd/internal/ipc"
	"deskd/internal/watcher"
	"deskd/internal/workspace"
)

// Service implements the file channels: tree listing, read, write and
// rename of paths given by the client.
type Service struct {
	log    *slog.Logger
	ignore []string
}

// NewService takes the configured watch ignore patterns; the tree hides what
// the notifier would not report.
func NewService(ignore []string, log *slog.Logger) *Service {
	return &Service{
		log:    log.With(slog.String("component", "files")),
		ignore: append([]string(nil), ignore...),
	}
}

func (s *Service) GetTree(ctx context.Context, req GetTreeRequest) ([]Node, error) {
	if err := checkPath(req.RootPath); err != nil {
		return nil, err
	}
	depth := -1
	if req.Depth != nil {
		if *req.Depth < 1 || *req.Depth > MaxDepth {
			return nil, ipc.Errorf(ipc.CodeValidation, "Depth must be between 1 and %d", MaxDepth)
		}
		depth = *req.Depth
	}

	info, err := os.Stat(req.RootPath)
	if err != nil {
		return nil, fsError(req.RootPath, err)
	}
	if !info.IsDir() {
		return nil, ipc.NewError(ipc.CodeNotDirectory, "Path is not a directory")
	}

	m, err := watcher.NewMatcher(req.RootPath, s.ignore)
	if err != nil {
		return nil, ipc.Wrap(ipc.CodeValidation, "Invalid ignore pattern", err)
	}
	nodes, err := s.buildTree(ctx, m, req.RootPath, depth)
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

// buildTree lists dir. depth < 0 is unlimited; unreadable subdirectories
// show up empty.
func (s *Service) buildTree(ctx context.Context, m *watcher.Matcher, dir string, depth int) ([]Node, error) {
	if depth == 0 {
		return []Node{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fsError(dir, err)
	}

	nodes := make([]Node, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		path := filepath.Join(dir, name)
		if strings.HasPrefix(name, ".") || m.Ignored(path, e.IsDir()) {
			continue
		}

		node := Node{ID: path, Name: name, Type: NodeFile, Path: path}
		if e.IsDir() {
			node.Type = NodeFolder
			children, err := s.buildTree(ctx, m, path, depth-1)
			switch {
			case err == nil:
				node.Children = children
			case ctx.Err() != nil:
				return nil, ctx.Err()
			default:
				s.log.Debug("skipping unreadable directory", slog.String("path", path))
				node.Children = []Node{}
			}
		}
		nodes = append(nodes, node)
	}

	// папки первыми, затем по имени
	sort.Slice(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.Type != b.Type {
			return a.Type == NodeFolder
		}
		la, lb := strings.ToLower(a.Name), strings.ToLower(b.Name)
		if la != lb {
			return la < lb
		}
		return a.Name < b.Name
	})
	return nodes, nil
}

func (s *Service) Read(_ context.Context, req ReadRequest) (ReadResult, error) {
	if err := checkPath(req.FilePath); err != nil {
		return ReadResult{}, err
	}
	enc, c, ok := lookupCodec(req.Encoding)
	if !ok {
		return ReadResult{}, ipc.Errorf(ipc.CodeValidation, "Unsupported encoding: %s", req.Encoding)
	}

	info, err := os.Stat(req.FilePath)
	if err != nil {
		return ReadResult{}, fsError(req.FilePath, err)
	}
	if info.IsDir() {
		return ReadResult{}, ipc.NewError(ipc.CodeValidation, "Path is a directory")
	}

	data, err := os.ReadFile(req.FilePath)
	if err != nil {
		return ReadResult{}, fsError(req.FilePath, err)
	}
	content, err := c.decode(data)
	if err != nil {
		return ReadResult{}, ipc.Wrap(ipc.CodeParse, "Failed to decode file", err)
	}

	return ReadResult{
		Content: content,
		Metadata: Metadata{
			Size:         info.Size(),
			LastModified: info.ModTime().UTC(),
			Encoding:     enc,
		},
	}, nil
}

// Write replaces the file content. The parent directory has to exist.
func (s *Service) Write(_ context.Context, req WriteRequest) error {
	if err := checkPath(req.FilePath); err != nil {
		return err
	}
	if utf8.RuneCountInString(req.Content) > MaxWriteSize {
		return ipc.Errorf(ipc.CodeValidation, "Content exceeds %d characters", MaxWriteSize)
	}
	_, c, ok := lookupCodec(req.Encoding)
	if !ok {
		return ipc.Errorf(ipc.CodeValidation, "Unsupported encoding: %s", req.Encoding)
	}
	data, err := c.encode(req.Content)
	if err != nil {
		return ipc.Wrap(ipc.CodeValidation, "Content does not match encoding", err)
	}

	if info, err := os.Stat(req.FilePath); err == nil && info.IsDir() {
		return ipc.NewError(ipc.CodeValidation, "Path is a directory")
	}
	if err := os.WriteFile(req.FilePath, data, 0644); err != nil {
		return fsError(req.FilePath, err)
	}
	s.log.Debug("file written", slog.String("path", req.FilePath), slog.Int("bytes", len(data)))
	return nil
}

// Rename moves a file or folder. It never overwrites an existing entry.
func (s *Service) Rename(_ context.Context, req RenameRequest) (RenameResult, error) {
	if err := checkPath(req.OldPath); err != nil {
		return RenameResult{}, err
	}
	if err := checkPath(req.NewPath); err != nil {
		return RenameResult{}, err
	}

	if _, err := os.Lstat(req.OldPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return RenameResult{}, ipc.Errorf(ipc.CodeNotFound, "File or folder does not exist: %s", req.OldPath)
		}
		return RenameResult{}, fsError(req.OldPath, err)
	}
	if _, err := os.Lstat(req.NewPath); err == nil {
		return RenameResult{}, ipc.Errorf(ipc.CodeValidation, "A file or folder already exists at: %s", req.NewPath)
	}

	if err := os.Rename(req.OldPath, req.NewPath); err != nil {
		return RenameResult{}, fsError(req.OldPath, err)
	}
	s.log.Info("renamed", slog.String("from", req.OldPath), slog.String("to", req.NewPath))
	return RenameResult{OldPath: req.OldPath, NewPath: req.NewPath}, nil
}

func checkPath(path string) error {
	if path == "" {
		return ipc.NewError(ipc.CodeValidation, "Path is required")
	}
	if !workspace.IsPathSafe(path) {
		return ipc.NewError(ipc.CodeValidation, "Invalid path")
	}
	return nil
}

// fsError maps OS errors onto domain codes. Anything else stays a plain
// error and ends up as UNKNOWN_ERROR with its message.
func fsError(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ipc.Wrap(ipc.CodeNotFound, fmt.Sprintf("Path does not exist: %s", path), err)
	case errors.Is(err, fs.ErrPermission):
		return ipc.Wrap(ipc.CodeAccessDenied, fmt.Sprintf("Permission denied: %s", path), err)
	default:
		return err
	}
}
