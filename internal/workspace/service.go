package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"deskd/internal/ipc"
	"deskd/internal/storage"

	"github.com/google/uuid"
)

// Service implements the workspace channels on top of a storage.KV.
type Service struct {
	kv  storage.KV
	log *slog.Logger

	now   func() time.Time
	newID func() string

	// remove-folder is read-modify-write
	mu sync.Mutex
}

func NewService(kv storage.KV, log *slog.Logger) *Service {
	return &Service{
		kv:    kv,
		log:   log.With(slog.String("component", "workspace")),
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Load returns the stored state, or nil on first run.
func (s *Service) Load(ctx context.Context) (*PersistedState, error) {
	state, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, nil
	}
	if err := ValidateState(state); err != nil {
		return nil, err
	}
	return state, nil
}

func (s *Service) Save(ctx context.Context, req SaveRequest) error {
	if req.State == nil {
		return ipc.NewError(ipc.CodeValidation, "Request state is required")
	}
	if err := ValidateState(req.State); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Put(ctx, StateKey, req.State); err != nil {
		return ipc.Wrap(ipc.CodeStorage, "Failed to save workspace", err)
	}
	s.log.Debug("workspace saved", slog.Int("folders", len(req.State.Folders)))
	return nil
}

// AddFolder validates a folder the user picked. Nothing is persisted.
func (s *Service) AddFolder(_ context.Context, req AddFolderRequest) (FolderCandidate, error) {
	if req.Path == "" {
		return FolderCandidate{}, ipc.NewError(ipc.CodeCanceled, "User canceled")
	}
	if !IsPathSafe(req.Path) {
		return FolderCandidate{}, ipc.NewError(ipc.CodeAccessDenied, "Invalid path")
	}

	info, err := os.Stat(req.Path)
	if err != nil {
		return FolderCandidate{}, ipc.Wrap(ipc.CodeAccessDenied, "Cannot access the selected path", err)
	}
	if !info.IsDir() {
		return FolderCandidate{}, ipc.NewError(ipc.CodeNotDirectory, "Selected path is not a directory")
	}

	return FolderCandidate{
		ID:          s.newID(),
		Path:        req.Path,
		DisplayName: filepath.Base(req.Path),
		Exists:      true,
		IsDirectory: true,
	}, nil
}

// RemoveFolder drops the folder reference. The folder itself is untouched.
func (s *Service) RemoveFolder(ctx context.Context, req RemoveFolderRequest) error {
	if req.FolderID == "" {
		return ipc.NewError(ipc.CodeValidation, "Folder ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.read(ctx)
	if err != nil {
		return err
	}
	if state == nil {
		return ipc.NewError(ipc.CodeNotFound, "Workspace not found")
	}

	idx := -1
	for i, f := range state.Folders {
		if f.ID == req.FolderID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return ipc.NewError(ipc.CodeNotFound, "Folder not found in workspace")
	}

	state.Folders = append(state.Folders[:idx], state.Folders[idx+1:]...)
	state.UpdatedAt = s.now()

	if err := s.kv.Put(ctx, StateKey, state); err != nil {
		return ipc.Wrap(ipc.CodeStorage, "Failed to save workspace", err)
	}
	return nil
}

// ValidatePaths sorts paths into usable directories and rejects with a
// reason. It never fails because of a single bad path.
func (s *Service) ValidatePaths(_ context.Context, req ValidatePathsRequest) (ValidatePathsResult, error) {
	if req.Paths == nil {
		return ValidatePathsResult{}, ipc.NewError(ipc.CodeValidation, "Paths array is required")
	}

	res := ValidatePathsResult{
		ValidPaths:   []string{},
		InvalidPaths: []InvalidPath{},
	}
	for _, p := range req.Paths {
		if reason, ok := checkDir(p); !ok {
			res.InvalidPaths = append(res.InvalidPaths, InvalidPath{Path: p, Reason: reason})
			continue
		}
		res.ValidPaths = append(res.ValidPaths, p)
	}
	return res, nil
}

func checkDir(path string) (InvalidReason, bool) {
	if !IsPathSafe(path) {
		return ReasonAccessDenied, false
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return ReasonAccessDenied, false
		}
		return ReasonNotFound, false
	}
	if !info.IsDir() {
		return ReasonNotDirectory, false
	}
	return "", true
}

// read returns nil, nil when nothing is stored yet.
func (s *Service) read(ctx context.Context) (*PersistedState, error) {
	var raw json.RawMessage
	err := s.kv.Get(ctx, StateKey, &raw)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, nil
	case errors.Is(err, storage.ErrDecode):
		return nil, ipc.Wrap(ipc.CodeParse, "Invalid state format", err)
	case err != nil:
		return nil, ipc.Wrap(ipc.CodeStorage, "Failed to read workspace", err)
	}

	var state PersistedState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, ipc.Wrap(ipc.CodeParse, "Invalid state format", err)
	}
	return &state, nil
}
