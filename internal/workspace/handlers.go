package workspace

import (
	"context"
	"log/slog"

	"deskd/internal/ipc"
)

// Register binds the workspace channels to t.
func Register(t ipc.Transport, svc *Service, log *slog.Logger) {
	ipc.RegisterNoRequest(t, ipc.ChannelWorkspaceLoad,
		func(ctx context.Context, _ ipc.Caller) (*PersistedState, error) {
			return svc.Load(ctx)
		}, ipc.WithLabel("Workspace load"), ipc.WithLogger(log))

	ipc.RegisterNoData(t, ipc.ChannelWorkspaceSave,
		func(ctx context.Context, req SaveRequest, _ ipc.Caller) error {
			return svc.Save(ctx, req)
		}, ipc.WithLabel("Workspace save"), ipc.WithLogger(log))

	ipc.Register(t, ipc.ChannelWorkspaceAddFolder,
		func(ctx context.Context, req AddFolderRequest, _ ipc.Caller) (FolderCandidate, error) {
			return svc.AddFolder(ctx, req)
		}, ipc.WithLabel("Workspace add folder"), ipc.WithLogger(log))

	ipc.RegisterNoData(t, ipc.ChannelWorkspaceRemoveFolder,
		func(ctx context.Context, req RemoveFolderRequest, _ ipc.Caller) error {
			return svc.RemoveFolder(ctx, req)
		}, ipc.WithLabel("Workspace remove folder"), ipc.WithLogger(log))

	ipc.Register(t, ipc.ChannelWorkspaceValidatePaths,
		func(ctx context.Context, req ValidatePathsRequest, _ ipc.Caller) (ValidatePathsResult, error) {
			return svc.ValidatePaths(ctx, req)
		}, ipc.WithLabel("Workspace validate paths"), ipc.WithLogger(log))
}
