package files

import (
	"context"
	"log/slog"

	"deskd/internal/ipc"
)

// Register binds the file channels to t.
func Register(t ipc.Transport, svc *Service, log *slog.Logger) {
	ipc.Register(t, ipc.ChannelFileGetTree,
		func(ctx context.Context, req GetTreeRequest, _ ipc.Caller) ([]Node, error) {
			return svc.GetTree(ctx, req)
		}, ipc.WithLabel("File tree"), ipc.WithLogger(log))

	ipc.Register(t, ipc.ChannelFileRead,
		func(ctx context.Context, req ReadRequest, _ ipc.Caller) (ReadResult, error) {
			return svc.Read(ctx, req)
		}, ipc.WithLabel("File read"), ipc.WithLogger(log))

	ipc.RegisterNoData(t, ipc.ChannelFileWrite,
		func(ctx context.Context, req WriteRequest, _ ipc.Caller) error {
			return svc.Write(ctx, req)
		}, ipc.WithLabel("File write"), ipc.WithLogger(log))

	ipc.Register(t, ipc.ChannelFileRename,
		func(ctx context.Context, req RenameRequest, _ ipc.Caller) (RenameResult, error) {
			return svc.Rename(ctx, req)
		}, ipc.WithLabel("File rename"), ipc.WithLogger(log))
}
