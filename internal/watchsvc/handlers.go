package watchsvc

import (
	"context"
	"encoding/json"
	"log/slog"

	"deskd/internal/ipc"
)

// Register binds the watch channels to t.
func Register(t ipc.Transport, svc *Service, log *slog.Logger) {
	ipc.Register(t, ipc.ChannelWatchStart,
		func(ctx context.Context, req StartRequest, _ ipc.Caller) (Status, error) {
			return svc.Start(ctx, req)
		}, ipc.WithLabel("Watch start"), ipc.WithLogger(log))

	ipc.RegisterNoData(t, ipc.ChannelWatchStop,
		func(ctx context.Context, _ json.RawMessage, _ ipc.Caller) error {
			return svc.Stop(ctx)
		}, ipc.WithLabel("Watch stop"), ipc.WithLogger(log))

	ipc.RegisterNoRequest(t, ipc.ChannelWatchStatus,
		func(context.Context, ipc.Caller) (Status, error) {
			return svc.Status(), nil
		}, ipc.WithLabel("Watch status"), ipc.WithLogger(log))
}
