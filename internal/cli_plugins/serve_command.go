package cliplugins

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"deskd/internal/files"
	"deskd/internal/ipc"
	"deskd/internal/listener"
	"deskd/internal/util/logger/sl"
	"deskd/internal/watchsvc"
	"deskd/internal/workspace"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const stopTimeout = 5 * time.Second

type ServeCommand struct {
	cmd *cobra.Command
	app *AppContext
}

func NewServeCommand(app *AppContext) *ServeCommand {
	return &ServeCommand{app: app}
}

func (s *ServeCommand) Meta() *cobra.Command {
	if s.cmd != nil {
		return s.cmd
	}
	s.cmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the IPC server",
		Long:  "Serves the workspace, file and watch channels over WebSocket until interrupted.",
		Args:  cobra.NoArgs,
	}
	s.cmd.Flags().StringP("addr", "a", "", "listen address (overrides http.address)")
	s.cmd.Flags().StringP("watch", "w", "", "start watching this root right away (overrides watch.root)")
	return s.cmd
}

func (s *ServeCommand) Execute(ctx context.Context, cmd *cobra.Command, args []string) error {
	cfg, log, err := s.app.Load()
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.HTTP.Address = addr
	}
	if root, _ := cmd.Flags().GetString("watch"); root != "" {
		cfg.Watch.Root = root
	}

	log.Info("starting deskd",
		slog.String("env", cfg.Env),
		slog.String("address", cfg.HTTP.Address),
		slog.String("storage", cfg.Storage.Driver))

	kv, err := OpenStore(ctx, cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := kv.Close(); err != nil {
			log.Warn("failed to close storage", sl.Err(err))
		}
	}()

	mux := ipc.NewMux(log, ipc.WithCallerPolicy(ipc.OriginPolicy{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		AllowNoOrigin:  true,
	}))
	srv := listener.New(mux, listener.Config{
		Address:        cfg.HTTP.Address,
		MaxConnections: cfg.HTTP.MaxConnections,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, log)

	workspace.Register(mux, workspace.NewService(kv, log), log)
	files.Register(mux, files.NewService(cfg.Watch.Ignore, log), log)
	watches := watchsvc.New(WatcherConfig(cfg.Watch, log), srv, log)
	watchsvc.Register(mux, watches, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if cfg.Watch.Root != "" {
		g.Go(func() error {
			if _, err := watches.Start(gctx, watchsvc.StartRequest{}); err != nil {
				// clients can still start a watch themselves
				log.Error("failed to start configured watch", slog.String("root", cfg.Watch.Root), sl.Err(err))
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		return watches.Stop(stopCtx)
	})

	err = g.Wait()
	log.Info("deskd stopped")
	return err
}
