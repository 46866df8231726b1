package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	cliplugins "deskd/internal/cli_plugins"
	"deskd/internal/config"
	"deskd/internal/util/logger/handlers/slogpretty"
	"deskd/pkg/cli"
)

func main() {
	// Создаем контекст с отменой для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalChan
		cancel()
	}()

	app := cliplugins.NewAppContext(setupLogger)

	c := cli.NewCLI("deskd", "Workspace and file change service")
	c.Root().PersistentFlags().StringVarP(&app.ConfigPath, "config", "c", "", "path to config file (default $CONFIG_PATH)")
	c.RegisterPlugin(cliplugins.NewServeCommand(app))
	c.RegisterPlugin(cliplugins.NewWatchCommand(app))
	c.RegisterPlugin(cliplugins.NewCallCommand(app))
	c.RegisterPlugin(cliplugins.NewMigrateCommand(app))

	if err := c.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// logs go to stderr so that watch and call output stays pipeable
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case config.EnvDev:
		log = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case config.EnvProd:
		log = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		log = setupPrettySlog()
	}
	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stderr)

	return slog.New(handler)
}
