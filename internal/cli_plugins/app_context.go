package cliplugins

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"deskd/internal/config"
	"deskd/internal/storage"
	"deskd/internal/storage/bolt"
	"deskd/internal/storage/sqlite"
	"deskd/internal/watcher"
)

// AppContext хранит зависимости, которые используются в командах CLI.
// Config and logger are loaded on first use so that commands like
// completion work without a config file.
type AppContext struct {
	// ConfigPath is bound to the --config flag.
	ConfigPath string
	NewLogger  func(env string) *slog.Logger

	once sync.Once
	cfg  *config.Config
	log  *slog.Logger
	err  error
}

func NewAppContext(newLogger func(env string) *slog.Logger) *AppContext {
	return &AppContext{NewLogger: newLogger}
}

// Load returns the config and a logger built for its env.
func (a *AppContext) Load() (*config.Config, *slog.Logger, error) {
	a.once.Do(func() {
		a.cfg, a.err = config.Load(config.Path(a.ConfigPath))
		if a.err != nil {
			return
		}
		a.log = a.NewLogger(a.cfg.Env)
	})
	return a.cfg, a.log, a.err
}

// OpenStore opens the configured workspace state backend.
func OpenStore(ctx context.Context, cfg config.Storage, log *slog.Logger) (storage.KV, error) {
	switch cfg.Driver {
	case "", storage.DriverBolt:
		return bolt.New(bolt.Config{Path: cfg.Path})
	case storage.DriverSQLite:
		return sqlite.Open(ctx, sqlite.Config{DBPath: cfg.Path}, log)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// WatcherConfig maps the watch section onto a notifier config.
func WatcherConfig(cfg config.Watch, log *slog.Logger) watcher.Config {
	return watcher.Config{
		RootPath:           cfg.Root,
		IgnorePatterns:     cfg.Ignore,
		Persistent:         cfg.Persistent,
		IgnoreInitial:      watcher.Bool(cfg.IgnoreInitial),
		UsePolling:         cfg.UsePolling,
		PollingInterval:    cfg.PollingInterval,
		StabilityThreshold: cfg.StabilityThreshold,
		PollInterval:       cfg.PollInterval,
		Logger:             log,
	}
}
