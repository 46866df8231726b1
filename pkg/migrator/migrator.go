package migrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

var (
	ErrDirty        = errors.New("database schema is dirty")
	ErrNoSource     = errors.New("no migration source configured")
	ErrInvalidSteps = errors.New("steps must be positive")
)

// Config selects where migrations come from. FS wins over MigrationsPath,
// so binaries can carry their schema with them.
type Config struct {
	MigrationsPath string
	FS             fs.FS
}

// Status is the schema version after an operation. Applied is false when
// the database has never been migrated.
type Status struct {
	Version uint
	Dirty   bool
	Applied bool
}

func (s Status) String() string {
	if !s.Applied {
		return "no migrations applied"
	}
	if s.Dirty {
		return fmt.Sprintf("version %d (dirty)", s.Version)
	}
	return fmt.Sprintf("version %d", s.Version)
}

type Migrator struct {
	db     *sql.DB
	config Config
	log    *slog.Logger
}

func NewMigrator(db *sql.DB, config Config, logger *slog.Logger) *Migrator {
	return &Migrator{
		db:     db,
		config: config,
		log:    logger.With(slog.String("component", "migrator"), slog.String("source", config.name())),
	}
}

func (c Config) name() string {
	if c.FS != nil {
		return "embedded"
	}
	return c.MigrationsPath
}

// instance does not own the *sql.DB: calling Close on the result would close
// it, so instances are simply dropped.
func (m *Migrator) instance() (*migrate.Migrate, error) {
	driver, err := sqlite.WithInstance(m.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	switch {
	case m.config.FS != nil:
		src, err := iofs.New(m.config.FS, ".")
		if err != nil {
			return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
		}
		inst, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
		if err != nil {
			return nil, fmt.Errorf("failed to create migration instance: %w", err)
		}
		return inst, nil
	case m.config.MigrationsPath != "":
		inst, err := migrate.NewWithDatabaseInstance("file://"+m.config.MigrationsPath, "sqlite", driver)
		if err != nil {
			return nil, fmt.Errorf("failed to create migration instance: %w", err)
		}
		return inst, nil
	default:
		return nil, ErrNoSource
	}
}

// apply runs step against a fresh instance. Cancelling ctx asks migrate to
// stop after the migration in progress.
func (m *Migrator) apply(ctx context.Context, op string, step func(*migrate.Migrate) error) (Status, error) {
	inst, err := m.instance()
	if err != nil {
		return Status{}, err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			select {
			case inst.GracefulStop <- true:
			default:
			}
		case <-done:
		}
	}()

	m.log.Info("migrating", slog.String("op", op))
	if err := step(inst); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return Status{}, fmt.Errorf("migrate %s: %w", op, err)
	}
	if err := ctx.Err(); err != nil {
		return Status{}, fmt.Errorf("migrate %s: %w", op, err)
	}

	st, err := status(inst)
	if err != nil {
		return st, err
	}
	if st.Dirty {
		m.log.Warn("schema left dirty", slog.Uint64("version", uint64(st.Version)))
		return st, fmt.Errorf("%w at version %d", ErrDirty, st.Version)
	}
	m.log.Info("migrated", slog.String("op", op), slog.String("status", st.String()))
	return st, nil
}

// Up applies every pending migration.
func (m *Migrator) Up(ctx context.Context) (Status, error) {
	return m.apply(ctx, "up", (*migrate.Migrate).Up)
}

// Down reverts every applied migration.
func (m *Migrator) Down(ctx context.Context) (Status, error) {
	return m.apply(ctx, "down", (*migrate.Migrate).Down)
}

// Rollback reverts the last steps migrations.
func (m *Migrator) Rollback(ctx context.Context, steps int) (Status, error) {
	if steps <= 0 {
		return Status{}, ErrInvalidSteps
	}
	return m.apply(ctx, fmt.Sprintf("rollback %d", steps), func(inst *migrate.Migrate) error {
		return inst.Steps(-steps)
	})
}

// To moves the schema up or down to version.
func (m *Migrator) To(ctx context.Context, version uint) (Status, error) {
	return m.apply(ctx, fmt.Sprintf("to %d", version), func(inst *migrate.Migrate) error {
		return inst.Migrate(version)
	})
}

// Version reports the current schema version without changing anything.
func (m *Migrator) Version() (Status, error) {
	inst, err := m.instance()
	if err != nil {
		return Status{}, err
	}
	return status(inst)
}

func status(inst *migrate.Migrate) (Status, error) {
	version, dirty, err := inst.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("failed to get migration version: %w", err)
	}
	return Status{Version: version, Dirty: dirty, Applied: true}, nil
}
