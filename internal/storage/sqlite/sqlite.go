// Package sqlite keeps storage.KV values in a single SQLite table. The
// schema ships with the binary and is migrated on open.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"deskd/internal/storage"
	"deskd/pkg/migrator"

	// registers the "sqlite" database/sql driver
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrations returns the embedded schema migrations.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

type Config struct {
	DBPath            string
	ConnectionTimeout time.Duration
	Serializer        storage.Serializer
}

type Store struct {
	db         *sql.DB
	logger     *slog.Logger
	serializer storage.Serializer
	mu         sync.Mutex // SQLite supports only one writer at a time
}

// Open opens the database and brings its schema up to date.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Serializer == nil {
		cfg.Serializer = storage.JSONSerializer{}
	}
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = 5 * time.Second
	}
	logger = logger.With(slog.String("component", "sqlite_store"))

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectionTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	m := migrator.NewMigrator(db, migrator.Config{FS: Migrations()}, logger)
	if _, err := m.Up(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:         db,
		logger:     logger,
		serializer: cfg.Serializer,
	}, nil
}

// DB exposes the connection for tools such as the migrate command.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	if s.db == nil {
		return storage.ErrNilDB
	}
	s.logger.Debug("Closing store")
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key string, v any) error {
	if key == "" {
		return storage.ErrEmptyKey
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := s.serializer.Deserialize(data, v); err != nil {
		return fmt.Errorf("%w: %s: %w", storage.ErrDecode, key, err)
	}
	return nil
}

func (s *Store) Put(ctx context.Context, key string, v any) error {
	if key == "" {
		return storage.ErrEmptyKey
	}

	data, err := s.serializer.Serialize(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, data, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
