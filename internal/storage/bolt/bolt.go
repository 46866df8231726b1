package bolt

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"deskd/internal/storage"

	"go.etcd.io/bbolt"
)

const DefaultBucket = "workspace"

// Store is a storage.KV on a single bbolt bucket.
type Store struct {
	db         *bbolt.DB
	bucket     []byte
	mu         sync.RWMutex
	serializer storage.Serializer
}

type Config struct {
	Path       string
	Bucket     string
	FileMode   os.FileMode
	Options    *bbolt.Options
	Serializer storage.Serializer
}

func New(cfg Config) (*Store, error) {
	if cfg.Serializer == nil {
		cfg.Serializer = storage.JSONSerializer{}
	}
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBucket
	}
	if cfg.FileMode == 0 {
		cfg.FileMode = 0600
	}
	if cfg.Options == nil {
		// второй процесс не должен висеть на блокировке файла
		cfg.Options = &bbolt.Options{Timeout: time.Second}
	}

	db, err := bbolt.Open(cfg.Path, cfg.FileMode, cfg.Options)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(cfg.Bucket)); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &Store{
		db:         db,
		bucket:     []byte(cfg.Bucket),
		serializer: cfg.Serializer,
	}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return storage.ErrNilDB
	}
	return s.db.Close()
}

func (s *Store) Get(_ context.Context, key string, v any) error {
	if key == "" {
		return storage.ErrEmptyKey
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return storage.ErrNotFound
		}
		data := b.Get([]byte(key))
		if data == nil {
			return storage.ErrNotFound
		}
		// data is only valid inside the transaction
		if err := s.serializer.Deserialize(data, v); err != nil {
			return fmt.Errorf("%w: %s: %w", storage.ErrDecode, key, err)
		}
		return nil
	})
}

func (s *Store) Put(_ context.Context, key string, v any) error {
	if key == "" {
		return storage.ErrEmptyKey
	}

	data, err := s.serializer.Serialize(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(s.bucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}
