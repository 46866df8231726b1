// Package storage defines the key-value contract the workspace state is
// kept behind and the value encoding shared by its backends.
package storage

import (
	"context"
	"encoding/json"
	"errors"
)

const (
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
)

var (
	ErrNotFound = errors.New("key not found")
	ErrNilDB    = errors.New("database connection is nil")
	ErrEmptyKey = errors.New("key is empty")
	// ErrDecode marks a stored value the serializer could not read back.
	ErrDecode = errors.New("stored value cannot be decoded")
)

// KV stores one encoded value per key.
type KV interface {
	Get(ctx context.Context, key string, v any) error
	Put(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Serializer предоставляет интерфейс для сериализации/десериализации данных
type Serializer interface {
	Serialize(v any) ([]byte, error)
	Deserialize(data []byte, v any) error
}

// JSONSerializer keeps values readable with any JSON tool.
type JSONSerializer struct{}

func (JSONSerializer) Serialize(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONSerializer) Deserialize(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
