// Package storage is the key/value boundary used to persist prepared knowledge and other
// cached artefacts. Values are strings; JSON helpers encode structured values.
package storage

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
)

// Storage is a string key/value store.
type Storage interface {
	// GetItem returns the value for key and whether it was present.
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

// Kind names a storage backend.
type Kind string

const (
	KindMemory         Kind = "memory"
	KindBadger         Kind = "badger"
	KindLocalStorage   Kind = "localStorage"
	KindSessionStorage Kind = "sessionStorage"
)

// EnvironmentMismatchError is returned when a backend only exists in another runtime environment.
type EnvironmentMismatchError struct {
	Backend     Kind
	Environment string
}

func (e *EnvironmentMismatchError) Error() string {
	return fmt.Sprintf("storage backend %s is not available in a %s environment", e.Backend, e.Environment)
}

// New creates the storage backend of the given kind. Badger stores live under dir.
func New(kind Kind, dir string) (Storage, error) {
	switch kind {
	case KindMemory, "":
		return NewMemory(), nil
	case KindBadger:
		b, err := OpenBadger(BadgerConfig{Path: dir, SyncWrites: true})
		if err != nil {
			return nil, err
		}
		return b, nil
	case KindLocalStorage, KindSessionStorage:
		return nil, &EnvironmentMismatchError{Backend: kind, Environment: "server"}
	default:
		return nil, fmt.Errorf("unknown storage kind %q", kind)
	}
}

// GetJSON decodes the JSON value stored at key into a T.
func GetJSON[T any](ctx context.Context, s Storage, key string) (T, bool, error) {
	var v T
	raw, ok, err := s.GetItem(ctx, key)
	if err != nil || !ok {
		return v, ok, err
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return v, true, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return v, true, nil
}

// SetJSON stores v at key as JSON.
func SetJSON(ctx context.Context, s Storage, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.SetItem(ctx, key, string(data))
}
