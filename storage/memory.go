package storage

import (
	"context"

	"github.com/alphadose/haxmap"
)

// Memory keeps items in a concurrent hash map.
type Memory struct {
	items *haxmap.Map[string, string]
}

// NewMemory creates an empty in-memory storage.
func NewMemory() *Memory {
	return &Memory{items: haxmap.New[string, string]()}
}

func (m *Memory) GetItem(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	v, ok := m.items.Get(key)
	return v, ok, nil
}

func (m *Memory) SetItem(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.items.Set(key, value)
	return nil
}

func (m *Memory) RemoveItem(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.items.Del(key)
	return nil
}

// Len returns the number of stored items.
func (m *Memory) Len() int {
	return int(m.items.Len())
}
