package repository

import (
	"context"
	"sync"
)

// MemoryStore keeps state for the lifetime of the process only.
type MemoryStore struct {
	values sync.Map
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (r *MemoryStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	val, ok := r.values.Load(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), val.([]byte)...), true, nil
}

func (r *MemoryStore) Save(ctx context.Context, key string, value []byte) error {
	r.values.Store(key, append([]byte(nil), value...))
	return nil
}

func (r *MemoryStore) Clear(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		r.values.Delete(key)
	}
	return nil
}
