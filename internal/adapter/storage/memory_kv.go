package storage

import (
	"context"
	"strings"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryKV is a process-local key-value medium. Entries never expire at
// this layer.
type MemoryKV struct {
	items *gocache.Cache
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{items: gocache.New(gocache.NoExpiration, 0)}
}

func (m *MemoryKV) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok := m.items.Get(key)
	if !ok {
		return "", false, nil
	}
	s, _ := v.(string)
	return s, true, nil
}

func (m *MemoryKV) Set(ctx context.Context, key, value string) error {
	m.items.Set(key, value, gocache.NoExpiration)
	return nil
}

func (m *MemoryKV) Remove(ctx context.Context, key string) error {
	m.items.Delete(key)
	return nil
}

func (m *MemoryKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range m.items.Items() {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}
