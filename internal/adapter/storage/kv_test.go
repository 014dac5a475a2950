package storage

import (
	"context"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/beauty-shop/internal/port"
)

func exerciseKeyValueStore(t *testing.T, kv port.KeyValueStore) {
	t.Helper()
	ctx := context.Background()

	_, found, err := kv.Get(ctx, "cache:products")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, kv.Set(ctx, "cache:products", "one"))
	require.NoError(t, kv.Set(ctx, "cache:products", "two"))
	require.NoError(t, kv.Set(ctx, "cache:orders", "o"))
	require.NoError(t, kv.Set(ctx, "cart:abc", "c"))

	v, found, err := kv.Get(ctx, "cache:products")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "two", v)

	keys, err := kv.Keys(ctx, "cache:")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"cache:orders", "cache:products"}, keys)

	require.NoError(t, kv.Remove(ctx, "cache:products"))
	require.NoError(t, kv.Remove(ctx, "cache:never-set"))
	_, found, _ = kv.Get(ctx, "cache:products")
	assert.False(t, found)

	v, found, _ = kv.Get(ctx, "cart:abc")
	assert.True(t, found)
	assert.Equal(t, "c", v)
}

func TestMemoryKV(t *testing.T) {
	exerciseKeyValueStore(t, NewMemoryKV())
}

func TestSQLiteKV(t *testing.T) {
	kv, err := NewSQLiteKV(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer kv.Close()

	exerciseKeyValueStore(t, kv)
}

func TestSQLiteKV_PrefixIsLiteral(t *testing.T) {
	kv, err := NewSQLiteKV(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer kv.Close()

	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, "a%b", "1"))
	require.NoError(t, kv.Set(ctx, "axb", "2"))

	keys, err := kv.Keys(ctx, "a%")
	require.NoError(t, err)
	assert.Equal(t, []string{"a%b"}, keys)
}

func TestSQLiteKV_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	kv, err := NewSQLiteKV(path)
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, "cache:brands", "[]"))
	require.NoError(t, kv.Close())

	kv, err = NewSQLiteKV(path)
	require.NoError(t, err)
	defer kv.Close()

	v, found, err := kv.Get(ctx, "cache:brands")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "[]", v)
}
