package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *KVRepository {
	t.Helper()
	db, err := Connect(Config{Type: TypeSQLite, Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewKVRepository(db)
}

func TestKVRepositoryRoundTrip(t *testing.T) {
	repo := newTestRepository(t)

	_, ok, err := repo.Get("u1", "level")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Set("u1", "level", "3"))
	require.NoError(t, repo.Set("u1", "level", "4"))
	require.NoError(t, repo.Set("u2", "level", "9"))

	value, ok, err := repo.Get("u1", "level")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "4", value)

	require.NoError(t, repo.Remove("u1", "level"))
	require.NoError(t, repo.Remove("u1", "missing"))
	_, ok, err = repo.Get("u1", "level")
	require.NoError(t, err)
	assert.False(t, ok)

	value, _, err = repo.Get("u2", "level")
	require.NoError(t, err)
	assert.Equal(t, "9", value)
}

func TestKVRepositoryClearIsPerNamespace(t *testing.T) {
	repo := newTestRepository(t)

	require.NoError(t, repo.Set("u1", "a", "1"))
	require.NoError(t, repo.Set("u1", "b", "2"))
	require.NoError(t, repo.Set("u2", "a", "3"))

	entries, err := repo.List("u1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Key)

	require.NoError(t, repo.Clear("u1"))

	entries, err = repo.List("u1")
	require.NoError(t, err)
	assert.Empty(t, entries)

	namespaces, err := repo.Namespaces()
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, namespaces)
}

func TestConnectRejectsUnknownType(t *testing.T) {
	_, err := Connect(Config{Type: "oracle"})
	assert.Error(t, err)
}
