package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStorage(t *testing.T, s Storage) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.GetItem(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetItem(ctx, "k", "v1"))
	v, ok, err := s.GetItem(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v1", v)

	require.NoError(t, s.SetItem(ctx, "k", "v2"))
	v, _, err = s.GetItem(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", v)

	require.NoError(t, s.RemoveItem(ctx, "k"))
	_, ok, err = s.GetItem(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.RemoveItem(ctx, "never-set"))
}

func TestStorage(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		testStorage(t, NewMemory())
	})

	t.Run("badger in memory", func(t *testing.T) {
		b, err := OpenBadger(BadgerConfig{InMemory: true})
		require.NoError(t, err)
		defer b.Close()
		testStorage(t, b)
	})

	t.Run("badger on disk", func(t *testing.T) {
		dir := t.TempDir()
		b, err := OpenBadger(BadgerConfig{Path: dir})
		require.NoError(t, err)
		require.NoError(t, b.SetItem(context.Background(), "persist", "yes"))
		require.NoError(t, b.Close())

		b, err = OpenBadger(BadgerConfig{Path: dir})
		require.NoError(t, err)
		defer b.Close()
		v, ok, err := b.GetItem(context.Background(), "persist")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "yes", v)
	})

	t.Run("prefixed", func(t *testing.T) {
		mem := NewMemory()
		p := WithPrefix(mem, "folio/")
		testStorage(t, p)

		require.NoError(t, p.SetItem(context.Background(), "a", "1"))
		v, ok, err := mem.GetItem(context.Background(), "folio/a")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "1", v)
	})
}

func TestNew(t *testing.T) {
	s, err := New(KindMemory, "")
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	for _, kind := range []Kind{KindLocalStorage, KindSessionStorage} {
		_, err := New(kind, "")
		var mismatch *EnvironmentMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, kind, mismatch.Backend)
	}

	_, err = New("s3", "")
	assert.Error(t, err)

	_, err = New(KindBadger, "")
	assert.Error(t, err)
}

func TestJSONHelpers(t *testing.T) {
	type item struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	ctx := context.Background()
	mem := NewMemory()

	require.NoError(t, SetJSON(ctx, mem, "item", item{Name: "a", Count: 2}))
	got, ok, err := GetJSON[item](ctx, mem, "item")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, item{Name: "a", Count: 2}, got)

	_, ok, err = GetJSON[item](ctx, mem, "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mem.SetItem(ctx, "broken", "{"))
	_, _, err = GetJSON[item](ctx, mem, "broken")
	assert.Error(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, mem.SetItem(cancelled, "x", "y"), context.Canceled)
}
