package duckdialect_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oorabona/duckdialect"
)

func TestQueryError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := duckdialect.NewQueryError("SELECT 1", nil, errors.New("boom"))
		assert.Equal(t, "duckdialect: SELECT 1: boom", err.Error())
	})

	t.Run("ErrorCompactsQuery", func(t *testing.T) {
		err := duckdialect.NewQueryError("SELECT\n\tid,\n\tname\nFROM   users", nil, errors.New("boom"))
		assert.Equal(t, "duckdialect: SELECT id, name FROM users: boom", err.Error())
	})

	t.Run("ErrorTruncatesQuery", func(t *testing.T) {
		long := ""
		for i := 0; i < 20; i++ {
			long += "SELECT * FROM t;"
		}
		err := duckdialect.NewQueryError(long, nil, errors.New("boom"))
		assert.Contains(t, err.Error(), "...")
		assert.Less(t, len(err.Error()), 120)
	})

	t.Run("Unwrap", func(t *testing.T) {
		cause := errors.New("constraint violated")
		err := duckdialect.NewQueryError("INSERT INTO t VALUES (?)", []any{1}, cause)
		assert.True(t, errors.Is(err, cause))
	})

	t.Run("IsQueryError", func(t *testing.T) {
		err := duckdialect.NewQueryError("SELECT 1", nil, errors.New("boom"))
		assert.True(t, duckdialect.IsQueryError(err))

		// Wrapped error
		wrapped := fmt.Errorf("wrapper: %w", err)
		assert.True(t, duckdialect.IsQueryError(wrapped))

		// Non-matching error
		assert.False(t, duckdialect.IsQueryError(errors.New("other error")))
		assert.False(t, duckdialect.IsQueryError(nil))
	})
}

func TestRollbackError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := &duckdialect.RollbackError{Err: errors.New("connection lost")}
		assert.Equal(t, "duckdialect: rollback failed: connection lost", err.Error())
	})

	t.Run("Unwrap", func(t *testing.T) {
		cause := errors.New("connection lost")
		err := &duckdialect.RollbackError{Err: cause}
		assert.True(t, errors.Is(err, cause))
	})

	t.Run("IsRollbackError", func(t *testing.T) {
		err := &duckdialect.RollbackError{Err: errors.New("connection lost")}
		assert.True(t, duckdialect.IsRollbackError(err))
		assert.True(t, duckdialect.IsRollbackError(fmt.Errorf("tx: %w", err)))
		assert.False(t, duckdialect.IsRollbackError(errors.New("other")))
		assert.False(t, duckdialect.IsRollbackError(nil))
	})
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		c := duckdialect.NewMemoryCache()
		v, err := c.Get(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("SetGet", func(t *testing.T) {
		c := duckdialect.NewMemoryCache()
		require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
		v, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), v)
	})

	t.Run("Expiry", func(t *testing.T) {
		c := duckdialect.NewMemoryCache()
		require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Nanosecond))
		time.Sleep(5 * time.Millisecond)
		v, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("Delete", func(t *testing.T) {
		c := duckdialect.NewMemoryCache()
		require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
		require.NoError(t, c.Delete(ctx, "k"))
		v, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("DeletePrefix", func(t *testing.T) {
		c := duckdialect.NewMemoryCache()
		require.NoError(t, c.Set(ctx, "tables/users", []byte("a"), 0))
		require.NoError(t, c.Set(ctx, "tables/posts", []byte("b"), 0))
		require.NoError(t, c.Set(ctx, "indexes/users", []byte("c"), 0))
		require.NoError(t, c.DeletePrefix(ctx, "tables/"))

		v, _ := c.Get(ctx, "tables/users")
		assert.Nil(t, v)
		v, _ = c.Get(ctx, "tables/posts")
		assert.Nil(t, v)
		v, _ = c.Get(ctx, "indexes/users")
		assert.Equal(t, []byte("c"), v)
	})

	t.Run("Clear", func(t *testing.T) {
		c := duckdialect.NewMemoryCache()
		require.NoError(t, c.Set(ctx, "k1", []byte("a"), 0))
		require.NoError(t, c.Set(ctx, "k2", []byte("b"), 0))
		require.NoError(t, c.Clear(ctx))
		v, _ := c.Get(ctx, "k1")
		assert.Nil(t, v)
	})
}
