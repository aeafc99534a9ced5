package idempotency

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	store, err := Open(DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSaveAndLookup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, ok, err := store.Lookup(ctx, "fund1abc:key-1")
	require.NoError(t, err)
	require.False(t, ok)

	first := &Record{Key: "fund1abc:key-1", Method: "POST", Path: "/campaigns", BodyDigest: "aa", Status: 201, Response: `{"id":"0x01"}`}
	require.NoError(t, store.Save(ctx, first))

	second := &Record{Key: "fund1abc:key-1", Method: "POST", Path: "/campaigns", BodyDigest: "bb", Status: 409, Response: `{}`}
	require.NoError(t, store.Save(ctx, second))

	got, ok, err := store.Lookup(ctx, "fund1abc:key-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 201, got.Status)
	require.Equal(t, "aa", got.BodyDigest)
	require.Equal(t, `{"id":"0x01"}`, got.Response)
}

func TestPurge(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, store.Save(ctx, &Record{Key: "old", Status: 200, CreatedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, store.Save(ctx, &Record{Key: "new", Status: 200, CreatedAt: now}))

	removed, err := store.Purge(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	_, ok, err := store.Lookup(ctx, "old")
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = store.Lookup(ctx, "new")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn")
	require.ErrorContains(t, err, "unsupported driver")
	_, err = Open(DriverSQLite, " ")
	require.ErrorContains(t, err, "dsn required")
}
