package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openBackends(t *testing.T) map[string]Database {
	t.Helper()
	dir := t.TempDir()
	level, err := Open(BackendLevelDB, filepath.Join(dir, "level"))
	require.NoError(t, err)
	bolt, err := Open(BackendBolt, filepath.Join(dir, "state.bolt"))
	require.NoError(t, err)
	mem, err := Open(BackendMemory, "")
	require.NoError(t, err)
	dbs := map[string]Database{BackendMemory: mem, BackendLevelDB: level, BackendBolt: bolt}
	t.Cleanup(func() {
		for _, db := range dbs {
			db.Close()
		}
	})
	return dbs
}

func TestBackendsRoundTrip(t *testing.T) {
	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := db.Get([]byte("missing"))
			require.True(t, errors.Is(err, ErrNotFound), "expected ErrNotFound, got %v", err)
			has, err := db.Has([]byte("missing"))
			require.NoError(t, err)
			require.False(t, has)

			require.NoError(t, db.Put([]byte("k"), []byte("v1")))
			value, err := db.Get([]byte("k"))
			require.NoError(t, err)
			require.Equal(t, []byte("v1"), value)

			batch := NewBatch()
			batch.Put([]byte("a"), []byte("1"))
			batch.Put([]byte("b"), []byte("2"))
			batch.Delete([]byte("k"))
			require.Equal(t, 3, batch.Len())
			require.NoError(t, db.Write(batch))

			for key, want := range map[string]string{"a": "1", "b": "2"} {
				got, err := db.Get([]byte(key))
				require.NoError(t, err)
				require.Equal(t, want, string(got))
			}
			has, err = db.Has([]byte("k"))
			require.NoError(t, err)
			require.False(t, has)
			require.NoError(t, db.Write(NewBatch()))
		})
	}
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	value := []byte("abc")
	require.NoError(t, db.Put([]byte("k"), value))
	value[0] = 'z'
	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, "abc", string(got))
	got[1] = 'z'
	again, _ := db.Get([]byte("k"))
	require.Equal(t, "abc", string(again))
	require.Equal(t, []string{"k"}, db.Keys())
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	_, err := Open("rocksdb", t.TempDir())
	require.Error(t, err)
}
