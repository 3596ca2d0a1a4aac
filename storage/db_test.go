package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Database {
	t.Helper()
	dir := t.TempDir()
	level, err := Open(BackendLevelDB, filepath.Join(dir, "level"))
	require.NoError(t, err)
	bolt, err := Open(BackendBolt, filepath.Join(dir, "bolt", "ledger.db"))
	require.NoError(t, err)
	mem, err := Open(BackendMemory, "")
	require.NoError(t, err)
	dbs := map[string]Database{
		BackendLevelDB: level,
		BackendBolt:    bolt,
		BackendMemory:  mem,
	}
	t.Cleanup(func() {
		for _, db := range dbs {
			_ = db.Close()
		}
	})
	return dbs
}

func TestDatabaseGetPutDelete(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := db.Get([]byte("missing"))
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, db.Put([]byte("k"), []byte("v")))
			value, err := db.Get([]byte("k"))
			require.NoError(t, err)
			require.Equal(t, []byte("v"), value)

			ok, err := db.Has([]byte("k"))
			require.NoError(t, err)
			require.True(t, ok)

			require.NoError(t, db.Delete([]byte("k")))
			ok, err = db.Has([]byte("k"))
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestDatabaseBatchWrite(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, db.Put([]byte("stale"), []byte("x")))

			batch := NewBatch()
			batch.Put([]byte("a"), []byte("1"))
			batch.Put([]byte("b"), []byte("2"))
			batch.Delete([]byte("stale"))
			batch.Put([]byte("a"), []byte("3"))
			require.Equal(t, 4, batch.Len())
			require.NoError(t, db.Write(batch))

			value, err := db.Get([]byte("a"))
			require.NoError(t, err)
			require.Equal(t, []byte("3"), value)
			value, err = db.Get([]byte("b"))
			require.NoError(t, err)
			require.Equal(t, []byte("2"), value)
			_, err = db.Get([]byte("stale"))
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	_, err := Open("rocksdb", t.TempDir())
	require.Error(t, err)
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	value := []byte("abc")
	require.NoError(t, db.Put([]byte("k"), value))
	value[0] = 'z'
	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), got)
	require.Len(t, db.Keys(), 1)
}
