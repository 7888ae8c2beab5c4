package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

func TestLevelDBReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")

	db, err := OpenLevelDB(path, Options{})
	require.NoError(t, err)

	batch := db.NewBatch()
	batch.Put([]byte("k1"), []byte("v1"))
	batch.Put([]byte("k2"), []byte("v2"))
	batch.Delete([]byte("k2"))
	assert.Equal(t, 3, batch.Len())
	require.NoError(t, batch.Write())
	require.NoError(t, db.Close())

	db, err = OpenLevelDB(path, Options{})
	require.NoError(t, err)
	defer db.Close()

	v, err := db.Get([]byte("k1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), v)

	_, err = db.Get([]byte("k2"))
	assert.True(t, IsNotFound(err))

	has, err := db.Has([]byte("k1"))
	require.NoError(t, err)
	assert.True(t, has)
}

func TestLevelDBCloseReleasesLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")

	db, err := OpenLevelDB(path, Options{})
	require.NoError(t, err)

	// a second handle is refused while the first holds the lock
	_, err = OpenLevelDB(path, Options{})
	require.Error(t, err)

	require.NoError(t, db.Close())
	for i := 0; i < 3; i++ {
		db, err = OpenLevelDB(path, Options{})
		require.NoError(t, err)
		require.NoError(t, db.Put([]byte{byte(i)}, []byte{byte(i)}))
		require.NoError(t, db.Close())
	}

	db, err = OpenLevelDB(path, Options{})
	require.NoError(t, err)
	defer db.Close()
	for i := 0; i < 3; i++ {
		v, err := db.Get([]byte{byte(i)})
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(i)}, v)
	}
}

func TestOptionsMinimums(t *testing.T) {
	o := Options{}.leveldb()
	assert.Equal(t, minOpenFiles, o.OpenFilesCacheCapacity)
	assert.Equal(t, minCacheSize*3/4*opt.MiB, o.BlockCacheCapacity)
	assert.Equal(t, minCacheSize/4*opt.MiB, o.WriteBuffer)

	o = Options{CacheSize: 64, OpenFilesCacheCapacity: 100}.leveldb()
	assert.Equal(t, 100, o.OpenFilesCacheCapacity)
	assert.Equal(t, 48*opt.MiB, o.BlockCacheCapacity)
}

func TestCachedStore(t *testing.T) {
	db, err := NewMemLevelDB()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewCachedStore(db, 0)
	assert.Error(t, err)

	cs, err := NewCachedStore(db, 4)
	require.NoError(t, err)

	require.NoError(t, cs.Put([]byte("a"), []byte{1}))
	v, err := cs.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, v)

	// batch writes refresh cached entries
	batch := cs.NewBatch()
	batch.Put([]byte("a"), []byte{2})
	batch.Put([]byte("b"), []byte{3})
	require.NoError(t, batch.Write())

	v, err = cs.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte{2}, v)

	batch = cs.NewBatch()
	batch.Delete([]byte("b"))
	require.NoError(t, batch.Write())

	_, err = cs.Get([]byte("b"))
	assert.True(t, IsNotFound(err))

	require.NoError(t, cs.Delete([]byte("a")))
	has, err := cs.Has([]byte("a"))
	require.NoError(t, err)
	assert.False(t, has)
}
