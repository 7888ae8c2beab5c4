package storage

import (
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"
)

// Store is the key/value backend the journaled State commits into.
type Store interface {
	// Get returns ErrNotFound when the key is missing.
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	NewBatch() Batch
	Close() error
}

// Batch collects writes that are applied atomically by Write.
type Batch interface {
	Put(key, value []byte)
	Delete(key []byte)
	Len() int
	Write() error
}

// ErrNotFound is returned by Store.Get for missing keys.
var ErrNotFound = leveldb.ErrNotFound

// IsNotFound reports whether err means the key was missing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Options tunes a LevelDB. Sizes are in MiB; values below the minimum are raised to it.
type Options struct {
	// CacheSize is split between the block cache and the write buffer.
	CacheSize int
	// OpenFilesCacheCapacity bounds the number of table files kept open.
	OpenFilesCacheCapacity int
}

const (
	minCacheSize = 16
	minOpenFiles = 16
)

func (o Options) leveldb() *opt.Options {
	cache := max(o.CacheSize, minCacheSize)
	return &opt.Options{
		OpenFilesCacheCapacity: max(o.OpenFilesCacheCapacity, minOpenFiles),
		BlockCacheCapacity:     cache * 3 / 4 * opt.MiB,
		WriteBuffer:            cache / 4 * opt.MiB,
		Filter:                 filter.NewBloomFilter(10),
	}
}

var (
	writeOpt = opt.WriteOptions{Sync: true}
	readOpt  = opt.ReadOptions{}
)

// LevelDB is a Store backed by goleveldb. It owns the underlying storage and
// releases it, file lock included, on Close.
type LevelDB struct {
	db  *leveldb.DB
	stg lvlstorage.Storage
}

// OpenLevelDB opens the db at path, creating it when missing.
func OpenLevelDB(path string, opts Options) (*LevelDB, error) {
	stg, err := lvlstorage.OpenFile(path, false)
	if err != nil {
		return nil, errors.Wrap(err, "open level db storage")
	}
	return openLevelDB(stg, opts)
}

// NewMemLevelDB creates a db that lives in memory only.
func NewMemLevelDB() (*LevelDB, error) {
	return openLevelDB(lvlstorage.NewMemStorage(), Options{})
}

func openLevelDB(stg lvlstorage.Storage, opts Options) (*LevelDB, error) {
	db, err := leveldb.Open(stg, opts.leveldb())
	if err != nil {
		stg.Close()
		return nil, errors.Wrap(err, "open level db")
	}
	return &LevelDB{db: db, stg: stg}, nil
}

func (l *LevelDB) Get(key []byte) ([]byte, error) {
	return l.db.Get(key, &readOpt)
}

func (l *LevelDB) Has(key []byte) (bool, error) {
	return l.db.Has(key, &readOpt)
}

func (l *LevelDB) Put(key, value []byte) error {
	return l.db.Put(key, value, &writeOpt)
}

func (l *LevelDB) Delete(key []byte) error {
	return l.db.Delete(key, &writeOpt)
}

func (l *LevelDB) NewBatch() Batch {
	return &levelBatch{db: l.db, batch: new(leveldb.Batch)}
}

// Close closes the db, then the storage under it.
func (l *LevelDB) Close() error {
	if err := l.db.Close(); err != nil {
		l.stg.Close()
		return errors.Wrap(err, "close level db")
	}
	return errors.Wrap(l.stg.Close(), "close level db storage")
}

type levelBatch struct {
	db    *leveldb.DB
	batch *leveldb.Batch
}

func (b *levelBatch) Put(key, value []byte) { b.batch.Put(key, value) }

func (b *levelBatch) Delete(key []byte) { b.batch.Delete(key) }

func (b *levelBatch) Len() int { return b.batch.Len() }

func (b *levelBatch) Write() error {
	return b.db.Write(b.batch, &writeOpt)
}
