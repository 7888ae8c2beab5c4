package storage

import (
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
)

var logger = log.New("pkg", "storage")

// SetLogger replaces the package logger.
func SetLogger(l log.Logger) {
	logger = l
}

type entry struct {
	value   []byte
	deleted bool
}

type level map[string]entry

// State is a journaled view over a Store, acting as a map with snapshot-revert
// manner. Writes are only allowed inside Exec. They are kept in memory levels and
// reach the store in a single batch when the outermost Exec returns without error.
//
// An empty value is the same as a deleted key.
// State is not safe for concurrent use.
type State struct {
	store  Store
	levels []level
}

// NewState creates a State on top of store.
func NewState(store Store) *State {
	return &State{store: store}
}

// Store returns the backing store.
func (s *State) Store() Store {
	return s.store
}

// Depth returns the number of nested Exec calls in flight.
func (s *State) Depth() int {
	return len(s.levels)
}

// Get returns the value for key, seen through all pending levels.
// A missing key yields a nil value and no error.
func (s *State) Get(key []byte) ([]byte, error) {
	k := string(key)
	for i := len(s.levels) - 1; i >= 0; i-- {
		if e, ok := s.levels[i][k]; ok {
			if e.deleted {
				return nil, nil
			}
			return e.value, nil
		}
	}
	v, err := s.store.Get(key)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read store")
	}
	return v, nil
}

// Has reports whether key holds a non-empty value.
func (s *State) Has(key []byte) (bool, error) {
	v, err := s.Get(key)
	if err != nil {
		return false, err
	}
	return len(v) > 0, nil
}

// Put sets key to value in the innermost level.
// It panics when called outside Exec.
func (s *State) Put(key, value []byte) {
	if len(value) == 0 {
		s.Delete(key)
		return
	}
	s.top()[string(key)] = entry{value: append([]byte(nil), value...)}
}

// Delete removes key in the innermost level.
// It panics when called outside Exec.
func (s *State) Delete(key []byte) {
	s.top()[string(key)] = entry{deleted: true}
}

// Exec runs fn inside a new level. If fn returns an error or panics, every write
// made since the level was opened is dropped. Otherwise the level is folded into
// its parent, or committed to the store when it is the outermost one.
func (s *State) Exec(fn func() error) error {
	depth := s.push()
	defer func() {
		if r := recover(); r != nil {
			s.revertTo(depth)
			panic(r)
		}
	}()

	if err := fn(); err != nil {
		s.revertTo(depth)
		return err
	}
	if depth > 0 {
		s.merge()
		return nil
	}
	return s.commit()
}

func (s *State) top() level {
	if len(s.levels) == 0 {
		panic("storage: write outside of Exec")
	}
	return s.levels[len(s.levels)-1]
}

func (s *State) push() int {
	s.levels = append(s.levels, make(level))
	return len(s.levels) - 1
}

func (s *State) revertTo(depth int) {
	s.levels = s.levels[:depth]
}

// merge folds the top level into the one below it.
func (s *State) merge() {
	n := len(s.levels)
	top, parent := s.levels[n-1], s.levels[n-2]
	for k, e := range top {
		parent[k] = e
	}
	s.levels = s.levels[:n-1]
}

func (s *State) commit() error {
	lvl := s.levels[0]
	s.levels = nil
	if len(lvl) == 0 {
		return nil
	}

	batch := s.store.NewBatch()
	for k, e := range lvl {
		if e.deleted {
			batch.Delete([]byte(k))
		} else {
			batch.Put([]byte(k), e.value)
		}
	}
	if err := batch.Write(); err != nil {
		logger.Error("failed to commit state", "writes", batch.Len(), "err", err)
		return errors.Wrap(err, "commit state")
	}
	logger.Trace("committed state", "writes", batch.Len())
	return nil
}
