package storage

import (
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
)

// LevelStore is a durable Store backed by LevelDB.
type LevelStore struct {
	mu     sync.RWMutex
	db     *leveldb.DB
	closed bool
}

var _ Store = (*LevelStore)(nil)

// OpenLevelStore opens (or creates) a LevelDB database at path.
func OpenLevelStore(path string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb at %s: %w", path, err)
	}
	return &LevelStore{db: db}, nil
}

func (s *LevelStore) Get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	v, err := s.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("leveldb get %q: %w", key, err)
	}
	return v, true, nil
}

func (s *LevelStore) Put(key string, value []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.db.Put([]byte(key), value, nil); err != nil {
		return fmt.Errorf("leveldb put %q: %w", key, err)
	}
	return nil
}

func (s *LevelStore) Delete(key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.db.Delete([]byte(key), nil); err != nil {
		return fmt.Errorf("leveldb delete %q: %w", key, err)
	}
	return nil
}

func (s *LevelStore) Has(key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, ErrClosed
	}
	ok, err := s.db.Has([]byte(key), nil)
	if err != nil {
		return false, fmt.Errorf("leveldb has %q: %w", key, err)
	}
	return ok, nil
}

// Clear removes every key in one batch.
func (s *LevelStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	batch := new(leveldb.Batch)
	iter := s.db.NewIterator(nil, nil)
	for iter.Next() {
		key := make([]byte, len(iter.Key()))
		copy(key, iter.Key())
		batch.Delete(key)
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return fmt.Errorf("leveldb clear iterate: %w", err)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("leveldb clear write: %w", err)
	}
	return nil
}

func (s *LevelStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close leveldb: %w", err)
	}
	return nil
}
