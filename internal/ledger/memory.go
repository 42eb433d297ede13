package ledger

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu      sync.RWMutex
	records map[string]UserRecord
}

// NewMemoryStore creates a concurrency-safe in-memory store useful for unit tests.
func NewMemoryStore() Store {
	return &memoryStore{records: make(map[string]UserRecord)}
}

func (s *memoryStore) Get(_ context.Context, id string) (UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return UserRecord{}, ErrNotFound
	}
	return rec.clone(), nil
}

func (s *memoryStore) Put(_ context.Context, rec UserRecord) (UserRecord, error) {
	if rec.Identity == "" {
		return UserRecord{}, errEmptyIdentity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Version = s.records[rec.Identity].Version + 1
	s.records[rec.Identity] = rec.clone()
	return rec, nil
}

func (s *memoryStore) CompareAndSwap(_ context.Context, rec UserRecord, expectedVersion int64) (UserRecord, error) {
	if rec.Identity == "" {
		return UserRecord{}, errEmptyIdentity
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[rec.Identity]
	switch {
	case !ok && expectedVersion != 0:
		return UserRecord{}, ErrVersionConflict
	case ok && existing.Version != expectedVersion:
		return UserRecord{}, ErrVersionConflict
	}

	rec.Version = expectedVersion + 1
	s.records[rec.Identity] = rec.clone()
	return rec, nil
}

func (s *memoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *memoryStore) Ping(context.Context) error {
	return nil
}
