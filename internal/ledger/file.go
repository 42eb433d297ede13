package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps every record in a single JSON object file keyed by identity.
// Each mutation rewrites the file through a temp file and rename, so a crash
// mid-write leaves the previous contents intact. The mutex serializes all
// read-modify-write cycles within the process; the file must not be shared
// between processes.
type FileStore struct {
	mu   sync.Mutex
	path string

	// tmpDir holds temp files before the rename; it must be on the same
	// filesystem as path. Empty means the directory of path.
	tmpDir string
}

// NewFileStore returns a store backed by path. The file is created lazily.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	return &FileStore{path: path}, nil
}

// Get returns the record for id.
func (s *FileStore) Get(_ context.Context, id string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return UserRecord{}, err
	}
	rec, ok := records[id]
	if !ok {
		return UserRecord{}, ErrNotFound
	}
	return rec, nil
}

// Put upserts rec unconditionally.
func (s *FileStore) Put(_ context.Context, rec UserRecord) (UserRecord, error) {
	if rec.Identity == "" {
		return UserRecord{}, errEmptyIdentity
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return UserRecord{}, err
	}
	rec.Version = records[rec.Identity].Version + 1
	records[rec.Identity] = rec
	if err := s.save(records); err != nil {
		return UserRecord{}, err
	}
	return rec, nil
}

// CompareAndSwap writes rec if the stored version matches expectedVersion.
func (s *FileStore) CompareAndSwap(_ context.Context, rec UserRecord, expectedVersion int64) (UserRecord, error) {
	if rec.Identity == "" {
		return UserRecord{}, errEmptyIdentity
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return UserRecord{}, err
	}
	existing, ok := records[rec.Identity]
	if (!ok && expectedVersion != 0) || (ok && existing.Version != expectedVersion) {
		return UserRecord{}, ErrVersionConflict
	}

	rec.Version = expectedVersion + 1
	records[rec.Identity] = rec
	if err := s.save(records); err != nil {
		return UserRecord{}, err
	}
	return rec, nil
}

// Delete removes the record for id.
func (s *FileStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := records[id]; !ok {
		return ErrNotFound
	}
	delete(records, id)
	return s.save(records)
}

// Ping verifies the file is readable.
func (s *FileStore) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.load()
	return err
}

// load reads the whole file. A missing file is an empty store; a corrupt one is an error.
func (s *FileStore) load() (map[string]UserRecord, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]UserRecord), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store: %w", err)
	}

	records := make(map[string]UserRecord)
	if len(data) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode store %s: %w", s.path, err)
	}
	return records, nil
}

func (s *FileStore) save(records map[string]UserRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}

	dir := s.tmpDir
	if dir == "" {
		dir = filepath.Dir(s.path)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}
