package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofrs/flock"

	"github.com/autojp/autojp/pkg/retry"
	"github.com/autojp/autojp/pkg/state"
)

// FileStore persists entity state in a local JSON document, one record per
// entity id. Intended for local runs and tests where no DefectDojo
// instance is available. Cross-process exclusion uses a sidecar lock file;
// in-process callers are already serialized per entity by the
// orchestrator.
type FileStore struct {
	path string
	lock *flock.Flock
}

// NewFileStore creates a file-backed store at the given path. The parent
// directory is created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

type fileDocument struct {
	Entities map[string]state.Entity `json:"entities"`
}

// Read implements Store.
func (s *FileStore) Read(ctx context.Context, entityID int) (state.Entity, error) {
	if err := s.lock.Lock(); err != nil {
		return state.Entity{}, fmt.Errorf("lock state file: %w", err)
	}
	defer s.lock.Unlock()

	doc, err := s.load()
	if err != nil {
		return state.Entity{}, err
	}
	if st, ok := doc.Entities[strconv.Itoa(entityID)]; ok {
		return st, nil
	}
	return state.New(entityID), nil
}

// Write implements Store.
func (s *FileStore) Write(ctx context.Context, entityID int, st state.Entity) error {
	if err := s.lock.Lock(); err != nil {
		return &retry.StoreError{EntityID: entityID, Cause: err}
	}
	defer s.lock.Unlock()

	doc, err := s.load()
	if err != nil {
		return &retry.StoreError{EntityID: entityID, Cause: err}
	}
	doc.Entities[strconv.Itoa(entityID)] = st

	if err := s.save(doc); err != nil {
		return &retry.StoreError{EntityID: entityID, Cause: err}
	}
	return nil
}

func (s *FileStore) load() (fileDocument, error) {
	doc := fileDocument{Entities: make(map[string]state.Entity)}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return doc, fmt.Errorf("read state file: %w", err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("decode state file: %w", err)
	}
	if doc.Entities == nil {
		doc.Entities = make(map[string]state.Entity)
	}
	return doc, nil
}

func (s *FileStore) save(doc fileDocument) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state file: %w", err)
	}

	// Write-then-rename keeps readers from observing a torn document.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return os.Rename(tmp, s.path)
}
