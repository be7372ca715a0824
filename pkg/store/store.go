// Package store persists per-entity pipeline state. The canonical backend
// embeds a JSON block in the DefectDojo product-type description; a
// file-backed store serves local runs and tests. Stores are pass-through
// serializers: all decision logic lives in the pipeline package.
package store

import (
	"context"
	"errors"
	"sync"

	"github.com/autojp/autojp/pkg/retry"
	"github.com/autojp/autojp/pkg/state"
)

// Common errors returned by store operations. Failed writes are wrapped
// in retry.StoreError: the evaluation outcome is undetermined and callers
// must re-evaluate the entity on the next run instead of assuming the
// state persisted.
var (
	// ErrNotFound is returned when the backing record for an entity does
	// not exist at all (not merely an absent state block).
	ErrNotFound = errors.New("entity not found")

	// ErrUnsupportedBackend is returned by New for unknown backend names.
	ErrUnsupportedBackend = errors.New("unsupported store backend")
)

// Store reads and writes per-entity pipeline state. Read returns the
// default idle state when no record exists yet; Write overwrites
// atomically with respect to other writers of the same entity.
type Store interface {
	Read(ctx context.Context, entityID int) (state.Entity, error)
	Write(ctx context.Context, entityID int, st state.Entity) error
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu      sync.Mutex
	records map[int]state.Entity

	// WriteFailures forces the next N writes to fail, for exercising
	// undetermined-outcome handling.
	WriteFailures int

	// Writes counts completed writes.
	Writes int
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[int]state.Entity)}
}

// Read implements Store.
func (s *MemStore) Read(_ context.Context, entityID int) (state.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.records[entityID]; ok {
		return st, nil
	}
	return state.New(entityID), nil
}

// Write implements Store.
func (s *MemStore) Write(_ context.Context, entityID int, st state.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteFailures > 0 {
		s.WriteFailures--
		return &retry.StoreError{EntityID: entityID, Cause: errors.New("injected write failure")}
	}
	s.records[entityID] = st
	s.Writes++
	return nil
}

// Seed preloads a record, bypassing Write accounting.
func (s *MemStore) Seed(st state.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[st.EntityID] = st
}
