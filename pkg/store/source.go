package store

import (
	"context"

	"github.com/autojp/autojp/pkg/state"
)

// FingerprintFunc computes the current input fingerprint for an entity.
type FingerprintFunc func(ctx context.Context, entityID int) (string, error)

// DojoSource loads state and fingerprint from a single product-type
// fetch: the name and updated marker feed the fingerprint, the
// description carries the state block.
type DojoSource struct {
	store *DojoStore
}

// NewDojoSource builds a DojoSource on top of a DefectDojo client.
func NewDojoSource(api ProductTypeAPI) *DojoSource {
	return &DojoSource{store: NewDojoStore(api)}
}

// Load returns the persisted state and the freshly computed fingerprint.
func (s *DojoSource) Load(ctx context.Context, entityID int) (state.Entity, string, error) {
	st, pt, err := s.store.ReadWithSource(ctx, entityID)
	if err != nil {
		return state.Entity{}, "", err
	}
	return st, state.Fingerprint(pt.Name, pt.UpdatedMarker()), nil
}

// Save persists the state back into the description field.
func (s *DojoSource) Save(ctx context.Context, entityID int, st state.Entity) error {
	return s.store.Write(ctx, entityID, st)
}

// StoreSource pairs any Store with an external fingerprint function, for
// backends that do not themselves carry the entity's inputs (file,
// memory).
type StoreSource struct {
	Store       Store
	Fingerprint FingerprintFunc
}

// Load implements the pipeline source contract.
func (s StoreSource) Load(ctx context.Context, entityID int) (state.Entity, string, error) {
	st, err := s.Store.Read(ctx, entityID)
	if err != nil {
		return state.Entity{}, "", err
	}
	hash, err := s.Fingerprint(ctx, entityID)
	if err != nil {
		return state.Entity{}, "", err
	}
	return st, hash, nil
}

// Save implements the pipeline source contract.
func (s StoreSource) Save(ctx context.Context, entityID int, st state.Entity) error {
	return s.Store.Write(ctx, entityID, st)
}
