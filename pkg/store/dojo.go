package store

import (
	"context"
	"errors"
	"net/http"

	"github.com/autojp/autojp/pkg/dojo"
	"github.com/autojp/autojp/pkg/retry"
	"github.com/autojp/autojp/pkg/state"
)

// ProductTypeAPI is the slice of the DefectDojo client the store needs.
type ProductTypeAPI interface {
	ProductType(ctx context.Context, id int) (dojo.ProductType, error)
	PatchDescription(ctx context.Context, id int, description string) error
}

// DojoStore persists entity state inside the DefectDojo product-type
// description field. Each Write re-fetches the description so the
// read-modify-write touches only the embedded block and preserves
// whatever operators have written around it.
type DojoStore struct {
	api ProductTypeAPI
}

// NewDojoStore wraps a DefectDojo client as a Store.
func NewDojoStore(api ProductTypeAPI) *DojoStore {
	return &DojoStore{api: api}
}

// Read implements Store.
func (s *DojoStore) Read(ctx context.Context, entityID int) (state.Entity, error) {
	pt, err := s.api.ProductType(ctx, entityID)
	if err != nil {
		var apiErr *dojo.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return state.Entity{}, ErrNotFound
		}
		return state.Entity{}, err
	}
	return Extract(pt.Description, entityID), nil
}

// ReadWithSource returns both the state and the product type it was read
// from, so callers can compute the input fingerprint without a second
// fetch.
func (s *DojoStore) ReadWithSource(ctx context.Context, entityID int) (state.Entity, dojo.ProductType, error) {
	pt, err := s.api.ProductType(ctx, entityID)
	if err != nil {
		return state.Entity{}, dojo.ProductType{}, err
	}
	return Extract(pt.Description, entityID), pt, nil
}

// Write implements Store.
func (s *DojoStore) Write(ctx context.Context, entityID int, st state.Entity) error {
	pt, err := s.api.ProductType(ctx, entityID)
	if err != nil {
		return &retry.StoreError{EntityID: entityID, Cause: err}
	}
	description, err := Embed(pt.Description, st)
	if err != nil {
		return &retry.StoreError{EntityID: entityID, Cause: err}
	}
	if err := s.api.PatchDescription(ctx, entityID, description); err != nil {
		return &retry.StoreError{EntityID: entityID, Cause: err}
	}
	return nil
}
