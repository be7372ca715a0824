package store

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autojp/autojp/pkg/dojo"
	"github.com/autojp/autojp/pkg/retry"
	"github.com/autojp/autojp/pkg/state"
)

// fakeProductTypeAPI scripts DefectDojo responses per entity id.
type fakeProductTypeAPI struct {
	types    map[int]dojo.ProductType
	getErr   error
	patchErr error

	patched map[int]string
}

func newFakeProductTypeAPI() *fakeProductTypeAPI {
	return &fakeProductTypeAPI{
		types:   make(map[int]dojo.ProductType),
		patched: make(map[int]string),
	}
}

func (f *fakeProductTypeAPI) ProductType(_ context.Context, id int) (dojo.ProductType, error) {
	if f.getErr != nil {
		return dojo.ProductType{}, f.getErr
	}
	pt, ok := f.types[id]
	if !ok {
		return dojo.ProductType{}, &dojo.APIError{StatusCode: http.StatusNotFound, Endpoint: "/product_types/"}
	}
	return pt, nil
}

func (f *fakeProductTypeAPI) PatchDescription(_ context.Context, id int, description string) error {
	if f.patchErr != nil {
		return f.patchErr
	}
	pt := f.types[id]
	pt.Description = description
	f.types[id] = pt
	f.patched[id] = description
	return nil
}

func TestDojoStore_ReadExtractsEmbeddedState(t *testing.T) {
	api := newFakeProductTypeAPI()
	embedded, err := Embed("Acme product line", state.Entity{
		EntityID:       7,
		CurrentStage:   "WF_B",
		PipelineStatus: state.PipelineRunning,
	})
	require.NoError(t, err)
	api.types[7] = dojo.ProductType{ID: 7, Name: "Acme", Description: embedded}

	st, err := NewDojoStore(api).Read(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "WF_B", st.CurrentStage)
	assert.Equal(t, state.PipelineRunning, st.PipelineStatus)
}

func TestDojoStore_ReadUnknownEntity(t *testing.T) {
	s := NewDojoStore(newFakeProductTypeAPI())
	_, err := s.Read(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDojoStore_WritePreservesOperatorText(t *testing.T) {
	api := newFakeProductTypeAPI()
	api.types[7] = dojo.ProductType{ID: 7, Name: "Acme", Description: "Owned by appsec.\nContact: sec@example.com"}
	s := NewDojoStore(api)
	ctx := context.Background()

	st := state.New(7)
	st.PipelineStatus = state.PipelineSuccess
	st.LastSuccessStage = "WF_D"
	require.NoError(t, s.Write(ctx, 7, st))

	patched := api.patched[7]
	assert.Contains(t, patched, "Owned by appsec.")
	assert.Contains(t, patched, "Contact: sec@example.com")

	back, err := s.Read(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, st, back)
}

func TestDojoStore_WriteFailureWrapsCause(t *testing.T) {
	api := newFakeProductTypeAPI()
	api.types[7] = dojo.ProductType{ID: 7}
	api.patchErr = &dojo.APIError{StatusCode: http.StatusBadGateway, Endpoint: "/product_types/7/"}

	err := NewDojoStore(api).Write(context.Background(), 7, state.New(7))
	require.Error(t, err)

	var storeErr *retry.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, 7, storeErr.EntityID)
	assert.ErrorIs(t, err, retry.ErrStore)

	var apiErr *dojo.APIError
	assert.ErrorAs(t, err, &apiErr, "the transport cause stays reachable for classification")
}

func TestDojoSource_LoadComputesFingerprintFromSameFetch(t *testing.T) {
	api := newFakeProductTypeAPI()
	api.types[7] = dojo.ProductType{ID: 7, Name: "Acme", Updated: "2026-08-01T00:00:00Z"}
	source := NewDojoSource(api)

	_, hash, err := source.Load(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, state.Fingerprint("Acme", "2026-08-01T00:00:00Z"), hash)

	api.types[7] = dojo.ProductType{ID: 7, Name: "Acme", UpdatedAt: "2026-08-02T00:00:00Z"}
	_, hash2, err := source.Load(context.Background(), 7)
	require.NoError(t, err)
	assert.NotEqual(t, hash, hash2, "updated_at feeds the fingerprint when updated is absent")
}

func TestStoreSource_LoadPairsStateWithFingerprint(t *testing.T) {
	mem := NewMemStore()
	seeded := state.New(5)
	seeded.PipelineStatus = state.PipelineSuccess
	mem.Seed(seeded)

	source := StoreSource{
		Store: mem,
		Fingerprint: func(_ context.Context, entityID int) (string, error) {
			return state.Fingerprint("pt", "v1"), nil
		},
	}

	st, hash, err := source.Load(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, seeded, st)
	assert.Equal(t, state.Fingerprint("pt", "v1"), hash)
}

func TestNew_BackendSelection(t *testing.T) {
	s, err := New(Config{Backend: BackendDojo, API: newFakeProductTypeAPI()})
	require.NoError(t, err)
	assert.IsType(t, &DojoStore{}, s)

	s, err = New(Config{Backend: BackendFile, Path: t.TempDir() + "/state.json"})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	_, err = New(Config{Backend: BackendDojo})
	assert.Error(t, err, "dojo backend needs a client")

	_, err = New(Config{Backend: BackendFile})
	assert.Error(t, err, "file backend needs a path")

	_, err = New(Config{Backend: "redis"})
	assert.True(t, errors.Is(err, ErrUnsupportedBackend))
}
