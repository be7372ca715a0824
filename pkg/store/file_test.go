package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autojp/autojp/pkg/retry"
	"github.com/autojp/autojp/pkg/state"
)

func TestFileStore_ReadMissingFileIsIdle(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "state.json"))

	st, err := s.Read(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, state.New(7), st)
}

func TestFileStore_WriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := NewFileStore(path)
	ctx := context.Background()

	st := state.New(7)
	st.CurrentStage = "WF_C"
	st.PipelineStatus = state.PipelineRunning
	st.InputHash = "deadbeef"
	require.NoError(t, s.Write(ctx, 7, st))

	other := state.New(8)
	other.PipelineStatus = state.PipelineFailed
	other.SetError("WF_A: 401 unauthorized")
	require.NoError(t, s.Write(ctx, 8, other))

	// A fresh instance must see both records.
	reopened := NewFileStore(path)
	got, err := reopened.Read(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, st, got)

	got, err = reopened.Read(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, other, got)

	got, err = reopened.Read(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, state.New(9), got, "unknown entity reads as idle")
}

func TestFileStore_WriteCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "state.json")
	s := NewFileStore(path)

	require.NoError(t, s.Write(context.Background(), 1, state.New(1)))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestFileStore_CorruptFileSurfacesError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{{{"), 0o644))

	s := NewFileStore(path)
	_, err := s.Read(context.Background(), 1)
	assert.Error(t, err, "a torn document is an error, not silent data loss")
}

func TestMemStore_InjectedWriteFailure(t *testing.T) {
	s := NewMemStore()
	s.WriteFailures = 1
	ctx := context.Background()

	err := s.Write(ctx, 7, state.New(7))
	require.Error(t, err)
	var storeErr *retry.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, 7, storeErr.EntityID)
	assert.ErrorIs(t, err, retry.ErrStore)

	require.NoError(t, s.Write(ctx, 7, state.New(7)), "only the injected write fails")
	assert.Equal(t, 1, s.Writes)
}
