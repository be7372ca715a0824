package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autojp/autojp/pkg/state"
)

func TestExtract_NoBlockYieldsIdle(t *testing.T) {
	st := Extract("Customer-facing product line.\nOwned by the appsec team.", 7)
	assert.Equal(t, state.New(7), st)
}

func TestExtract_MangledBlockYieldsIdle(t *testing.T) {
	st := Extract(StatePrefix+"{not json at all", 7)
	assert.Equal(t, state.New(7), st, "a corrupted block must not wedge the entity")
}

func TestExtract_BlockIDAlwaysWins(t *testing.T) {
	st := Extract(StatePrefix+`{"entity_id": 999, "pipeline_status": "success"}`, 7)
	assert.Equal(t, 7, st.EntityID, "the owning record's id overrides whatever the block claims")
	assert.Equal(t, state.PipelineSuccess, st.PipelineStatus)
}

func TestExtract_MissingStatusDefaultsToIdle(t *testing.T) {
	st := Extract(StatePrefix+`{"entity_id": 7, "retry_count": 1}`, 7)
	assert.Equal(t, state.PipelineIdle, st.PipelineStatus)
	assert.Equal(t, 1, st.RetryCount)
}

func TestEmbedExtract_RoundTripPreservesOperatorText(t *testing.T) {
	description := "Customer-facing product line.\n\nContact: appsec@example.com"

	st := state.New(7)
	st.CurrentStage = "WF_B"
	st.PipelineStatus = state.PipelineRunning
	st.InputHash = "abc123"

	embedded, err := Embed(description, st)
	require.NoError(t, err)

	assert.Contains(t, embedded, "Customer-facing product line.")
	assert.Contains(t, embedded, "Contact: appsec@example.com")
	assert.Equal(t, 1, strings.Count(embedded, StatePrefix), "exactly one state line")

	back := Extract(embedded, 7)
	assert.Equal(t, st, back)
}

func TestEmbed_ReplacesExistingBlock(t *testing.T) {
	first := state.New(7)
	first.PipelineStatus = state.PipelineRunning

	embedded, err := Embed("notes", first)
	require.NoError(t, err)

	second := first
	second.PipelineStatus = state.PipelineSuccess
	second.LastSuccessStage = "WF_D"

	embedded, err = Embed(embedded, second)
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(embedded, StatePrefix), "re-embedding must not stack blocks")
	assert.Equal(t, second, Extract(embedded, 7))
	assert.Contains(t, embedded, "notes")
}

func TestEmbed_EmptyDescription(t *testing.T) {
	embedded, err := Embed("", state.New(3))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(embedded, StatePrefix), "no stray blank lines before the block")
}
