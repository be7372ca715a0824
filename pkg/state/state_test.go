package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	st := New(42)

	assert.Equal(t, 42, st.EntityID)
	assert.Equal(t, PipelineIdle, st.PipelineStatus)
	assert.Zero(t, st.RetryCount)
	assert.False(t, st.HasError())
	assert.Empty(t, st.CurrentStage)
	assert.Empty(t, st.LastSuccessInputHash)
}

func TestEntity_ErrorLifecycle(t *testing.T) {
	st := New(1)

	st.SetError("WF_B: connection refused")
	assert.True(t, st.HasError())
	require.NotNil(t, st.LastError)
	assert.Equal(t, "WF_B: connection refused", *st.LastError)

	st.ClearError()
	assert.False(t, st.HasError())
	assert.Nil(t, st.LastError)
}

func TestEntity_TouchIsUTCRFC3339(t *testing.T) {
	st := New(1)
	st.Touch(time.Date(2026, 8, 26, 15, 4, 5, 0, time.FixedZone("JST", 9*3600)))
	assert.Equal(t, "2026-08-26T06:04:05Z", st.LastRunAt)
}

func TestEntity_JSONShape(t *testing.T) {
	st := New(7)
	st.CurrentStage = "WF_C"
	st.SetError("boom")
	st.RetryCount = 1
	st.PipelineStatus = PipelineError

	encoded, err := json.Marshal(st)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(encoded, &doc))
	assert.Equal(t, float64(7), doc["entity_id"])
	assert.Equal(t, "WF_C", doc["current_stage"])
	assert.Equal(t, "boom", doc["last_error"])
	assert.Equal(t, float64(1), doc["retry_count"])
	assert.Equal(t, "error", doc["pipeline_status"])
	assert.NotContains(t, doc, "last_success_stage", "empty optional fields are omitted")

	var back Entity
	require.NoError(t, json.Unmarshal(encoded, &back))
	assert.Equal(t, st, back)
}

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint("Acme Corp", "2026-08-01T00:00:00Z")
	b := Fingerprint("Acme Corp", "2026-08-01T00:00:00Z")
	assert.Equal(t, a, b, "same inputs must produce the same digest")
	assert.Len(t, a, 64, "hex-encoded sha256")
}

func TestFingerprint_SensitiveToEachInput(t *testing.T) {
	base := Fingerprint("Acme Corp", "2026-08-01T00:00:00Z")
	assert.NotEqual(t, base, Fingerprint("Acme Corp Ltd", "2026-08-01T00:00:00Z"))
	assert.NotEqual(t, base, Fingerprint("Acme Corp", "2026-08-02T00:00:00Z"))
	assert.NotEqual(t, Fingerprint("ab", "c"), Fingerprint("a", "bc"),
		"field boundaries must be part of the digest")
}

// The canonical documents below are the exact bytes earlier releases
// hashed; changing them would re-run every migrated product type.
func TestFingerprint_MatchesCanonicalDocument(t *testing.T) {
	doc := `{"name": "Acme Corp", "updated": "2026-08-01T00:00:00Z"}`
	sum := sha256.Sum256([]byte(doc))
	assert.Equal(t, hex.EncodeToString(sum[:]), Fingerprint("Acme Corp", "2026-08-01T00:00:00Z"))
}

func TestFingerprint_EscapesNonASCII(t *testing.T) {
	doc := `{"name": "T\u014dky\u014d \ud83d\ude00", "updated": ""}`
	sum := sha256.Sum256([]byte(doc))
	assert.Equal(t, hex.EncodeToString(sum[:]), Fingerprint("Tōkyō 😀", ""),
		"runes outside ASCII are written as lowercase escapes, astral ones as surrogate pairs")
}

func TestFingerprint_KeepsHTMLCharactersLiteral(t *testing.T) {
	doc := `{"name": "R&D <internal>", "updated": ""}`
	sum := sha256.Sum256([]byte(doc))
	assert.Equal(t, hex.EncodeToString(sum[:]), Fingerprint("R&D <internal>", ""))
}
