// Package state defines the per-product-type pipeline state record, the
// only durable memory the orchestrator keeps between runs.
package state

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PipelineStatus tracks where an entity's pipeline run stands.
type PipelineStatus string

const (
	PipelineIdle            PipelineStatus = "idle"
	PipelineRunning         PipelineStatus = "running"
	PipelineSuccess         PipelineStatus = "success"
	PipelineSkippedNoChange PipelineStatus = "skipped_no_change"
	PipelineError           PipelineStatus = "error"
	PipelineFailed          PipelineStatus = "failed"
)

// Entity is the persisted pipeline state for one product type. It is
// created lazily on first evaluation, only ever overwritten (never
// deleted), and survives across orchestrator runs.
//
// current_stage always reflects the most recently attempted stage, not
// necessarily the most recently succeeded one. last_success_input_hash is
// updated only when the final stage completes successfully.
type Entity struct {
	EntityID             int            `json:"entity_id"`
	CurrentStage         string         `json:"current_stage,omitempty"`
	LastSuccessStage     string         `json:"last_success_stage,omitempty"`
	LastSuccessInputHash string         `json:"last_success_input_hash,omitempty"`
	InputHash            string         `json:"input_hash,omitempty"`
	LastError            *string        `json:"last_error"`
	RetryCount           int            `json:"retry_count"`
	PipelineStatus       PipelineStatus `json:"pipeline_status"`
	LastRunAt            string         `json:"last_run_at,omitempty"`
}

// New returns the default idle state for an entity that has never been
// evaluated.
func New(entityID int) Entity {
	return Entity{
		EntityID:       entityID,
		RetryCount:     0,
		PipelineStatus: PipelineIdle,
	}
}

// Touch records the evaluation time.
func (e *Entity) Touch(now time.Time) {
	e.LastRunAt = now.UTC().Format(time.RFC3339)
}

// SetError records the last error message.
func (e *Entity) SetError(msg string) {
	e.LastError = &msg
}

// ClearError drops any recorded error.
func (e *Entity) ClearError() {
	e.LastError = nil
}

// HasError reports whether a prior error is recorded.
func (e Entity) HasError() bool {
	return e.LastError != nil && *e.LastError != ""
}

// Fingerprint computes the deterministic digest of an entity's current
// inputs, used to detect "nothing changed since the last full success".
// The digest covers the canonical document {"name": ..., "updated": ...}
// byte-for-byte as earlier releases of this pipeline wrote it (a space
// after each separator, non-ASCII escaped), so hashes already persisted
// in state blocks keep matching and migrated entities are not re-run.
func Fingerprint(name, updated string) string {
	doc := fmt.Sprintf(`{"name": %s, "updated": %s}`, jsonString(name), jsonString(updated))
	sum := sha256.Sum256([]byte(doc))
	return hex.EncodeToString(sum[:])
}

// jsonString encodes s as a JSON string in the canonical digest form:
// HTML characters kept literal, every rune outside ASCII written as a
// lowercase \uXXXX escape (surrogate pairs beyond the BMP).
func jsonString(s string) string {
	var raw bytes.Buffer
	enc := json.NewEncoder(&raw)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	encoded := strings.TrimSuffix(raw.String(), "\n")

	var b strings.Builder
	for _, r := range encoded {
		switch {
		case r < 0x80:
			b.WriteRune(r)
		case r > 0xffff:
			r -= 0x10000
			fmt.Fprintf(&b, `\u%04x\u%04x`, 0xd800+(r>>10), 0xdc00+(r&0x3ff))
		default:
			fmt.Fprintf(&b, `\u%04x`, r)
		}
	}
	return b.String()
}
