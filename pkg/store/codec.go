package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/autojp/autojp/pkg/state"
)

// StatePrefix marks the single line inside a product-type description that
// carries the embedded state document. Everything else in the description
// belongs to operators and must round-trip unchanged.
const StatePrefix = "autojp_state:"

// Extract pulls the embedded state block out of free-form description
// text. A missing or unparsable block yields the default idle state: a
// mangled block must not wedge the entity, the next successful write
// repairs it.
func Extract(description string, entityID int) state.Entity {
	for _, line := range strings.Split(description, "\n") {
		if !strings.HasPrefix(line, StatePrefix) {
			continue
		}
		payload := strings.TrimSpace(line[len(StatePrefix):])
		var st state.Entity
		if err := json.Unmarshal([]byte(payload), &st); err != nil {
			return state.New(entityID)
		}
		if st.PipelineStatus == "" {
			st.PipelineStatus = state.PipelineIdle
		}
		st.EntityID = entityID
		return st
	}
	return state.New(entityID)
}

// Embed writes the state block into the description, replacing any
// existing block and preserving all unrelated lines.
func Embed(description string, st state.Entity) (string, error) {
	payload, err := json.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("encode state block: %w", err)
	}

	var lines []string
	for _, line := range strings.Split(description, "\n") {
		if strings.HasPrefix(line, StatePrefix) {
			continue
		}
		lines = append(lines, line)
	}
	lines = append(lines, StatePrefix+string(payload))
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}
