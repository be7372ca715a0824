package contract

import (
	"encoding/json"
	"time"

	"github.com/spf13/cast"
)

// Timestamps brackets a stage invocation. Both fields are set on every
// completed (or synthesized) result.
type Timestamps struct {
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
}

// Result is the normalized envelope every stage invocation returns. It is
// the only stage output trusted for decision-making; raw logs or partial
// executor payloads are never consulted.
type Result struct {
	OK            bool               `json:"ok"`
	Stage         string             `json:"stage"`
	ProductTypeID int                `json:"product_type_id"`
	ProductID     *int               `json:"product_id,omitempty"`
	Status        Status             `json:"status"`
	Metrics       map[string]float64 `json:"metrics"`
	Errors        []string           `json:"errors"`
	Warnings      []string           `json:"warnings"`
	Timestamps    Timestamps         `json:"timestamps"`
}

// Advances reports whether the stage outcome permits moving to the next
// stage: an explicit success, or a pass-through status with ok set.
func (r Result) Advances() bool {
	return r.OK && r.Status.Advances()
}

// ErrorText flattens the error list for persistence in last_error.
func (r Result) ErrorText() string {
	if len(r.Errors) == 0 {
		return r.Status.String()
	}
	text := r.Errors[0]
	for _, e := range r.Errors[1:] {
		text += "; " + e
	}
	return text
}

// SynthesizedResult builds a Result for failures that never produced an
// executor response (transport errors, deadline expiry).
func SynthesizedResult(stage string, ptID int, status Status, errMsg string) Result {
	now := time.Now().UTC().Format(time.RFC3339)
	res := Result{
		OK:            false,
		Stage:         stage,
		ProductTypeID: ptID,
		Status:        status,
		Metrics:       map[string]float64{},
		Errors:        []string{},
		Warnings:      []string{},
		Timestamps:    Timestamps{StartedAt: now, FinishedAt: now},
	}
	if errMsg != "" {
		res.Errors = append(res.Errors, errMsg)
	}
	return res
}

// Normalize converts a raw workflow-engine execution payload into a Result.
// The engine wraps stage output either directly, under "json", or under
// "data[0].json"; anything that does not carry the ok/status pair is
// replaced with a synthesized error result so malformed executor responses
// can never be mistaken for success.
func Normalize(raw map[string]any, fallbackStage string, ptID int) Result {
	candidate := unwrap(raw)
	if candidate == nil {
		return SynthesizedResult(fallbackStage, ptID, StatusError, "invalid_workflow_response")
	}

	rawStatus, hasStatus := candidate["status"]
	rawOK, hasOK := candidate["ok"]
	if !hasStatus || !hasOK {
		return SynthesizedResult(fallbackStage, ptID, StatusError, "invalid_workflow_response")
	}

	status, _ := ParseStatus(cast.ToString(rawStatus))
	res := Result{
		OK:            cast.ToBool(rawOK),
		Stage:         fallbackStage,
		ProductTypeID: ptID,
		Status:        status,
		Metrics:       map[string]float64{},
		Errors:        []string{},
		Warnings:      []string{},
	}

	if stage := cast.ToString(candidate["stage"]); stage != "" {
		res.Stage = stage
	}
	if id, err := cast.ToIntE(candidate["product_type_id"]); err == nil && id != 0 {
		res.ProductTypeID = id
	}
	if pid, err := cast.ToIntE(candidate["product_id"]); err == nil && pid != 0 {
		res.ProductID = &pid
	}

	if metrics, err := cast.ToStringMapE(candidate["metrics"]); err == nil {
		for key, value := range metrics {
			if n, err := cast.ToFloat64E(value); err == nil {
				res.Metrics[key] = n
			}
		}
	}

	res.Errors = toStringList(candidate["errors"])
	res.Warnings = toStringList(candidate["warnings"])

	now := time.Now().UTC().Format(time.RFC3339)
	res.Timestamps = Timestamps{StartedAt: now, FinishedAt: now}
	if ts, err := cast.ToStringMapStringE(candidate["timestamps"]); err == nil {
		if v := ts["started_at"]; v != "" {
			res.Timestamps.StartedAt = v
		}
		if v := ts["finished_at"]; v != "" {
			res.Timestamps.FinishedAt = v
		}
	}

	return res
}

// unwrap digs the stage payload out of the workflow-engine envelope.
func unwrap(raw map[string]any) map[string]any {
	if raw == nil {
		return nil
	}
	candidate := raw
	if data, ok := raw["data"].([]any); ok && len(data) > 0 {
		if first, ok := data[0].(map[string]any); ok {
			if inner, ok := first["json"].(map[string]any); ok {
				candidate = inner
			}
		}
	}
	if inner, ok := raw["json"].(map[string]any); ok {
		candidate = inner
	}
	return candidate
}

func toStringList(raw any) []string {
	items, ok := raw.([]any)
	if !ok {
		if strs, err := cast.ToStringSliceE(raw); err == nil {
			return strs
		}
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		default:
			// Stage scripts emit structured errors like {"code": ...};
			// keep them comparable as flat strings.
			if encoded, err := json.Marshal(v); err == nil {
				out = append(out, string(encoded))
			}
		}
	}
	return out
}
