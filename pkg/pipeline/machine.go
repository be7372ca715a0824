// Package pipeline contains the orchestrator core: the pure per-entity
// decision logic and the loop that drives entities through the four-stage
// pipeline with bounded retries and isolated failures.
package pipeline

import (
	"fmt"
	"time"

	"github.com/autojp/autojp/pkg/contract"
	"github.com/autojp/autojp/pkg/retry"
	"github.com/autojp/autojp/pkg/state"
)

// Action is what the state machine wants done next for an entity.
type Action int

const (
	// ActionSkip means the inputs are unchanged since the last fully
	// successful run; no stage is invoked.
	ActionSkip Action = iota

	// ActionRun means the pipeline should execute starting at Decision.Stage.
	ActionRun

	// ActionHold means the entity is failed with its retry budget spent;
	// nothing runs until an operator clears state or the inputs change.
	ActionHold
)

// Decision is the outcome of evaluating persisted state against the
// freshly computed input fingerprint.
type Decision struct {
	Action Action

	// Stage is the stage to invoke first when Action is ActionRun.
	Stage contract.Stage

	// State is the updated entity state reflecting the decision.
	State state.Entity
}

// Decide computes the next action for an entity. It is pure: no I/O, no
// clock reads beyond the caller-supplied state.
//
// The rules, in order:
//  1. Unchanged inputs after a fully successful run are skipped outright.
//  2. A changed fingerprint starts a fresh run from the first stage,
//     clearing retry bookkeeping and any recorded error.
//  3. Same fingerprint with a non-retryable failure or an exhausted retry
//     budget holds the entity in failed until the inputs change or an
//     operator intervenes.
//  4. Otherwise the run resumes from the most recently attempted stage;
//     earlier, already-successful stages are not redone. Stage effects are
//     idempotent, so re-invoking the stage the failure was recorded
//     against is safe.
func Decide(st state.Entity, hash string, policy retry.Policy) Decision {
	if hash == st.LastSuccessInputHash &&
		st.LastSuccessStage == string(contract.FinalStage) &&
		!st.HasError() {
		st.InputHash = hash
		st.PipelineStatus = state.PipelineSkippedNoChange
		return Decision{Action: ActionSkip, State: st}
	}

	if hash != st.InputHash {
		st.CurrentStage = ""
		st.LastSuccessStage = ""
		st.RetryCount = 0
		st.ClearError()
		st.InputHash = hash
		st.PipelineStatus = state.PipelineRunning
		return Decision{Action: ActionRun, Stage: contract.FirstStage, State: st}
	}

	if st.HasError() && (st.PipelineStatus == state.PipelineFailed || policy.Exhausted(st.RetryCount)) {
		st.PipelineStatus = state.PipelineFailed
		return Decision{Action: ActionHold, State: st}
	}

	resume := contract.Stage(st.CurrentStage)
	if !resume.Valid() {
		resume = contract.FirstStage
	}
	st.InputHash = hash
	st.PipelineStatus = state.PipelineRunning
	return Decision{Action: ActionRun, Stage: resume, State: st}
}

// StepResult is what applying one stage result yields.
type StepResult struct {
	// State is the updated entity state.
	State state.Entity

	// Next is the stage to run after this one, when Advanced and not Done.
	Next contract.Stage

	// Advanced reports the stage ended in success or a pass-through
	// status and the pipeline may move on.
	Advanced bool

	// Done reports the final stage completed: the pipeline run is over.
	Done bool

	// Retry reports a transient failure with remaining budget; the same
	// stage should be re-invoked after Delay.
	Retry bool

	// Delay is the backoff before the retry.
	Delay time.Duration
}

// Apply folds one stage result into the entity state, implementing the
// advancement, retry and failure rules. invErr is the typed invocation
// error when the stage attempt never produced a real contract (nil
// otherwise); it takes precedence over the result text for retryability.
// now stamps last_run_at.
func Apply(st state.Entity, stage contract.Stage, res contract.Result, invErr error, policy retry.Policy, now time.Time) StepResult {
	st.CurrentStage = string(stage)
	st.Touch(now)

	if res.Advances() {
		st.LastSuccessStage = string(stage)
		st.ClearError()
		st.RetryCount = 0

		next, ok := stage.Next()
		if !ok {
			// Final stage done: only here does the success fingerprint
			// move forward.
			st.LastSuccessInputHash = st.InputHash
			st.PipelineStatus = state.PipelineSuccess
			return StepResult{State: st, Advanced: true, Done: true}
		}
		st.PipelineStatus = state.PipelineRunning
		return StepResult{State: st, Next: next, Advanced: true}
	}

	class := retry.ClassifyResult(res)
	if invErr != nil {
		class = retry.Classify(invErr)
	}
	if policy.ShouldRetry(class, st.RetryCount+1) {
		st.RetryCount++
		st.PipelineStatus = state.PipelineRunning
		return StepResult{State: st, Retry: true, Delay: policy.Delay(st.RetryCount)}
	}

	st.SetError(fmt.Sprintf("%s: %s", stage, res.ErrorText()))
	st.PipelineStatus = state.PipelineFailed
	return StepResult{State: st}
}
