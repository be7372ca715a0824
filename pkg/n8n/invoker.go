package n8n

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/autojp/autojp/pkg/contract"
	"github.com/autojp/autojp/pkg/retry"
)

// RunContext correlates stage invocations belonging to one orchestrator
// run.
type RunContext struct {
	RunID   string
	TraceID string
}

// NewRunContext fills missing correlation ids with generated ones.
func NewRunContext(runID, traceID string) RunContext {
	if runID == "" {
		runID = "run-" + uuid.NewString()
	}
	if traceID == "" {
		traceID = "trace-" + uuid.NewString()
	}
	return RunContext{RunID: runID, TraceID: traceID}
}

// executor is the slice of Client the invoker needs; tests swap it out.
type executor interface {
	Execute(ctx context.Context, workflowID string, input map[string]any) (map[string]any, error)
}

// Invoker triggers a named stage workflow and blocks until it returns a
// result contract or the stage timeout elapses. The invoker never retries:
// retries belong to the orchestrator's retry policy.
type Invoker struct {
	client    executor
	workflows map[contract.Stage]string
	timeout   time.Duration
}

// NewInvoker maps pipeline stages to workflow ids. timeout bounds each
// single invocation.
func NewInvoker(client *Client, workflows map[contract.Stage]string, timeout time.Duration) *Invoker {
	return &Invoker{client: client, workflows: workflows, timeout: timeout}
}

// Validate checks that every pipeline stage has a workflow id configured.
func (inv *Invoker) Validate() error {
	var missing []contract.Stage
	for _, stage := range contract.Stages {
		if inv.workflows[stage] == "" {
			missing = append(missing, stage)
		}
	}
	if len(missing) > 0 {
		return &retry.ValidationError{
			Field:  "workflows",
			Reason: fmt.Sprintf("no workflow id for stages %v", missing),
		}
	}
	return nil
}

// Invoke runs one stage for one entity. It always returns a usable result
// contract; when the invocation itself failed (rather than the stage
// reporting a failure) the typed error is returned alongside so callers
// classify by type instead of sniffing the flattened text. Deadline expiry
// synthesizes status=timeout, every other invocation error status=error.
func (inv *Invoker) Invoke(ctx context.Context, stage contract.Stage, entityID int, rc RunContext) (contract.Result, error) {
	workflowID := inv.workflows[stage]
	if workflowID == "" {
		err := &retry.ValidationError{Field: "workflows." + string(stage), Reason: "workflow id not set"}
		return contract.SynthesizedResult(string(stage), entityID, contract.StatusError, "workflow_id_not_set"), err
	}

	if inv.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.timeout)
		defer cancel()
	}

	input := map[string]any{
		"product_type_id": entityID,
		"stage":           string(stage),
		"run_id":          rc.RunID,
		"trace_id":        rc.TraceID,
	}

	raw, err := inv.client.Execute(ctx, workflowID, input)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return contract.SynthesizedResult(string(stage), entityID, contract.StatusTimeout,
				fmt.Sprintf("workflow %s timed out after %s", workflowID, inv.timeout)), err
		}
		return contract.SynthesizedResult(string(stage), entityID, contract.StatusError, err.Error()), err
	}

	return contract.Normalize(raw, string(stage), entityID), nil
}
