package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autojp/autojp/pkg/contract"
	"github.com/autojp/autojp/pkg/n8n"
	"github.com/autojp/autojp/pkg/retry"
	"github.com/autojp/autojp/pkg/state"
)

// Outcome is the terminal per-run result for one entity.
type Outcome string

const (
	// OutcomeSuccess means the final stage completed for this run.
	OutcomeSuccess Outcome = "success"

	// OutcomeSkippedNoChange means the inputs were unchanged since the
	// last fully successful run; zero stages were invoked.
	OutcomeSkippedNoChange Outcome = "skipped_no_change"

	// OutcomeFailed means the entity stopped on a non-retryable failure
	// or spent its retry budget.
	OutcomeFailed Outcome = "failed"

	// OutcomeRunning means the run was cancelled mid-pipeline; the entity
	// resumes from its persisted stage on the next run.
	OutcomeRunning Outcome = "running"

	// OutcomeUndetermined means a state write failed: the evaluation must
	// not be assumed persisted and is re-attempted next run.
	OutcomeUndetermined Outcome = "undetermined"
)

// Source supplies an entity's persisted state together with the freshly
// computed input fingerprint, and persists state back. One Load is the
// single logical read of the read-modify-write cycle.
type Source interface {
	Load(ctx context.Context, entityID int) (state.Entity, string, error)
	Save(ctx context.Context, entityID int, st state.Entity) error
}

// Invoker triggers one stage for one entity and blocks until it yields a
// result contract. The error, when non-nil, is the typed invocation
// failure behind a synthesized result; classification prefers it over the
// result's flattened error text.
type Invoker interface {
	Invoke(ctx context.Context, stage contract.Stage, entityID int, rc n8n.RunContext) (contract.Result, error)
}

// Step records one stage attempt group for the run summary.
type Step struct {
	Stage    contract.Stage     `json:"stage"`
	Status   contract.Status    `json:"status"`
	Attempts int                `json:"attempts"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
}

// EntityResult is the per-entity record in the run summary.
type EntityResult struct {
	EntityID  int     `json:"product_type_id"`
	Outcome   Outcome `json:"status"`
	LastError string  `json:"last_error,omitempty"`
	Steps     []Step  `json:"steps,omitempty"`

	// Unreached marks a failed entity whose last stage attempt never
	// reached the workflow engine at all.
	Unreached bool `json:"trigger_unreached,omitempty"`
}

// Summary aggregates a whole orchestrator run.
type Summary struct {
	RunID      string          `json:"run_id"`
	StartedAt  string          `json:"started_at"`
	FinishedAt string          `json:"finished_at"`
	Counts     map[Outcome]int `json:"counts"`
	Entities   []EntityResult  `json:"items"`
	Failed     []int           `json:"failed_entity_ids,omitempty"`

	// Unreachable lists the failed entities whose stage invocations never
	// reached the workflow engine. When it covers every entity the trigger
	// endpoint itself is down and the run accomplished nothing.
	Unreachable []int `json:"unreachable_entity_ids,omitempty"`
}

// Healthy reports whether no entity is stuck beyond its retry budget.
func (s Summary) Healthy() bool {
	return s.Counts[OutcomeFailed] == 0 && s.Counts[OutcomeUndetermined] == 0
}

// Options tunes an orchestrator run.
type Options struct {
	Policy      retry.Policy
	Concurrency int

	// DryRun evaluates decisions without invoking stages or writing
	// state.
	DryRun bool

	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// Orchestrator fans entity evaluations out over a bounded worker pool.
// Within one entity the read-decide-invoke-write cycle is serialized
// end-to-end by a per-entity lock; across entities there are no shared
// invariants and evaluations run fully parallel.
type Orchestrator struct {
	source  Source
	invoker Invoker
	opts    Options

	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

// New builds an Orchestrator.
func New(source Source, invoker Invoker, opts Options) *Orchestrator {
	if opts.Concurrency < 1 {
		opts.Concurrency = 4
	}
	if opts.Policy.Backoff <= 0 {
		opts.Policy = retry.DefaultPolicy()
	}
	if opts.sleep == nil {
		opts.sleep = sleepCtx
	}
	return &Orchestrator{
		source:  source,
		invoker: invoker,
		opts:    opts,
		locks:   make(map[int]*sync.Mutex),
	}
}

// Run processes all entities to a terminal per-run outcome and aggregates
// the summary. One entity's failure, or even panic, never aborts the
// others. Cancelling ctx lets in-flight stage invocations finish their
// current attempt and persists whatever state is known.
func (o *Orchestrator) Run(ctx context.Context, entityIDs []int, rc n8n.RunContext) Summary {
	summary := Summary{
		RunID:     rc.RunID,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
		Counts:    make(map[Outcome]int),
	}

	results := make([]EntityResult, len(entityIDs))
	sem := make(chan struct{}, o.opts.Concurrency)
	var wg sync.WaitGroup

	for i, id := range entityIDs {
		wg.Add(1)
		sem <- struct{}{}
		go func(slot, entityID int) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					log.Error().Int("entity_id", entityID).Any("panic", r).Msg("entity evaluation panicked")
					results[slot] = EntityResult{
						EntityID:  entityID,
						Outcome:   OutcomeFailed,
						LastError: fmt.Sprintf("panic: %v", r),
					}
				}
			}()
			results[slot] = o.evaluate(ctx, entityID, rc)
		}(i, id)
	}
	wg.Wait()

	for _, res := range results {
		summary.Counts[res.Outcome]++
		if res.Outcome == OutcomeFailed {
			summary.Failed = append(summary.Failed, res.EntityID)
		}
		if res.Unreached {
			summary.Unreachable = append(summary.Unreachable, res.EntityID)
		}
		summary.Entities = append(summary.Entities, res)
	}
	summary.FinishedAt = time.Now().UTC().Format(time.RFC3339)
	return summary
}

// lockFor returns the serialization lock for an entity, creating it
// lazily. Guards against duplicate ids in one run and, when the caller
// reuses the orchestrator across runs, against concurrent evaluations of
// the same entity.
func (o *Orchestrator) lockFor(entityID int) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.locks[entityID]
	if !ok {
		l = &sync.Mutex{}
		o.locks[entityID] = l
	}
	return l
}

// evaluate drives one entity through read -> decide -> invoke/backoff ->
// write to a terminal per-run outcome.
func (o *Orchestrator) evaluate(ctx context.Context, entityID int, rc n8n.RunContext) EntityResult {
	lock := o.lockFor(entityID)
	lock.Lock()
	defer lock.Unlock()

	logger := log.With().Int("entity_id", entityID).Str("run_id", rc.RunID).Logger()

	st, hash, err := o.source.Load(ctx, entityID)
	if err != nil {
		logger.Error().Err(err).Msg("load entity state failed")
		return EntityResult{EntityID: entityID, Outcome: OutcomeUndetermined, LastError: err.Error()}
	}

	decision := Decide(st, hash, o.opts.Policy)
	st = decision.State
	st.Touch(time.Now())

	if o.opts.DryRun {
		switch decision.Action {
		case ActionSkip:
			return EntityResult{EntityID: entityID, Outcome: OutcomeSkippedNoChange}
		case ActionHold:
			return EntityResult{EntityID: entityID, Outcome: OutcomeFailed, LastError: errText(st)}
		}
		logger.Info().Str("stage", decision.Stage.Describe()).Msg("dry run: would invoke stage")
		return EntityResult{EntityID: entityID, Outcome: OutcomeRunning}
	}

	switch decision.Action {
	case ActionSkip:
		logger.Info().Str("hash", shortHash(hash)).Msg("inputs unchanged, skipping pipeline")
		return o.finish(ctx, entityID, st, OutcomeSkippedNoChange, nil)
	case ActionHold:
		logger.Warn().Int("retry_count", st.RetryCount).Msg("entity held in failed state until inputs change")
		return o.finish(ctx, entityID, st, OutcomeFailed, nil)
	}

	var steps []Step
	var lastInvErr error
	stage := decision.Stage
	for {
		if ctx.Err() != nil {
			st.PipelineStatus = state.PipelineError
			logger.Warn().Str("stage", stage.Describe()).Msg("run cancelled, entity resumes next run")
			return o.finish(ctx, entityID, st, OutcomeRunning, steps)
		}

		attempts := 0
		var step StepResult
		for {
			attempts++
			res, invErr := o.invoker.Invoke(ctx, stage, entityID, rc)
			lastInvErr = invErr
			step = Apply(st, stage, res, invErr, o.opts.Policy, time.Now())
			st = step.State

			steps = appendStep(steps, stage, res, attempts)
			if !step.Retry {
				break
			}
			logger.Info().
				Str("stage", stage.Describe()).
				Int("retry_count", st.RetryCount).
				Dur("backoff", step.Delay).
				Msg("transient stage failure, backing off")
			if err := o.opts.sleep(ctx, step.Delay); err != nil {
				// Cancelled mid-backoff: persist and resume next run.
				st.PipelineStatus = state.PipelineError
				return o.finish(ctx, entityID, st, OutcomeRunning, steps)
			}
		}

		switch {
		case step.Done:
			logger.Info().Msg("pipeline completed")
			return o.finish(ctx, entityID, st, OutcomeSuccess, steps)
		case step.Advanced:
			// Persist progress between stages so a crash resumes from
			// the next stage, not from scratch.
			if err := o.source.Save(ctx, entityID, st); err != nil {
				logger.Error().Err(err).Msg("intermediate state write failed")
				return EntityResult{EntityID: entityID, Outcome: OutcomeUndetermined, LastError: err.Error(), Steps: steps}
			}
			stage = step.Next
		default:
			logger.Error().Str("stage", stage.Describe()).Str("last_error", errText(st)).Msg("pipeline failed")
			result := o.finish(ctx, entityID, st, OutcomeFailed, steps)
			var unreach *n8n.UnreachableError
			if result.Outcome == OutcomeFailed && errors.As(lastInvErr, &unreach) {
				result.Unreached = true
			}
			return result
		}
	}
}

// finish persists the terminal state and builds the entity result. The
// write survives run cancellation so shutdown never leaves a completed
// evaluation unrecorded.
func (o *Orchestrator) finish(ctx context.Context, entityID int, st state.Entity, outcome Outcome, steps []Step) EntityResult {
	if err := o.source.Save(context.WithoutCancel(ctx), entityID, st); err != nil {
		log.Error().Int("entity_id", entityID).Err(err).Msg("terminal state write failed")
		return EntityResult{EntityID: entityID, Outcome: OutcomeUndetermined, LastError: err.Error(), Steps: steps}
	}
	return EntityResult{EntityID: entityID, Outcome: outcome, LastError: errText(st), Steps: steps}
}

func appendStep(steps []Step, stage contract.Stage, res contract.Result, attempts int) []Step {
	if len(steps) > 0 && steps[len(steps)-1].Stage == stage {
		steps[len(steps)-1].Status = res.Status
		steps[len(steps)-1].Attempts = attempts
		steps[len(steps)-1].Metrics = res.Metrics
		return steps
	}
	return append(steps, Step{Stage: stage, Status: res.Status, Attempts: attempts, Metrics: res.Metrics})
}

func errText(st state.Entity) string {
	if st.LastError == nil {
		return ""
	}
	return *st.LastError
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
