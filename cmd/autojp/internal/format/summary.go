// Copyright 2025 Autojp Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package format

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/autojp/autojp/pkg/pipeline"
)

// RunSummaryView wraps a pipeline summary for rendering.
type RunSummaryView struct {
	Summary pipeline.Summary
}

// PrintRunSummary prints the aggregate result of an orchestrator run.
// Example text output:
//
//	Run pt-run-41d2 finished in 84.2s
//	  ✓ Success:            3
//	  ⚠ Skipped (no change): 2
//	  ✗ Failed:             1
//
//	Failed product types:
//	  - 17: WF_B: connection refused
func (f *formatter) PrintRunSummary(view RunSummaryView) error {
	if f.quiet {
		return nil
	}
	if f.mode == ModeJSON {
		return f.PrintJSON(view.Summary)
	}

	s := view.Summary
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("\nRun %s: %d product types processed\n", s.RunID, len(s.Entities)))
	writeCount := func(label string, n int, paint func(format string, a ...interface{}) string) {
		if n == 0 {
			return
		}
		line := fmt.Sprintf("  %s %d\n", label, n)
		if f.color && paint != nil {
			line = paint("  %s %d\n", label, n)
		}
		sb.WriteString(line)
	}

	writeCount("✓ Success:            ", s.Counts[pipeline.OutcomeSuccess], color.GreenString)
	writeCount("⚠ Skipped (no change):", s.Counts[pipeline.OutcomeSkippedNoChange], color.YellowString)
	writeCount("… Still running:      ", s.Counts[pipeline.OutcomeRunning], nil)
	writeCount("? Undetermined:       ", s.Counts[pipeline.OutcomeUndetermined], color.YellowString)
	writeCount("✗ Failed:             ", s.Counts[pipeline.OutcomeFailed], color.RedString)

	if len(s.Failed) > 0 {
		sb.WriteString("\nFailed product types:\n")
		for _, entity := range s.Entities {
			if entity.Outcome != pipeline.OutcomeFailed {
				continue
			}
			sb.WriteString(fmt.Sprintf("  - %d: %s\n", entity.EntityID, entity.LastError))
		}
	}

	for _, entity := range s.Entities {
		if len(entity.Steps) == 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("\nProduct type %d (%s):\n", entity.EntityID, entity.Outcome))
		for _, step := range entity.Steps {
			sb.WriteString(fmt.Sprintf("  %-20s %-16s attempts=%d\n",
				step.Stage.Describe(), step.Status, step.Attempts))
		}
	}

	_, err := f.stdout.Write([]byte(sb.String()))
	return err
}

// PrintTotalFailure prints a run-level fault.
func (f *formatter) PrintTotalFailure(operation string, err error) error {
	if f.quiet {
		return nil
	}
	if f.mode == ModeJSON {
		return f.PrintJSON(map[string]any{
			"success":   false,
			"operation": operation,
			"error":     err.Error(),
		})
	}

	message := fmt.Sprintf("✗ Failed to %s: %v\n", operation, err)
	if f.color {
		_, werr := color.New(color.FgRed).Fprint(f.stderr, message)
		return werr
	}
	_, werr := fmt.Fprint(f.stderr, message)
	return werr
}
