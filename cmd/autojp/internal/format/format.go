// Copyright 2025 Autojp Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package format

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Mode selects the output rendering.
type Mode string

const (
	// ModeText renders human-readable tables and messages.
	ModeText Mode = "text"

	// ModeJSON renders machine-readable JSON.
	ModeJSON Mode = "json"
)

// Formatter renders command output consistently across subcommands.
type Formatter interface {
	PrintRunSummary(s RunSummaryView) error
	PrintTotalFailure(operation string, err error) error
	PrintJSON(v any) error
}

type formatter struct {
	mode   Mode
	quiet  bool
	color  bool
	stdout io.Writer
	stderr io.Writer
}

// FromCommand builds a Formatter from the command's output flags.
func FromCommand(cmd *cobra.Command) Formatter {
	mode := ModeText
	if raw, err := cmd.Flags().GetString("output"); err == nil && Mode(raw) == ModeJSON {
		mode = ModeJSON
	}
	quiet, _ := cmd.Flags().GetBool("quiet")
	noColor, _ := cmd.Flags().GetBool("no-color")

	return &formatter{
		mode:   mode,
		quiet:  quiet,
		color:  !noColor,
		stdout: cmd.OutOrStdout(),
		stderr: cmd.ErrOrStderr(),
	}
}

// New builds a Formatter with explicit settings (used by tests).
func New(mode Mode, quiet, color bool, stdout, stderr io.Writer) Formatter {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return &formatter{mode: mode, quiet: quiet, color: color, stdout: stdout, stderr: stderr}
}

// PrintJSON renders v as indented JSON on stdout.
func (f *formatter) PrintJSON(v any) error {
	encoder := json.NewEncoder(f.stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
