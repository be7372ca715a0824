package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/autojp/autojp/pkg/config"
	"github.com/autojp/autojp/pkg/logging"
)

const cliExecutable = "autojp"

type managerKeyType struct{}

// managerKey carries the loaded config manager through the command
// context.
var managerKey managerKeyType

// NewCommand constructs the top-level autojp CLI command, wiring global
// flags and configuration loading.
func NewCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   cliExecutable,
		Short: "autojp drives the attack-surface pipeline across DefectDojo product types",
		Long: `autojp orchestrates a fixed four-stage security-scanning pipeline
(subdomain enumeration, port-scan import, target synchronization,
vulnerability scan and import) for each configured product type. Pipeline
progress is persisted in the product type itself, unchanged inputs are
skipped, and transient stage failures are retried with bounded backoff.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			manager := config.NewManager()
			if err := manager.Load(cmd.Flags(), configFile); err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			cfg := manager.Get()
			if err := logging.ConfigureGlobalLogging(cfg.Log.Level, cfg.Log.Format); err != nil {
				return fmt.Errorf("configure logging: %w", err)
			}

			ctx := context.WithValue(cmd.Context(), managerKey, manager)
			cmd.SetContext(ctx)
			if root := cmd.Root(); root != nil && root != cmd {
				root.SetContext(ctx)
			}
			return nil
		},
	}

	cmd.SilenceUsage = true

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path (YAML)")
	cmd.PersistentFlags().StringP("output", "o", "text", "Output format: text, json")
	cmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress summaries")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	config.BindFlags(cmd.PersistentFlags())

	cmd.AddGroup(&cobra.Group{ID: "pipeline", Title: "Pipeline Commands"})
	cmd.AddGroup(&cobra.Group{ID: "core", Title: "Core Commands"})

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewScheduleCommand())
	cmd.AddCommand(NewStateCommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// managerFromCommand extracts the config manager loaded by the root
// command.
func managerFromCommand(cmd *cobra.Command) (*config.Manager, error) {
	manager, ok := cmd.Context().Value(managerKey).(*config.Manager)
	if !ok || manager == nil {
		return nil, fmt.Errorf("configuration manager missing from context")
	}
	return manager, nil
}
