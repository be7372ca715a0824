package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/autojp/autojp/cmd/autojp/internal/format"
	"github.com/autojp/autojp/pkg/config"
	"github.com/autojp/autojp/pkg/dojo"
	"github.com/autojp/autojp/pkg/state"
	"github.com/autojp/autojp/pkg/store"
)

// NewStateCommand groups operator access to the persisted pipeline state.
func NewStateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "state",
		Short:   "Inspect or reset persisted pipeline state",
		GroupID: "pipeline",
	}

	cmd.PersistentFlags().Int("product-type-id", 0, "Product type id (required)")
	_ = cmd.MarkPersistentFlagRequired("product-type-id")

	cmd.AddCommand(newStateShowCommand())
	cmd.AddCommand(newStateClearCommand())
	return cmd
}

func newStateShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the persisted state block for a product type",
		RunE: func(cmd *cobra.Command, _ []string) error {
			formatter := format.FromCommand(cmd)

			backing, id, err := stateBacking(cmd)
			if err != nil {
				return formatTotalFailure(formatter, "state show", err)
			}

			st, err := backing.Read(cmd.Context(), id)
			if err != nil {
				return formatTotalFailure(formatter, "state show", err)
			}
			return formatter.PrintJSON(st)
		},
	}
}

func newStateClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Reset a product type to the idle state (unblocks a failed pipeline)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			formatter := format.FromCommand(cmd)

			backing, id, err := stateBacking(cmd)
			if err != nil {
				return formatTotalFailure(formatter, "state clear", err)
			}

			if err := backing.Write(cmd.Context(), id, state.New(id)); err != nil {
				return formatTotalFailure(formatter, "state clear", err)
			}
			log.Info().Int("product_type_id", id).Msg("pipeline state cleared")
			return formatter.PrintJSON(map[string]any{"cleared": id})
		},
	}
}

// stateBacking builds the configured store and resolves the entity id.
func stateBacking(cmd *cobra.Command) (store.Store, int, error) {
	manager, err := managerFromCommand(cmd)
	if err != nil {
		return nil, 0, err
	}
	cfg := manager.Get()

	id, err := cmd.Flags().GetInt("product-type-id")
	if err != nil {
		return nil, 0, err
	}

	backing, err := store.New(storeConfig(cfg))
	if err != nil {
		return nil, 0, err
	}
	return backing, id, nil
}

func storeConfig(cfg config.Config) store.Config {
	sc := store.Config{Backend: cfg.Store.Backend, Path: cfg.Store.Path}
	if sc.Backend == store.BackendDojo || sc.Backend == "" {
		sc.API = dojo.NewClient(cfg.Dojo.BaseURL, cfg.Dojo.Token)
	}
	return sc
}
