package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/autojp/autojp/cmd/autojp/internal/format"
	"github.com/autojp/autojp/pkg/config"
	"github.com/autojp/autojp/pkg/n8n"
	"github.com/autojp/autojp/pkg/pipeline"
)

// NewScheduleCommand builds the 'schedule' command: repeated orchestrator
// runs on a timer, the way the production trigger fires every six hours.
func NewScheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "schedule",
		Short:   "Run the pipeline on a fixed schedule",
		GroupID: "pipeline",
		RunE:    runScheduled,
	}

	cmd.Flags().String("product-type-ids", "", "Comma-separated product type ids (required)")
	cmd.Flags().String("every", "6h", "Interval between runs (Go duration)")
	cmd.Flags().String("cron", "", "Cron expression overriding --every")
	cmd.Flags().Int("max-retries", 2, "Maximum transient-failure retries per stage")
	cmd.Flags().Int("retry-backoff-seconds", 2, "Base backoff before the first retry")

	_ = cmd.MarkFlagRequired("product-type-ids")

	return cmd
}

func runScheduled(cmd *cobra.Command, _ []string) error {
	formatter := format.FromCommand(cmd)

	manager, err := managerFromCommand(cmd)
	if err != nil {
		return formatTotalFailure(formatter, "schedule", err)
	}

	rawIDs, _ := cmd.Flags().GetString("product-type-ids")
	ids, err := parseEntityIDs(rawIDs)
	if err != nil {
		return formatTotalFailure(formatter, "schedule", err)
	}

	if err := manager.ValidateForRun(); err != nil {
		return formatTotalFailure(formatter, "schedule", err)
	}

	spec, _ := cmd.Flags().GetString("cron")
	if spec == "" {
		every, _ := cmd.Flags().GetString("every")
		spec = "@every " + every
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configFile, _ := cmd.Flags().GetString("config")
	if configFile != "" {
		watcher, err := watchConfig(ctx, cmd, manager, configFile)
		if err != nil {
			log.Warn().Err(err).Msg("config watch unavailable, continuing without reload")
		} else {
			defer watcher.Close()
		}
	}

	cronLogger := zerologCronAdapter{}
	scheduler := cron.New(cron.WithChain(
		// A tick that fires while the previous run is still active is
		// skipped; the per-entity locks below are the second guard.
		cron.SkipIfStillRunning(cronLogger),
		cron.Recover(cronLogger),
	))

	// The orchestrator is kept across ticks so its per-entity locks stay
	// in force; it is rebuilt only when a config reload changed anything.
	// Ticks themselves never overlap thanks to SkipIfStillRunning.
	var (
		orchestrator *pipeline.Orchestrator
		builtFrom    config.Config
	)
	tick := func() {
		cfg := manager.Get()
		applyRunFlags(cmd, &cfg)

		if orchestrator == nil || cfg != builtFrom {
			rebuilt, err := buildOrchestrator(cfg, false)
			if err != nil {
				log.Error().Err(err).Msg("scheduled run setup failed")
				return
			}
			orchestrator, builtFrom = rebuilt, cfg
		}

		rc := n8n.NewRunContext("", "")
		summary := orchestrator.Run(ctx, ids, rc)
		if fault := runLevelFault(ids, summary); fault != nil {
			log.Error().Err(fault).Msg("scheduled run accomplished nothing")
		}
		if err := formatter.PrintRunSummary(format.RunSummaryView{Summary: summary}); err != nil {
			log.Error().Err(err).Msg("print run summary failed")
		}
	}

	if _, err := scheduler.AddFunc(spec, tick); err != nil {
		return formatTotalFailure(formatter, "schedule", fmt.Errorf("invalid schedule %q: %w", spec, err))
	}

	log.Info().Str("schedule", spec).Ints("product_type_ids", ids).Msg("scheduler started")

	// First run immediately; the cron entry covers the rest.
	tick()

	scheduler.Start()
	<-ctx.Done()
	log.Info().Msg("shutdown requested, waiting for in-flight run")
	<-scheduler.Stop().Done()
	return nil
}

// watchConfig reloads configuration when the config file changes, so
// tunables picked up between scheduled runs do not need a restart.
func watchConfig(ctx context.Context, cmd *cobra.Command, manager *config.Manager, path string) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if err := manager.Load(cmd.Flags(), path); err != nil {
					log.Warn().Err(err).Str("path", path).Msg("config reload failed, keeping previous config")
					continue
				}
				log.Info().Str("path", path).Msg("configuration reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("config watcher error")
			}
		}
	}()
	return watcher, nil
}

// zerologCronAdapter bridges robfig/cron logging onto zerolog.
type zerologCronAdapter struct{}

// Info implements cron.Logger.
func (zerologCronAdapter) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(fieldsFromPairs(keysAndValues)).Msg(msg)
}

// Error implements cron.Logger.
func (zerologCronAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(fieldsFromPairs(keysAndValues)).Msg(msg)
}

func fieldsFromPairs(pairs []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			key = fmt.Sprint(pairs[i])
		}
		fields[key] = pairs[i+1]
	}
	return fields
}
