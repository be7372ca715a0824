package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/autojp/autojp/pkg/config"
	"github.com/autojp/autojp/pkg/contract"
	"github.com/autojp/autojp/pkg/dojo"
	"github.com/autojp/autojp/pkg/n8n"
	"github.com/autojp/autojp/pkg/pipeline"
	"github.com/autojp/autojp/pkg/retry"
	"github.com/autojp/autojp/pkg/state"
	"github.com/autojp/autojp/pkg/store"
)

// parseEntityIDs splits a comma-separated product type id list.
func parseEntityIDs(raw string) ([]int, error) {
	var ids []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid product type id %q", part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no product type ids given")
	}
	return ids, nil
}

// buildSource assembles the state source for the configured backend.
func buildSource(cfg config.Config) (pipeline.Source, error) {
	switch cfg.Store.Backend {
	case store.BackendDojo, "":
		client := dojo.NewClient(cfg.Dojo.BaseURL, cfg.Dojo.Token)
		return store.NewDojoSource(client), nil
	case store.BackendFile:
		backing, err := store.New(store.Config{Backend: store.BackendFile, Path: cfg.Store.Path})
		if err != nil {
			return nil, err
		}
		return store.StoreSource{
			Store:       backing,
			Fingerprint: fileFingerprint(cfg),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", store.ErrUnsupportedBackend, cfg.Store.Backend)
	}
}

// fileFingerprint picks the fingerprint source for the file backend: the
// DefectDojo product type when credentials are configured, otherwise a
// static digest (inputs never change, so a completed pipeline stays
// skipped until state is cleared).
func fileFingerprint(cfg config.Config) store.FingerprintFunc {
	if cfg.Dojo.BaseURL != "" && cfg.Dojo.Token != "" {
		client := dojo.NewClient(cfg.Dojo.BaseURL, cfg.Dojo.Token)
		return func(ctx context.Context, entityID int) (string, error) {
			pt, err := client.ProductType(ctx, entityID)
			if err != nil {
				return "", err
			}
			return state.Fingerprint(pt.Name, pt.UpdatedMarker()), nil
		}
	}
	return func(_ context.Context, entityID int) (string, error) {
		return state.Fingerprint(fmt.Sprintf("pt-%d", entityID), ""), nil
	}
}

// buildInvoker assembles the stage invoker from config.
func buildInvoker(cfg config.Config) (*n8n.Invoker, error) {
	client := n8n.NewClient(cfg.N8N.BaseURL, cfg.N8N.APIKey)
	invoker := n8n.NewInvoker(client, map[contract.Stage]string{
		contract.StageSubdomainEnum:  cfg.Workflows.SubdomainEnum,
		contract.StagePortScanImport: cfg.Workflows.PortScanImport,
		contract.StageTargetSync:     cfg.Workflows.TargetSync,
		contract.StageVulnScanImport: cfg.Workflows.VulnScanImport,
	}, time.Duration(cfg.Run.StageTimeoutSeconds)*time.Second)

	if err := invoker.Validate(); err != nil {
		return nil, err
	}
	return invoker, nil
}

// buildOrchestrator wires source, invoker and retry policy together.
func buildOrchestrator(cfg config.Config, dryRun bool) (*pipeline.Orchestrator, error) {
	source, err := buildSource(cfg)
	if err != nil {
		return nil, err
	}
	invoker, err := buildInvoker(cfg)
	if err != nil {
		return nil, err
	}

	return pipeline.New(source, invoker, pipeline.Options{
		Policy: retry.Policy{
			MaxRetries: cfg.Run.MaxRetries,
			Backoff:    time.Duration(cfg.Run.RetryBackoffSeconds) * time.Second,
		},
		Concurrency: cfg.Run.Concurrency,
		DryRun:      dryRun,
	}), nil
}
