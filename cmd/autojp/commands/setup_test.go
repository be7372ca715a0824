package commands

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autojp/autojp/pkg/config"
	"github.com/autojp/autojp/pkg/store"
)

func TestParseEntityIDs(t *testing.T) {
	ids, err := parseEntityIDs("1,2,3")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, ids)

	ids, err = parseEntityIDs(" 7 , 12 ,")
	require.NoError(t, err)
	assert.Equal(t, []int{7, 12}, ids, "whitespace and trailing commas are tolerated")

	_, err = parseEntityIDs("1,abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"abc"`)

	_, err = parseEntityIDs("")
	assert.Error(t, err)

	_, err = parseEntityIDs(" , ")
	assert.Error(t, err)
}

func fullConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Dojo.BaseURL = "https://dojo.example.com/api/v2"
	cfg.Dojo.Token = "tok"
	cfg.Workflows.SubdomainEnum = "wf-a"
	cfg.Workflows.PortScanImport = "wf-b"
	cfg.Workflows.TargetSync = "wf-c"
	cfg.Workflows.VulnScanImport = "wf-d"
	return cfg
}

func TestBuildSource_Backends(t *testing.T) {
	cfg := fullConfig(t)
	source, err := buildSource(cfg)
	require.NoError(t, err)
	assert.IsType(t, &store.DojoSource{}, source)

	cfg.Store.Backend = store.BackendFile
	cfg.Store.Path = filepath.Join(t.TempDir(), "state.json")
	source, err = buildSource(cfg)
	require.NoError(t, err)
	assert.IsType(t, store.StoreSource{}, source)

	cfg.Store.Backend = "redis"
	_, err = buildSource(cfg)
	assert.ErrorIs(t, err, store.ErrUnsupportedBackend)
}

func TestFileFingerprint_StaticWithoutCredentials(t *testing.T) {
	cfg := fullConfig(t)
	cfg.Dojo.BaseURL = ""
	cfg.Dojo.Token = ""

	fp := fileFingerprint(cfg)
	first, err := fp(context.Background(), 7)
	require.NoError(t, err)
	second, err := fp(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, first, second, "without an external input source the fingerprint is stable")

	other, err := fp(context.Background(), 8)
	require.NoError(t, err)
	assert.NotEqual(t, first, other, "different entities still get distinct fingerprints")
}

func TestBuildInvoker_RejectsMissingWorkflowIDs(t *testing.T) {
	cfg := fullConfig(t)
	cfg.Workflows.TargetSync = ""

	_, err := buildInvoker(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WF_C")
}

func TestBuildOrchestrator_FromFullConfig(t *testing.T) {
	orch, err := buildOrchestrator(fullConfig(t), false)
	require.NoError(t, err)
	assert.NotNil(t, orch)
}
