// Package config loads orchestrator configuration from defaults, an
// optional YAML file, AUTOJP_-prefixed environment variables, and
// command-line flags, in ascending precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	koanfyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix namespaces the environment variables the loader consumes,
// e.g. AUTOJP_DOJO_TOKEN -> dojo.token.
const EnvPrefix = "AUTOJP_"

// Global koanf instance, initialized once at startup.
var (
	k    *koanf.Koanf
	once sync.Once
)

// InitGlobalConfig initializes the global koanf instance. Called early in
// the application lifecycle, before Load.
func InitGlobalConfig() {
	once.Do(func() {
		k = koanf.New(".")
	})
}

// Manager handles loading and accessing application configuration.
type Manager struct {
	koanfInstance *koanf.Koanf
	currentConfig Config
	validate      *validator.Validate
	mu            sync.RWMutex
}

// NewManager creates a Manager bound to the global koanf instance.
func NewManager() *Manager {
	InitGlobalConfig()
	return &Manager{
		koanfInstance: k,
		validate:      validator.New(),
	}
}

// DefaultConfig returns the baseline configuration; every other source
// overrides it.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Dojo: DojoConfig{
			Timeout: 60,
		},
		N8N: N8NConfig{
			BaseURL: "http://localhost:5678",
		},
		Run: RunConfig{
			MaxRetries:          2,
			RetryBackoffSeconds: 2,
			StageTimeoutSeconds: 600,
			Concurrency:         4,
		},
		Store: StoreConfig{
			Backend: "dojo",
		},
	}
}

// Load merges all configuration sources into the manager's current
// config. Precedence, lowest to highest: hardcoded defaults, YAML config
// file, environment, command-line flags.
func (m *Manager) Load(flags *pflag.FlagSet, configFilePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.koanfInstance.Load(confmap.Provider(DefaultConfigAsMap(), "."), nil); err != nil {
		return fmt.Errorf("load defaults: %w", err)
	}

	if configFilePath != "" {
		if err := m.koanfInstance.Load(file.Provider(configFilePath), koanfyaml.Parser()); err != nil {
			return fmt.Errorf("load config file %s: %w", configFilePath, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(
			strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
	})
	if err := m.koanfInstance.Load(envProvider, nil); err != nil {
		return fmt.Errorf("load environment: %w", err)
	}

	if flags != nil {
		if err := m.koanfInstance.Load(posflag.Provider(flags, ".", m.koanfInstance), nil); err != nil {
			return fmt.Errorf("load command-line flags: %w", err)
		}
	}

	var newCfg Config
	if err := m.koanfInstance.UnmarshalWithConf("", &newCfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return fmt.Errorf("unmarshal final config: %w", err)
	}
	m.currentConfig = newCfg

	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentConfig
}

// ValidateForRun checks the fields a real orchestrator run needs. Kept
// separate from Load so commands that never reach external systems
// (version, state show on a file store) work with partial config.
func (m *Manager) ValidateForRun() error {
	m.mu.RLock()
	cfg := m.currentConfig
	m.mu.RUnlock()

	err := m.validate.Struct(cfg)
	if cfg.Store.Backend == "file" {
		// A file-backed store needs no DefectDojo credentials.
		err = m.validate.StructExcept(cfg, "Dojo")
	}
	if err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Namespace())
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// DefaultConfigAsMap flattens DefaultConfig for koanf's confmap provider
// so every key is known before the higher-precedence sources load.
func DefaultConfigAsMap() map[string]interface{} {
	def := DefaultConfig()
	return map[string]interface{}{
		"log.level":  def.Log.Level,
		"log.format": def.Log.Format,

		"dojo.base_url": def.Dojo.BaseURL,
		"dojo.token":    def.Dojo.Token,
		"dojo.timeout":  def.Dojo.Timeout,

		"n8n.base_url": def.N8N.BaseURL,
		"n8n.api_key":  def.N8N.APIKey,

		"workflows.subdomain_enum":   def.Workflows.SubdomainEnum,
		"workflows.portscan_import":  def.Workflows.PortScanImport,
		"workflows.target_sync":      def.Workflows.TargetSync,
		"workflows.vuln_scan_import": def.Workflows.VulnScanImport,

		"run.max_retries":           def.Run.MaxRetries,
		"run.retry_backoff_seconds": def.Run.RetryBackoffSeconds,
		"run.stage_timeout_seconds": def.Run.StageTimeoutSeconds,
		"run.concurrency":           def.Run.Concurrency,

		"store.backend": def.Store.Backend,
		"store.path":    def.Store.Path,
	}
}

// BindFlags defines command-line flags corresponding to configuration
// settings, allowing overrides of file and environment values.
func BindFlags(flags *pflag.FlagSet) {
	defaults := DefaultConfig()

	flags.String("log.level", defaults.Log.Level, "Log level (debug, info, warn, error)")
	flags.String("log.format", defaults.Log.Format, "Log format (text, json)")
	flags.String("dojo.base_url", defaults.Dojo.BaseURL, "DefectDojo API v2 base URL")
	flags.String("n8n.base_url", defaults.N8N.BaseURL, "n8n API base URL")
	flags.String("store.backend", defaults.Store.Backend, "State store backend (dojo, file)")
	flags.String("store.path", defaults.Store.Path, "State file path for the file backend")
}
