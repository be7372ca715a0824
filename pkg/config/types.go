package config

// Config is the root configuration for the orchestrator.
type Config struct {
	Log       LogConfig       `koanf:"log"`
	Dojo      DojoConfig      `koanf:"dojo"`
	N8N       N8NConfig       `koanf:"n8n"`
	Workflows WorkflowsConfig `koanf:"workflows"`
	Run       RunConfig       `koanf:"run"`
	Store     StoreConfig     `koanf:"store"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// DojoConfig points at the DefectDojo API that owns the product types and
// carries the persisted state.
type DojoConfig struct {
	BaseURL string `koanf:"base_url" validate:"required,url"`
	Token   string `koanf:"token" validate:"required"`
	Timeout int    `koanf:"timeout" validate:"gte=1"`
}

// N8NConfig points at the workflow engine that executes the stages.
type N8NConfig struct {
	BaseURL string `koanf:"base_url" validate:"required,url"`
	APIKey  string `koanf:"api_key"`
}

// WorkflowsConfig maps the four pipeline stages to workflow ids.
type WorkflowsConfig struct {
	SubdomainEnum  string `koanf:"subdomain_enum" validate:"required"`
	PortScanImport string `koanf:"portscan_import" validate:"required"`
	TargetSync     string `koanf:"target_sync" validate:"required"`
	VulnScanImport string `koanf:"vuln_scan_import" validate:"required"`
}

// RunConfig tunes an orchestrator run.
type RunConfig struct {
	MaxRetries          int `koanf:"max_retries" validate:"gte=0"`
	RetryBackoffSeconds int `koanf:"retry_backoff_seconds" validate:"gte=1"`
	StageTimeoutSeconds int `koanf:"stage_timeout_seconds" validate:"gte=1"`
	Concurrency         int `koanf:"concurrency" validate:"gte=1"`
}

// StoreConfig selects the state store backend.
type StoreConfig struct {
	Backend string `koanf:"backend" validate:"oneof=dojo file"`
	Path    string `koanf:"path"`
}
