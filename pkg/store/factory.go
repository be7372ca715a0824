package store

import "fmt"

// Backend names accepted by New.
const (
	BackendDojo = "dojo"
	BackendFile = "file"
)

// Config selects and parameterizes a store backend.
type Config struct {
	// Backend is one of BackendDojo or BackendFile.
	Backend string

	// Path is the state file location for the file backend.
	Path string

	// API is the DefectDojo client for the dojo backend.
	API ProductTypeAPI
}

// New builds a Store from config.
func New(cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendDojo, "":
		if cfg.API == nil {
			return nil, fmt.Errorf("dojo backend requires an API client")
		}
		return NewDojoStore(cfg.API), nil
	case BackendFile:
		if cfg.Path == "" {
			return nil, fmt.Errorf("file backend requires a state file path")
		}
		return NewFileStore(cfg.Path), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBackend, cfg.Backend)
	}
}
