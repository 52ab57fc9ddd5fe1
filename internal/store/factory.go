package store

import (
	"fmt"
	"path/filepath"

	"modq-go/internal/config"
	"modq-go/internal/modq"
)

// NewStoreFromConfig creates a DecisionStore implementation based on the
// store config type. dataDir is used when the config does not name an
// explicit path.
func NewStoreFromConfig(cfg config.StoreConfig, dataDir string) (modq.DecisionStore, error) {
	switch cfg.Type {
	case "", "json":
		path := cfg.Path
		if path == "" {
			path = filepath.Join(dataDir, "decisions.json")
		}
		return NewFileStore(path)
	case "sqlite":
		path := cfg.Path
		if path == "" {
			path = filepath.Join(dataDir, "decisions.db")
		}
		return NewSQLiteStore(path)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}
