package store

import (
	"fmt"
	"path/filepath"
)

// Config selects and parameterises a storage engine.
type Config struct {
	Backend string
	DataDir string
	// DSN is only used by the postgres backend.
	DSN string
}

// New creates a Store based on the backend name.
//
// Supported backends:
//
//	"sqlite"   - SQLite database at DataDir/lifeos.db (default)
//	"json"     - JSON files in DataDir/collections
//	"memory"   - In-memory (ephemeral, for testing)
//	"postgres" - PostgreSQL at DSN
func New(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "sqlite", "":
		return NewSqliteStore(filepath.Join(cfg.DataDir, "lifeos.db"))
	case "json":
		return NewJsonFileStore(filepath.Join(cfg.DataDir, "collections"))
	case "memory":
		return NewMemoryStore(), nil
	case "postgres":
		return NewPostgresStore(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store backend: %q (supported: sqlite, json, memory, postgres)", cfg.Backend)
	}
}
