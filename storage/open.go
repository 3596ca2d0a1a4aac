package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
)

// Open constructs the backend named by kind rooted at path.
func Open(kind, path string) (Database, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == BackendMemory {
		return NewMemDB(), nil
	}
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage: path required for %s backend", kind)
	}
	switch kind {
	case BackendLevelDB, "":
		return NewLevelDB(path)
	case BackendBolt:
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("storage: create dir: %w", err)
		}
		return NewBoltDB(path, nil)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", kind)
	}
}
