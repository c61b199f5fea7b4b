package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// Backends accepted by Open.
const (
	BackendFS     = "fs"
	BackendSQLite = "sqlite"
)

// Open returns the run store of the given kind rooted at baseDir. The fs
// backend keeps one directory per run; the sqlite backend keeps everything
// in baseDir/diffevo.db.
func Open(kind, baseDir string) (Store, error) {
	switch kind {
	case "", BackendFS:
		return NewFSStore(baseDir)
	case BackendSQLite:
		if err := os.MkdirAll(baseDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", err)
		}
		return NewSQLiteStore(filepath.Join(baseDir, SQLiteFile))
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

// CloseIfSupported closes stores that hold open resources.
func CloseIfSupported(s Store) error {
	closer, ok := s.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
