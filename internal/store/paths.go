package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultDataDir returns ~/.nodenet, where nodenets.db lives unless
// configured otherwise.
func DefaultDataDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".nodenet"), nil
}

// SnapshotDir returns the directory for snapshot files under dataDir.
func SnapshotDir(dataDir string) string {
	return filepath.Join(dataDir, "snapshots")
}
