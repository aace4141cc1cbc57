package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GetEnv returns the environment variable or the fallback when unset or blank.
func GetEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

// EnsureDir creates dir (and parents) if it does not exist.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// StorePath returns the per-wallet store location under backupDir.
// The wallet filename is reduced to its base name so it cannot escape the directory.
func StorePath(backupDir, walletFilename string) string {
	name := filepath.Base(strings.TrimSpace(walletFilename))
	return filepath.Join(backupDir, name+".transactions")
}
