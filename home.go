package yui

import (
	"os"
	"path/filepath"
)

// Home returns the Yui home directory.
// It defaults to ~/.yui but can be overridden with the YUI_HOME environment variable.
func Home() string {
	if v := os.Getenv("YUI_HOME"); v != "" {
		return v
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".yui")
}

// DefaultDBPath returns the default SQLite database path (~/.yui/yui.db).
func DefaultDBPath() string {
	return filepath.Join(Home(), "yui.db")
}

// SandboxPath returns the default user workspace directory.
func SandboxPath() string {
	return filepath.Join(Home(), "sandbox")
}

// DataPath returns the default directory for JSON state files
// (missions.json, memoria_ia.json).
func DataPath() string {
	return filepath.Join(Home(), "data")
}

// DownloadPath returns the default directory for ZIP artifacts.
func DownloadPath() string {
	return filepath.Join(Home(), "downloads")
}

// PluginsPath returns the default plugin discovery directory.
func PluginsPath() string {
	return filepath.Join(Home(), "plugins")
}

// EnsureHome creates the Yui home and its working directories if they don't exist.
func EnsureHome() error {
	for _, dir := range []string{SandboxPath(), DataPath(), DownloadPath(), PluginsPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
