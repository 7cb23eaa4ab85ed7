package config

import (
	"os"
	"path/filepath"
)

// DefaultDataDir returns the default data directory for the host OS. It
// prefers XDG and system locations and falls back to ~/.pageq.
func DefaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return "./data"
	}

	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "pageq")
	}

	// Only usable when running as a service account with write access.
	if isWritableDir("/var/lib") {
		return "/var/lib/pageq"
	}

	// macOS
	if isDir(filepath.Join(homeDir, "Library")) {
		return filepath.Join(homeDir, "Library", "Application Support", "Pageq")
	}

	// Windows
	if isDir(filepath.Join(homeDir, "AppData")) {
		return filepath.Join(homeDir, "AppData", "Local", "Pageq")
	}

	return filepath.Join(homeDir, ".pageq")
}

// ResolveDataDir returns cfg.DataDir, or DefaultDataDir when it is unset.
func (c Config) ResolveDataDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	return DefaultDataDir()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

func isWritableDir(path string) bool {
	if !isDir(path) {
		return false
	}
	f, err := os.CreateTemp(path, ".pageq-probe-*")
	if err != nil {
		return false
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return true
}
