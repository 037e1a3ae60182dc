package main

import (
	"os"
	"path/filepath"
)

const appName = "bookmap"

// fileExists reports whether the given path exists and is a file (not a directory).
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// xdgConfigDir returns $XDG_CONFIG_HOME or falls back to $HOME/.config.
func xdgConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// xdgDataDir returns $XDG_DATA_HOME or falls back to $HOME/.local/share.
func xdgDataDir() string {
	return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

func xdgDir(env, homeRel string) string {
	if d := os.Getenv(env); d != "" {
		return d
	}
	home := os.Getenv("HOME")
	if home == "" {
		// Last resort: current working directory
		cwd, _ := os.Getwd()
		return filepath.Join(cwd, homeRel)
	}
	return filepath.Join(home, homeRel)
}

// resolveDataDir picks the directory for bookmarks.json and history.sqlite.
// Precedence: --data-dir flag > $XDG_DATA_HOME/bookmap > $HOME/.local/share/bookmap.
func resolveDataDir(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return filepath.Join(xdgDataDir(), appName)
}

// resolveConfigDir picks the directory holding config.yaml.
func resolveConfigDir(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return filepath.Join(xdgConfigDir(), appName)
}

// ensureDir creates the directory and any necessary parents if it doesn't exist.
func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
