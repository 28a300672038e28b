// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lumen Contributors

// Package xdg provides XDG Base Directory paths for Lumen.
package xdg

import (
	"fmt"
	"os"
	"path/filepath"
)

const appName = "lumen"

// ConfigDir returns the XDG config directory for lumen.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// DataDir returns the XDG data directory for lumen.
// Checks XDG_DATA_HOME first, falls back to ~/.local/share.
func DataDir() string {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".local", "share")
	}
	return filepath.Join(base, appName)
}

// CacheDir returns the XDG cache directory for lumen.
// Checks XDG_CACHE_HOME first, falls back to ~/.cache.
func CacheDir() string {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".cache")
	}
	return filepath.Join(base, appName)
}

// PluginsDir returns the directory installed plugins live in, one
// subdirectory per plugin.
func PluginsDir() string {
	return filepath.Join(DataDir(), "plugins")
}

// PluginDataDir returns the sandboxed data directory for a plugin.
// All of the plugin's filesystem operations are confined to this path.
func PluginDataDir(pluginID string) string {
	return filepath.Join(DataDir(), "plugin_data", pluginID)
}

// PluginConfigPath returns the per-plugin JSON config file path.
// Config files live outside the plugin's sandbox so a plugin cannot
// corrupt its own config store through raw file writes.
func PluginConfigPath(pluginID string) string {
	return filepath.Join(DataDir(), "plugin_configs", pluginID+".json")
}

// RegistryCacheDir returns the marketplace registry cache directory.
func RegistryCacheDir() string {
	return filepath.Join(CacheDir(), "registry")
}

// EnsureDir creates a directory and all parent directories if they don't exist.
// Directories are created with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}
