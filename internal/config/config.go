// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lumen Contributors

// Package config loads daemon configuration from a YAML file with
// command-line flag overrides.
package config

import (
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	goyaml "gopkg.in/yaml.v3"

	"github.com/lumenlauncher/lumen/internal/xdg"
)

// Config is the daemon's full configuration tree.
type Config struct {
	Log      LogConfig      `koanf:"log"      yaml:"log"`
	API      APIConfig      `koanf:"api"      yaml:"api"`
	Plugins  PluginsConfig  `koanf:"plugins"  yaml:"plugins"`
	Paths    PathsConfig    `koanf:"paths"    yaml:"paths"`
	Registry RegistryConfig `koanf:"registry" yaml:"registry"`
	Metrics  MetricsConfig  `koanf:"metrics"  yaml:"metrics"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level  string `koanf:"level"  yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}

// APIConfig controls the local JSON API the launcher frontend talks to.
type APIConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
}

// PluginsConfig controls the plugin catalog and runtime.
type PluginsConfig struct {
	Dir                string `koanf:"dir"                  yaml:"dir"`
	Autoload           bool   `koanf:"autoload"             yaml:"autoload"`
	HTTPTimeoutSeconds int    `koanf:"http_timeout_seconds" yaml:"http_timeout_seconds"`
}

// PathsConfig overrides the XDG-derived directories. Empty fields keep
// the defaults.
type PathsConfig struct {
	Data   string `koanf:"data"   yaml:"data"`
	Config string `koanf:"config" yaml:"config"`
	Cache  string `koanf:"cache"  yaml:"cache"`
}

// RegistryConfig points at the plugin marketplace.
type RegistryConfig struct {
	URL string `koanf:"url" yaml:"url"`
}

// MetricsConfig controls the observability HTTP server.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled" yaml:"enabled"`
	Addr    string `koanf:"addr"    yaml:"addr"`
}

// Default returns the configuration used when no file or flags override it.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		API: APIConfig{
			Addr: "127.0.0.1:9463",
		},
		Plugins: PluginsConfig{
			Dir:                xdg.PluginsDir(),
			Autoload:           true,
			HTTPTimeoutSeconds: 30,
		},
		Registry: RegistryConfig{
			URL: "https://registry.lumenlauncher.dev/api/v1",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
	}
}

// DataDirFor returns the sandbox data directory for a plugin, honoring
// the paths.data override.
func (c Config) DataDirFor(pluginID string) string {
	if c.Paths.Data != "" {
		return filepath.Join(c.Paths.Data, pluginID)
	}
	return xdg.PluginDataDir(pluginID)
}

// ConfigPathFor returns the per-plugin config file path, honoring the
// paths.config override.
func (c Config) ConfigPathFor(pluginID string) string {
	if c.Paths.Config != "" {
		return filepath.Join(c.Paths.Config, pluginID+".json")
	}
	return xdg.PluginConfigPath(pluginID)
}

// RegistryCacheDir returns the marketplace index cache directory,
// honoring the paths.cache override.
func (c Config) RegistryCacheDir() string {
	if c.Paths.Cache != "" {
		return filepath.Join(c.Paths.Cache, "registry")
	}
	return xdg.RegistryCacheDir()
}

// DefaultPath is where `lumen` looks for its config file when --config is
// not given.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigDir(), "config.yaml")
}

// Load merges, in increasing precedence: defaults, the YAML file at path
// (skipped silently when absent), then the given flag set. A nil flag set
// skips the flag layer.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	cfg := Default()

	k := koanf.New(".")
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return cfg, oops.With("path", path).Wrapf(err, "parse config file")
			}
		} else if !os.IsNotExist(err) {
			return cfg, oops.With("path", path).Wrapf(err, "stat config file")
		}
	}
	if flags != nil {
		// Only flags the user actually set override the file; pflag
		// defaults must not mask configured values.
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			return f.Name, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return cfg, oops.Wrapf(err, "apply flag overrides")
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, oops.Wrapf(err, "decode config")
	}
	return cfg, nil
}

// WriteDefault writes the default configuration as YAML to path, creating
// parent directories. Refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return oops.With("path", path).Errorf("config file already exists")
	}

	data, err := goyaml.Marshal(Default())
	if err != nil {
		return oops.Wrapf(err, "serialize default config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return oops.With("path", path).Wrapf(err, "create config directory")
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return oops.With("path", path).Wrapf(err, "write config file")
	}
	return nil
}
