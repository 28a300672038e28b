// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lumen Contributors

package plugin

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/samber/oops"
)

// ManifestFileName is the manifest file looked for in each plugin directory.
const ManifestFileName = "manifest.json"

// StoredPlugin is a catalog entry: the manifest, the plugin's directory,
// the raw compiled module bytes, and the enabled flag.
type StoredPlugin struct {
	Manifest *Manifest
	Dir      string
	Wasm     []byte
	Enabled  bool
}

// Loader scans the plugins root and holds the in-memory catalog of
// installed plugins. It never touches running instances; disabling or
// uninstalling a plugin leaves teardown of any live instance to the
// Execution Runtime, invoked by the caller in sequence.
type Loader struct {
	pluginsDir string
	catalog    map[string]*StoredPlugin
	mu         sync.RWMutex
}

// NewLoader creates a loader rooted at pluginsDir.
func NewLoader(pluginsDir string) *Loader {
	return &Loader{
		pluginsDir: pluginsDir,
		catalog:    make(map[string]*StoredPlugin),
	}
}

// PluginsDir returns the plugins root directory.
func (l *Loader) PluginsDir() string {
	return l.pluginsDir
}

// Scan walks the plugins root and catalogs every subdirectory containing a
// valid manifest. Invalid plugins are logged and skipped; one bad plugin
// never aborts the scan. Returns the ids found in this pass.
//
// Duplicate ids resolve last-wins: the later directory replaces the earlier
// entry and the collision is logged. A plugin already in the catalog keeps
// its enabled flag across rescans.
func (l *Loader) Scan(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(l.pluginsDir)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(l.pluginsDir, 0o700); mkErr != nil {
				return nil, oops.Code(CodeIOError).Wrapf(mkErr, "create plugins directory")
			}
			return nil, nil
		}
		return nil, oops.Code(CodeIOError).Wrapf(err, "read plugins directory")
	}

	var found []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		dir := filepath.Join(l.pluginsDir, entry.Name())
		sp, err := loadFromDir(dir)
		if err != nil {
			slog.Warn("skipping plugin",
				"dir", entry.Name(),
				"error", err)
			continue
		}

		l.mu.Lock()
		if prev, ok := l.catalog[sp.Manifest.ID]; ok {
			if prev.Dir != sp.Dir {
				slog.Warn("duplicate plugin id, last wins",
					"plugin", sp.Manifest.ID,
					"kept", sp.Dir,
					"replaced", prev.Dir)
			}
			sp.Enabled = prev.Enabled
		}
		l.catalog[sp.Manifest.ID] = sp
		l.mu.Unlock()

		found = append(found, sp.Manifest.ID)
	}

	return found, nil
}

// loadFromDir parses and validates a single plugin directory.
func loadFromDir(dir string) (*StoredPlugin, error) {
	manifestPath := filepath.Join(dir, ManifestFileName)
	data, err := os.ReadFile(manifestPath) //nolint:gosec // constructed from ReadDir entries
	if err != nil {
		return nil, oops.Code(CodeManifestInvalid).Wrapf(err, "read manifest")
	}

	if err := ValidateSchema(data); err != nil {
		return nil, oops.Code(CodeManifestInvalid).Wrapf(err, "manifest schema")
	}

	manifest, err := ParseManifest(data)
	if err != nil {
		return nil, oops.Code(CodeManifestInvalid).Wrapf(err, "parse manifest")
	}

	wasmPath := filepath.Join(dir, filepath.Clean(manifest.Entry))
	wasm, err := os.ReadFile(wasmPath) //nolint:gosec // entry validated relative by Manifest.Validate
	if err != nil {
		return nil, oops.Code(CodeLoadFailed).
			With("entry", manifest.Entry).
			Wrapf(err, "read module %s", manifest.ID)
	}

	return &StoredPlugin{
		Manifest: manifest,
		Dir:      dir,
		Wasm:     wasm,
		Enabled:  true,
	}, nil
}

// Get returns a snapshot of a catalog entry. The snapshot shares the
// immutable manifest and module bytes but carries its own enabled flag, so
// callers never observe concurrent toggles mid-read.
func (l *Loader) Get(id string) (*StoredPlugin, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	sp, ok := l.catalog[id]
	if !ok {
		return nil, false
	}
	cp := *sp
	return &cp, true
}

// Info is a display-oriented view of a catalog entry.
type Info struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Author      string   `json:"author,omitempty"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions"`
	Entry       string   `json:"entry"`
	Enabled     bool     `json:"enabled"`
}

// List returns all catalog entries sorted by id.
func (l *Loader) List() []Info {
	l.mu.RLock()
	defer l.mu.RUnlock()

	infos := make([]Info, 0, len(l.catalog))
	for _, sp := range l.catalog {
		infos = append(infos, Info{
			ID:          sp.Manifest.ID,
			Name:        sp.Manifest.Name,
			Version:     sp.Manifest.Version,
			Author:      sp.Manifest.Author,
			Description: sp.Manifest.Description,
			Permissions: sp.Manifest.PermissionStrings(),
			Entry:       sp.Manifest.Entry,
			Enabled:     sp.Enabled,
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// IDs returns the catalog's plugin ids, sorted.
func (l *Loader) IDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]string, 0, len(l.catalog))
	for id := range l.catalog {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsEnabled reports whether the plugin is catalogued and enabled.
func (l *Loader) IsEnabled(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	sp, ok := l.catalog[id]
	return ok && sp.Enabled
}

// Enable marks a plugin enabled. Unknown ids are an error.
func (l *Loader) Enable(id string) error {
	return l.setEnabled(id, true)
}

// Disable marks a plugin disabled. The caller is responsible for unloading
// any running instance afterwards.
func (l *Loader) Disable(id string) error {
	return l.setEnabled(id, false)
}

func (l *Loader) setEnabled(id string, enabled bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	sp, ok := l.catalog[id]
	if !ok {
		return oops.Code(CodeNotRegistered).With("plugin", id).Wrap(ErrPluginNotFound)
	}
	sp.Enabled = enabled
	return nil
}

// Uninstall removes the catalog entry and recursively deletes the plugin's
// directory. Fails if the id is unknown.
func (l *Loader) Uninstall(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	sp, ok := l.catalog[id]
	if !ok {
		return oops.Code(CodeNotRegistered).With("plugin", id).Wrap(ErrPluginNotFound)
	}
	delete(l.catalog, id)

	if err := os.RemoveAll(sp.Dir); err != nil {
		return oops.Code(CodeIOError).With("plugin", id).Wrapf(err, "remove plugin directory")
	}

	slog.Info("uninstalled plugin", "plugin", id, "dir", sp.Dir)
	return nil
}

// InstallFromDir validates a plugin directory and copies it into the
// plugins root, cataloging the result. Used for local installs; the
// marketplace download path lands its extracted archive here too.
func (l *Loader) InstallFromDir(src string) (string, error) {
	sp, err := loadFromDir(src)
	if err != nil {
		return "", err
	}

	dest := filepath.Join(l.pluginsDir, sp.Manifest.ID)
	if err := copyDir(src, dest); err != nil {
		return "", oops.Code(CodeIOError).
			With("plugin", sp.Manifest.ID).
			Wrapf(err, "copy plugin directory")
	}
	sp.Dir = dest

	l.mu.Lock()
	if prev, ok := l.catalog[sp.Manifest.ID]; ok {
		sp.Enabled = prev.Enabled
	}
	l.catalog[sp.Manifest.ID] = sp
	l.mu.Unlock()

	slog.Info("installed plugin",
		"plugin", sp.Manifest.ID,
		"version", sp.Manifest.Version,
		"dir", dest)
	return sp.Manifest.ID, nil
}

// copyDir copies a directory tree. Regular files only; plugin packages
// have no business containing symlinks or devices.
func copyDir(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o700)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		in, err := os.Open(path) //nolint:gosec // walking a caller-chosen source tree
		if err != nil {
			return err
		}
		defer func() { _ = in.Close() }()

		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) //nolint:gosec
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, in); err != nil {
			_ = out.Close()
			return err
		}
		return out.Close()
	})
}
