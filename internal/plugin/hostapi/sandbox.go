// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lumen Contributors

package hostapi

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/oops"

	"github.com/lumenlauncher/lumen/internal/plugin"
)

// FsSandbox is the per-plugin filesystem sandbox record. Every filesystem
// operation for the plugin must resolve to a descendant of DataDir.
type FsSandbox struct {
	CanRead  bool
	CanWrite bool
	DataDir  string
}

// Resolve maps a plugin-supplied relative path to an absolute path inside
// the sandbox. Absolute inputs are rejected outright. The result and its
// nearest existing ancestor are canonicalized so that neither ".." hops nor
// symlinks planted inside the sandbox can escape DataDir.
func (s *FsSandbox) Resolve(rel string) (string, error) {
	if rel == "" {
		return "", oops.Code(plugin.CodePathTraversalDenied).Errorf("empty path")
	}
	if filepath.IsAbs(rel) {
		return "", oops.Code(plugin.CodePathTraversalDenied).
			With("path", rel).
			Errorf("absolute paths are not allowed")
	}

	clean := filepath.Clean(rel)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", oops.Code(plugin.CodePathTraversalDenied).
			With("path", rel).
			Errorf("path escapes sandbox")
	}

	root, err := filepath.EvalSymlinks(s.DataDir)
	if err != nil {
		return "", oops.Code(plugin.CodeIOError).Wrapf(err, "canonicalize sandbox root")
	}

	canon, err := canonicalize(filepath.Join(root, clean))
	if err != nil {
		return "", err
	}

	if canon != root && !strings.HasPrefix(canon, root+string(filepath.Separator)) {
		return "", oops.Code(plugin.CodePathTraversalDenied).
			With("path", rel).
			Errorf("path escapes sandbox")
	}
	return canon, nil
}

// canonicalize resolves symlinks in the deepest existing ancestor of path
// and re-appends the not-yet-existing remainder. Plain EvalSymlinks fails
// on paths about to be created, which writes need.
func canonicalize(path string) (string, error) {
	existing := path
	var suffix string
	for {
		resolved, err := filepath.EvalSymlinks(existing)
		if err == nil {
			return filepath.Join(resolved, suffix), nil
		}
		if !os.IsNotExist(err) {
			return "", oops.Code(plugin.CodeIOError).Wrapf(err, "canonicalize %s", path)
		}
		suffix = filepath.Join(filepath.Base(existing), suffix)
		parent := filepath.Dir(existing)
		if parent == existing {
			// Walked to the filesystem root without finding anything.
			return "", oops.Code(plugin.CodeIOError).Errorf("no existing ancestor for %s", path)
		}
		existing = parent
	}
}
