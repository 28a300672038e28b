// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lumen Contributors

// Package capability provides runtime permission enforcement for plugins.
//
// Grants are the permission strings a plugin's manifest declares, compiled
// with gobwas/glob using ':' as the segment separator:
//   - "filesystem:read" matches exactly
//   - "oauth:*" matches "oauth:github" but not "oauth:github:extra"
//   - "**" matches any permission (not something a reviewed manifest should
//     ever carry, but the matcher is total)
package capability

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gobwas/glob"
)

// compiledGrant holds a pattern and its compiled glob for efficient matching.
type compiledGrant struct {
	pattern string
	glob    glob.Glob
}

// Enforcer checks plugin permissions at runtime.
//
// Enforcer is safe for concurrent use. The zero value is ready to use
// without calling NewEnforcer.
type Enforcer struct {
	grants map[string][]compiledGrant // plugin id -> compiled grants
	mu     sync.RWMutex
}

// NewEnforcer creates a permission enforcer.
func NewEnforcer() *Enforcer {
	return &Enforcer{
		grants: make(map[string][]compiledGrant),
	}
}

// SetGrants configures permissions for a plugin. Returns an error if the
// plugin id is empty or any pattern is invalid.
//
// The permissions slice is copied, so callers may safely modify it after
// the call returns. Calling SetGrants again for the same plugin replaces
// all previous grants. If validation fails, no changes are made to the
// enforcer's state (atomic all-or-nothing semantics).
func (e *Enforcer) SetGrants(pluginID string, permissions []string) error {
	if pluginID == "" {
		return errors.New("plugin id cannot be empty")
	}

	// Compile all patterns before acquiring lock (fail-fast, atomic)
	compiled := make([]compiledGrant, len(permissions))
	for i, pattern := range permissions {
		if pattern == "" {
			return fmt.Errorf("permission %d: empty permission pattern", i)
		}
		// Compile with ':' as separator so '*' doesn't cross segment boundaries
		g, err := glob.Compile(pattern, ':')
		if err != nil {
			return fmt.Errorf("permission %d (%q): %w", i, pattern, err)
		}
		compiled[i] = compiledGrant{pattern: pattern, glob: g}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Initialize map if zero-value struct
	if e.grants == nil {
		e.grants = make(map[string][]compiledGrant)
	}

	e.grants[pluginID] = compiled
	return nil
}

// IsRegistered returns true if the plugin has been registered via SetGrants.
// This helps distinguish "plugin not registered" from "plugin lacks
// permission".
func (e *Enforcer) IsRegistered(pluginID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.grants == nil {
		return false
	}
	_, ok := e.grants[pluginID]
	return ok
}

// RemoveGrants unregisters a plugin, removing all its permissions.
// Safe to call for unknown plugins or on a zero-value Enforcer.
func (e *Enforcer) RemoveGrants(pluginID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.grants == nil {
		return
	}
	delete(e.grants, pluginID)
}

// GetGrants returns a copy of the permissions granted to a plugin.
// Returns nil if the plugin is not registered.
func (e *Enforcer) GetGrants(pluginID string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.grants == nil {
		return nil
	}
	grants, ok := e.grants[pluginID]
	if !ok {
		return nil
	}
	patterns := make([]string, len(grants))
	for i, g := range grants {
		patterns[i] = g.pattern
	}
	return patterns
}

// ListPlugins returns a list of all registered plugin ids.
// Returns an empty slice (not nil) if no plugins are registered.
// Order is not guaranteed.
func (e *Enforcer) ListPlugins() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.grants) == 0 {
		return []string{}
	}

	plugins := make([]string, 0, len(e.grants))
	for id := range e.grants {
		plugins = append(plugins, id)
	}
	return plugins
}

// Check returns true if the plugin has the requested permission.
//
// Returns false in these cases (no error, deny by default):
//   - Empty plugin id
//   - Empty permission string
//   - Unknown plugin (not registered via SetGrants)
//   - Plugin lacks the requested permission
func (e *Enforcer) Check(pluginID, permission string) bool {
	if permission == "" {
		return false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	// Handle zero-value struct
	if e.grants == nil {
		return false
	}

	grants, ok := e.grants[pluginID]
	if !ok {
		return false
	}

	for _, grant := range grants {
		if grant.glob.Match(permission) {
			return true
		}
	}
	return false
}
