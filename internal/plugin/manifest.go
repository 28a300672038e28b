// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lumen Contributors

// Package plugin provides plugin discovery, manifests, and catalog state.
package plugin

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Permission is a declared capability string from a manifest. A plugin's
// declared set is the ceiling of what the Capability Host will allow; it is
// never escalated at runtime.
type Permission string

// Permissions understood by the Capability Host. OAuth permissions carry a
// provider suffix, e.g. "oauth:github".
const (
	PermNetwork         Permission = "network"
	PermFilesystemRead  Permission = "filesystem:read"
	PermFilesystemWrite Permission = "filesystem:write"
	PermClipboard       Permission = "clipboard"
	PermNotifications   Permission = "notifications"

	oauthPrefix = "oauth:"
)

// PermOAuth returns the permission granting OAuth token access for a provider.
func PermOAuth(provider string) Permission {
	return Permission(oauthPrefix + provider)
}

// OAuthProvider returns the provider a permission grants token access for,
// and whether the permission is an OAuth permission at all.
func (p Permission) OAuthProvider() (string, bool) {
	s := string(p)
	if !strings.HasPrefix(s, oauthPrefix) || len(s) == len(oauthPrefix) {
		return "", false
	}
	return s[len(oauthPrefix):], true
}

// Valid reports whether the permission is one the host understands.
func (p Permission) Valid() bool {
	switch p {
	case PermNetwork, PermFilesystemRead, PermFilesystemWrite, PermClipboard, PermNotifications:
		return true
	}
	_, ok := p.OAuthProvider()
	return ok
}

// Manifest represents a plugin's manifest.json file.
type Manifest struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	Version       string                 `json:"version"`
	Author        string                 `json:"author,omitempty"`
	Description   string                 `json:"description,omitempty"`
	Permissions   []Permission           `json:"permissions,omitempty"`
	Entry         string                 `json:"entry"`
	Provides      Provides               `json:"provides"`
	OAuth         map[string]OAuthConfig `json:"oauth,omitempty"`
	AIToolSchemas map[string]ToolSchema  `json:"ai_tool_schemas,omitempty"`
}

// Provides lists the features a plugin exports.
type Provides struct {
	Providers []string           `json:"providers,omitempty"`
	Actions   []string           `json:"actions,omitempty"`
	AITools   []string           `json:"ai_tools,omitempty"`
	Commands  []CommandTrigger   `json:"commands,omitempty"`
	Widgets   []WidgetDefinition `json:"widgets,omitempty"`
}

// PermissionStrings returns the permission set as plain strings, for
// capability grant compilation and display.
func (m *Manifest) PermissionStrings() []string {
	out := make([]string, len(m.Permissions))
	for i, p := range m.Permissions {
		out[i] = string(p)
	}
	return out
}

// CommandTrigger declares a prefix command contributed to the launcher,
// e.g. trigger "gh" handles queries of the form "gh: ...".
type CommandTrigger struct {
	Trigger     string `json:"trigger"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
}

// WidgetDefinition declares a widget a plugin can render. Immutable,
// sourced entirely from the manifest.
type WidgetDefinition struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	Sizes          []string `json:"sizes,omitempty"`
	RefreshSeconds int      `json:"refresh_seconds,omitempty"`
	Category       string   `json:"category,omitempty"`
}

// OAuthConfig declares the scopes a plugin requests for a provider.
type OAuthConfig struct {
	Scopes []string `json:"scopes"`
}

// ToolSchema describes an AI tool's parameters, JSON-Schema style.
type ToolSchema struct {
	Description string         `json:"description"`
	Parameters  ToolParameters `json:"parameters"`
}

// ToolParameters is the parameter object schema of an AI tool.
type ToolParameters struct {
	Type       string                  `json:"type"`
	Properties map[string]ToolProperty `json:"properties"`
	Required   []string                `json:"required,omitempty"`
}

// ToolProperty describes a single tool parameter.
type ToolProperty struct {
	Type        string          `json:"type"`
	Description string          `json:"description,omitempty"`
	Enum        []string        `json:"enum,omitempty"`
	Default     json.RawMessage `json:"default,omitempty"`
}

// maxIDLength is the maximum allowed length for plugin ids.
const maxIDLength = 64

// idPattern validates plugin ids: must start with a lowercase letter,
// followed by lowercase letters, digits, or hyphens.
// Cannot end with a hyphen. Single character ids are allowed.
var idPattern = regexp.MustCompile(`^[a-z]([a-z0-9-]*[a-z0-9])?$`)

// ParseManifest parses and validates a manifest.json file.
func ParseManifest(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("manifest data is empty")
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest constraints.
func (m *Manifest) Validate() error {
	if m.ID == "" || !idPattern.MatchString(m.ID) {
		return fmt.Errorf("id %q must start with a-z, contain only a-z, 0-9, hyphens, and not end with a hyphen", m.ID)
	}
	if len(m.ID) > maxIDLength {
		return fmt.Errorf("id must be %d characters or less, got %d", maxIDLength, len(m.ID))
	}

	if m.Name == "" {
		return fmt.Errorf("name is required")
	}

	if m.Version == "" {
		return fmt.Errorf("version is required")
	}
	if _, err := semver.NewVersion(m.Version); err != nil {
		return fmt.Errorf("version %q is not valid semver: %w", m.Version, err)
	}

	if m.Entry == "" {
		return fmt.Errorf("entry is required")
	}
	if filepath.IsAbs(m.Entry) {
		return fmt.Errorf("entry must be relative to the plugin directory, got %q", m.Entry)
	}
	if rel := filepath.Clean(m.Entry); rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("entry %q escapes the plugin directory", m.Entry)
	}

	for _, p := range m.Permissions {
		if !p.Valid() {
			return fmt.Errorf("unknown permission %q", p)
		}
	}

	for _, tool := range m.Provides.AITools {
		if _, ok := m.AIToolSchemas[tool]; !ok {
			return fmt.Errorf("ai tool %q has no schema in ai_tool_schemas", tool)
		}
	}

	for _, c := range m.Provides.Commands {
		if c.Trigger == "" || c.Name == "" {
			return fmt.Errorf("command triggers require both trigger and name")
		}
	}

	for _, w := range m.Provides.Widgets {
		if w.ID == "" || w.Name == "" {
			return fmt.Errorf("widget definitions require both id and name")
		}
	}

	return nil
}

// HasPermission reports whether the manifest declares the given permission.
func (m *Manifest) HasPermission(p Permission) bool {
	for _, have := range m.Permissions {
		if have == p {
			return true
		}
	}
	return false
}

// ToolSchema returns the declared schema for an AI tool name.
func (m *Manifest) ToolSchema(name string) (ToolSchema, bool) {
	s, ok := m.AIToolSchemas[name]
	return s, ok
}
