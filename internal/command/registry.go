// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lumen Contributors

// Package command keeps the registry of launcher command triggers.
// Builtin commands register directly; plugin commands are derived from
// manifests at load time and removed at unload.
package command

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/samber/oops"

	"github.com/lumenlauncher/lumen/internal/plugin"
)

// Command is one resolvable trigger. PluginID is empty for builtins.
type Command struct {
	Trigger     string `json:"trigger"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	PluginID    string `json:"plugin_id,omitempty"`
}

// Registry maps triggers to commands. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Command
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

// Register adds a command. Registering over an existing trigger replaces
// it with a warning; the newest registrant wins.
func (r *Registry) Register(cmd Command) error {
	if cmd.Trigger == "" {
		return oops.Code(plugin.CodeManifestInvalid).
			Errorf("command trigger must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.commands[cmd.Trigger]; ok && prev.PluginID != cmd.PluginID {
		slog.Warn("command trigger replaced",
			"trigger", cmd.Trigger,
			"previous_plugin", prev.PluginID,
			"plugin", cmd.PluginID)
	}
	r.commands[cmd.Trigger] = cmd
	return nil
}

// RegisterPluginCommands registers every trigger a plugin's manifest
// declares, attributed to the plugin.
func (r *Registry) RegisterPluginCommands(pluginID string, commands []plugin.CommandTrigger) {
	for _, c := range commands {
		err := r.Register(Command{
			Trigger:     c.Trigger,
			Name:        c.Name,
			Description: c.Description,
			Icon:        c.Icon,
			PluginID:    pluginID,
		})
		if err != nil {
			slog.Warn("skipping invalid plugin command",
				"plugin", pluginID,
				"error", err)
		}
	}
}

// RemovePluginCommands drops every trigger attributed to the plugin.
func (r *Registry) RemovePluginCommands(pluginID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for trigger, cmd := range r.commands {
		if cmd.PluginID == pluginID {
			delete(r.commands, trigger)
		}
	}
}

// Resolve looks a trigger up.
func (r *Registry) Resolve(trigger string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cmd, ok := r.commands[trigger]
	return cmd, ok
}

// List returns all commands sorted by trigger.
func (r *Registry) List() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Trigger < out[j].Trigger })
	return out
}
