// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lumen Contributors

// Package runtime hosts plugin WebAssembly modules using Extism and
// exposes the typed entry points of the JSON call protocol.
package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	extism "github.com/extism/go-sdk"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lumenlauncher/lumen/internal/plugin"
	"github.com/lumenlauncher/lumen/internal/plugin/hostapi"
	"github.com/lumenlauncher/lumen/pkg/errutil"
	"github.com/lumenlauncher/lumen/pkg/pluginsdk"
)

// CommandRegistrar receives command triggers derived from a plugin's
// manifest at load time and drops them at unload.
type CommandRegistrar interface {
	RegisterPluginCommands(pluginID string, commands []plugin.CommandTrigger)
	RemovePluginCommands(pluginID string)
}

// instance is one live guest module. callMu serializes calls: the
// underlying Extism plugin state is not reentrant, so an instance handles
// at most one in-flight call at a time. Calls against different plugin ids
// proceed in parallel.
type instance struct {
	plugin *extism.Plugin
	callMu sync.Mutex
}

// Runtime compiles, instantiates, and calls plugin modules. Per plugin id
// the lifecycle is Unloaded -> Instantiated -> Unloaded, with at most one
// live instance per id at any time.
type Runtime struct {
	host     *hostapi.Host
	commands CommandRegistrar
	tracer   trace.Tracer

	// loadMu serializes Load end to end. Instantiation happens outside
	// the table lock, so without it two concurrent loads of the same id
	// could both pass the already-loaded check and the loser's instance
	// would be overwritten without ever being closed.
	loadMu sync.Mutex

	mu        sync.RWMutex
	instances map[string]*instance
	closed    bool
}

// Option configures the Runtime.
type Option func(*Runtime)

// WithCommandRegistrar wires the command registry collaborator.
func WithCommandRegistrar(cr CommandRegistrar) Option {
	return func(r *Runtime) { r.commands = cr }
}

// New creates a Runtime backed by the given Capability Host.
func New(host *hostapi.Host, tracer trace.Tracer, opts ...Option) *Runtime {
	r := &Runtime{
		host:      host,
		tracer:    tracer,
		instances: make(map[string]*instance),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load registers the plugin with the Capability Host, compiles and
// instantiates its module with the host functions linked in, and calls the
// guest's optional init export. On any step failure the whole load is
// rolled back; no partial instance is retained.
//
// Loading an id that is already loaded replaces the old instance: the old
// one is unloaded first, so there is never more than one live instance.
func (r *Runtime) Load(ctx context.Context, sp *plugin.StoredPlugin) error {
	ctx, span := r.tracer.Start(ctx, "Runtime.Load",
		trace.WithAttributes(attribute.String("plugin.id", sp.Manifest.ID)))
	defer span.End()

	id := sp.Manifest.ID

	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	r.mu.RLock()
	closed := r.closed
	_, alreadyLoaded := r.instances[id]
	r.mu.RUnlock()
	if closed {
		span.RecordError(plugin.ErrHostClosed)
		return plugin.ErrHostClosed
	}
	if alreadyLoaded {
		if err := r.Unload(ctx, id); err != nil {
			// Unload never fails, but keep the rollback path honest.
			span.RecordError(err)
			return err
		}
	}

	if err := r.host.Register(id, sp.Manifest.Permissions); err != nil {
		span.RecordError(err)
		return err
	}

	manifest := extism.Manifest{
		Wasm: []extism.Wasm{
			extism.WasmData{Data: sp.Wasm},
		},
	}
	config := extism.PluginConfig{
		EnableWasi: true,
	}

	p, err := extism.NewPlugin(ctx, manifest, config, r.hostFunctions(id))
	if err != nil {
		r.host.Unregister(id)
		err = oops.Code(plugin.CodeLoadFailed).
			With("plugin", id).
			Wrapf(err, "compile and instantiate module")
		span.RecordError(err)
		return err
	}

	// init is optional; a guest without one is fine.
	if p.FunctionExists(pluginsdk.ExportInit) {
		if _, _, err := p.Call(pluginsdk.ExportInit, nil); err != nil {
			_ = p.Close(ctx)
			r.host.Unregister(id)
			err = oops.Code(plugin.CodeLoadFailed).
				With("plugin", id).
				Wrapf(err, "guest init")
			span.RecordError(err)
			return err
		}
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = p.Close(ctx)
		r.host.Unregister(id)
		span.RecordError(plugin.ErrHostClosed)
		return plugin.ErrHostClosed
	}
	r.instances[id] = &instance{plugin: p}
	r.mu.Unlock()

	if r.commands != nil && len(sp.Manifest.Provides.Commands) > 0 {
		r.commands.RegisterPluginCommands(id, sp.Manifest.Provides.Commands)
	}

	slog.Info("plugin loaded",
		"plugin", id,
		"version", sp.Manifest.Version,
		"wasm_size", len(sp.Wasm))
	return nil
}

// Unload calls the guest's shutdown export best-effort, closes the
// instance, and unregisters the plugin from the Capability Host. Teardown
// always succeeds from the host's perspective: shutdown errors are
// swallowed and an unknown id is a no-op.
func (r *Runtime) Unload(ctx context.Context, pluginID string) error {
	ctx, span := r.tracer.Start(ctx, "Runtime.Unload",
		trace.WithAttributes(attribute.String("plugin.id", pluginID)))
	defer span.End()

	r.mu.Lock()
	inst, ok := r.instances[pluginID]
	if ok {
		delete(r.instances, pluginID)
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}

	// Wait out any in-flight call before tearing the instance down.
	inst.callMu.Lock()
	defer inst.callMu.Unlock()

	if inst.plugin.FunctionExists(pluginsdk.ExportShutdown) {
		if _, _, err := inst.plugin.Call(pluginsdk.ExportShutdown, nil); err != nil {
			errutil.LogError(slog.Default().With("plugin", pluginID),
				"plugin shutdown failed, continuing teardown", err)
		}
	}
	if err := inst.plugin.Close(ctx); err != nil {
		errutil.LogError(slog.Default().With("plugin", pluginID),
			"failed to close plugin instance", err)
	}

	r.host.Unregister(pluginID)
	if r.commands != nil {
		r.commands.RemovePluginCommands(pluginID)
	}

	slog.Info("plugin unloaded", "plugin", pluginID)
	return nil
}

// IsLoaded reports whether the plugin has a live instance.
func (r *Runtime) IsLoaded(pluginID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}
	_, ok := r.instances[pluginID]
	return ok
}

// LoadedIDs returns the ids of all live instances, sorted.
func (r *Runtime) LoadedIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.instances))
	for id := range r.instances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close unloads every instance and rejects further loads.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	ids := make([]string, 0, len(r.instances))
	for id := range r.instances {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		_ = r.Unload(ctx, id)
	}
	return nil
}

// call invokes a guest export under the instance's exclusive slot.
// exists is false when the guest does not expose the export; callers
// decide whether that is an error for their entry point.
func (r *Runtime) call(pluginID, export string, input []byte) (output []byte, exists bool, err error) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, false, plugin.ErrHostClosed
	}
	inst, ok := r.instances[pluginID]
	r.mu.RUnlock()
	if !ok {
		plugin.RecordCall(pluginID, export, plugin.StatusNotLoaded)
		return nil, false, oops.Code(plugin.CodeCallFailed).
			With("plugin", pluginID).
			Wrapf(plugin.ErrPluginNotFound, "plugin not loaded")
	}

	inst.callMu.Lock()
	defer inst.callMu.Unlock()

	if !inst.plugin.FunctionExists(export) {
		return nil, false, nil
	}

	start := time.Now()
	_, out, err := inst.plugin.Call(export, input)
	plugin.RecordCallDuration(pluginID, export, time.Since(start))
	if err != nil {
		plugin.RecordCall(pluginID, export, plugin.StatusError)
		return nil, true, oops.Code(plugin.CodeCallFailed).
			With("plugin", pluginID).
			With("export", export).
			Wrapf(err, "guest call trapped")
	}
	plugin.RecordCall(pluginID, export, plugin.StatusSuccess)
	return out, true, nil
}

// Search invokes the guest's search export. A guest without one
// contributes no results; that is not an error.
func (r *Runtime) Search(ctx context.Context, pluginID, query string) ([]pluginsdk.SearchResult, error) {
	_, span := r.tracer.Start(ctx, "Runtime.Search",
		trace.WithAttributes(attribute.String("plugin.id", pluginID)))
	defer span.End()

	input, err := json.Marshal(pluginsdk.SearchInput{Query: query})
	if err != nil {
		return nil, oops.Code(plugin.CodeCallFailed).Wrapf(err, "marshal search input")
	}

	out, exists, err := r.call(pluginID, pluginsdk.ExportSearch, input)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !exists {
		plugin.RecordCall(pluginID, pluginsdk.ExportSearch, plugin.StatusMissingExport)
		return nil, nil
	}
	if len(out) == 0 {
		return nil, nil
	}

	var result pluginsdk.SearchOutput
	if err := json.Unmarshal(out, &result); err != nil {
		err = oops.Code(plugin.CodeCallFailed).
			With("plugin", pluginID).
			Wrapf(err, "malformed search output")
		span.RecordError(err)
		return nil, err
	}
	return result.Results, nil
}

// ExecuteAITool invokes the guest's execute_ai_tool export. Unlike search,
// a missing export is an error: the caller explicitly asked for a tool
// that must exist.
func (r *Runtime) ExecuteAITool(ctx context.Context, pluginID, tool string, args json.RawMessage) (pluginsdk.AIToolOutput, error) {
	_, span := r.tracer.Start(ctx, "Runtime.ExecuteAITool",
		trace.WithAttributes(
			attribute.String("plugin.id", pluginID),
			attribute.String("tool.name", tool),
		))
	defer span.End()

	var zero pluginsdk.AIToolOutput

	input, err := json.Marshal(pluginsdk.AIToolInput{Tool: tool, Arguments: args})
	if err != nil {
		return zero, oops.Code(plugin.CodeCallFailed).Wrapf(err, "marshal tool input")
	}

	out, exists, err := r.call(pluginID, pluginsdk.ExportExecuteAITool, input)
	if err != nil {
		span.RecordError(err)
		return zero, err
	}
	if !exists {
		plugin.RecordCall(pluginID, pluginsdk.ExportExecuteAITool, plugin.StatusMissingExport)
		err = oops.Code(plugin.CodeCallFailed).
			With("plugin", pluginID).
			With("tool", tool).
			Errorf("plugin does not export %s", pluginsdk.ExportExecuteAITool)
		span.RecordError(err)
		return zero, err
	}

	var result pluginsdk.AIToolOutput
	if err := json.Unmarshal(out, &result); err != nil {
		err = oops.Code(plugin.CodeCallFailed).
			With("plugin", pluginID).
			With("tool", tool).
			Wrapf(err, "malformed tool output")
		span.RecordError(err)
		return zero, err
	}
	return result, nil
}

// RenderWidget invokes the guest's render_widget export. A guest without
// one renders nothing; that is not an error.
func (r *Runtime) RenderWidget(ctx context.Context, pluginID, widgetID string, config json.RawMessage) (pluginsdk.WidgetOutput, error) {
	_, span := r.tracer.Start(ctx, "Runtime.RenderWidget",
		trace.WithAttributes(
			attribute.String("plugin.id", pluginID),
			attribute.String("widget.id", widgetID),
		))
	defer span.End()

	var zero pluginsdk.WidgetOutput

	input, err := json.Marshal(pluginsdk.WidgetRequest{WidgetID: widgetID, Config: config})
	if err != nil {
		return zero, oops.Code(plugin.CodeCallFailed).Wrapf(err, "marshal widget request")
	}

	out, exists, err := r.call(pluginID, pluginsdk.ExportRenderWidget, input)
	if err != nil {
		span.RecordError(err)
		return zero, err
	}
	if !exists || len(out) == 0 {
		return zero, nil
	}

	var result pluginsdk.WidgetOutput
	if err := json.Unmarshal(out, &result); err != nil {
		err = oops.Code(plugin.CodeCallFailed).
			With("plugin", pluginID).
			With("widget", widgetID).
			Wrapf(err, "malformed widget output")
		span.RecordError(err)
		return zero, err
	}
	return result, nil
}

// IsNotLoaded reports whether err is the "plugin not loaded" call failure.
func IsNotLoaded(err error) bool {
	return errors.Is(err, plugin.ErrPluginNotFound)
}
