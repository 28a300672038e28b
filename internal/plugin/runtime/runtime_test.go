// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lumen Contributors

package runtime_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/goleak"

	"github.com/lumenlauncher/lumen/internal/plugin"
	"github.com/lumenlauncher/lumen/internal/plugin/capability"
	"github.com/lumenlauncher/lumen/internal/plugin/hostapi"
	"github.com/lumenlauncher/lumen/internal/plugin/runtime"
	"github.com/lumenlauncher/lumen/pkg/errutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testRuntime(t *testing.T) *runtime.Runtime {
	t.Helper()

	base := t.TempDir()
	host := hostapi.NewHost(capability.NewEnforcer(),
		hostapi.WithDataDirFunc(func(id string) string {
			return filepath.Join(base, "plugin_data", id)
		}),
		hostapi.WithConfigPathFunc(func(id string) string {
			return filepath.Join(base, "plugin_configs", id+".json")
		}),
	)
	return runtime.New(host, noop.NewTracerProvider().Tracer("test"))
}

func storedPlugin(id string, wasm []byte) *plugin.StoredPlugin {
	return &plugin.StoredPlugin{
		Manifest: &plugin.Manifest{
			ID:      id,
			Name:    "Test",
			Version: "0.1.0",
			Entry:   "plugin.wasm",
		},
		Wasm:    wasm,
		Enabled: true,
	}
}

func TestRuntimeLoad_InvalidModuleRollsBack(t *testing.T) {
	rt := testRuntime(t)
	ctx := context.Background()
	defer func() { require.NoError(t, rt.Close(ctx)) }()

	err := rt.Load(ctx, storedPlugin("broken", []byte("not wasm at all")))
	require.Error(t, err)

	// nothing half-loaded left behind
	assert.False(t, rt.IsLoaded("broken"))
	assert.Empty(t, rt.LoadedIDs())
}

func TestRuntimeUnload_UnknownIsNoop(t *testing.T) {
	rt := testRuntime(t)
	ctx := context.Background()
	defer func() { require.NoError(t, rt.Close(ctx)) }()

	assert.NoError(t, rt.Unload(ctx, "ghost"))
	assert.NoError(t, rt.Unload(ctx, "ghost"))
}

func TestRuntimeSearch_NotLoaded(t *testing.T) {
	rt := testRuntime(t)
	ctx := context.Background()
	defer func() { require.NoError(t, rt.Close(ctx)) }()

	_, err := rt.Search(ctx, "ghost", "query")
	require.Error(t, err)
	assert.True(t, runtime.IsNotLoaded(err))
}

func TestRuntimeExecuteAITool_NotLoaded(t *testing.T) {
	rt := testRuntime(t)
	ctx := context.Background()
	defer func() { require.NoError(t, rt.Close(ctx)) }()

	_, err := rt.ExecuteAITool(ctx, "ghost", "lookup", nil)
	require.Error(t, err)
	assert.True(t, runtime.IsNotLoaded(err))
}

func TestRuntimeClose_RejectsFurtherLoads(t *testing.T) {
	rt := testRuntime(t)
	ctx := context.Background()

	require.NoError(t, rt.Close(ctx))
	require.NoError(t, rt.Close(ctx))

	err := rt.Load(ctx, storedPlugin("late", []byte{0x00}))
	assert.ErrorIs(t, err, plugin.ErrHostClosed)
	assert.False(t, rt.IsLoaded("late"))
	assert.Empty(t, rt.LoadedIDs())
}

// emptyModule is the smallest valid module: header and version, no
// exports. It instantiates cleanly, so missing-export behavior can be
// exercised against a live instance.
var emptyModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func TestRuntimeLoad_MinimalModule(t *testing.T) {
	rt := testRuntime(t)
	ctx := context.Background()
	defer func() { require.NoError(t, rt.Close(ctx)) }()

	require.NoError(t, rt.Load(ctx, storedPlugin("clock", emptyModule)))

	assert.True(t, rt.IsLoaded("clock"))
	assert.Equal(t, []string{"clock"}, rt.LoadedIDs())
}

func TestRuntimeSearch_MissingExportIsEmpty(t *testing.T) {
	rt := testRuntime(t)
	ctx := context.Background()
	defer func() { require.NoError(t, rt.Close(ctx)) }()

	require.NoError(t, rt.Load(ctx, storedPlugin("clock", emptyModule)))

	results, err := rt.Search(ctx, "clock", "anything")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRuntimeExecuteAITool_MissingExportIsError(t *testing.T) {
	rt := testRuntime(t)
	ctx := context.Background()
	defer func() { require.NoError(t, rt.Close(ctx)) }()

	require.NoError(t, rt.Load(ctx, storedPlugin("clock", emptyModule)))

	_, err := rt.ExecuteAITool(ctx, "clock", "lookup", nil)
	require.Error(t, err)
	assert.False(t, runtime.IsNotLoaded(err))
	errutil.AssertErrorCode(t, err, plugin.CodeCallFailed)
	errutil.AssertErrorContext(t, err, "tool", "lookup")
}

func TestRuntimeRenderWidget_MissingExportIsEmpty(t *testing.T) {
	rt := testRuntime(t)
	ctx := context.Background()
	defer func() { require.NoError(t, rt.Close(ctx)) }()

	require.NoError(t, rt.Load(ctx, storedPlugin("clock", emptyModule)))

	out, err := rt.RenderWidget(ctx, "clock", "w1", nil)
	require.NoError(t, err)
	assert.Zero(t, out)
}

func TestRuntimeLoad_ReloadReplacesInstance(t *testing.T) {
	rt := testRuntime(t)
	ctx := context.Background()
	defer func() { require.NoError(t, rt.Close(ctx)) }()

	require.NoError(t, rt.Load(ctx, storedPlugin("clock", emptyModule)))
	require.NoError(t, rt.Load(ctx, storedPlugin("clock", emptyModule)))

	assert.Equal(t, []string{"clock"}, rt.LoadedIDs())

	// disable/enable cycle: unload, then load again
	require.NoError(t, rt.Unload(ctx, "clock"))
	assert.False(t, rt.IsLoaded("clock"))
	require.NoError(t, rt.Load(ctx, storedPlugin("clock", emptyModule)))
	assert.Equal(t, []string{"clock"}, rt.LoadedIDs())
}

func TestRuntimeLoad_ConcurrentSameID(t *testing.T) {
	rt := testRuntime(t)
	ctx := context.Background()
	defer func() { require.NoError(t, rt.Close(ctx)) }()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, rt.Load(ctx, storedPlugin("clock", emptyModule)))
		}()
	}
	wg.Wait()

	// every racing load either won or was cleanly replaced
	assert.Equal(t, []string{"clock"}, rt.LoadedIDs())
}
