// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lumen Contributors

package hostapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenlauncher/lumen/internal/plugin"
	"github.com/lumenlauncher/lumen/internal/plugin/capability"
	"github.com/lumenlauncher/lumen/internal/plugin/hostapi"
	"github.com/lumenlauncher/lumen/pkg/errutil"
	"github.com/lumenlauncher/lumen/pkg/pluginsdk"
)

// testHost builds a Host whose sandbox and config paths live under a
// temp dir.
func testHost(t *testing.T, opts ...hostapi.Option) (*hostapi.Host, string) {
	t.Helper()

	base := t.TempDir()
	all := append([]hostapi.Option{
		hostapi.WithDataDirFunc(func(id string) string {
			return filepath.Join(base, "plugin_data", id)
		}),
		hostapi.WithConfigPathFunc(func(id string) string {
			return filepath.Join(base, "plugin_configs", id+".json")
		}),
	}, opts...)

	return hostapi.NewHost(capability.NewEnforcer(), all...), base
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, code)
}

func TestHostRegister_CreatesSandboxDir(t *testing.T) {
	h, base := testHost(t)

	err := h.Register("clock", []plugin.Permission{plugin.PermFilesystemRead})
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(base, "plugin_data", "clock"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestHostReadWriteFile(t *testing.T) {
	h, _ := testHost(t)
	ctx := context.Background()

	perms := []plugin.Permission{plugin.PermFilesystemRead, plugin.PermFilesystemWrite}
	require.NoError(t, h.Register("notes", perms))

	require.NoError(t, h.WriteFile(ctx, "notes", "todo/today.md", []byte("ship it")))

	data, err := h.ReadFile(ctx, "notes", "todo/today.md")
	require.NoError(t, err)
	assert.Equal(t, []byte("ship it"), data)
}

func TestHostReadFile_ReadOnlyPlugin(t *testing.T) {
	h, base := testHost(t)
	ctx := context.Background()

	require.NoError(t, h.Register("viewer", []plugin.Permission{plugin.PermFilesystemRead}))

	// seed a file directly in the sandbox
	dataDir := filepath.Join(base, "plugin_data", "viewer")
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "seed.txt"), []byte("hello"), 0o600))

	data, err := h.ReadFile(ctx, "viewer", "seed.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	err = h.WriteFile(ctx, "viewer", "seed.txt", []byte("overwrite"))
	assertCode(t, err, plugin.CodePermissionDenied)
}

func TestHostFile_NoFilesystemPermission(t *testing.T) {
	h, _ := testHost(t)
	ctx := context.Background()

	require.NoError(t, h.Register("netonly", []plugin.Permission{plugin.PermNetwork}))

	_, err := h.ReadFile(ctx, "netonly", "any.txt")
	assertCode(t, err, plugin.CodePermissionDenied)

	err = h.WriteFile(ctx, "netonly", "any.txt", []byte("nope"))
	assertCode(t, err, plugin.CodePermissionDenied)
}

func TestHostFile_UnregisteredPlugin(t *testing.T) {
	h, _ := testHost(t)

	_, err := h.ReadFile(context.Background(), "ghost", "x.txt")
	assertCode(t, err, plugin.CodeNotRegistered)
}

func TestHostFile_TraversalDenied(t *testing.T) {
	h, _ := testHost(t)
	ctx := context.Background()

	perms := []plugin.Permission{plugin.PermFilesystemRead, plugin.PermFilesystemWrite}
	require.NoError(t, h.Register("sneaky", perms))

	_, err := h.ReadFile(ctx, "sneaky", "../other-plugin/secrets.json")
	assertCode(t, err, plugin.CodePathTraversalDenied)

	err = h.WriteFile(ctx, "sneaky", "/etc/cron.d/evil", []byte("x"))
	assertCode(t, err, plugin.CodePathTraversalDenied)
}

func TestHostUnregister_RevokesAccess(t *testing.T) {
	h, _ := testHost(t)
	ctx := context.Background()

	require.NoError(t, h.Register("brief", []plugin.Permission{plugin.PermFilesystemRead}))
	h.Unregister("brief")

	_, err := h.ReadFile(ctx, "brief", "x.txt")
	assertCode(t, err, plugin.CodeNotRegistered)
}

func TestHostHTTPRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "lumen-test", r.Header.Get("X-Client"))
		w.Header().Set("X-Server", "test")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	h, _ := testHost(t)
	require.NoError(t, h.Register("fetcher", []plugin.Permission{plugin.PermNetwork}))

	resp, err := h.HTTPRequest(context.Background(), "fetcher", pluginsdk.HTTPRequest{
		URL:     srv.URL,
		Method:  http.MethodGet,
		Headers: map[string]string{"X-Client": "lumen-test"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, resp.Status)
	assert.Equal(t, `{"ok":true}`, resp.Body)
	assert.Equal(t, "test", resp.Headers["X-Server"])
}

func TestHostHTTPRequest_NoNetworkPermission(t *testing.T) {
	h, _ := testHost(t)
	require.NoError(t, h.Register("offline", []plugin.Permission{plugin.PermFilesystemRead}))

	_, err := h.HTTPRequest(context.Background(), "offline", pluginsdk.HTTPRequest{
		URL:    "https://example.com",
		Method: http.MethodGet,
	})
	assertCode(t, err, plugin.CodePermissionDenied)
}

func TestHostConfig_MissingIsEmpty(t *testing.T) {
	h, _ := testHost(t)
	require.NoError(t, h.Register("clock", nil))

	cfg, err := h.GetConfig("clock")
	require.NoError(t, err)
	assert.Empty(t, cfg.Values)
}

func TestHostConfig_RoundTrip(t *testing.T) {
	h, _ := testHost(t)
	require.NoError(t, h.Register("clock", nil))

	in := pluginsdk.Config{Values: map[string]json.RawMessage{
		"format": json.RawMessage(`"24h"`),
		"zones":  json.RawMessage(`["UTC","CET"]`),
	}}
	require.NoError(t, h.SetConfig("clock", in))

	out, err := h.GetConfig("clock")
	require.NoError(t, err)
	assert.Equal(t, in.Values, out.Values)
}

func TestHostConfig_CorruptIsEmpty(t *testing.T) {
	h, base := testHost(t)
	require.NoError(t, h.Register("clock", nil))

	path := filepath.Join(base, "plugin_configs", "clock.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	cfg, err := h.GetConfig("clock")
	require.NoError(t, err)
	assert.Empty(t, cfg.Values)
}

// captureNotifier records delivered notifications.
type captureNotifier struct {
	titles []string
}

func (c *captureNotifier) Notify(_ context.Context, _, title, _ string) error {
	c.titles = append(c.titles, title)
	return nil
}

func TestHostShowNotification(t *testing.T) {
	notifier := &captureNotifier{}
	h, _ := testHost(t, hostapi.WithNotifier(notifier))
	ctx := context.Background()

	require.NoError(t, h.Register("alerts", []plugin.Permission{plugin.PermNotifications}))
	require.NoError(t, h.ShowNotification(ctx, "alerts", "Build done", "All green"))
	assert.Equal(t, []string{"Build done"}, notifier.titles)

	require.NoError(t, h.Register("quiet", nil))
	err := h.ShowNotification(ctx, "quiet", "Nope", "")
	assertCode(t, err, plugin.CodePermissionDenied)
	assert.Len(t, notifier.titles, 1)
}

// staticTokens serves a fixed provider->token map.
type staticTokens map[string]string

func (s staticTokens) GetTokenIfValid(_ context.Context, provider string) (string, bool) {
	tok, ok := s[provider]
	return tok, ok
}

func TestHostGetOAuthToken(t *testing.T) {
	h, _ := testHost(t, hostapi.WithTokenSource(staticTokens{"github": "gho_abc123"}))
	ctx := context.Background()

	require.NoError(t, h.Register("gh", []plugin.Permission{plugin.PermOAuth("github")}))

	token, err := h.GetOAuthToken(ctx, "gh", "github")
	require.NoError(t, err)
	assert.Equal(t, "gho_abc123", token)

	// declared provider but no live token
	require.NoError(t, h.Register("sl", []plugin.Permission{plugin.PermOAuth("slack")}))
	_, err = h.GetOAuthToken(ctx, "sl", "slack")
	assertCode(t, err, plugin.CodeTokenUnavailable)

	// undeclared provider
	_, err = h.GetOAuthToken(ctx, "gh", "slack")
	assertCode(t, err, plugin.CodePermissionDenied)
}

func TestHostGetOAuthToken_NoTokenSource(t *testing.T) {
	h, _ := testHost(t)
	require.NoError(t, h.Register("gh", []plugin.Permission{plugin.PermOAuth("github")}))

	_, err := h.GetOAuthToken(context.Background(), "gh", "github")
	assertCode(t, err, plugin.CodeTokenUnavailable)
}
