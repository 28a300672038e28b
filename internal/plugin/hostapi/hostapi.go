// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lumen Contributors

// Package hostapi implements the Capability Host: the only code path
// allowed to touch the real filesystem, network, or credential store on a
// plugin's behalf. Every operation is gated by the permission set the
// plugin's manifest declared, compiled into the capability enforcer at
// registration time.
package hostapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/lumenlauncher/lumen/internal/plugin"
	"github.com/lumenlauncher/lumen/internal/plugin/capability"
	"github.com/lumenlauncher/lumen/internal/xdg"
	"github.com/lumenlauncher/lumen/pkg/pluginsdk"
)

// maxResponseBody caps how much of an outbound HTTP response is buffered
// for a guest. Guests get JSON documents, not streams.
const maxResponseBody = 10 << 20

// TokenSource supplies OAuth access tokens from the external credential
// collaborator. The host never refreshes tokens itself.
type TokenSource interface {
	// GetTokenIfValid returns a live access token for the provider, or
	// false if none is available.
	GetTokenIfValid(ctx context.Context, provider string) (string, bool)
}

// Notifier delivers desktop notifications. Implementations must not block
// on user interaction.
type Notifier interface {
	Notify(ctx context.Context, pluginID, title, body string) error
}

// logNotifier is the fallback Notifier: it logs instead of displaying.
type logNotifier struct{}

func (logNotifier) Notify(_ context.Context, pluginID, title, body string) error {
	slog.Info("notification", "plugin", pluginID, "title", title, "body", body)
	return nil
}

// Host implements the capability-scoped operation surface plugins call
// through the Execution Runtime's host functions.
type Host struct {
	enforcer      *capability.Enforcer
	dataDirFor    func(pluginID string) string
	configPathFor func(pluginID string) string
	httpClient    *http.Client
	httpTimeout   time.Duration
	tokens        TokenSource
	notifier      Notifier

	mu        sync.RWMutex
	sandboxes map[string]*FsSandbox
}

// Option configures the Host.
type Option func(*Host)

// WithHTTPClient sets the client for outbound requests made on plugins'
// behalf.
func WithHTTPClient(c *http.Client) Option {
	return func(h *Host) { h.httpClient = c }
}

// WithHTTPTimeout bounds each outbound request. Outbound calls are
// synchronous from the guest's point of view; the timeout keeps a stalled
// server from pinning a call slot forever.
func WithHTTPTimeout(d time.Duration) Option {
	return func(h *Host) { h.httpTimeout = d }
}

// WithTokenSource sets the OAuth credential collaborator.
func WithTokenSource(ts TokenSource) Option {
	return func(h *Host) { h.tokens = ts }
}

// WithNotifier sets the notification sink.
func WithNotifier(n Notifier) Option {
	return func(h *Host) { h.notifier = n }
}

// WithDataDirFunc overrides where per-plugin sandbox roots live.
func WithDataDirFunc(fn func(pluginID string) string) Option {
	return func(h *Host) { h.dataDirFor = fn }
}

// WithConfigPathFunc overrides where per-plugin config documents live.
func WithConfigPathFunc(fn func(pluginID string) string) Option {
	return func(h *Host) { h.configPathFor = fn }
}

// NewHost creates a Capability Host backed by the given enforcer.
func NewHost(enforcer *capability.Enforcer, opts ...Option) *Host {
	h := &Host{
		enforcer:      enforcer,
		dataDirFor:    xdg.PluginDataDir,
		configPathFor: xdg.PluginConfigPath,
		httpTimeout:   30 * time.Second,
		notifier:      logNotifier{},
		sandboxes:     make(map[string]*FsSandbox),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.httpClient == nil {
		h.httpClient = &http.Client{Timeout: h.httpTimeout}
	}
	return h
}

// Register compiles a plugin's declared permissions into the enforcer,
// creates its sandbox directory, and records its FsSandbox. The declared
// set is a ceiling; nothing escalates it later.
func (h *Host) Register(pluginID string, perms []plugin.Permission) error {
	patterns := make([]string, len(perms))
	canRead, canWrite := false, false
	for i, p := range perms {
		patterns[i] = string(p)
		switch p {
		case plugin.PermFilesystemRead:
			canRead = true
		case plugin.PermFilesystemWrite:
			canWrite = true
		}
	}

	if err := h.enforcer.SetGrants(pluginID, patterns); err != nil {
		return oops.Code(plugin.CodeManifestInvalid).
			With("plugin", pluginID).
			Wrapf(err, "compile permission grants")
	}

	dataDir := h.dataDirFor(pluginID)
	if err := xdg.EnsureDir(dataDir); err != nil {
		h.enforcer.RemoveGrants(pluginID)
		return oops.Code(plugin.CodeIOError).
			With("plugin", pluginID).
			Wrapf(err, "create sandbox directory")
	}

	h.mu.Lock()
	h.sandboxes[pluginID] = &FsSandbox{CanRead: canRead, CanWrite: canWrite, DataDir: dataDir}
	h.mu.Unlock()

	slog.Debug("registered plugin sandbox",
		"plugin", pluginID,
		"data_dir", dataDir,
		"read", canRead,
		"write", canWrite)
	return nil
}

// Unregister drops the plugin's grants and sandbox record. In-flight calls
// already past their permission check are allowed to finish.
func (h *Host) Unregister(pluginID string) {
	h.enforcer.RemoveGrants(pluginID)

	h.mu.Lock()
	delete(h.sandboxes, pluginID)
	h.mu.Unlock()
}

// sandbox returns the plugin's sandbox record or a NOT_REGISTERED error.
func (h *Host) sandbox(pluginID string) (*FsSandbox, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sb, ok := h.sandboxes[pluginID]
	if !ok {
		return nil, oops.Code(plugin.CodeNotRegistered).
			With("plugin", pluginID).
			Errorf("plugin not registered with capability host")
	}
	return sb, nil
}

// ReadFile reads a file from the plugin's sandbox. Requires
// filesystem:read.
func (h *Host) ReadFile(_ context.Context, pluginID, rel string) ([]byte, error) {
	sb, err := h.sandbox(pluginID)
	if err != nil {
		plugin.RecordHostOp(pluginID, "read_file", plugin.StatusError)
		return nil, err
	}
	if !h.enforcer.Check(pluginID, string(plugin.PermFilesystemRead)) {
		plugin.RecordHostOp(pluginID, "read_file", plugin.StatusError)
		return nil, oops.Code(plugin.CodePermissionDenied).
			With("plugin", pluginID).
			Errorf("plugin lacks %s permission", plugin.PermFilesystemRead)
	}

	path, err := sb.Resolve(rel)
	if err != nil {
		plugin.RecordHostOp(pluginID, "read_file", plugin.StatusError)
		return nil, err
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is sandbox-resolved
	if err != nil {
		plugin.RecordHostOp(pluginID, "read_file", plugin.StatusError)
		return nil, oops.Code(plugin.CodeIOError).
			With("plugin", pluginID).
			Wrapf(err, "read %s", rel)
	}
	plugin.RecordHostOp(pluginID, "read_file", plugin.StatusSuccess)
	return data, nil
}

// WriteFile writes a file inside the plugin's sandbox, creating missing
// parent directories. Requires filesystem:write.
func (h *Host) WriteFile(_ context.Context, pluginID, rel string, data []byte) error {
	sb, err := h.sandbox(pluginID)
	if err != nil {
		plugin.RecordHostOp(pluginID, "write_file", plugin.StatusError)
		return err
	}
	if !h.enforcer.Check(pluginID, string(plugin.PermFilesystemWrite)) {
		plugin.RecordHostOp(pluginID, "write_file", plugin.StatusError)
		return oops.Code(plugin.CodePermissionDenied).
			With("plugin", pluginID).
			Errorf("plugin lacks %s permission", plugin.PermFilesystemWrite)
	}

	path, err := sb.Resolve(rel)
	if err != nil {
		plugin.RecordHostOp(pluginID, "write_file", plugin.StatusError)
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		plugin.RecordHostOp(pluginID, "write_file", plugin.StatusError)
		return oops.Code(plugin.CodeIOError).
			With("plugin", pluginID).
			Wrapf(err, "create parent directories for %s", rel)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		plugin.RecordHostOp(pluginID, "write_file", plugin.StatusError)
		return oops.Code(plugin.CodeIOError).
			With("plugin", pluginID).
			Wrapf(err, "write %s", rel)
	}
	plugin.RecordHostOp(pluginID, "write_file", plugin.StatusSuccess)
	return nil
}

// HTTPRequest performs an outbound HTTP request on the plugin's behalf.
// Requires the network permission; the guest never gets socket access.
// The request is synchronous for the caller and bounded by the host's
// timeout and ctx.
func (h *Host) HTTPRequest(ctx context.Context, pluginID string, req pluginsdk.HTTPRequest) (pluginsdk.HTTPResponse, error) {
	var zero pluginsdk.HTTPResponse

	if _, err := h.sandbox(pluginID); err != nil {
		plugin.RecordHostOp(pluginID, "http_request", plugin.StatusError)
		return zero, err
	}
	if !h.enforcer.Check(pluginID, string(plugin.PermNetwork)) {
		plugin.RecordHostOp(pluginID, "http_request", plugin.StatusError)
		return zero, oops.Code(plugin.CodePermissionDenied).
			With("plugin", pluginID).
			Errorf("plugin lacks %s permission", plugin.PermNetwork)
	}

	reqCtx, cancel := context.WithTimeout(ctx, h.httpTimeout)
	defer cancel()

	var body io.Reader
	if req.Body != "" {
		body = bytes.NewBufferString(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(reqCtx, req.Method, req.URL, body)
	if err != nil {
		plugin.RecordHostOp(pluginID, "http_request", plugin.StatusError)
		return zero, oops.Code(plugin.CodeCallFailed).
			With("plugin", pluginID).
			With("url", req.URL).
			Wrapf(err, "build request")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := h.httpClient.Do(httpReq)
	if err != nil {
		plugin.RecordHostOp(pluginID, "http_request", plugin.StatusError)
		return zero, oops.Code(plugin.CodeIOError).
			With("plugin", pluginID).
			With("url", req.URL).
			Wrapf(err, "perform request")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		plugin.RecordHostOp(pluginID, "http_request", plugin.StatusError)
		return zero, oops.Code(plugin.CodeIOError).
			With("plugin", pluginID).
			With("url", req.URL).
			Wrapf(err, "read response body")
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	plugin.RecordHostOp(pluginID, "http_request", plugin.StatusSuccess)
	return pluginsdk.HTTPResponse{
		Status:  resp.StatusCode,
		Headers: headers,
		Body:    string(data),
	}, nil
}

// GetConfig reads the plugin's JSON config document. Not permission-gated;
// a missing or unreadable document yields an empty config.
func (h *Host) GetConfig(pluginID string) (pluginsdk.Config, error) {
	empty := pluginsdk.Config{Values: map[string]json.RawMessage{}}

	if _, err := h.sandbox(pluginID); err != nil {
		return empty, err
	}

	data, err := os.ReadFile(h.configPathFor(pluginID)) //nolint:gosec // fixed per-plugin path
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("unreadable plugin config, treating as empty",
				"plugin", pluginID,
				"error", err)
		}
		return empty, nil
	}

	var cfg pluginsdk.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		slog.Warn("corrupt plugin config, treating as empty",
			"plugin", pluginID,
			"error", err)
		return empty, nil
	}
	if cfg.Values == nil {
		cfg.Values = map[string]json.RawMessage{}
	}
	return cfg, nil
}

// SetConfig atomically replaces the plugin's JSON config document. Not
// permission-gated.
func (h *Host) SetConfig(pluginID string, cfg pluginsdk.Config) error {
	if _, err := h.sandbox(pluginID); err != nil {
		return err
	}

	// Compact encoding: MarshalIndent would re-indent nested RawMessage
	// values and break the byte-for-byte round trip through GetConfig.
	data, err := json.Marshal(cfg)
	if err != nil {
		return oops.Code(plugin.CodeIOError).
			With("plugin", pluginID).
			Wrapf(err, "serialize config")
	}

	path := h.configPathFor(pluginID)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return oops.Code(plugin.CodeIOError).
			With("plugin", pluginID).
			Wrapf(err, "create config directory")
	}

	// Temp-and-rename so a crash mid-write never leaves a torn document.
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+pluginID+"-*")
	if err != nil {
		return oops.Code(plugin.CodeIOError).
			With("plugin", pluginID).
			Wrapf(err, "create temp config")
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return oops.Code(plugin.CodeIOError).
			With("plugin", pluginID).
			Wrapf(err, "write config")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return oops.Code(plugin.CodeIOError).
			With("plugin", pluginID).
			Wrapf(err, "close temp config")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return oops.Code(plugin.CodeIOError).
			With("plugin", pluginID).
			Wrapf(err, "replace config")
	}
	return nil
}

// ShowNotification displays a desktop notification. Requires the
// notifications permission; delivery is best-effort and never blocks the
// guest call on UI state.
func (h *Host) ShowNotification(ctx context.Context, pluginID, title, body string) error {
	if _, err := h.sandbox(pluginID); err != nil {
		return err
	}
	if !h.enforcer.Check(pluginID, string(plugin.PermNotifications)) {
		return oops.Code(plugin.CodePermissionDenied).
			With("plugin", pluginID).
			Errorf("plugin lacks %s permission", plugin.PermNotifications)
	}

	if err := h.notifier.Notify(ctx, pluginID, title, body); err != nil {
		// Best-effort: the guest asked for a side effect, not a receipt.
		slog.Warn("notification delivery failed",
			"plugin", pluginID,
			"error", err)
	}
	return nil
}

// GetOAuthToken proxies to the external OAuth collaborator. Requires the
// oauth:<provider> permission.
func (h *Host) GetOAuthToken(ctx context.Context, pluginID, provider string) (string, error) {
	if _, err := h.sandbox(pluginID); err != nil {
		return "", err
	}
	if !h.enforcer.Check(pluginID, string(plugin.PermOAuth(provider))) {
		return "", oops.Code(plugin.CodePermissionDenied).
			With("plugin", pluginID).
			With("provider", provider).
			Errorf("plugin lacks %s permission", plugin.PermOAuth(provider))
	}

	if h.tokens == nil {
		return "", oops.Code(plugin.CodeTokenUnavailable).
			With("plugin", pluginID).
			With("provider", provider).
			Errorf("no token source configured")
	}
	token, ok := h.tokens.GetTokenIfValid(ctx, provider)
	if !ok {
		return "", oops.Code(plugin.CodeTokenUnavailable).
			With("plugin", pluginID).
			With("provider", provider).
			Errorf("no valid token for provider")
	}
	return token, nil
}

// Log writes a plugin-scoped log record. Never permission-gated.
func (h *Host) Log(pluginID, level, message string) {
	logger := slog.Default().With("plugin", pluginID)
	switch level {
	case "debug":
		logger.Debug(message)
	case "info":
		logger.Info(message)
	case "warn":
		logger.Warn(message)
	case "error":
		logger.Error(message)
	default:
		logger.Info(message)
	}
}
