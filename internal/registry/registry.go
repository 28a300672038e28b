// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lumen Contributors

// Package registry talks to the plugin marketplace: it fetches the
// published plugin index, caches it locally for offline use, and downloads
// plugin archives with checksum verification.
package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/lumenlauncher/lumen/internal/plugin"
)

const (
	// DefaultBaseURL is the public marketplace API.
	DefaultBaseURL = "https://registry.lumenlauncher.dev/api/v1"

	// cacheFileName holds the last successfully fetched index.
	cacheFileName = "registry_index.json"

	// cacheTTL is how long a cached index is considered fresh. A stale
	// cache is still served when the network is unreachable.
	cacheTTL = time.Hour

	// maxArchiveSize caps plugin downloads.
	maxArchiveSize = 64 << 20
)

// Plugin is one marketplace index entry.
type Plugin struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
	Author      string `json:"author,omitempty"`
	Category    string `json:"category,omitempty"`
	DownloadURL string `json:"download_url"`
	Checksum    string `json:"checksum,omitempty"`
	Downloads   int64  `json:"downloads,omitempty"`
}

// index is the cached document: the fetched entries plus when we got them.
type index struct {
	FetchedAt time.Time `json:"fetched_at"`
	Plugins   []Plugin  `json:"plugins"`
}

// Client fetches and caches the marketplace index.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cacheDir   string
}

// Option configures the Client.
type Option func(*Client)

// WithBaseURL points the client at a different marketplace API.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the client used for index and archive requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a marketplace client caching under cacheDir.
func NewClient(cacheDir string, opts ...Option) *Client {
	c := &Client{
		baseURL:  DefaultBaseURL,
		cacheDir: cacheDir,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return c
}

// Index returns the marketplace entries. A fresh cache is served without a
// network round trip; otherwise the index is fetched with retry and the
// cache rewritten. When the fetch fails and a cache of any age exists, the
// stale cache is served with offline=true.
func (c *Client) Index(ctx context.Context) (plugins []Plugin, offline bool, err error) {
	if cached, ok := c.readCache(); ok && time.Since(cached.FetchedAt) < cacheTTL {
		return cached.Plugins, false, nil
	}

	fetched, err := c.fetchIndex(ctx)
	if err != nil {
		if cached, ok := c.readCache(); ok {
			slog.Warn("marketplace unreachable, serving cached index",
				"cached_at", cached.FetchedAt,
				"error", err)
			return cached.Plugins, true, nil
		}
		return nil, false, err
	}

	c.writeCache(index{FetchedAt: time.Now().UTC(), Plugins: fetched})
	return fetched, false, nil
}

// fetchIndex pulls the index with exponential backoff. Server-side and
// transport failures are retried; a malformed document is not.
func (c *Client) fetchIndex(ctx context.Context) ([]Plugin, error) {
	var plugins []Plugin

	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/plugins", nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("marketplace returned %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("marketplace returned %d", resp.StatusCode)
		}

		var doc struct {
			Plugins []Plugin `json:"plugins"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
			return fmt.Errorf("decode index: %w", err)
		}
		plugins = doc.Plugins
		return nil
	})
	if err != nil {
		return nil, oops.Code(plugin.CodeIOError).
			With("url", c.baseURL).
			Wrapf(err, "fetch marketplace index")
	}
	return plugins, nil
}

// Search filters entries by case-insensitive substring match on id, name,
// and description.
func Search(plugins []Plugin, query string) []Plugin {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return plugins
	}

	var out []Plugin
	for _, p := range plugins {
		if strings.Contains(strings.ToLower(p.ID), q) ||
			strings.Contains(strings.ToLower(p.Name), q) ||
			strings.Contains(strings.ToLower(p.Description), q) {
			out = append(out, p)
		}
	}
	return out
}

// ByCategory filters entries to one category.
func ByCategory(plugins []Plugin, category string) []Plugin {
	var out []Plugin
	for _, p := range plugins {
		if strings.EqualFold(p.Category, category) {
			out = append(out, p)
		}
	}
	return out
}

// Categories returns the distinct categories present, sorted.
func Categories(plugins []Plugin) []string {
	seen := make(map[string]struct{})
	for _, p := range plugins {
		if p.Category != "" {
			seen[p.Category] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Download streams the plugin archive into destDir, verifying the sha256
// checksum when the index declares one. Returns the archive path.
func (c *Client) Download(ctx context.Context, p Plugin, destDir string) (string, error) {
	if p.DownloadURL == "" {
		return "", oops.Code(plugin.CodeIOError).
			With("plugin", p.ID).
			Errorf("index entry has no download url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.DownloadURL, nil)
	if err != nil {
		return "", oops.Code(plugin.CodeIOError).
			With("plugin", p.ID).
			Wrapf(err, "build download request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", oops.Code(plugin.CodeIOError).
			With("plugin", p.ID).
			Wrapf(err, "download archive")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", oops.Code(plugin.CodeIOError).
			With("plugin", p.ID).
			With("status", resp.StatusCode).
			Errorf("archive download failed")
	}

	if err := os.MkdirAll(destDir, 0o700); err != nil {
		return "", oops.Code(plugin.CodeIOError).Wrapf(err, "create download directory")
	}
	tmp, err := os.CreateTemp(destDir, "."+p.ID+"-*")
	if err != nil {
		return "", oops.Code(plugin.CodeIOError).Wrapf(err, "create temp archive")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	hash := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hash), io.LimitReader(resp.Body, maxArchiveSize)); err != nil {
		_ = tmp.Close()
		return "", oops.Code(plugin.CodeIOError).
			With("plugin", p.ID).
			Wrapf(err, "stream archive")
	}
	if err := tmp.Close(); err != nil {
		return "", oops.Code(plugin.CodeIOError).Wrapf(err, "close temp archive")
	}

	if p.Checksum != "" {
		got := hex.EncodeToString(hash.Sum(nil))
		if !strings.EqualFold(got, p.Checksum) {
			return "", oops.Code(plugin.CodeIOError).
				With("plugin", p.ID).
				With("expected", p.Checksum).
				With("got", got).
				Errorf("archive checksum mismatch")
		}
	}

	dest := filepath.Join(destDir, p.ID+".zip")
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", oops.Code(plugin.CodeIOError).
			With("plugin", p.ID).
			Wrapf(err, "move archive into place")
	}
	return dest, nil
}

func (c *Client) cachePath() string {
	return filepath.Join(c.cacheDir, cacheFileName)
}

func (c *Client) readCache() (index, bool) {
	var idx index
	data, err := os.ReadFile(c.cachePath())
	if err != nil {
		return idx, false
	}
	if err := json.Unmarshal(data, &idx); err != nil {
		slog.Warn("corrupt registry cache, ignoring", "error", err)
		return index{}, false
	}
	return idx, true
}

func (c *Client) writeCache(idx index) {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return
	}
	if err := os.MkdirAll(c.cacheDir, 0o700); err != nil {
		slog.Warn("failed to create registry cache dir", "error", err)
		return
	}
	if err := os.WriteFile(c.cachePath(), data, 0o600); err != nil {
		slog.Warn("failed to write registry cache", "error", err)
	}
}
