// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lumen Contributors

package search

import (
	"context"
	"fmt"

	"github.com/lumenlauncher/lumen/pkg/pluginsdk"
)

// Catalog exposes the subset of the plugin loader the provider needs.
type Catalog interface {
	// IDs returns all catalogued plugin ids.
	IDs() []string
	// IsEnabled reports whether the plugin may serve launcher features.
	IsEnabled(pluginID string) bool
}

// Caller invokes loaded plugin search entry points.
type Caller interface {
	IsLoaded(pluginID string) bool
	Search(ctx context.Context, pluginID, query string) ([]pluginsdk.SearchResult, error)
}

// PluginProvider surfaces results from every enabled and loaded plugin.
// Disabled plugins stay installed but contribute nothing.
type PluginProvider struct {
	catalog Catalog
	caller  Caller
}

// NewPluginProvider wires the plugin catalog and runtime into a search
// provider.
func NewPluginProvider(catalog Catalog, caller Caller) *PluginProvider {
	return &PluginProvider{catalog: catalog, caller: caller}
}

func (p *PluginProvider) ID() string { return "plugins" }

func (p *PluginProvider) Kind() Kind { return KindPlugin }

// Search queries each eligible plugin in turn. Result ids are namespaced
// plugin:<plugin id>:<result id> so entries from different plugins never
// collide. A plugin that returns no score gets DefaultScore.
//
// Per-plugin failures are reported to the aggregator only when every
// eligible plugin fails; otherwise partial results win.
func (p *PluginProvider) Search(ctx context.Context, query string) ([]Result, error) {
	var out []Result
	var lastErr error
	attempted, failed := 0, 0

	for _, id := range p.catalog.IDs() {
		if !p.catalog.IsEnabled(id) || !p.caller.IsLoaded(id) {
			continue
		}
		attempted++

		results, err := p.caller.Search(ctx, id, query)
		if err != nil {
			failed++
			lastErr = err
			continue
		}
		for _, r := range results {
			score := r.Score
			if score == 0 {
				score = DefaultScore
			}
			out = append(out, Result{
				ID:       fmt.Sprintf("plugin:%s:%s", id, r.ID),
				Title:    r.Title,
				Subtitle: r.Subtitle,
				Icon:     r.Icon,
				Score:    score,
				Category: r.Category,
				Kind:     KindPlugin,
				Action:   r.Action,
			})
		}
	}

	if attempted > 0 && failed == attempted {
		return nil, lastErr
	}
	return out, nil
}
