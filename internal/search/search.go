// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lumen Contributors

// Package search merges launcher results from multiple providers into a
// single ranked list. Providers are closed by kind: the aggregator knows
// which families of results exist, not which instances.
package search

import (
	"context"
	"log/slog"
	"sort"

	"github.com/lumenlauncher/lumen/pkg/pluginsdk"
)

// Kind identifies the family a provider belongs to.
type Kind string

const (
	// KindBuiltin is a provider compiled into the launcher itself.
	KindBuiltin Kind = "builtin"
	// KindPlugin is a provider backed by a loaded plugin.
	KindPlugin Kind = "plugin"
)

// DefaultScore is applied to results whose provider did not score them.
const DefaultScore = 50

// Result is one ranked launcher entry.
type Result struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Subtitle string            `json:"subtitle,omitempty"`
	Icon     string            `json:"icon,omitempty"`
	Score    float64           `json:"score"`
	Category string            `json:"category,omitempty"`
	Kind     Kind              `json:"kind"`
	Action   *pluginsdk.Action `json:"action,omitempty"`
}

// Provider produces results for a query. Implementations must be safe for
// concurrent use.
type Provider interface {
	// ID names the provider for logging and result attribution.
	ID() string
	// Kind reports the provider's family.
	Kind() Kind
	// Search returns ranked results for the query. An empty result set is
	// not an error.
	Search(ctx context.Context, query string) ([]Result, error)
}

// Aggregator fans a query out to its providers and merges the answers.
type Aggregator struct {
	providers []Provider
}

// NewAggregator creates an Aggregator over the given providers. Provider
// order is preserved for stable iteration but does not affect ranking.
func NewAggregator(providers ...Provider) *Aggregator {
	return &Aggregator{providers: providers}
}

// Search queries every provider and returns the merged list sorted by
// score descending, ties broken by title. A failing provider contributes
// nothing; one broken plugin must not blank the whole launcher.
func (a *Aggregator) Search(ctx context.Context, query string) []Result {
	var merged []Result
	for _, p := range a.providers {
		results, err := p.Search(ctx, query)
		if err != nil {
			slog.Warn("search provider failed",
				"provider", p.ID(),
				"kind", p.Kind(),
				"error", err)
			continue
		}
		merged = append(merged, results...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].Title < merged[j].Title
	})
	return merged
}
