// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lumen Contributors

package search_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenlauncher/lumen/internal/search"
)

// stubProvider returns canned results or a canned error.
type stubProvider struct {
	id      string
	kind    search.Kind
	results []search.Result
	err     error
}

func (s *stubProvider) ID() string        { return s.id }
func (s *stubProvider) Kind() search.Kind { return s.kind }

func (s *stubProvider) Search(_ context.Context, _ string) ([]search.Result, error) {
	return s.results, s.err
}

func TestAggregator_MergesAndSorts(t *testing.T) {
	a := search.NewAggregator(
		&stubProvider{id: "apps", kind: search.KindBuiltin, results: []search.Result{
			{ID: "app:editor", Title: "Editor", Score: 90},
			{ID: "app:files", Title: "Files", Score: 40},
		}},
		&stubProvider{id: "plugins", kind: search.KindPlugin, results: []search.Result{
			{ID: "plugin:clock:now", Title: "Clock", Score: 70},
		}},
	)

	results := a.Search(context.Background(), "e")
	require.Len(t, results, 3)
	assert.Equal(t, "app:editor", results[0].ID)
	assert.Equal(t, "plugin:clock:now", results[1].ID)
	assert.Equal(t, "app:files", results[2].ID)
}

func TestAggregator_TieBrokenByTitle(t *testing.T) {
	a := search.NewAggregator(
		&stubProvider{id: "p1", results: []search.Result{
			{ID: "b", Title: "Beta", Score: 50},
		}},
		&stubProvider{id: "p2", results: []search.Result{
			{ID: "a", Title: "Alpha", Score: 50},
		}},
	)

	results := a.Search(context.Background(), "")
	require.Len(t, results, 2)
	assert.Equal(t, "Alpha", results[0].Title)
	assert.Equal(t, "Beta", results[1].Title)
}

func TestAggregator_SwallowsProviderFailure(t *testing.T) {
	a := search.NewAggregator(
		&stubProvider{id: "broken", err: errors.New("guest trapped")},
		&stubProvider{id: "fine", results: []search.Result{
			{ID: "r", Title: "Result", Score: 10},
		}},
	)

	results := a.Search(context.Background(), "r")
	require.Len(t, results, 1)
	assert.Equal(t, "Result", results[0].Title)
}

func TestAggregator_NoProviders(t *testing.T) {
	a := search.NewAggregator()
	assert.Empty(t, a.Search(context.Background(), "anything"))
}
