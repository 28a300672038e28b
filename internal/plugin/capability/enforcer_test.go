// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lumen Contributors

package capability_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenlauncher/lumen/internal/plugin/capability"
)

func TestEnforcer_SetGrantsAndCheck(t *testing.T) {
	e := capability.NewEnforcer()

	err := e.SetGrants("github-search", []string{"network", "filesystem:read", "oauth:github"})
	require.NoError(t, err)

	assert.True(t, e.Check("github-search", "network"))
	assert.True(t, e.Check("github-search", "filesystem:read"))
	assert.True(t, e.Check("github-search", "oauth:github"))

	assert.False(t, e.Check("github-search", "filesystem:write"))
	assert.False(t, e.Check("github-search", "oauth:slack"))
	assert.False(t, e.Check("github-search", "notifications"))
}

func TestEnforcer_DenyByDefault(t *testing.T) {
	e := capability.NewEnforcer()

	assert.False(t, e.Check("unknown", "network"))
	assert.False(t, e.Check("", "network"))
	assert.False(t, e.Check("unknown", ""))
}

func TestEnforcer_ZeroValue(t *testing.T) {
	var e capability.Enforcer

	assert.False(t, e.Check("clock", "network"))
	assert.False(t, e.IsRegistered("clock"))
	assert.Nil(t, e.GetGrants("clock"))
	e.RemoveGrants("clock")

	require.NoError(t, e.SetGrants("clock", []string{"network"}))
	assert.True(t, e.Check("clock", "network"))
}

func TestEnforcer_WildcardRespectsSeparator(t *testing.T) {
	e := capability.NewEnforcer()
	require.NoError(t, e.SetGrants("multi", []string{"oauth:*"}))

	assert.True(t, e.Check("multi", "oauth:github"))
	assert.True(t, e.Check("multi", "oauth:slack"))
	// '*' must not cross the ':' separator
	assert.False(t, e.Check("multi", "oauth:github:admin"))
	assert.False(t, e.Check("multi", "network"))
}

func TestEnforcer_SetGrantsValidation(t *testing.T) {
	e := capability.NewEnforcer()

	assert.Error(t, e.SetGrants("", []string{"network"}))
	assert.Error(t, e.SetGrants("clock", []string{""}))
	assert.Error(t, e.SetGrants("clock", []string{"network", "["}))

	// failed SetGrants must not leave partial state
	assert.False(t, e.IsRegistered("clock"))
}

func TestEnforcer_SetGrantsReplaces(t *testing.T) {
	e := capability.NewEnforcer()
	require.NoError(t, e.SetGrants("clock", []string{"network"}))
	require.NoError(t, e.SetGrants("clock", []string{"notifications"}))

	assert.False(t, e.Check("clock", "network"))
	assert.True(t, e.Check("clock", "notifications"))
	assert.Equal(t, []string{"notifications"}, e.GetGrants("clock"))
}

func TestEnforcer_RemoveGrants(t *testing.T) {
	e := capability.NewEnforcer()
	require.NoError(t, e.SetGrants("clock", []string{"network"}))
	require.True(t, e.IsRegistered("clock"))

	e.RemoveGrants("clock")
	assert.False(t, e.IsRegistered("clock"))
	assert.False(t, e.Check("clock", "network"))

	// removing again is a no-op
	e.RemoveGrants("clock")
}

func TestEnforcer_EmptyGrantsRegistered(t *testing.T) {
	e := capability.NewEnforcer()
	require.NoError(t, e.SetGrants("inert", nil))

	// registered with no permissions: known, but everything denied
	assert.True(t, e.IsRegistered("inert"))
	assert.False(t, e.Check("inert", "network"))
}

func TestEnforcer_ListPlugins(t *testing.T) {
	e := capability.NewEnforcer()
	assert.Empty(t, e.ListPlugins())

	require.NoError(t, e.SetGrants("a", []string{"network"}))
	require.NoError(t, e.SetGrants("b", []string{"clipboard"}))
	assert.ElementsMatch(t, []string{"a", "b"}, e.ListPlugins())
}
