// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lumen Contributors

package plugin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenlauncher/lumen/internal/plugin"
)

func TestGenerateSchema(t *testing.T) {
	data, err := plugin.GenerateSchema()
	require.NoError(t, err)

	schema := string(data)
	assert.Contains(t, schema, plugin.GetSchemaID())
	assert.Contains(t, schema, "Lumen Plugin Manifest")
	assert.Contains(t, schema, `"permissions"`)
	assert.Contains(t, schema, `"entry"`)
}

func TestValidateSchema_Valid(t *testing.T) {
	plugin.ResetSchemaCache()

	doc := `{
		"id": "clock",
		"name": "Clock",
		"version": "0.1.0",
		"entry": "clock.wasm",
		"provides": {}
	}`
	assert.NoError(t, plugin.ValidateSchema([]byte(doc)))
}

func TestValidateSchema_MissingRequired(t *testing.T) {
	plugin.ResetSchemaCache()

	// no entry
	doc := `{
		"id": "clock",
		"name": "Clock",
		"version": "0.1.0",
		"provides": {}
	}`
	err := plugin.ValidateSchema([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema validation failed")
}

func TestValidateSchema_WrongType(t *testing.T) {
	plugin.ResetSchemaCache()

	doc := `{
		"id": "clock",
		"name": "Clock",
		"version": "0.1.0",
		"entry": "clock.wasm",
		"provides": {},
		"permissions": "network"
	}`
	err := plugin.ValidateSchema([]byte(doc))
	require.Error(t, err)
}

func TestValidateSchema_Empty(t *testing.T) {
	err := plugin.ValidateSchema(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestValidateSchema_BadJSON(t *testing.T) {
	err := plugin.ValidateSchema([]byte(`{`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON")
}

func TestFormatSchemaError(t *testing.T) {
	assert.Empty(t, plugin.FormatSchemaError(nil))

	err := plugin.ValidateSchema([]byte(`{"id": 42}`))
	require.Error(t, err)
	assert.NotContains(t, plugin.FormatSchemaError(err), "schema validation failed:")
}
