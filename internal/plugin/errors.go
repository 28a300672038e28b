// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lumen Contributors

package plugin

import "errors"

// Error codes attached to oops errors across the plugin subsystem. The
// Capability Host and Execution Runtime return these to consumers as
// values; nothing in the call path panics on a guest failure.
const (
	CodeManifestInvalid     = "MANIFEST_INVALID"
	CodeLoadFailed          = "PLUGIN_LOAD_FAILED"
	CodeNotRegistered       = "NOT_REGISTERED"
	CodePermissionDenied    = "PERMISSION_DENIED"
	CodePathTraversalDenied = "PATH_TRAVERSAL_DENIED"
	CodeCallFailed          = "PLUGIN_CALL_FAILED"
	CodeIOError             = "IO_ERROR"
	CodeTokenUnavailable    = "OAUTH_TOKEN_UNAVAILABLE"
)

// ErrPluginNotFound is returned when the requested plugin is not in the
// catalog or not loaded.
var ErrPluginNotFound = errors.New("plugin not found")

// ErrHostClosed is returned when an operation is attempted on a closed
// runtime or capability host.
var ErrHostClosed = errors.New("host closed")
