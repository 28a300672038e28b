// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lumen Contributors

package runtime

import (
	"context"
	"encoding/json"
	"log/slog"

	extism "github.com/extism/go-sdk"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/lumenlauncher/lumen/internal/plugin"
	"github.com/lumenlauncher/lumen/pkg/pluginsdk"
)

// Host function names exposed to guests under the default Extism host
// namespace ("extism:host/user").
const (
	hostFnLog              = "host_log"
	hostFnNewRequestID     = "host_new_request_id"
	hostFnHTTPRequest      = "host_http_request"
	hostFnReadFile         = "host_read_file"
	hostFnWriteFile        = "host_write_file"
	hostFnGetConfig        = "host_get_config"
	hostFnSetConfig        = "host_set_config"
	hostFnShowNotification = "host_show_notification"
	hostFnGetOAuthToken    = "host_get_oauth_token"
)

var (
	inPtr  = []extism.ValueType{extism.ValueTypePTR}
	outPtr = []extism.ValueType{extism.ValueTypePTR}
	none   = []extism.ValueType{}
)

// hostFunctions builds the per-plugin host function table. The plugin id
// is captured in each closure so a guest can never speak for another
// plugin; everything else is delegated to the Capability Host, which
// enforces permissions.
//
// Host functions never trap the guest on operation failure. Failures come
// back as a HostError document so a guest can degrade gracefully instead
// of aborting the whole call.
func (r *Runtime) hostFunctions(pluginID string) []extism.HostFunction {
	return []extism.HostFunction{
		extism.NewHostFunctionWithStack(hostFnLog,
			func(_ context.Context, p *extism.CurrentPlugin, stack []uint64) {
				var req pluginsdk.LogRequest
				if err := readJSON(p, stack[0], &req); err != nil {
					slog.Warn("malformed log request from guest", "plugin", pluginID, "error", err)
					return
				}
				r.host.Log(pluginID, req.Level, req.Message)
			},
			inPtr, none),

		extism.NewHostFunctionWithStack(hostFnNewRequestID,
			func(_ context.Context, p *extism.CurrentPlugin, stack []uint64) {
				writeString(p, stack, ulid.Make().String())
			},
			none, outPtr),

		extism.NewHostFunctionWithStack(hostFnHTTPRequest,
			func(ctx context.Context, p *extism.CurrentPlugin, stack []uint64) {
				var req pluginsdk.HTTPRequest
				if err := readJSON(p, stack[0], &req); err != nil {
					writeHostErr(p, stack, pluginID, err)
					return
				}
				resp, err := r.host.HTTPRequest(ctx, pluginID, req)
				if err != nil {
					writeHostErr(p, stack, pluginID, err)
					return
				}
				writeJSON(p, stack, pluginID, resp)
			},
			inPtr, outPtr),

		extism.NewHostFunctionWithStack(hostFnReadFile,
			func(ctx context.Context, p *extism.CurrentPlugin, stack []uint64) {
				var req pluginsdk.FileRequest
				if err := readJSON(p, stack[0], &req); err != nil {
					writeHostErr(p, stack, pluginID, err)
					return
				}
				data, err := r.host.ReadFile(ctx, pluginID, req.Path)
				if err != nil {
					writeHostErr(p, stack, pluginID, err)
					return
				}
				writeJSON(p, stack, pluginID, pluginsdk.FileData{Data: data})
			},
			inPtr, outPtr),

		extism.NewHostFunctionWithStack(hostFnWriteFile,
			func(ctx context.Context, p *extism.CurrentPlugin, stack []uint64) {
				var req pluginsdk.FileRequest
				if err := readJSON(p, stack[0], &req); err != nil {
					writeHostErr(p, stack, pluginID, err)
					return
				}
				if err := r.host.WriteFile(ctx, pluginID, req.Path, req.Data); err != nil {
					writeHostErr(p, stack, pluginID, err)
					return
				}
				writeJSON(p, stack, pluginID, pluginsdk.HostError{})
			},
			inPtr, outPtr),

		extism.NewHostFunctionWithStack(hostFnGetConfig,
			func(_ context.Context, p *extism.CurrentPlugin, stack []uint64) {
				cfg, err := r.host.GetConfig(pluginID)
				if err != nil {
					writeHostErr(p, stack, pluginID, err)
					return
				}
				writeJSON(p, stack, pluginID, cfg)
			},
			none, outPtr),

		extism.NewHostFunctionWithStack(hostFnSetConfig,
			func(_ context.Context, p *extism.CurrentPlugin, stack []uint64) {
				var cfg pluginsdk.Config
				if err := readJSON(p, stack[0], &cfg); err != nil {
					writeHostErr(p, stack, pluginID, err)
					return
				}
				if err := r.host.SetConfig(pluginID, cfg); err != nil {
					writeHostErr(p, stack, pluginID, err)
					return
				}
				writeJSON(p, stack, pluginID, pluginsdk.HostError{})
			},
			inPtr, outPtr),

		extism.NewHostFunctionWithStack(hostFnShowNotification,
			func(ctx context.Context, p *extism.CurrentPlugin, stack []uint64) {
				var req pluginsdk.NotificationRequest
				if err := readJSON(p, stack[0], &req); err != nil {
					writeHostErr(p, stack, pluginID, err)
					return
				}
				if err := r.host.ShowNotification(ctx, pluginID, req.Title, req.Body); err != nil {
					writeHostErr(p, stack, pluginID, err)
					return
				}
				writeJSON(p, stack, pluginID, pluginsdk.HostError{})
			},
			inPtr, outPtr),

		extism.NewHostFunctionWithStack(hostFnGetOAuthToken,
			func(ctx context.Context, p *extism.CurrentPlugin, stack []uint64) {
				var req pluginsdk.OAuthTokenRequest
				if err := readJSON(p, stack[0], &req); err != nil {
					writeHostErr(p, stack, pluginID, err)
					return
				}
				token, err := r.host.GetOAuthToken(ctx, pluginID, req.Provider)
				if err != nil {
					writeHostErr(p, stack, pluginID, err)
					return
				}
				writeJSON(p, stack, pluginID, pluginsdk.OAuthTokenResponse{Token: token})
			},
			inPtr, outPtr),
	}
}

// readJSON decodes the guest's input document from Extism memory.
func readJSON(p *extism.CurrentPlugin, ptr uint64, v any) error {
	data, err := p.ReadBytes(ptr)
	if err != nil {
		return oops.Code(plugin.CodeCallFailed).Wrapf(err, "read guest memory")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return oops.Code(plugin.CodeCallFailed).Wrapf(err, "decode guest request")
	}
	return nil
}

// writeString places a raw string into Extism memory and puts its pointer
// on the stack.
func writeString(p *extism.CurrentPlugin, stack []uint64, s string) {
	ptr, err := p.WriteString(s)
	if err != nil {
		stack[0] = 0
		return
	}
	stack[0] = ptr
}

// writeJSON serializes v into Extism memory and puts its pointer on the
// stack. A memory write failure leaves a null pointer; the guest treats
// that as a host fault.
func writeJSON(p *extism.CurrentPlugin, stack []uint64, pluginID string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to serialize host response", "plugin", pluginID, "error", err)
		stack[0] = 0
		return
	}
	ptr, err := p.WriteBytes(data)
	if err != nil {
		slog.Error("failed to write host response to guest memory", "plugin", pluginID, "error", err)
		stack[0] = 0
		return
	}
	stack[0] = ptr
}

// hostError converts an operation failure into the wire envelope. The
// code survives only when the error carries a string code.
func hostError(err error) pluginsdk.HostError {
	he := pluginsdk.HostError{Error: err.Error()}
	if oopsErr, ok := oops.AsOops(err); ok {
		if code, ok := oopsErr.Code().(string); ok {
			he.Code = code
		}
	}
	return he
}

// writeHostErr wraps an operation failure in the HostError envelope.
func writeHostErr(p *extism.CurrentPlugin, stack []uint64, pluginID string, err error) {
	writeJSON(p, stack, pluginID, hostError(err))
}
