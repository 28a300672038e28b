// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lumen Contributors

// Package pluginsdk defines the JSON call protocol between the Lumen host
// and WebAssembly plugins.
//
// Plugins are Extism modules. Every typed entry point receives a single
// JSON document and returns a single JSON document; the host never passes
// raw pointers across the boundary. Guest exports are all optional except
// execute_ai_tool, which must exist when the manifest declares AI tools:
//
//	init()                     called once after instantiation
//	search(json) -> json       SearchInput -> SearchOutput
//	execute_ai_tool(json)      AIToolInput -> AIToolOutput
//	render_widget(json)        WidgetRequest -> WidgetOutput
//	shutdown()                 called once before teardown, failures ignored
//
// Host functions importable by guests live in the "extism:host/user"
// namespace and use the same convention: JSON request in, JSON response
// out. A failed host operation yields a HostError document rather than a
// trap so guests can recover.
package pluginsdk

import "encoding/json"

// Guest export names looked up by the host.
const (
	ExportInit          = "init"
	ExportSearch        = "search"
	ExportExecuteAITool = "execute_ai_tool"
	ExportRenderWidget  = "render_widget"
	ExportShutdown      = "shutdown"
)

// SearchInput is the payload passed to a plugin's search export.
type SearchInput struct {
	Query string `json:"query"`
}

// SearchOutput is the document returned by a plugin's search export.
type SearchOutput struct {
	Results []SearchResult `json:"results"`
}

// SearchResult is a single ranked result produced by a plugin.
type SearchResult struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Subtitle string  `json:"subtitle,omitempty"`
	Icon     string  `json:"icon,omitempty"`
	Score    float64 `json:"score,omitempty"`
	Category string  `json:"category,omitempty"`
	Action   *Action `json:"action,omitempty"`
}

// ActionType discriminates the Action tagged union.
type ActionType string

// Action kinds a result may carry.
const (
	ActionOpenURL    ActionType = "open_url"
	ActionCopy       ActionType = "copy"
	ActionRunCommand ActionType = "run_command"
	ActionCustom     ActionType = "custom"
)

// Action describes what selecting a search result does. It is a closed
/// tagged union serialized as {"type": ..., "value": ...}.
type Action struct {
	Type  ActionType `json:"type"`
	Value string     `json:"value"`
}

// AIToolInput is the payload passed to a plugin's execute_ai_tool export.
type AIToolInput struct {
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
}

// AIToolOutput is the document returned by execute_ai_tool. Result is a raw
// JSON string the caller re-parses against the tool's declared schema.
type AIToolOutput struct {
	Result  string `json:"result"`
	IsError bool   `json:"is_error,omitempty"`
}

// WidgetRequest is the payload passed to a plugin's render_widget export.
type WidgetRequest struct {
	WidgetID string          `json:"widget_id"`
	Config   json.RawMessage `json:"config,omitempty"`
}

// WidgetType enumerates the renderable widget shapes.
type WidgetType string

// Widget shapes understood by the host UI.
const (
	WidgetList   WidgetType = "list"
	WidgetGrid   WidgetType = "grid"
	WidgetStat   WidgetType = "stat"
	WidgetCustom WidgetType = "custom"
)

// WidgetItem is one entry of a list or grid widget.
type WidgetItem struct {
	Title    string  `json:"title"`
	Subtitle string  `json:"subtitle,omitempty"`
	Icon     string  `json:"icon,omitempty"`
	Action   *Action `json:"action,omitempty"`
}

// WidgetOutput is the document returned by render_widget.
type WidgetOutput struct {
	Type     WidgetType   `json:"type"`
	Title    string       `json:"title,omitempty"`
	Items    []WidgetItem `json:"items,omitempty"`
	Value    string       `json:"value,omitempty"`
	Subtitle string       `json:"subtitle,omitempty"`
	HTML     string       `json:"html,omitempty"`
}

// HTTPRequest is the document a guest passes to host_http_request.
type HTTPRequest struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// HTTPResponse is the document host_http_request returns on success.
type HTTPResponse struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

// Config is a plugin's host-persisted configuration document.
type Config struct {
	Values map[string]json.RawMessage `json:"values"`
}

// FileRequest is the document passed to host_read_file and host_write_file.
// Path is always relative to the plugin's sandbox root.
type FileRequest struct {
	Path string `json:"path"`
	Data []byte `json:"data,omitempty"`
}

// FileData is the document host_read_file returns on success. Data is
// base64 in the JSON encoding, per encoding/json []byte convention.
type FileData struct {
	Data []byte `json:"data"`
}

// NotificationRequest is the document passed to host_show_notification.
type NotificationRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// OAuthTokenRequest is the document passed to host_get_oauth_token.
type OAuthTokenRequest struct {
	Provider string `json:"provider"`
}

// OAuthTokenResponse is the document host_get_oauth_token returns.
type OAuthTokenResponse struct {
	Token string `json:"token"`
}

// LogRequest is the document passed to host_log.
type LogRequest struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// HostError is returned by any host function whose operation failed. An
// empty Error means success for functions with no other payload.
type HostError struct {
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}
