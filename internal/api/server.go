// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lumen Contributors

// Package api serves the daemon's local JSON API: the surface the launcher
// frontend calls for search, command resolution, AI-tool execution, and
// widget rendering. It binds loopback only; plugins have no route to it.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/lumenlauncher/lumen/internal/command"
	"github.com/lumenlauncher/lumen/internal/plugin"
	"github.com/lumenlauncher/lumen/internal/search"
	"github.com/lumenlauncher/lumen/pkg/pluginsdk"
)

// Searcher answers launcher queries.
type Searcher interface {
	Search(ctx context.Context, query string) []search.Result
}

// Commands resolves and lists command triggers.
type Commands interface {
	Resolve(trigger string) (command.Command, bool)
	List() []command.Command
}

// Runtime invokes loaded plugin entry points.
type Runtime interface {
	ExecuteAITool(ctx context.Context, pluginID, tool string, args json.RawMessage) (pluginsdk.AIToolOutput, error)
	RenderWidget(ctx context.Context, pluginID, widgetID string, config json.RawMessage) (pluginsdk.WidgetOutput, error)
}

// Catalog lists installed plugins.
type Catalog interface {
	List() []plugin.Info
}

// Server is the local JSON API server.
type Server struct {
	addr       string
	searcher   Searcher
	commands   Commands
	runtime    Runtime
	catalog    Catalog
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer wires the daemon's collaborators into a local API server.
func NewServer(addr string, searcher Searcher, commands Commands, rt Runtime, catalog Catalog) *Server {
	return &Server{
		addr:     addr,
		searcher: searcher,
		commands: commands,
		runtime:  rt,
		catalog:  catalog,
	}
}

// Start begins serving. It returns an error channel that receives any
// serve-loop failure and is closed on graceful shutdown.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/search", s.handleSearch)
	mux.HandleFunc("GET /v1/commands", s.handleCommands)
	mux.HandleFunc("GET /v1/plugins", s.handlePlugins)
	mux.HandleFunc("POST /v1/ai-tools/call", s.handleAITool)
	mux.HandleFunc("POST /v1/widgets/render", s.handleWidget)

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_api_server").Wrap(err)
		}
	}
	slog.Info("api server stopped")
	return nil
}

// Addr returns the bound address, or empty if not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	results := s.searcher.Search(r.Context(), query)
	if results == nil {
		results = []search.Result{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	if trigger := r.URL.Query().Get("trigger"); trigger != "" {
		cmd, ok := s.commands.Resolve(trigger)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown trigger")
			return
		}
		writeJSON(w, http.StatusOK, cmd)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"commands": s.commands.List()})
}

func (s *Server) handlePlugins(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"plugins": s.catalog.List()})
}

// aiToolCall is the request body for POST /v1/ai-tools/call.
type aiToolCall struct {
	Plugin    string          `json:"plugin"`
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) handleAITool(w http.ResponseWriter, r *http.Request) {
	var req aiToolCall
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Plugin == "" || req.Tool == "" {
		writeError(w, http.StatusBadRequest, "plugin and tool are required")
		return
	}

	out, err := s.runtime.ExecuteAITool(r.Context(), req.Plugin, req.Tool, req.Arguments)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// widgetRender is the request body for POST /v1/widgets/render.
type widgetRender struct {
	Plugin string          `json:"plugin"`
	Widget string          `json:"widget"`
	Config json.RawMessage `json:"config,omitempty"`
}

func (s *Server) handleWidget(w http.ResponseWriter, r *http.Request) {
	var req widgetRender
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Plugin == "" || req.Widget == "" {
		writeError(w, http.StatusBadRequest, "plugin and widget are required")
		return
	}

	out, err := s.runtime.RenderWidget(r.Context(), req.Plugin, req.Widget, req.Config)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// statusFor maps runtime failures to HTTP statuses. A missing plugin is
// the caller naming something that isn't there; everything else is the
// plugin's fault, surfaced as a bad gateway.
func statusFor(err error) int {
	if errors.Is(err, plugin.ErrPluginNotFound) {
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to write api response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
