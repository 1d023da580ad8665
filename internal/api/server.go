// Package api implements the HTTP surface: SSE query streaming plus
// ordinary JSON read/write endpoints over sessions, tools, skills, and
// the query archive.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/nugget/miniagent/internal/agent"
	"github.com/nugget/miniagent/internal/agenterr"
	"github.com/nugget/miniagent/internal/archive"
	"github.com/nugget/miniagent/internal/paths"
	"github.com/nugget/miniagent/internal/session"
	"github.com/nugget/miniagent/internal/skills"
	"github.com/nugget/miniagent/internal/tools"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response,
// which is not actionable but worth tracking for debugging.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	address string
	port    int

	loop     *agent.Loop
	sessions *session.Store
	toolReg  *tools.Registry
	skillReg *skills.Registry
	arch     *archive.Store
	pathRes  *paths.Resolver

	logger *slog.Logger
	server *http.Server
}

// New creates a Server. arch may be nil, in which case the archive
// endpoints return 404. pathRes may be nil (it is nil-safe), in which
// case /api/paths reports no configured prefixes.
func New(address string, port int, loop *agent.Loop, sessions *session.Store, toolReg *tools.Registry, skillReg *skills.Registry, arch *archive.Store, pathRes *paths.Resolver, logger *slog.Logger) *Server {
	return &Server{
		address:  address,
		port:     port,
		loop:     loop,
		sessions: sessions,
		toolReg:  toolReg,
		skillReg: skillReg,
		arch:     arch,
		pathRes:  pathRes,
		logger:   logger,
	}
}

// Start builds the route table and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", s.handleChat)

	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{key}", s.handleGetSession)
	mux.HandleFunc("PATCH /api/sessions/{key}", s.handleRenameSession)
	mux.HandleFunc("DELETE /api/sessions/{key}", s.handleDeleteSession)

	mux.HandleFunc("GET /api/tools", s.handleListTools)
	mux.HandleFunc("GET /api/tools/{name}", s.handleGetTool)

	mux.HandleFunc("GET /api/skills", s.handleListSkills)
	mux.HandleFunc("GET /api/skills/{name}", s.handleGetSkill)

	mux.HandleFunc("GET /api/archive/queries", s.handleArchiveQueries)
	mux.HandleFunc("GET /api/archive/queries/{id}", s.handleArchiveQuery)
	mux.HandleFunc("GET /api/archive/stats", s.handleArchiveStats)

	mux.HandleFunc("GET /api/paths", s.handleListPaths)

	mux.HandleFunc("GET /health", s.handleHealth)

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.address, s.port),
		Handler: s.withLogging(mux),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "duration_ms", time.Since(start).Milliseconds())
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{"error": message}, s.logger)
}

// writeErrorForKind maps an agenterr.Kind to the appropriate HTTP
// status, per spec.md §7 ("NotFound on HTTP read endpoints returns
// 404").
func (s *Server) writeErrorForKind(w http.ResponseWriter, err error) {
	kind, ok := agenterr.KindOf(err)
	if !ok {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	switch kind {
	case agenterr.KindNotFound:
		s.errorResponse(w, http.StatusNotFound, err.Error())
	case agenterr.KindBadArguments:
		s.errorResponse(w, http.StatusBadRequest, err.Error())
	default:
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
	}
}

// --- /api/chat ---

type chatRequest struct {
	Message    string `json:"message"`
	SessionKey string `json:"session_key"`
}

// handleChat streams one query's events as SSE frames. The HTTP
// request's context is cancelled on client disconnect, which the
// underlying ResponseWriter/Request wiring propagates to r.Context();
// that context is threaded straight through to the Agent Loop.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Message == "" {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.errorResponse(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	emitter := agent.NewEmitter(0)
	startedAt := time.Now()
	rc := http.NewResponseController(w)

	done := make(chan struct{})
	var result *agent.Result
	var runErr error
	go func() {
		defer close(done)
		defer emitter.Close()
		result, runErr = s.loop.Run(r.Context(), agent.Request{SessionKey: req.SessionKey, Query: req.Message}, emitter)
	}()

	for ev := range emitter.Events() {
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Debug("failed to marshal SSE event", "error", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			s.logger.Debug("failed to write SSE event", "error", err)
			return
		}
		flusher.Flush()
		// A long tool-execution round can leave the connection idle
		// between frames; reset the write deadline on every event so a
		// multi-iteration query doesn't trip the server's idle timeout.
		if err := rc.SetWriteDeadline(time.Now().Add(120 * time.Second)); err != nil {
			s.logger.Debug("failed to reset write deadline", "error", err)
		}
	}

	<-done
	if runErr != nil {
		s.logger.Debug("agent loop ended with an error", "error", runErr)
	}

	if s.arch != nil && result != nil {
		var tc []archive.ToolInvocation
		for _, t := range result.ToolCalls {
			tc = append(tc, archive.ToolInvocation{ToolName: t.Tool, OK: true})
		}
		finishReason := "answered"
		if result.Cancelled {
			finishReason = "cancelled"
		}
		if err := s.arch.RecordQuery(archive.Query{
			SessionKey:    session.NormalizeKey(req.SessionKey),
			StartedAt:     startedAt,
			Iterations:    result.Iterations,
			ToolCallCount: len(result.ToolCalls),
			FinishReason:  finishReason,
			Tools:         tc,
		}); err != nil {
			s.logger.Warn("archive query failed", "error", err)
		}
	}
}

// --- /api/sessions ---

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	infos, err := s.sessions.ListSessions()
	if err != nil {
		s.writeErrorForKind(w, err)
		return
	}
	type sessionSummary struct {
		Key  string `json:"key"`
		Name string `json:"name"`
	}
	out := make([]sessionSummary, 0, len(infos))
	for _, info := range infos {
		out = append(out, sessionSummary{Key: info.Key, Name: info.DisplayName})
	}
	writeJSON(w, map[string]any{"sessions": out}, s.logger)
}

// messageDTO is the wire shape of a session.Message: the JSONL on-disk
// format keys the timestamp field "created_at", but spec.md §6's
// GET /api/sessions/{key} response documents it as "timestamp".
type messageDTO struct {
	Role       session.Role     `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCalls  []session.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

func toMessageDTO(m session.Message) messageDTO {
	return messageDTO{
		Role:       m.Role,
		Content:    m.Content,
		ToolCalls:  m.ToolCalls,
		ToolCallID: m.ToolCallID,
		Timestamp:  m.CreatedAt,
	}
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if _, err := s.sessions.ReadMetadata(key); err != nil {
		s.writeErrorForKind(w, err)
		return
	}
	messages, err := s.sessions.List(key)
	if err != nil {
		s.writeErrorForKind(w, err)
		return
	}
	dtos := make([]messageDTO, len(messages))
	for i, m := range messages {
		dtos[i] = toMessageDTO(m)
	}
	writeJSON(w, map[string]any{"messages": dtos}, s.logger)
}

type renameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.sessions.Rename(key, req.Name); err != nil {
		s.writeErrorForKind(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := s.sessions.Delete(key); err != nil {
		s.writeErrorForKind(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- /api/tools ---

type toolSummary struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	specs := s.toolReg.List()
	out := make([]toolSummary, 0, len(specs))
	for _, spec := range specs {
		out = append(out, toolSummary{Name: spec.Name, Description: spec.Description})
	}
	writeJSON(w, map[string]any{"tools": out}, s.logger)
}

func (s *Server) handleGetTool(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	spec, ok := s.toolReg.Get(name)
	if !ok {
		s.errorResponse(w, http.StatusNotFound, fmt.Sprintf("tool %q not found", name))
		return
	}
	writeJSON(w, toolSummary{Name: spec.Name, Description: spec.Description, Parameters: spec.ArgumentsSchema}, s.logger)
}

// --- /api/skills ---

type skillSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	list := s.skillReg.List()
	out := make([]skillSummary, 0, len(list))
	for _, sk := range list {
		out = append(out, skillSummary{Name: sk.Name, Description: sk.Description})
	}
	writeJSON(w, map[string]any{"skills": out}, s.logger)
}

func (s *Server) handleGetSkill(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	sk, ok := s.skillReg.Get(name)
	if !ok {
		s.errorResponse(w, http.StatusNotFound, fmt.Sprintf("skill %q not found", name))
		return
	}
	writeJSON(w, map[string]any{"name": sk.Name, "description": sk.Description, "body": sk.Body}, s.logger)
}

// --- /api/paths ---

// handleListPaths reports the named directory prefixes ("sessions:",
// "context:", ...) a client may pass in place of a raw path, and where
// each currently resolves to on disk. Useful for tooling that wants to
// inspect the data directory layout without hardcoding it.
func (s *Server) handleListPaths(w http.ResponseWriter, r *http.Request) {
	type prefixEntry struct {
		Prefix string `json:"prefix"`
		Dir    string `json:"dir"`
	}
	names := s.pathRes.Prefixes()
	out := make([]prefixEntry, 0, len(names))
	for _, name := range names {
		resolved, _ := s.pathRes.Resolve(name + ":")
		out = append(out, prefixEntry{Prefix: name + ":", Dir: resolved})
	}
	writeJSON(w, map[string]any{"prefixes": out}, s.logger)
}

// --- /api/archive ---

func (s *Server) handleArchiveQueries(w http.ResponseWriter, r *http.Request) {
	if s.arch == nil {
		s.errorResponse(w, http.StatusNotFound, "archive not enabled")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	queries, err := s.arch.ListQueries(r.URL.Query().Get("session_key"), limit)
	if err != nil {
		s.writeErrorForKind(w, err)
		return
	}
	writeJSON(w, map[string]any{"queries": queries}, s.logger)
}

func (s *Server) handleArchiveQuery(w http.ResponseWriter, r *http.Request) {
	if s.arch == nil {
		s.errorResponse(w, http.StatusNotFound, "archive not enabled")
		return
	}
	q, err := s.arch.GetQuery(r.PathValue("id"))
	if err != nil {
		s.writeErrorForKind(w, err)
		return
	}
	writeJSON(w, q, s.logger)
}

func (s *Server) handleArchiveStats(w http.ResponseWriter, r *http.Request) {
	if s.arch == nil {
		s.errorResponse(w, http.StatusNotFound, "archive not enabled")
		return
	}
	stats, err := s.arch.GetStats()
	if err != nil {
		s.writeErrorForKind(w, err)
		return
	}
	writeJSON(w, stats, s.logger)
}
