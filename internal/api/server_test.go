package api

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nugget/miniagent/internal/agent"
	"github.com/nugget/miniagent/internal/llm"
	"github.com/nugget/miniagent/internal/logging"
	"github.com/nugget/miniagent/internal/memoryindex"
	"github.com/nugget/miniagent/internal/paths"
	"github.com/nugget/miniagent/internal/session"
	"github.com/nugget/miniagent/internal/skills"
	"github.com/nugget/miniagent/internal/tools"
	"github.com/nugget/miniagent/internal/toolstore"
)

func testServer(t *testing.T) (*Server, *session.Store) {
	t.Helper()
	dir := t.TempDir()
	logger := logging.New(io.Discard, 0, "text")

	sessions := session.New(dir, logger)
	reg := tools.NewRegistry()
	tools.RegisterEcho(reg)

	fake := &llm.FakeClient{
		Completions: []llm.CompletionResult{{Message: llm.Message{Role: llm.RoleAssistant, Content: "no tools needed"}}},
		StreamText:  []string{"hi there"},
	}
	loop := agent.New(agent.DefaultConfig(), sessions, memoryindex.New(dir), toolstore.New(dir), reg, fake, logger)

	skillReg, err := skills.LoadDirs()
	if err != nil {
		t.Fatalf("LoadDirs: %v", err)
	}

	srv := New("", 0, loop, sessions, reg, skillReg, nil, nil, logger)
	return srv, sessions
}

func TestHandleChatStreamsEvents(t *testing.T) {
	srv, _ := testServer(t)

	body := strings.NewReader(`{"message":"hello","session_key":"s1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/chat", body)
	rec := httptest.NewRecorder()

	srv.handleChat(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	var sawDone bool
	scanner := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("unmarshal SSE frame: %v", err)
		}
		if ev["type"] == "done" {
			sawDone = true
		}
	}
	if !sawDone {
		t.Fatal("expected a done frame in the SSE stream")
	}
}

func TestHandleChatRejectsEmptyMessage(t *testing.T) {
	srv, _ := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"session_key":"s1"}`))
	rec := httptest.NewRecorder()

	srv.handleChat(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleListSessions(t *testing.T) {
	srv, sessions := testServer(t)
	if err := sessions.Append("s1", session.Message{Role: session.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	rec := httptest.NewRecorder()
	srv.handleListSessions(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out struct {
		Sessions []struct {
			Key string `json:"key"`
		} `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Sessions) != 1 || out.Sessions[0].Key != "s1" {
		t.Errorf("sessions = %+v", out.Sessions)
	}
}

func TestHandleGetSessionNotFound(t *testing.T) {
	srv, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/sessions/missing", nil)
	req.SetPathValue("key", "missing")
	rec := httptest.NewRecorder()

	srv.handleGetSession(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleGetSessionUsesTimestampField(t *testing.T) {
	srv, sessions := testServer(t)
	if err := sessions.Append("s1", session.Message{Role: session.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/s1", nil)
	req.SetPathValue("key", "s1")
	rec := httptest.NewRecorder()

	srv.handleGetSession(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out struct {
		Messages []map[string]any `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(out.Messages))
	}
	if _, ok := out.Messages[0]["timestamp"]; !ok {
		t.Errorf("expected %q field in response, got %+v", "timestamp", out.Messages[0])
	}
	if _, ok := out.Messages[0]["created_at"]; ok {
		t.Errorf("did not expect %q field in response, got %+v", "created_at", out.Messages[0])
	}
}

func TestHandleListTools(t *testing.T) {
	srv, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/tools", nil)
	rec := httptest.NewRecorder()

	srv.handleListTools(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "echo") {
		t.Errorf("body = %q, want to contain echo tool", rec.Body.String())
	}
}

func TestHandleArchiveDisabled(t *testing.T) {
	srv, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/archive/stats", nil)
	rec := httptest.NewRecorder()

	srv.handleArchiveStats(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleListPathsNilResolver(t *testing.T) {
	srv, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/paths", nil)
	rec := httptest.NewRecorder()

	srv.handleListPaths(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out struct {
		Prefixes []struct {
			Prefix string `json:"prefix"`
		} `json:"prefixes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Prefixes) != 0 {
		t.Errorf("expected no prefixes with a nil resolver, got %+v", out.Prefixes)
	}
}

func TestHandleListPathsConfiguredResolver(t *testing.T) {
	srv, _ := testServer(t)
	srv.pathRes = paths.New(map[string]string{"sessions": "/data/sessions"})

	req := httptest.NewRequest(http.MethodGet, "/api/paths", nil)
	rec := httptest.NewRecorder()
	srv.handleListPaths(rec, req)

	if !strings.Contains(rec.Body.String(), "/data/sessions") {
		t.Errorf("body = %q, want to contain resolved dir", rec.Body.String())
	}
}

func TestHealthCheck(t *testing.T) {
	srv, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	srv.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
