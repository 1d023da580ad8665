package toolstore

import (
	"strings"
	"testing"
)

func TestPutGetRoundTrip(t *testing.T) {
	s := New(t.TempDir())
	id, err := s.Put("web_search", map[string]any{"query": "go generics"}, "some result text")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !strings.HasPrefix(id, "ctx_") {
		t.Errorf("pointer id %q missing ctx_ prefix", id)
	}
	entry, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.Text != "some result text" || entry.ToolName != "web_search" {
		t.Errorf("unexpected entry: %+v", entry)
	}
}

func TestGetUnknownPointer(t *testing.T) {
	s := New(t.TempDir())
	if _, err := s.Get("ctx_doesnotexist"); err == nil {
		t.Fatal("expected error for unknown pointer")
	}
}

func TestRenderInlinesShortText(t *testing.T) {
	s := New(t.TempDir())
	id, _ := s.Put("echo", nil, "short")
	if got := s.Render(id, 100); got != "short" {
		t.Errorf("Render = %q, want inlined text", got)
	}
}

func TestRenderPlaceholderForLongText(t *testing.T) {
	s := New(t.TempDir())
	long := strings.Repeat("x", 5000)
	id, _ := s.Put("echo", nil, long)
	got := s.Render(id, 100)
	if strings.Contains(got, long) {
		t.Error("Render should not inline text over the budget")
	}
	if !strings.Contains(got, id) {
		t.Errorf("Render placeholder should mention pointer id, got %q", got)
	}
}
