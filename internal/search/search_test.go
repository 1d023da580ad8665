package search

import (
	"context"
	"strings"
	"testing"
)

type fakeProvider struct {
	name    string
	results []Result
}

func (p fakeProvider) Name() string { return p.name }
func (p fakeProvider) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	return p.results, nil
}

func TestManagerSearchUsesPrimary(t *testing.T) {
	m := NewManager("tavily")
	m.Register(fakeProvider{name: "tavily", results: []Result{{Title: "Go", URL: "https://go.dev"}}})

	results, err := m.Search(context.Background(), "golang", Options{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Title != "Go" {
		t.Errorf("unexpected results: %+v", results)
	}
}

func TestManagerSearchUnconfigured(t *testing.T) {
	m := NewManager("tavily")
	if _, err := m.Search(context.Background(), "golang", Options{}); err == nil {
		t.Fatal("expected error for unconfigured provider")
	}
}

func TestManagerSearchDedupsAndTruncates(t *testing.T) {
	m := NewManager("tavily")
	m.Register(fakeProvider{name: "tavily", results: []Result{
		{Title: "Go", URL: "https://go.dev", Snippet: strings.Repeat("x", 20)},
		{Title: "Go mirror", URL: "https://go.dev", Snippet: "duplicate url, should be dropped"},
		{Title: "Go Wiki", URL: "https://go.dev/wiki"},
	}})

	results, err := m.Search(context.Background(), "golang", Options{SnippetCharBudget: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected duplicate URL to be dropped, got %+v", results)
	}
	if got := results[0].Snippet; got != "xxxxx…" {
		t.Errorf("Snippet = %q, want truncated to 5 runes plus ellipsis", got)
	}
}

func TestNewTavilyManagerUnconfiguredWithoutKey(t *testing.T) {
	m := NewTavilyManager("")
	if m.Configured() {
		t.Fatal("expected Manager to be unconfigured without an API key")
	}
}

func TestNewTavilyManagerConfiguredWithKey(t *testing.T) {
	m := NewTavilyManager("test-key")
	if !m.Configured() {
		t.Fatal("expected Manager to be configured with an API key")
	}
}
