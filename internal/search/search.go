// Package search provides a pluggable web search interface for the agent.
//
// Each search provider implements the [Provider] interface and is
// registered by name. The [Manager] selects a provider based on
// configuration and exposes a single [Manager.Search] method that
// the tool layer calls. The manager itself is capability-gated: it is
// only wired into the tool registry when a backend has credentials
// configured (spec.md's TAVILY_API_KEY gate), and it trims what comes
// back so one search doesn't blow the scratchpad's inline char budget.
package search

import (
	"context"
	"fmt"
)

// defaultSnippetBudget caps how many runes of a single result's
// snippet reach the model. Tavily (and most search backends) can
// return paragraph-length content per result; a handful of untrimmed
// results can dwarf everything else in the scratchpad.
const defaultSnippetBudget = 400

// Result is a single search result.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Options are optional parameters for a search query.
type Options struct {
	// Count is the maximum number of results to return.
	// Providers may return fewer. Zero means provider default.
	Count int `json:"count,omitempty"`

	// Language is an ISO 639-1 language code (e.g., "en", "de").
	Language string `json:"language,omitempty"`

	// SnippetCharBudget caps each result's snippet length in runes.
	// Zero uses defaultSnippetBudget.
	SnippetCharBudget int `json:"-"`
}

// Provider is the interface that search backends implement.
type Provider interface {
	// Name returns the provider identifier (e.g., "searxng", "brave").
	Name() string

	// Search executes a query and returns results.
	Search(ctx context.Context, query string, opts Options) ([]Result, error)
}

// Manager holds configured providers and routes searches.
type Manager struct {
	providers map[string]Provider
	primary   string
}

// NewManager creates a search manager. The primary provider name
// determines which backend is used by default.
func NewManager(primary string) *Manager {
	return &Manager{
		providers: make(map[string]Provider),
		primary:   primary,
	}
}

// NewTavilyManager builds a Manager with Tavily as the primary (and
// only) provider if apiKey is set. It returns a Manager with no
// providers registered if apiKey is empty — callers should check
// [Manager.Configured] before wiring a web_search tool onto it, per
// spec.md's TAVILY_API_KEY capability gate.
func NewTavilyManager(apiKey string) *Manager {
	m := NewManager("tavily")
	if apiKey != "" {
		m.Register(NewTavilyProvider(apiKey))
	}
	return m
}

// Register adds a provider to the manager.
func (m *Manager) Register(p Provider) {
	m.providers[p.Name()] = p
}

// Search runs a query against the primary provider.
func (m *Manager) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	p, ok := m.providers[m.primary]
	if !ok {
		return nil, fmt.Errorf("search provider %q not configured", m.primary)
	}
	results, err := p.Search(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	return trimResults(results, opts), nil
}

// SearchWith runs a query against a specific named provider.
func (m *Manager) SearchWith(ctx context.Context, provider, query string, opts Options) ([]Result, error) {
	p, ok := m.providers[provider]
	if !ok {
		return nil, fmt.Errorf("search provider %q not configured", provider)
	}
	results, err := p.Search(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	return trimResults(results, opts), nil
}

// trimResults dedups results by URL (search backends frequently return
// the same page twice across near-duplicate queries) and truncates
// each snippet to opts' char budget, protecting the agent's scratchpad
// from a single search result dominating it.
func trimResults(results []Result, opts Options) []Result {
	budget := opts.SnippetCharBudget
	if budget <= 0 {
		budget = defaultSnippetBudget
	}

	seen := make(map[string]bool, len(results))
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if r.URL != "" && seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		r.Snippet = truncateRunes(r.Snippet, budget)
		out = append(out, r)
	}
	return out
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}

// Providers returns the names of all registered providers.
func (m *Manager) Providers() []string {
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	return names
}

// Configured reports whether at least one provider is registered.
func (m *Manager) Configured() bool {
	return len(m.providers) > 0
}
