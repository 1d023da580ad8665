package tools

import (
	"context"
	"fmt"

	"github.com/nugget/miniagent/internal/fetch"
	"github.com/nugget/miniagent/internal/search"
	"github.com/nugget/miniagent/internal/skills"
)

// WebSearchArgs is the argument struct for the web_search tool.
type WebSearchArgs struct {
	Query string `json:"query" jsonschema:"required,description=The search query string."`
	Count int    `json:"count,omitempty" jsonschema:"description=Maximum number of results to return (1-10). Default 5."`
}

// RegisterWebSearch adds the web_search tool, backed by mgr. Callers
// only invoke this when a search provider was actually configured
// (spec.md §4.D: capability-gated on TAVILY_API_KEY being set).
func RegisterWebSearch(r *Registry, mgr *search.Manager) {
	r.Register(ToolSpec{
		Name:            "web_search",
		Description:     "Search the web for current information. Returns a short list of title/url/snippet results. Use this when the question needs information newer than your training or specific to the public web.",
		ArgumentsSchema: schemaFor(WebSearchArgs{}),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			query, _ := args["query"].(string)
			if query == "" {
				return "", fmt.Errorf("query is required")
			}
			opts := search.Options{}
			if count, ok := args["count"].(float64); ok && count > 0 {
				opts.Count = int(count)
			}
			results, err := mgr.Search(ctx, query, opts)
			if err != nil {
				return "", err
			}
			if len(results) == 0 {
				return "no results", nil
			}
			out := ""
			for _, res := range results {
				out += fmt.Sprintf("- %s (%s): %s\n", res.Title, res.URL, res.Snippet)
			}
			return out, nil
		},
	})
}

// FetchPointerArgs is the argument struct for the fetch_pointer tool.
type FetchPointerArgs struct {
	PointerID string `json:"pointer_id" jsonschema:"required,description=A pointer id previously returned in a truncated tool observation, e.g. 'ctx_0f8e5c2a9b7d4e1f8a3c6b9d2e5f7a10'."`
}

// RegisterFetchPointer adds the always-on fetch_pointer tool.
func RegisterFetchPointer(r *Registry, fetcher *fetch.Fetcher) {
	r.Register(ToolSpec{
		Name:            "fetch_pointer",
		Description:     "Retrieve the full text of a previous tool result that was truncated to a pointer placeholder in the scratchpad. Pass the pointer id exactly as shown.",
		ArgumentsSchema: schemaFor(FetchPointerArgs{}),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			id, _ := args["pointer_id"].(string)
			if id == "" {
				return "", fmt.Errorf("pointer_id is required")
			}
			return fetcher.Fetch(ctx, id, 0)
		},
	})
}

// SkillArgs is the argument struct for the skill tool.
type SkillArgs struct {
	Name string `json:"name,omitempty" jsonschema:"description=The skill name to activate for the rest of this query. Omit to list available skills."`
}

// RegisterSkill adds the always-on skill tool, which injects a named
// skill's body as additional instructions for the remainder of the
// query.
func RegisterSkill(r *Registry, registry *skills.Registry) {
	r.Register(ToolSpec{
		Name:            "skill",
		Description:     "Activate a named skill, injecting its instructions into your context for the rest of this conversation turn. Use list form by passing an empty name to see what's available.",
		ArgumentsSchema: schemaFor(SkillArgs{}),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			name, _ := args["name"].(string)
			if name == "" {
				out := "available skills:\n"
				for _, s := range registry.List() {
					out += fmt.Sprintf("- %s: %s\n", s.Name, s.Description)
				}
				return out, nil
			}
			skill, ok := registry.Get(name)
			if !ok {
				return "", fmt.Errorf("no such skill %q", name)
			}
			return skill.Body, nil
		},
	})
}
