// Package tools implements the Tool Registry: a declarative catalogue
// of callable tools, each with a JSON-Schema-validated argument
// contract, a per-invocation timeout, and a handler function. Built-in
// tools are always registered; a few are gated on external
// configuration (an API key) being present at startup.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/nugget/miniagent/internal/agenterr"
)

// defaultTimeout bounds a tool invocation when the ToolSpec does not
// set its own.
const defaultTimeout = 60 * time.Second

// Handler executes one tool call. It must return promptly after ctx is
// cancelled.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// ToolSpec declares one tool: its name, the long-form description
// injected verbatim into the system prompt, its JSON Schema argument
// contract, and the handler that implements it.
type ToolSpec struct {
	Name             string
	Description      string
	ArgumentsSchema  map[string]any
	Timeout          time.Duration
	Handler          Handler

	compiled *jsonschema.Schema
}

// Registry holds the set of tools available to the Agent Loop for one
// process lifetime. It is built once at startup from capability-gated
// registration and never mutated concurrently with lookups afterward,
// matching this system's immutable-registry, no-global-singleton
// design.
type Registry struct {
	tools map[string]*ToolSpec
	order []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*ToolSpec)}
}

// Register compiles spec's argument schema and adds it to the registry.
// Register panics on an invalid schema or a duplicate name — both are
// programming errors caught at startup, not runtime conditions.
func (r *Registry) Register(spec ToolSpec) {
	if _, exists := r.tools[spec.Name]; exists {
		panic(fmt.Sprintf("tools: duplicate registration for %q", spec.Name))
	}
	if spec.Timeout == 0 {
		spec.Timeout = defaultTimeout
	}

	schemaJSON, err := json.Marshal(spec.ArgumentsSchema)
	if err != nil {
		panic(fmt.Sprintf("tools: %q: marshal schema: %v", spec.Name, err))
	}
	compiled, err := jsonschema.CompileString(spec.Name+".json", string(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("tools: %q: compile schema: %v", spec.Name, err))
	}
	spec.compiled = compiled

	s := spec
	r.tools[s.Name] = &s
	r.order = append(r.order, s.Name)
}

// Get returns a tool's spec by name.
func (r *Registry) Get(name string) (*ToolSpec, bool) {
	s, ok := r.tools[name]
	return s, ok
}

// List returns every registered tool, in registration order.
func (r *Registry) List() []*ToolSpec {
	out := make([]*ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Defs returns the tool set formatted for an llm.ToolDef slice without
// this package importing internal/llm — callers build the []llm.ToolDef
// from List() at the boundary. Defs exists purely so callers do not
// need to reach into ArgumentsSchema by hand.
func (r *Registry) Defs() []ToolSpec {
	out := make([]ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.tools[name])
	}
	return out
}

// Invoke validates argsJSON against the named tool's schema, then runs
// its handler under a per-invocation timeout derived from ctx.
func (r *Registry) Invoke(ctx context.Context, name string, argsJSON json.RawMessage) (string, error) {
	spec, ok := r.tools[name]
	if !ok {
		return "", agenterr.NotFound(fmt.Sprintf("tool %q", name))
	}

	var raw any
	if len(argsJSON) == 0 {
		raw = map[string]any{}
	} else if err := json.Unmarshal(argsJSON, &raw); err != nil {
		return "", agenterr.BadArguments(fmt.Sprintf("tool %q: arguments are not valid JSON", name), err)
	}

	if err := spec.compiled.Validate(raw); err != nil {
		return "", agenterr.BadArguments(fmt.Sprintf("tool %q: arguments failed validation", name), err)
	}

	args, ok := raw.(map[string]any)
	if !ok {
		args = map[string]any{}
	}

	callCtx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()

	resultCh := make(chan struct {
		text string
		err  error
	}, 1)
	go func() {
		text, err := spec.Handler(callCtx, args)
		resultCh <- struct {
			text string
			err  error
		}{text, err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return "", agenterr.ToolFailed(name, res.err)
		}
		return res.text, nil
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return "", agenterr.Cancelled()
		}
		return "", agenterr.ToolTimeout(name)
	}
}
