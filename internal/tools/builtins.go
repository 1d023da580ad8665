package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/invopop/jsonschema"
)

// schemaFor reflects a Go argument struct into a JSON Schema map,
// avoiding hand-written map[string]any schema literals for every
// built-in tool.
func schemaFor(v any) map[string]any {
	reflector := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
	}
	schema := reflector.Reflect(v)
	data, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("tools: reflect schema: %v", err))
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		panic(fmt.Sprintf("tools: unmarshal reflected schema: %v", err))
	}
	// jsonschema emits a top-level "$schema" key that jsonschema/v5
	// happily ignores, so it's left as-is rather than stripped.
	return m
}

// EchoArgs is the argument struct for the echo tool.
type EchoArgs struct {
	Text string `json:"text" jsonschema:"required,description=Text to echo back verbatim."`
}

// RegisterEcho adds the echo tool: returns its input unchanged. Useful
// for exercising the loop mechanics (tool selection, scratchpad
// rendering) without any external dependency.
func RegisterEcho(r *Registry) {
	r.Register(ToolSpec{
		Name:            "echo",
		Description:     "Echo the given text back verbatim. Useful for testing that tool calls are wired correctly.",
		ArgumentsSchema: schemaFor(EchoArgs{}),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			text, _ := args["text"].(string)
			return text, nil
		},
	})
}

// CurrentTimeArgs is the argument struct for the current_time tool.
type CurrentTimeArgs struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"description=IANA timezone name (e.g. 'America/Chicago'). Defaults to UTC."`
}

// RegisterCurrentTime adds the current_time tool.
func RegisterCurrentTime(r *Registry) {
	r.Register(ToolSpec{
		Name:            "current_time",
		Description:     "Return the current wall-clock time, optionally in a specific IANA timezone.",
		ArgumentsSchema: schemaFor(CurrentTimeArgs{}),
		Timeout:         5 * time.Second,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			loc := time.UTC
			if tz, _ := args["timezone"].(string); tz != "" {
				l, err := time.LoadLocation(tz)
				if err != nil {
					return "", fmt.Errorf("unknown timezone %q: %w", tz, err)
				}
				loc = l
			}
			return time.Now().In(loc).Format(time.RFC3339), nil
		},
	})
}
