package llm

import "context"

// Client is the two-operation interface the Agent Loop drives. Complete
// is used for the reasoning/acting phases (the loop needs the whole
// message, including any tool calls, before it can proceed); Stream is
// used only for the final answer phase, where partial text can be
// forwarded to the client as it arrives.
type Client interface {
	Complete(ctx context.Context, messages []Message, tools []ToolDef, temperature float64) (*CompletionResult, error)
	Stream(ctx context.Context, messages []Message, temperature float64) (<-chan StreamChunk, error)
}
