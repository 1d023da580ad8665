package llm

import "context"

// FakeClient is a scripted Client used by tests that exercise the
// Agent Loop without a live provider. Responses are consumed in order;
// once exhausted, Complete/Stream return an error.
type FakeClient struct {
	Completions []CompletionResult
	StreamText  []string // one entry per Stream call, split into chunks internally

	completeCalls int
	streamCalls   int

	// Requests records every call for assertions.
	Requests []FakeRequest
}

// FakeRequest captures one Complete or Stream invocation.
type FakeRequest struct {
	Messages []Message
	Tools    []ToolDef
}

func (f *FakeClient) Complete(ctx context.Context, messages []Message, tools []ToolDef, temperature float64) (*CompletionResult, error) {
	f.Requests = append(f.Requests, FakeRequest{Messages: messages, Tools: tools})
	if f.completeCalls >= len(f.Completions) {
		return nil, errNoScriptedResponse
	}
	result := f.Completions[f.completeCalls]
	f.completeCalls++
	return &result, nil
}

func (f *FakeClient) Stream(ctx context.Context, messages []Message, temperature float64) (<-chan StreamChunk, error) {
	f.Requests = append(f.Requests, FakeRequest{Messages: messages})
	if f.streamCalls >= len(f.StreamText) {
		return nil, errNoScriptedResponse
	}
	text := f.StreamText[f.streamCalls]
	f.streamCalls++

	out := make(chan StreamChunk, len(text)+1)
	for _, r := range text {
		out <- StreamChunk{Text: string(r)}
	}
	out <- StreamChunk{Done: true}
	close(out)
	return out, nil
}

var errNoScriptedResponse = &fakeError{"fake llm client: no scripted response remaining"}

type fakeError struct{ msg string }

func (e *fakeError) Error() string { return e.msg }
