package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/nugget/miniagent/internal/agenterr"
	"github.com/nugget/miniagent/internal/llm"
	"github.com/nugget/miniagent/internal/memoryindex"
	"github.com/nugget/miniagent/internal/session"
	"github.com/nugget/miniagent/internal/tools"
	"github.com/nugget/miniagent/internal/toolstore"
)

func testLoop(t *testing.T, fake *llm.FakeClient, registerTools func(*tools.Registry)) *Loop {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reg := tools.NewRegistry()
	if registerTools != nil {
		registerTools(reg)
	}

	return New(
		DefaultConfig(),
		session.New(dir, logger),
		memoryindex.New(dir),
		toolstore.New(dir),
		reg,
		fake,
		logger,
	)
}

func drain(emitter *Emitter) []Event {
	var events []Event
	for ev := range emitter.Events() {
		events = append(events, ev)
	}
	return events
}

func TestRunDirectAnswerNoTools(t *testing.T) {
	fake := &llm.FakeClient{
		Completions: []llm.CompletionResult{
			{Message: llm.Message{Role: llm.RoleAssistant, Content: "irrelevant, no tool calls"}},
		},
		StreamText: []string{"Hello there."},
	}
	loop := testLoop(t, fake, nil)
	emitter := NewEmitter(64)

	go func() {
		defer emitter.Close()
		result, err := loop.Run(context.Background(), Request{SessionKey: "s1", Query: "hi"}, emitter)
		if err != nil {
			t.Errorf("Run: %v", err)
		}
		if result.Answer != "Hello there." {
			t.Errorf("Answer = %q", result.Answer)
		}
		if result.Iterations != 1 {
			t.Errorf("Iterations = %d, want 1", result.Iterations)
		}
	}()

	events := drain(emitter)
	var sawDone bool
	for _, ev := range events {
		if ev.Type == EventDone {
			sawDone = true
			if ev.Answer != "Hello there." {
				t.Errorf("done.Answer = %q", ev.Answer)
			}
		}
	}
	if !sawDone {
		t.Fatal("expected a done event")
	}
}

func TestRunInvokesToolThenAnswers(t *testing.T) {
	toolArgs, _ := json.Marshal(map[string]string{"text": "ping"})
	fake := &llm.FakeClient{
		Completions: []llm.CompletionResult{
			{Message: llm.Message{
				Role:    llm.RoleAssistant,
				Content: "let me check",
				ToolCalls: []llm.ToolCall{
					{ID: "call_1", Name: "echo", Arguments: string(toolArgs)},
				},
			}},
			{Message: llm.Message{Role: llm.RoleAssistant, Content: "done reasoning"}},
		},
		StreamText: []string{"ping received"},
	}
	loop := testLoop(t, fake, func(r *tools.Registry) { tools.RegisterEcho(r) })
	emitter := NewEmitter(64)

	var result *Result
	var runErr error
	go func() {
		defer emitter.Close()
		result, runErr = loop.Run(context.Background(), Request{SessionKey: "s2", Query: "echo ping"}, emitter)
	}()

	events := drain(emitter)
	if runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}
	if result.Iterations != 2 {
		t.Errorf("Iterations = %d, want 2", result.Iterations)
	}
	if len(result.ToolCalls) != 1 || result.ToolCalls[0].Tool != "echo" {
		t.Errorf("ToolCalls = %+v", result.ToolCalls)
	}

	var sawStart, sawEnd bool
	for _, ev := range events {
		switch ev.Type {
		case EventToolStart:
			sawStart = true
		case EventToolEnd:
			sawEnd = true
			if ev.Result != "ping" {
				t.Errorf("tool_end.Result = %q", ev.Result)
			}
		}
	}
	if !sawStart || !sawEnd {
		t.Fatal("expected tool_start and tool_end events")
	}
}

func TestRunToolFailureContinuesLoop(t *testing.T) {
	fake := &llm.FakeClient{
		Completions: []llm.CompletionResult{
			{Message: llm.Message{
				Role: llm.RoleAssistant,
				ToolCalls: []llm.ToolCall{
					{ID: "call_1", Name: "missing_tool", Arguments: "{}"},
				},
			}},
			{Message: llm.Message{Role: llm.RoleAssistant, Content: "recovered"}},
		},
		StreamText: []string{"final answer"},
	}
	loop := testLoop(t, fake, nil)
	emitter := NewEmitter(64)

	var result *Result
	go func() {
		defer emitter.Close()
		r, err := loop.Run(context.Background(), Request{SessionKey: "s3", Query: "q"}, emitter)
		if err != nil {
			t.Errorf("Run: %v", err)
		}
		result = r
	}()

	events := drain(emitter)
	var sawError bool
	for _, ev := range events {
		if ev.Type == EventToolError {
			sawError = true
		}
	}
	if !sawError {
		t.Fatal("expected a tool_error event for the unregistered tool")
	}
	if result == nil || result.Answer != "final answer" {
		t.Fatalf("result = %+v", result)
	}
}

func TestRunLLMErrorProducesApologeticDone(t *testing.T) {
	fake := &llm.FakeClient{} // no scripted completions: first call fails
	loop := testLoop(t, fake, nil)
	emitter := NewEmitter(64)

	var result *Result
	go func() {
		defer emitter.Close()
		r, err := loop.Run(context.Background(), Request{SessionKey: "s4", Query: "q"}, emitter)
		if err != nil {
			t.Errorf("Run: %v", err)
		}
		result = r
	}()

	events := drain(emitter)
	if len(events) != 1 || events[0].Type != EventDone {
		t.Fatalf("events = %+v, want single done event", events)
	}
	if result == nil || !strings.Contains(result.Answer, "problem") {
		t.Fatalf("result = %+v", result)
	}
}

func TestRunCancelledDuringToolInvocationEmitsNothingFurther(t *testing.T) {
	toolArgs, _ := json.Marshal(map[string]string{})
	fake := &llm.FakeClient{
		Completions: []llm.CompletionResult{
			{Message: llm.Message{
				Role: llm.RoleAssistant,
				ToolCalls: []llm.ToolCall{
					{ID: "call_1", Name: "slow", Arguments: string(toolArgs)},
				},
			}},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	loop := testLoop(t, fake, func(r *tools.Registry) {
		r.Register(tools.ToolSpec{
			Name:            "slow",
			Description:     "blocks until the context is cancelled",
			ArgumentsSchema: map[string]any{"type": "object"},
			Timeout:         time.Second,
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				cancel()
				<-ctx.Done()
				return "", ctx.Err()
			},
		})
	})
	emitter := NewEmitter(64)

	var result *Result
	var runErr error
	go func() {
		defer emitter.Close()
		result, runErr = loop.Run(ctx, Request{SessionKey: "s6", Query: "q"}, emitter)
	}()

	events := drain(emitter)
	if !errors.Is(runErr, agenterr.Cancelled()) {
		t.Fatalf("Run err = %v, want cancelled", runErr)
	}
	if result == nil || !result.Cancelled {
		t.Fatalf("result = %+v, want Cancelled=true", result)
	}
	for _, ev := range events {
		if ev.Type == EventToolError || ev.Type == EventToolEnd || ev.Type == EventDone {
			t.Errorf("unexpected event after cancellation: %+v", ev)
		}
	}

	// Only the user query persisted in Phase 1 survives; the in-flight
	// assistant/tool-call round that was cancelled persists nothing.
	msgs, err := loop.sessions.List("s6")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Role != session.RoleUser {
		t.Errorf("expected only the user query persisted, got %+v", msgs)
	}
}

func TestRunRespectsMaxIterations(t *testing.T) {
	toolArgs, _ := json.Marshal(map[string]string{"text": "x"})
	completions := make([]llm.CompletionResult, 0, 10)
	for i := 0; i < 10; i++ {
		completions = append(completions, llm.CompletionResult{
			Message: llm.Message{
				Role: llm.RoleAssistant,
				ToolCalls: []llm.ToolCall{
					{ID: "call", Name: "echo", Arguments: string(toolArgs)},
				},
			},
		})
	}
	fake := &llm.FakeClient{Completions: completions, StreamText: []string{"forced answer"}}
	loop := testLoop(t, fake, func(r *tools.Registry) { tools.RegisterEcho(r) })
	loop.cfg.MaxIterations = 3
	emitter := NewEmitter(256)

	var result *Result
	go func() {
		defer emitter.Close()
		r, err := loop.Run(context.Background(), Request{SessionKey: "s5", Query: "q"}, emitter)
		if err != nil {
			t.Errorf("Run: %v", err)
		}
		result = r
	}()

	drain(emitter)
	if result == nil || result.Iterations != 3 {
		t.Fatalf("Iterations = %+v, want 3", result)
	}
}
