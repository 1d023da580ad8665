// Package agent implements the Agent Loop: the reason-act cycle that
// turns one user query into a sequence of Reasoning/Acting rounds
// followed by a streamed Answer, wiring together the Session Store,
// Memory Index, Tool Context Store, Tool Registry, and LLM Adapter.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nugget/miniagent/internal/agenterr"
	"github.com/nugget/miniagent/internal/conditions"
	"github.com/nugget/miniagent/internal/llm"
	"github.com/nugget/miniagent/internal/memoryindex"
	"github.com/nugget/miniagent/internal/prompts"
	"github.com/nugget/miniagent/internal/scratchpad"
	"github.com/nugget/miniagent/internal/session"
	"github.com/nugget/miniagent/internal/tools"
	"github.com/nugget/miniagent/internal/toolstore"
)

// Config tunes the loop's iteration caps and prompt-shaping knobs.
// Field meanings and defaults mirror spec.md's N_iter/L_soft/inline
// budget constants.
type Config struct {
	MaxIterations        int
	SoftLimitPerCategory int
	SoftLimitOverall     int
	InlineCharBudget     int
	MemoryRecallCount    int
	Temperature          float64
	Timezone             string
}

// DefaultConfig returns the loop's default tuning knobs.
func DefaultConfig() Config {
	return Config{
		MaxIterations:        8,
		SoftLimitPerCategory: 4,
		SoftLimitOverall:     8,
		InlineCharBudget:     2000,
		MemoryRecallCount:    3,
		Temperature:          0.3,
	}
}

// Loop is the Agent Loop: one instance is shared across all in-flight
// queries in a process. It holds no per-query state; everything about
// a single run lives in the scratchpad and messages built inside Run.
type Loop struct {
	cfg Config

	sessions  *session.Store
	memory    *memoryindex.Index
	toolStore *toolstore.Store
	toolReg   *tools.Registry
	llmClient llm.Client

	logger *slog.Logger
}

// New creates a Loop from its dependencies.
func New(cfg Config, sessions *session.Store, memory *memoryindex.Index, toolStore *toolstore.Store, toolReg *tools.Registry, llmClient llm.Client, logger *slog.Logger) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultConfig().MaxIterations
	}
	if cfg.SoftLimitPerCategory <= 0 {
		cfg.SoftLimitPerCategory = DefaultConfig().SoftLimitPerCategory
	}
	if cfg.SoftLimitOverall <= 0 {
		cfg.SoftLimitOverall = DefaultConfig().SoftLimitOverall
	}
	if cfg.InlineCharBudget <= 0 {
		cfg.InlineCharBudget = DefaultConfig().InlineCharBudget
	}
	if cfg.MemoryRecallCount <= 0 {
		cfg.MemoryRecallCount = DefaultConfig().MemoryRecallCount
	}
	return &Loop{
		cfg:       cfg,
		sessions:  sessions,
		memory:    memory,
		toolStore: toolStore,
		toolReg:   toolReg,
		llmClient: llmClient,
		logger:    logger,
	}
}

// Request is one incoming query.
type Request struct {
	SessionKey string
	Query      string
}

// Result is the outcome of a completed (or cancelled) Run.
type Result struct {
	Answer     string
	Iterations int
	ToolCalls  []ToolCallSummary
	Cancelled  bool
}

// Run executes the full Setup -> Reasoning/Acting -> Answering sequence
// for one query, emitting events on emitter as it goes. Run returns a
// non-nil error only for conditions the caller must react to beyond
// what was already emitted: agenterr.Cancelled (with a Result marked
// Cancelled), or agenterr.IOError (with a nil Result) when the session
// history cannot be loaded or the user message cannot be appended.
func (l *Loop) Run(ctx context.Context, req Request, emitter *Emitter) (*Result, error) {
	key := session.NormalizeKey(req.SessionKey)

	// --- Phase 1: Setup ---

	history, err := l.sessions.List(key)
	if err != nil {
		return nil, agenterr.IOError("load session history", err)
	}

	recalled, err := l.memory.Recall(key, req.Query, l.cfg.MemoryRecallCount)
	if err != nil {
		l.logger.Warn("memory recall failed", "session", key, "error", err)
	}
	memoryBlock := formatMemoryBlock(recalled)

	toolSpecs := l.toolReg.List()
	toolDescriptions := formatToolDescriptions(toolSpecs)
	systemPrompt := prompts.AssembleSystemPrompt(
		conditions.CurrentConditions(l.cfg.Timezone, key, len(toolSpecs)),
		toolDescriptions,
		memoryBlock,
	)

	if err := l.sessions.Append(key, session.Message{
		Role:      session.RoleUser,
		Content:   req.Query,
		CreatedAt: time.Now(),
	}); err != nil {
		return nil, agenterr.IOError("append user message", err)
	}

	pad := scratchpad.New()
	toolDefs := buildToolDefs(l.toolReg.List())

	var toolCalls []ToolCallSummary
	iterations := 0

	messages := buildMessages(systemPrompt, history, req.Query, "")

	// --- Phase 2: Reasoning / Acting ---

	for iterations = 1; iterations <= l.cfg.MaxIterations; iterations++ {
		if ctx.Err() != nil {
			return &Result{Cancelled: true}, agenterr.Cancelled()
		}

		result, err := l.llmClient.Complete(ctx, messages, toolDefs, l.cfg.Temperature)
		if err != nil {
			if ctx.Err() != nil {
				return &Result{Cancelled: true}, agenterr.Cancelled()
			}
			return l.finishWithError(emitter, err, iterations, toolCalls), nil
		}

		if len(result.Message.ToolCalls) == 0 {
			if strings.TrimSpace(result.Message.Content) == "" && iterations < l.cfg.MaxIterations {
				messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: prompts.EmptyResponseNudge})
				continue
			}
			break
		}

		if strings.TrimSpace(result.Message.Content) != "" {
			emitter.Emit(Event{Type: EventThinking, Message: result.Message.Content})
			pad.Append(scratchpad.Step{Kind: scratchpad.KindThought, Text: result.Message.Content})

			// Narration and the tool-call trace are persisted as separate
			// messages: an assistant message carries either final text or
			// a tool-calls list, never both.
			if err := l.sessions.Append(key, session.Message{
				Role:      session.RoleAssistant,
				Content:   result.Message.Content,
				CreatedAt: time.Now(),
			}); err != nil {
				l.logger.Warn("append assistant thought failed", "session", key, "error", err)
			}
		}

		assistantMsg := session.Message{
			Role:      session.RoleAssistant,
			CreatedAt: time.Now(),
		}
		var toolResultMsgs []session.Message

		for _, tc := range result.Message.ToolCalls {
			if ctx.Err() != nil {
				return &Result{Cancelled: true}, agenterr.Cancelled()
			}

			argsJSON := json.RawMessage(tc.Arguments)
			emitter.Emit(Event{Type: EventToolStart, Tool: tc.Name, Args: argsJSON})
			pad.Append(scratchpad.Step{Kind: scratchpad.KindAct, CallID: tc.ID, ToolName: tc.Name, Arguments: tc.Arguments})

			assistantMsg.ToolCalls = append(assistantMsg.ToolCalls, session.ToolCall{
				ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments,
			})
			toolCalls = append(toolCalls, ToolCallSummary{Tool: tc.Name, Args: argsJSON})

			start := time.Now()
			resultText, invokeErr := l.toolReg.Invoke(ctx, tc.Name, argsJSON)
			duration := time.Since(start)

			if invokeErr != nil && (errors.Is(invokeErr, agenterr.Cancelled()) || ctx.Err() != nil) {
				// A disconnect mid-invocation ends the query immediately:
				// no further events, and nothing from this round (not even
				// the tool calls already collected) is persisted.
				return &Result{Cancelled: true}, agenterr.Cancelled()
			}

			var toolResultMsg session.Message
			if invokeErr != nil {
				emitter.Emit(Event{Type: EventToolError, Tool: tc.Name, Error: invokeErr.Error(), DurationMS: duration.Milliseconds()})
				pad.Append(scratchpad.Step{Kind: scratchpad.KindObserve, CallID: tc.ID, ObserveError: invokeErr.Error()})
				toolResultMsg = session.Message{
					Role:       session.RoleTool,
					Content:    fmt.Sprintf("error: %s", invokeErr.Error()),
					ToolCallID: tc.ID,
					CreatedAt:  time.Now(),
				}
			} else {
				var argMap map[string]any
				_ = json.Unmarshal(argsJSON, &argMap)
				pointerID, putErr := l.toolStore.Put(tc.Name, argMap, resultText)
				rendered := resultText
				if putErr == nil {
					rendered = l.toolStore.Render(pointerID, l.cfg.InlineCharBudget)
				}
				emitter.Emit(Event{Type: EventToolEnd, Tool: tc.Name, Result: rendered, DurationMS: duration.Milliseconds()})
				pad.Append(scratchpad.Step{Kind: scratchpad.KindObserve, CallID: tc.ID, ObservePointerID: pointerID, ObserveInline: rendered})
				toolResultMsg = session.Message{
					Role:       session.RoleTool,
					Content:    resultText,
					ToolCallID: tc.ID,
					CreatedAt:  time.Now(),
				}
			}

			l.checkSoftLimits(pad, tc.Name, emitter)
			toolResultMsgs = append(toolResultMsgs, toolResultMsg)
		}

		// The assistant message carrying the tool-call trace must precede
		// the tool result messages answering it, so a replayed transcript
		// stays valid against an OpenAI-compatible endpoint.
		if err := l.sessions.Append(key, assistantMsg); err != nil {
			l.logger.Warn("append assistant trace failed", "session", key, "error", err)
		}
		for _, m := range toolResultMsgs {
			if err := l.sessions.Append(key, m); err != nil {
				l.logger.Warn("append tool result failed", "session", key, "error", err)
			}
		}

		messages = buildMessages(systemPrompt, history, req.Query, pad.Render(l.toolStore, l.cfg.InlineCharBudget))
	}

	forcedByIterLimit := iterations > l.cfg.MaxIterations
	if forcedByIterLimit {
		iterations = l.cfg.MaxIterations
		emitter.Emit(Event{Type: EventToolLimit, Reason: fmt.Sprintf("reached the %d-iteration limit; answering with what's available", l.cfg.MaxIterations)})
		messages = append(messages, llm.Message{
			Role:    llm.RoleSystem,
			Content: "You have reached the iteration limit for this query. Answer now using only the information already gathered.",
		})
	}

	// --- Phase 3: Answer ---

	emitter.Emit(Event{Type: EventAnswerStart})

	stream, err := l.llmClient.Stream(ctx, messages, l.cfg.Temperature)
	if err != nil {
		if ctx.Err() != nil {
			return &Result{Cancelled: true}, agenterr.Cancelled()
		}
		return l.finishWithError(emitter, err, iterations, toolCalls), nil
	}

	var buf strings.Builder
	for chunk := range stream {
		if ctx.Err() != nil {
			return &Result{Cancelled: true}, agenterr.Cancelled()
		}
		if chunk.Text != "" {
			buf.WriteString(chunk.Text)
			emitter.Emit(Event{Type: EventAnswerChunk, Chunk: chunk.Text})
		}
	}
	answer := buf.String()
	if strings.TrimSpace(answer) == "" {
		answer = prompts.EmptyResponseFallback
	}

	emitter.Emit(Event{Type: EventDone, Answer: answer, Iterations: iterations, ToolCalls: toolCalls})

	if err := l.sessions.Append(key, session.Message{
		Role:      session.RoleAssistant,
		Content:   answer,
		CreatedAt: time.Now(),
	}); err != nil {
		l.logger.Warn("persist final answer failed", "session", key, "error", err)
	}

	if err := l.memory.Record(key, req.Query, truncateForSummary(answer, 200)); err != nil {
		l.logger.Warn("memory record failed", "session", key, "error", err)
	}

	return &Result{Answer: answer, Iterations: iterations, ToolCalls: toolCalls}, nil
}

// checkSoftLimits emits a tool_limit event and records a LimitNotice
// step the first time a category or the overall count crosses its
// soft limit. Soft limits are advisory: exceeding one never aborts the
// loop, only nudges the model toward wrapping up.
func (l *Loop) checkSoftLimits(pad *scratchpad.Pad, toolName string, emitter *Emitter) {
	categoryCount := pad.ToolCallCount(toolName)
	if categoryCount == l.cfg.SoftLimitPerCategory+1 {
		emitter.Emit(Event{Type: EventToolLimit, Reason: fmt.Sprintf("%q has been called %d times", toolName, categoryCount)})
		pad.Append(scratchpad.Step{Kind: scratchpad.KindLimitNotice, LimitCategory: toolName, LimitCount: categoryCount})
	}

	overallCount := pad.ToolCallCount("")
	if overallCount == l.cfg.SoftLimitOverall+1 {
		emitter.Emit(Event{Type: EventToolLimit, Reason: fmt.Sprintf("%d total tool calls made this query", overallCount)})
		pad.Append(scratchpad.Step{Kind: scratchpad.KindLimitNotice, LimitCategory: "overall", LimitCount: overallCount})
	}
}

// finishWithError handles an LLMError raised during a reasoning round
// or the answer stream: the query terminates with an apologetic answer
// rather than propagating a raw failure to the client, per spec.md §7.
func (l *Loop) finishWithError(emitter *Emitter, err error, iterations int, toolCalls []ToolCallSummary) *Result {
	l.logger.Error("llm call failed", "error", err)
	answer := "I ran into a problem talking to the language model and can't finish this answer. Please try again."
	emitter.Emit(Event{Type: EventDone, Answer: answer, Iterations: iterations, ToolCalls: toolCalls})
	return &Result{Answer: answer, Iterations: iterations, ToolCalls: toolCalls}
}

// buildMessages assembles the []llm.Message the LLM Adapter sees for
// one Complete/Stream call: system prompt, prior session history, the
// current user query, and (once at least one reasoning round has
// happened) the scratchpad rendered as a system-role addendum.
func buildMessages(systemPrompt string, history []session.Message, query, scratchpadText string) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+3)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})

	for _, m := range history {
		messages = append(messages, convertSessionMessage(m))
	}

	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: query})

	if strings.TrimSpace(scratchpadText) != "" {
		messages = append(messages, llm.Message{
			Role:    llm.RoleSystem,
			Content: "## Scratchpad so far\n" + scratchpadText,
		})
	}

	return messages
}

func convertSessionMessage(m session.Message) llm.Message {
	out := llm.Message{
		Role:       llm.Role(m.Role),
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
	}
	return out
}

func buildToolDefs(specs []*tools.ToolSpec) []llm.ToolDef {
	defs := make([]llm.ToolDef, 0, len(specs))
	for _, s := range specs {
		defs = append(defs, llm.ToolDef{Name: s.Name, Description: s.Description, Schema: s.ArgumentsSchema})
	}
	return defs
}

func formatToolDescriptions(specs []*tools.ToolSpec) string {
	if len(specs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Available tools\n\n")
	for _, s := range specs {
		fmt.Fprintf(&b, "- **%s**: %s\n", s.Name, s.Description)
	}
	return b.String()
}

func formatMemoryBlock(entries []memoryindex.Entry) string {
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Relevant memory from earlier in this session\n\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "- Q: %s\n  A: %s\n", e.Question, e.Answer)
	}
	return b.String()
}

func truncateForSummary(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
