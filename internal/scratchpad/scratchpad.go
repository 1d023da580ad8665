// Package scratchpad holds the working state of one in-flight query: the
// ordered sequence of reasoning/act/observe steps the Agent Loop has
// taken so far, rendered back into the prompt on every iteration.
package scratchpad

import (
	"fmt"
	"strings"
)

// StepKind is a tagged-union discriminator for Step, following the
// same tagged-variant shape as an SSE event: exactly one of the
// type-specific fields on Step is meaningful for a given Kind.
type StepKind string

const (
	// KindThought is the model's reasoning text for one iteration.
	KindThought StepKind = "thought"
	// KindAct is a tool call the model requested.
	KindAct StepKind = "act"
	// KindObserve is the result of executing an Act.
	KindObserve StepKind = "observe"
	// KindLimitNotice records that a soft limit was crossed and the
	// model was told so.
	KindLimitNotice StepKind = "limit_notice"
)

// Step is one entry in the scratchpad.
type Step struct {
	Kind StepKind

	// Thought
	Text string

	// Act
	CallID    string
	ToolName  string
	Arguments string // raw JSON

	// Observe
	ObservePointerID string // set when the result was large enough to be pointer-stored
	ObserveInline    string // set when the result was small enough to inline directly
	ObserveError     string // set instead of ObserveInline/ObservePointerID on tool failure

	// LimitNotice
	LimitCategory string
	LimitCount    int
}

// Pad is the ordered, append-only scratchpad for one query.
type Pad struct {
	steps       []Step
	openActCall string // CallID of an Act with no matching Observe yet, or ""
}

// New creates an empty Pad.
func New() *Pad {
	return &Pad{}
}

// Append adds step to the pad. Append panics if step is a second Act
// before the first's matching Observe has been appended — the Agent
// Loop is the only caller and always pairs Act/Observe, so a violation
// here is a programming error, not a runtime condition to recover from.
func (p *Pad) Append(step Step) {
	if step.Kind == KindAct {
		if p.openActCall != "" {
			panic(fmt.Sprintf("scratchpad: act %q appended while %q has no observation", step.CallID, p.openActCall))
		}
		p.openActCall = step.CallID
	}
	if step.Kind == KindObserve {
		if p.openActCall == "" {
			panic("scratchpad: observe appended with no open act")
		}
		p.openActCall = ""
	}
	p.steps = append(p.steps, step)
}

// Steps returns the steps appended so far, in order.
func (p *Pad) Steps() []Step {
	return p.steps
}

// ToolCallCount returns how many Act steps have been recorded for the
// given tool name so far ("" matches all tools), used to enforce the
// per-category and overall soft limits.
func (p *Pad) ToolCallCount(toolName string) int {
	n := 0
	for _, s := range p.steps {
		if s.Kind == KindAct && (toolName == "" || s.ToolName == toolName) {
			n++
		}
	}
	return n
}

// renderer supplies the inlined-or-pointer text for an Observe step
// whose result was stored via a pointer. Kept as an interface so the
// scratchpad package does not depend on the Tool Context Store.
type renderer interface {
	Render(pointerID string, maxInlineChars int) string
}

// Render deterministically formats every step into the transcript
// fragment injected into the next LLM prompt. Steps render in append
// order; pointer-backed observations are expanded through render with
// maxInlineChars as the inline budget.
func (p *Pad) Render(render renderer, maxInlineChars int) string {
	var b strings.Builder
	for _, s := range p.steps {
		switch s.Kind {
		case KindThought:
			fmt.Fprintf(&b, "Thought: %s\n", s.Text)
		case KindAct:
			fmt.Fprintf(&b, "Act[%s]: %s(%s)\n", s.CallID, s.ToolName, s.Arguments)
		case KindObserve:
			switch {
			case s.ObserveError != "":
				fmt.Fprintf(&b, "Observation error: %s\n", s.ObserveError)
			case s.ObservePointerID != "":
				text := s.ObserveInline
				if render != nil {
					text = render.Render(s.ObservePointerID, maxInlineChars)
				}
				fmt.Fprintf(&b, "Observation: %s\n", text)
			default:
				fmt.Fprintf(&b, "Observation: %s\n", s.ObserveInline)
			}
		case KindLimitNotice:
			fmt.Fprintf(&b, "[limit] %s to %q reached; consider answering with what you have.\n", pluralCalls(s.LimitCount), s.LimitCategory)
		}
	}
	return b.String()
}

func pluralCalls(n int) string {
	if n == 1 {
		return "1 call"
	}
	return fmt.Sprintf("%d calls", n)
}
