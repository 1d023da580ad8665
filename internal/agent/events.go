package agent

import (
	"encoding/json"
	"sync"
)

// EventType discriminates the SSE event payloads the loop emits.
type EventType string

const (
	EventThinking    EventType = "thinking"
	EventToolStart   EventType = "tool_start"
	EventToolEnd     EventType = "tool_end"
	EventToolError   EventType = "tool_error"
	EventToolLimit   EventType = "tool_limit"
	EventAnswerStart EventType = "answer_start"
	EventAnswerChunk EventType = "answer_chunk"
	EventDone        EventType = "done"
)

// ToolCallSummary names one tool call made during a query, echoed back
// in the final "done" event.
type ToolCallSummary struct {
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args"`
}

// Event is one typed frame the loop emits during a query. Only the
// fields meaningful for Type are populated; a caller serialising this
// to SSE can marshal it directly.
type Event struct {
	Type EventType `json:"type"`

	// thinking
	Message string `json:"message,omitempty"`

	// tool_start / tool_end / tool_error
	Tool       string          `json:"tool,omitempty"`
	Args       json.RawMessage `json:"args,omitempty"`
	Result     string          `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	DurationMS int64           `json:"duration_ms,omitempty"`

	// tool_limit
	Reason string `json:"reason,omitempty"`

	// answer_chunk
	Chunk string `json:"chunk,omitempty"`

	// done
	Answer     string            `json:"answer,omitempty"`
	Iterations int               `json:"iterations,omitempty"`
	ToolCalls  []ToolCallSummary `json:"tool_calls,omitempty"`
}

// defaultEventBuffer sizes the Emitter's channel when the caller does
// not specify one.
const defaultEventBuffer = 256

// Emitter delivers Events to the SSE handler via a buffered channel. It
// never blocks the loop: a full channel drops the event rather than
// stalling the query.
type Emitter struct {
	ch     chan Event
	mu     sync.Mutex
	closed bool
}

// NewEmitter creates an Emitter with a buffered channel of the given
// size (defaultEventBuffer if size <= 0).
func NewEmitter(size int) *Emitter {
	if size <= 0 {
		size = defaultEventBuffer
	}
	return &Emitter{ch: make(chan Event, size)}
}

// Emit sends ev on the channel. Silently drops the event if the
// channel is full or the Emitter has been closed.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	select {
	case e.ch <- ev:
	default:
	}
}

// Events returns the read-only event channel.
func (e *Emitter) Events() <-chan Event {
	return e.ch
}

// Close closes the event channel. Safe to call multiple times.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
