// Package toolstore implements the Tool Context Store: content-addressed
// persistence for full tool-call results, with pointer inlining so a
// large tool output does not blow up every subsequent prompt in a
// query. A later step can always re-fetch the full text by pointer.
package toolstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/miniagent/internal/agenterr"
)

// Entry is one immutable record in the store.
type Entry struct {
	PointerID string         `json:"pointer_id"`
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
	Text      string         `json:"text"`
	CreatedAt time.Time      `json:"created_at"`
}

// Store persists Entry values as one immutable file per pointer under
// dataDir/context/.
type Store struct {
	dataDir string
}

// New creates a Store rooted at dataDir.
func New(dataDir string) *Store {
	return &Store{dataDir: dataDir}
}

func (s *Store) dir() string { return filepath.Join(s.dataDir, "context") }

func (s *Store) path(pointerID string) string {
	return filepath.Join(s.dir(), pointerID+".json")
}

// newPointerID returns a short-prefixed 128-bit random pointer id (a
// UUID as 32 hex digits), e.g. "ctx_0f8e5c2a9b7d4e1f8a3c6b9d2e5f7a10".
func newPointerID() string {
	id := uuid.New()
	return "ctx_" + strings.ReplaceAll(id.String(), "-", "")
}

// Put stores fullResultText and returns a new pointer id referencing it.
func (s *Store) Put(toolName string, arguments map[string]any, fullResultText string) (string, error) {
	if err := os.MkdirAll(s.dir(), 0o755); err != nil {
		return "", agenterr.IOError("create context dir", err)
	}

	entry := Entry{
		PointerID: newPointerID(),
		ToolName:  toolName,
		Arguments: arguments,
		Text:      fullResultText,
		CreatedAt: time.Now(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return "", agenterr.IOError("marshal tool context entry", err)
	}
	if err := os.WriteFile(s.path(entry.PointerID), data, 0o644); err != nil {
		return "", agenterr.IOError("write tool context entry", err)
	}
	return entry.PointerID, nil
}

// Get retrieves the entry for a pointer id.
func (s *Store) Get(pointerID string) (*Entry, error) {
	data, err := os.ReadFile(s.path(pointerID))
	if os.IsNotExist(err) {
		return nil, agenterr.NotFound(fmt.Sprintf("pointer %q", pointerID))
	}
	if err != nil {
		return nil, agenterr.IOError("read tool context entry", err)
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, agenterr.IOError("unmarshal tool context entry", err)
	}
	return &entry, nil
}

// GetText resolves a pointer id directly to its stored text, for
// callers (like the fetch_pointer tool) that don't need the rest of
// the entry.
func (s *Store) GetText(pointerID string) (string, error) {
	entry, err := s.Get(pointerID)
	if err != nil {
		return "", err
	}
	return entry.Text, nil
}

// estimateTokens gives a cheap token estimate without a tokenizer,
// matching the 4-chars-per-token rule of thumb used elsewhere in the
// pack for budget checks that don't need exactness.
func estimateTokens(s string) int { return len(s) / 4 }

// Render returns text suitable for inlining into a scratchpad or
// prompt: the full text if it fits within maxInlineChars, or a short
// placeholder naming the pointer id and size otherwise.
func (s *Store) Render(pointerID string, maxInlineChars int) string {
	entry, err := s.Get(pointerID)
	if err != nil {
		return fmt.Sprintf("[pointer:%s unavailable]", pointerID)
	}
	if len(entry.Text) <= maxInlineChars {
		return entry.Text
	}
	return fmt.Sprintf("[pointer:%s %d bytes (~%d tokens), use fetch_pointer to retrieve]",
		entry.PointerID, len(entry.Text), estimateTokens(entry.Text))
}
