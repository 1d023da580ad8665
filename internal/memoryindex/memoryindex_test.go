package memoryindex

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRecordAndRecall(t *testing.T) {
	idx := New(t.TempDir())
	if err := idx.Record("main", "what is the capital of France", "Paris is the capital of France."); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := idx.Record("main", "what's a good pasta recipe", "Try carbonara with guanciale."); err != nil {
		t.Fatalf("Record: %v", err)
	}

	results, err := idx.Recall("main", "capital France", 5)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 relevant entry, got %d: %+v", len(results), results)
	}
	if results[0].Question != "what is the capital of France" {
		t.Errorf("unexpected recall result: %+v", results[0])
	}
}

func TestRecallIsPerSession(t *testing.T) {
	idx := New(t.TempDir())
	if err := idx.Record("session-a", "what is the capital of France", "Paris."); err != nil {
		t.Fatalf("Record: %v", err)
	}
	results, err := idx.Recall("session-b", "capital France", 5)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no cross-session recall, got %+v", results)
	}
}

func TestRecallDecaysWithAge(t *testing.T) {
	dir := t.TempDir()
	idx := New(dir, WithHalfLifeDays(1))

	old := Entry{Question: "go concurrency patterns", Answer: "use channels", Keywords: tokenize("go concurrency patterns use channels"), CreatedAt: time.Now().Add(-10 * 24 * time.Hour)}
	recent := Entry{Question: "go concurrency patterns again", Answer: "still channels", Keywords: tokenize("go concurrency patterns again still channels"), CreatedAt: time.Now()}

	writeEntry(t, dir, "main", old)
	writeEntry(t, dir, "main", recent)

	results, err := idx.Recall("main", "go concurrency patterns", 5)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Question != "go concurrency patterns again" {
		t.Errorf("expected recent entry ranked first, got %+v", results)
	}
}

func writeEntry(t *testing.T, dataDir, sessionKey string, e Entry) {
	t.Helper()
	dir := filepath.Join(dataDir, "memory")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, sessionKey+".jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		t.Fatalf("write: %v", err)
	}
}
