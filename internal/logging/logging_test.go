package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"info":  slog.LevelInfo,
		"debug": slog.LevelDebug,
		"trace": LevelTrace,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for input, want := range cases {
		got, err := ParseLevel(input)
		if err != nil {
			t.Errorf("ParseLevel(%q): %v", input, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestParseLevelUnknown(t *testing.T) {
	if _, err := ParseLevel("bogus"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNewTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo, "text")
	logger.Info("hello")
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("output = %q, want to contain %q", buf.String(), "hello")
	}
}

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo, "json")
	logger.Info("hello")
	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Errorf("output = %q, want JSON msg field", buf.String())
	}
}

func TestReplaceLevelNamesRendersTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelTrace, "text")
	logger.Log(context.Background(), LevelTrace, "wire payload")
	if !strings.Contains(buf.String(), "TRACE") {
		t.Errorf("output = %q, want TRACE level name", buf.String())
	}
}
