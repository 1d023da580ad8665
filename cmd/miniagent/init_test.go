package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunInit_FreshDirectory(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer

	if err := runInit(&buf, dir); err != nil {
		t.Fatalf("runInit failed: %v", err)
	}

	for _, sub := range []string{"data", "skills"} {
		info, err := os.Stat(filepath.Join(dir, sub))
		if err != nil {
			t.Errorf("expected directory %s: %v", sub, err)
		} else if !info.IsDir() {
			t.Errorf("%s is not a directory", sub)
		}
	}

	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Errorf("config.yaml not created: %v", err)
	}
	for _, name := range []string{"code-explainer.md", "summarize.md"} {
		if _, err := os.Stat(filepath.Join(dir, "skills", name)); err != nil {
			t.Errorf("example skill %s not created: %v", name, err)
		}
	}

	if !strings.Contains(buf.String(), "config.yaml") {
		t.Errorf("expected output to mention config.yaml, got %q", buf.String())
	}
}

func TestRunInit_NeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	if err := runInit(&bytes.Buffer{}, dir); err != nil {
		t.Fatalf("first runInit failed: %v", err)
	}

	custom := []byte("data_dir: custom\n")
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, custom, 0o644); err != nil {
		t.Fatalf("overwrite config: %v", err)
	}

	if err := runInit(&bytes.Buffer{}, dir); err != nil {
		t.Fatalf("second runInit failed: %v", err)
	}

	got, err := os.ReadFile(cfgPath)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if string(got) != string(custom) {
		t.Errorf("runInit overwrote existing config.yaml")
	}
}
