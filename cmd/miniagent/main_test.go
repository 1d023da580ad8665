package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestRunNoArgsPrintsUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), &stdout, &stderr, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stdout.String(), "Usage: miniagent") {
		t.Errorf("expected usage text, got %q", stdout.String())
	}
}

func TestRunHelpFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), &stdout, &stderr, []string{"--help"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stdout.String(), "Commands:") {
		t.Errorf("expected help text, got %q", stdout.String())
	}
}

func TestRunVersionText(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), &stdout, &stderr, []string{"version"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stdout.String(), "version:") {
		t.Errorf("expected version fields, got %q", stdout.String())
	}
}

func TestRunVersionJSON(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), &stdout, &stderr, []string{"-o", "json", "version"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stdout.String(), `"version"`) {
		t.Errorf("expected JSON output, got %q", stdout.String())
	}
}

func TestRunUnknownOutputFormat(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), &stdout, &stderr, []string{"-o", "xml", "version"})
	if err == nil {
		t.Fatal("expected error for unknown output format")
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), &stdout, &stderr, []string{"frobnicate"})
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
}

func TestRunAskRequiresQuestion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), &stdout, &stderr, []string{"ask"})
	if err == nil {
		t.Fatal("expected error when ask has no question")
	}
}

func TestRunInitCommand(t *testing.T) {
	dir := t.TempDir()
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), &stdout, &stderr, []string{"init", dir}); err != nil {
		t.Fatalf("run init: %v", err)
	}
	if !strings.Contains(stdout.String(), dir) {
		t.Errorf("expected init output to mention %s, got %q", dir, stdout.String())
	}
}

func TestRunConfigFlagMissingFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), &stdout, &stderr, []string{"-config", "/no/such/config.yaml", "serve"})
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}
