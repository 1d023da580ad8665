package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nugget/miniagent/internal/defaults"
)

// runInit initializes a miniagent working directory with default files.
// It creates the data/skills directory structure and writes bundled
// default files. Existing files are never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing miniagent workspace in %s\n", dir)

	for _, sub := range []string{"data", "skills"} {
		path := filepath.Join(dir, sub)
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
	}

	configPath := filepath.Join(dir, "config.yaml")
	if err := writeIfMissing(configPath, defaults.ConfigYAML); err != nil {
		return err
	}
	fmt.Fprintf(w, "  created %s\n", configPath)

	for _, name := range defaults.SkillFiles {
		content, err := defaults.Skills.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read embedded skill %s: %w", name, err)
		}
		skillPath := filepath.Join(dir, "skills", name)
		if err := writeIfMissing(skillPath, content); err != nil {
			return err
		}
		fmt.Fprintf(w, "  created %s\n", skillPath)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit config.yaml to set your OpenAI credentials, then run 'miniagent serve'.")
	return nil
}

// writeIfMissing writes content to path only if the file does not
// already exist. This ensures init never overwrites user customizations.
func writeIfMissing(path string, content []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, content, 0o644)
}
