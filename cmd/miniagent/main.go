// Command miniagent runs the reason-act agent runtime.
//
// Usage:
//
//	miniagent serve                 Start the API server
//	miniagent init [dir]             Initialize a working directory with defaults
//	miniagent ask <question>         Ask a single question (for testing)
//	miniagent version                Show version information
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/nugget/miniagent/internal/agent"
	"github.com/nugget/miniagent/internal/api"
	"github.com/nugget/miniagent/internal/archive"
	"github.com/nugget/miniagent/internal/buildinfo"
	"github.com/nugget/miniagent/internal/config"
	"github.com/nugget/miniagent/internal/defaults"
	"github.com/nugget/miniagent/internal/fetch"
	"github.com/nugget/miniagent/internal/llm"
	"github.com/nugget/miniagent/internal/logging"
	"github.com/nugget/miniagent/internal/memoryindex"
	"github.com/nugget/miniagent/internal/paths"
	"github.com/nugget/miniagent/internal/search"
	"github.com/nugget/miniagent/internal/session"
	"github.com/nugget/miniagent/internal/skills"
	"github.com/nugget/miniagent/internal/tools"
	"github.com/nugget/miniagent/internal/toolstore"
)

func main() {
	ctx := context.Background()
	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// run is the testable entry point. Everything main needs (context,
// output streams, arguments) is passed in explicitly rather than read
// from globals, so tests can drive it in parallel without stepping on
// each other. We parse flags manually rather than using the flag
// package to avoid global state that interferes with parallel tests.
func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	var configPath, outputFmt, command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "-config" || a == "--config":
			i++
			if i >= len(args) {
				return fmt.Errorf("%s requires a value", a)
			}
			configPath = args[i]
		case strings.HasPrefix(a, "-config="):
			configPath = strings.TrimPrefix(a, "-config=")
		case strings.HasPrefix(a, "--config="):
			configPath = strings.TrimPrefix(a, "--config=")
		case a == "-o" || a == "--output":
			i++
			if i >= len(args) {
				return fmt.Errorf("%s requires a value", a)
			}
			outputFmt = args[i]
		case strings.HasPrefix(a, "-o="):
			outputFmt = strings.TrimPrefix(a, "-o=")
		case strings.HasPrefix(a, "--output="):
			outputFmt = strings.TrimPrefix(a, "--output=")
		case a == "-h" || a == "-help" || a == "--help":
			return printUsage(stdout)
		case command == "" && !strings.HasPrefix(a, "-"):
			command = a
		default:
			cmdArgs = append(cmdArgs, a)
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, stderr, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: miniagent ask <question>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w. It is called when
// miniagent is invoked with no arguments, or with -h / --help.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "miniagent - reason-act agent runtime")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: miniagent [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  init [dir]   Initialize working directory with defaults (default: .)")
	fmt.Fprintln(w, "  ask          Ask a single question (for testing)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/miniagent/config.yaml, /etc/miniagent/config.yaml")
	return nil
}

// loadConfig locates and parses the YAML configuration file. If
// explicit is non-empty, a missing file is an error. Otherwise a
// missing config file is not fatal: the process runs with defaults
// (and whatever environment variables the operator has set).
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, "", err
		}
		return config.Default(), "", nil
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// newLogger creates a structured logger that writes to w at the given
// level and format. All log output in miniagent goes through slog;
// this helper standardizes handler configuration across subcommands.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	return logging.New(w, level, format)
}

// loadSkills builds the skill Registry from all three precedence tiers:
// the built-in skills embedded into the binary, the user-global
// directory (~/.config/miniagent/skills), and finally cfg.SkillsDir,
// the project-local tier, which wins on a name collision.
func loadSkills(cfg *config.Config) (*skills.Registry, error) {
	var userGlobal string
	if home, err := os.UserHomeDir(); err == nil {
		userGlobal = filepath.Join(home, ".config", "miniagent", "skills")
	}
	return skills.LoadWithBuiltins(defaults.Skills, userGlobal, cfg.SkillsDir)
}

// buildTools assembles the tool registry for a given configuration:
// echo and current_time are always registered, fetch_pointer and skill
// are always registered once their backing stores exist, and
// web_search is gated on a configured Tavily API key.
func buildTools(cfg *config.Config, toolStore *toolstore.Store, skillReg *skills.Registry) *tools.Registry {
	reg := tools.NewRegistry()
	tools.RegisterEcho(reg)
	tools.RegisterCurrentTime(reg)
	tools.RegisterFetchPointer(reg, fetch.NewFetcher(toolStore))
	tools.RegisterSkill(reg, skillReg)

	if mgr := search.NewTavilyManager(cfg.OpenAI.TavilyAPIKey); mgr.Configured() {
		tools.RegisterWebSearch(reg, mgr)
	}

	return reg
}

// runAsk handles the "miniagent ask <question>" subcommand. It boots a
// full agent loop against the configured data directory and processes
// a single question, printing the answer to stdout. Useful for quick
// smoke tests and debugging without starting the server.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	logger := newLogger(stdout, slog.LevelWarn, "text")
	question := strings.Join(args, " ")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	sessions := session.New(cfg.DataDir, logger)
	memIndex := memoryindex.New(cfg.DataDir, memoryindex.WithHalfLifeDays(cfg.Agent.MemoryHalfLifeDays))
	toolStore := toolstore.New(cfg.DataDir)

	skillReg, err := loadSkills(cfg)
	if err != nil {
		return fmt.Errorf("load skills: %w", err)
	}

	reg := buildTools(cfg, toolStore, skillReg)
	llmClient := llm.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model, logger)

	loop := agent.New(loopConfig(cfg), sessions, memIndex, toolStore, reg, llmClient, logger)

	emitter := agent.NewEmitter(0)
	done := make(chan struct{})
	var result *agent.Result
	var runErr error
	go func() {
		defer close(done)
		defer emitter.Close()
		result, runErr = loop.Run(ctx, agent.Request{SessionKey: "cli-ask", Query: question}, emitter)
	}()
	for range emitter.Events() {
		// Drain events silently; runAsk only prints the final answer.
	}
	<-done
	if runErr != nil {
		return fmt.Errorf("ask: %w", runErr)
	}

	fmt.Fprintln(stdout, result.Answer)
	return nil
}

func loopConfig(cfg *config.Config) agent.Config {
	c := agent.DefaultConfig()
	if cfg.Agent.MaxIterations > 0 {
		c.MaxIterations = cfg.Agent.MaxIterations
	}
	if cfg.Agent.SoftLimitPerCategory > 0 {
		c.SoftLimitPerCategory = cfg.Agent.SoftLimitPerCategory
	}
	if cfg.Agent.SoftLimitOverall > 0 {
		c.SoftLimitOverall = cfg.Agent.SoftLimitOverall
	}
	if cfg.Agent.InlineCharBudget > 0 {
		c.InlineCharBudget = cfg.Agent.InlineCharBudget
	}
	c.Timezone = cfg.Agent.Timezone
	return c
}

// runServe handles the "miniagent serve" subcommand. It is the primary
// operating mode: loads config, opens the persistence stores, wires the
// tool registry and agent loop, starts the API server, and blocks until
// a shutdown signal arrives.
//
// The shutdown sequence is:
//  1. SIGINT or SIGTERM cancels the context
//  2. The HTTP server drains in-flight requests
//  3. Database connections are closed via defers
func runServe(ctx context.Context, stdout, stderr io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting miniagent", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "branch", buildinfo.GitBranch, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure the logger now that we know the desired level and
	// format. The initial Info-level text logger is used only for the
	// startup banner.
	{
		level, lerr := logging.ParseLevel(cfg.LogLevel)
		if lerr != nil {
			level = slog.LevelInfo
		}
		logger = newLogger(stdout, level, cfg.LogFormat)
	}

	logger.Info("config loaded", "path", cfgPath, "port", cfg.Listen.Port, "model", cfg.OpenAI.Model)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	sessions := session.New(cfg.DataDir, logger)
	memIndex := memoryindex.New(cfg.DataDir, memoryindex.WithHalfLifeDays(cfg.Agent.MemoryHalfLifeDays))
	toolStore := toolstore.New(cfg.DataDir)

	skillReg, err := loadSkills(cfg)
	if err != nil {
		return fmt.Errorf("load skills: %w", err)
	}
	logger.Info("skills loaded", "count", len(skillReg.List()))

	reg := buildTools(cfg, toolStore, skillReg)
	if cfg.OpenAI.TavilyAPIKey == "" {
		logger.Warn("web_search disabled: no tavily_api_key configured")
	}

	if cfg.OpenAI.APIKey == "" {
		logger.Warn("openai api_key is empty; chat completions will fail")
	}
	llmClient := llm.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model, logger)

	loop := agent.New(loopConfig(cfg), sessions, memIndex, toolStore, reg, llmClient, logger)

	archivePath := cfg.DataDir + "/archive.db"
	arch, err := archive.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive database %s: %w", archivePath, err)
	}
	defer arch.Close()
	logger.Info("archive opened", "path", archivePath)

	pathRes := paths.New(map[string]string{
		"sessions": cfg.DataDir + "/sessions",
		"context":  cfg.DataDir + "/context",
		"memory":   cfg.DataDir + "/memory",
		"skills":   cfg.SkillsDir,
	})

	server := api.New(cfg.Listen.Address, cfg.Listen.Port, loop, sessions, reg, skillReg, arch, pathRes, logger)

	// NotifyContext wraps the parent context so that SIGINT/SIGTERM
	// cancellation flows through the same ctx used by every component.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("miniagent stopped")
	return nil
}
