// Package config handles agent runtime configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/miniagent/config.yaml, /etc/miniagent/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "miniagent", "config.yaml"))
	}

	paths = append(paths, "/etc/miniagent/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all agent runtime configuration.
type Config struct {
	Listen    ListenConfig `yaml:"listen"`
	OpenAI    OpenAIConfig `yaml:"openai"`
	Agent     AgentConfig  `yaml:"agent"`
	DataDir   string       `yaml:"data_dir"`
	SkillsDir string       `yaml:"skills_dir"`
	LogLevel  string       `yaml:"log_level"`
	LogFormat string       `yaml:"log_format"`
}

// ListenConfig defines the HTTP API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// OpenAIConfig defines the LLM backend connection settings. BaseURL may
// point at any OpenAI-compatible endpoint (vLLM, Ollama's OpenAI shim,
// etc.), not just api.openai.com.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// TavilyAPIKey enables the web_search tool when set. Left empty, the
	// tool is not registered.
	TavilyAPIKey string `yaml:"tavily_api_key"`
}

// AgentConfig defines reason-act loop tuning knobs.
type AgentConfig struct {
	// MaxIterations caps the number of reasoning/acting rounds before the
	// loop is forced into the answering phase.
	MaxIterations int `yaml:"max_iterations"`
	// SoftLimitPerCategory caps calls to any single tool before the model
	// is nudged to stop retrying it.
	SoftLimitPerCategory int `yaml:"soft_limit_per_category"`
	// SoftLimitOverall caps total tool calls across a single run.
	SoftLimitOverall int `yaml:"soft_limit_overall"`
	// InlineCharBudget is the maximum size of a tool result inlined
	// directly into the transcript before it is pointerized.
	InlineCharBudget int `yaml:"inline_char_budget"`
	// MemoryHalfLifeDays controls how quickly recalled memory entries
	// decay in relevance.
	MemoryHalfLifeDays float64 `yaml:"memory_half_life_days"`
	// Timezone is an IANA timezone name used for the Current Conditions
	// system-prompt section. Empty uses the system's local timezone.
	Timezone string `yaml:"timezone"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables, e.g. api_key: ${OPENAI_API_KEY}.
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
		},
		Agent: AgentConfig{
			MaxIterations:        8,
			SoftLimitPerCategory: 4,
			SoftLimitOverall:     8,
			InlineCharBudget:     2000,
			MemoryHalfLifeDays:   3,
		},
		DataDir:   "data",
		SkillsDir: "skills",
		LogLevel:  "info",
		LogFormat: "text",
	}
}
