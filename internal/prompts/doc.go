// Package prompts contains all LLM prompt templates the agent runtime
// uses internally.
//
// Prompt text is Go code rather than config files because it is program
// logic: templates use string interpolation, benefit from compile-time
// embedding, and can be validated by tests. User-facing configuration
// lives in config.yaml; this package holds the instructions sent to
// the model for internal operations (the base system prompt, recovery
// nudges).
//
// Convention: each prompt category gets its own file with an exported
// function or constant that returns the fully assembled prompt text.
package prompts
