package prompts

import "strings"

// baseSystemTemplate is the default system prompt: the agent's core
// operating instructions, independent of any tools or skills that end
// up registered for a given process.
const baseSystemTemplate = `You are a careful, direct AI assistant that reasons step by step and uses tools when they genuinely help answer the question.

## Using tools
Call a tool only when it changes what you can truthfully say — to look
something up, compute something, or check the current time. Do not call
a tool to restate something you already know from the conversation.

When a tool result is too large to show in full, you will see a
pointer placeholder instead of the raw text. Use the fetch_pointer
tool to retrieve the full text if you actually need it; often the
placeholder's summary is enough.

## Answering
Once you have what you need, answer directly and concisely. Do not
narrate your tool calls in the final answer — just give the result.`

// BaseSystemPrompt returns the default system prompt. Although it
// currently requires no interpolation, it follows the package
// convention of an exported function to keep the interface consistent
// and allow future parameterization.
func BaseSystemPrompt() string {
	return baseSystemTemplate
}

// AssembleSystemPrompt concatenates the base prompt with optional
// sections (current conditions, tool descriptions, memory recall),
// each separated by a blank line. Empty sections are skipped.
func AssembleSystemPrompt(sections ...string) string {
	parts := make([]string, 0, len(sections)+1)
	parts = append(parts, BaseSystemPrompt())
	for _, s := range sections {
		if strings.TrimSpace(s) != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}
