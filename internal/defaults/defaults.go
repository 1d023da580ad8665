// Package defaults provides embedded copies of default configuration
// and skill files. The init subcommand writes them to disk as a
// starting point; the agent loop also loads Skills directly as the
// built-in (lowest-precedence) tier of Skill Reflection, so a skill
// works out of the box even before init has been run.
package defaults

import "embed"

//go:embed config.example.yaml
var ConfigYAML []byte

// Skills holds the shipped example skill files, keyed by their
// destination filename under the workspace's skills/ directory.
//
//go:embed code-explainer.md summarize.md
var Skills embed.FS

// SkillFiles lists the filenames embedded in Skills, in the order
// runInit should write them.
var SkillFiles = []string{"code-explainer.md", "summarize.md"}
