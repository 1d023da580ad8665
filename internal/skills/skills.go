// Package skills implements Skill Reflection: markdown files with a
// small YAML frontmatter header, discovered from three directories of
// increasing precedence (built-in, user-global, project-local) and
// exposed to the Agent Loop as a single "skill" tool that returns a
// chosen skill's body as its tool result, which stays in the query's
// scratchpad (and so in every later prompt) for the rest of the query.
package skills

import (
	"errors"
	"io/fs"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nugget/miniagent/internal/agenterr"
)

// Skill is one loaded skill file.
type Skill struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Body        string `yaml:"-"`
	Source      string `yaml:"-"` // which directory it was loaded from, for diagnostics
}

// Registry holds every known skill, keyed by name. Later sources
// override earlier ones with the same name.
type Registry struct {
	skills map[string]Skill
	order  []string
}

// LoadDirs builds a Registry from directories in increasing precedence
// order: user-global, then project-local. A directory that does not
// exist is silently skipped. dirs may include empty strings, which are
// skipped. To also load the embedded built-in tier, use
// [LoadWithBuiltins].
func LoadDirs(dirs ...string) (*Registry, error) {
	return LoadWithBuiltins(nil, dirs...)
}

// LoadWithBuiltins builds a Registry the same way LoadDirs does, but
// first loads the embedded built-in skills from builtin (e.g.
// internal/defaults.Skills) as the lowest-precedence tier; every
// directory in dirs then overrides a built-in skill of the same name.
// builtin may be nil to skip the built-in tier entirely.
func LoadWithBuiltins(builtin fs.FS, dirs ...string) (*Registry, error) {
	r := &Registry{skills: make(map[string]Skill)}
	if builtin != nil {
		if err := r.loadFS(builtin, "built-in"); err != nil {
			return nil, err
		}
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := r.loadDir(dir); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) loadDir(dir string) error {
	return r.loadFS(os.DirFS(dir), dir)
}

func (r *Registry) loadFS(fsys fs.FS, source string) error {
	entries, err := fs.ReadDir(fsys, ".")
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return agenterr.IOError("read skills dir "+source, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return agenterr.IOError("read skill "+name, err)
		}
		skill, err := parse(string(data))
		if err != nil {
			return agenterr.ConfigError("skill " + name + ": " + err.Error())
		}
		skill.Source = source
		r.add(skill)
	}
	return nil
}

func (r *Registry) add(s Skill) {
	if _, exists := r.skills[s.Name]; !exists {
		r.order = append(r.order, s.Name)
	}
	r.skills[s.Name] = s
}

// parse splits frontmatter from body and requires name/description.
func parse(raw string) (Skill, error) {
	const delim = "---"
	if !strings.HasPrefix(raw, delim) {
		return Skill{}, errMissingFrontmatter
	}
	rest := strings.TrimPrefix(raw, delim)
	rest = strings.TrimPrefix(rest, "\n")
	end := strings.Index(rest, "\n"+delim)
	if end < 0 {
		return Skill{}, errMissingFrontmatter
	}
	frontmatter := rest[:end]
	body := strings.TrimLeft(rest[end+len(delim)+1:], "\r\n")

	var s Skill
	if err := yaml.Unmarshal([]byte(frontmatter), &s); err != nil {
		return Skill{}, err
	}
	if s.Name == "" || s.Description == "" {
		return Skill{}, errMissingFields
	}
	s.Body = body
	return s, nil
}

var (
	errMissingFrontmatter = agenterr.ConfigError("missing --- frontmatter block")
	errMissingFields      = agenterr.ConfigError("frontmatter must set name and description")
)

// Get returns a skill by name.
func (r *Registry) Get(name string) (Skill, bool) {
	s, ok := r.skills[name]
	return s, ok
}

// List returns every skill, in load order (built-in first).
func (r *Registry) List() []Skill {
	out := make([]Skill, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.skills[name])
	}
	return out
}
