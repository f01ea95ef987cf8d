package skills

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Loader performs static skill discovery over the workspace and builtin
// roots. It holds no state; every call re-reads the filesystem. Once the
// hot-reload Manager is running it supersedes the loader as the source of
// truth for the loaded set.
type Loader struct {
	workspaceDir string
	builtinDir   string
	log          *zap.Logger
}

// NewLoader creates a static loader over the given skill roots. Either root
// may be empty or missing.
func NewLoader(workspaceSkillsDir, builtinSkillsDir string, log *zap.Logger) *Loader {
	return &Loader{
		workspaceDir: workspaceSkillsDir,
		builtinDir:   builtinSkillsDir,
		log:          log,
	}
}

// ListSkills merges workspace skills (highest priority) with builtin skills;
// a builtin entry is kept only when no workspace skill of the same name
// exists. With filterUnavailable, skills with unmet requirements are dropped.
func (l *Loader) ListSkills(filterUnavailable bool) []SkillRef {
	var refs []SkillRef
	seen := map[string]bool{}

	for _, root := range []struct {
		dir    string
		source Source
	}{
		{l.workspaceDir, SourceWorkspace},
		{l.builtinDir, SourceBuiltin},
	} {
		if root.dir == "" {
			continue
		}
		entries, err := os.ReadDir(root.dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() || seen[entry.Name()] {
				continue
			}
			path := filepath.Join(root.dir, entry.Name(), SkillFileName)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			seen[entry.Name()] = true
			refs = append(refs, SkillRef{Name: entry.Name(), Path: path, Source: root.source})
		}
	}

	if !filterUnavailable {
		return refs
	}

	available := refs[:0]
	for _, ref := range refs {
		if CheckRequirements(l.meta(ref.Name).Requires) {
			available = append(available, ref)
		}
	}
	return available
}

// LoadSkill returns the raw content of a skill, workspace copy first.
func (l *Loader) LoadSkill(name string) (string, bool) {
	for _, dir := range []string{l.workspaceDir, l.builtinDir} {
		if dir == "" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name, SkillFileName))
		if err == nil {
			return string(data), true
		}
	}
	return "", false
}

// LoadSkillsForContext renders the named skills, frontmatter stripped, for
// direct inclusion in the agent's context.
func (l *Loader) LoadSkillsForContext(names []string) string {
	var parts []string
	for _, name := range names {
		content, ok := l.LoadSkill(name)
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("### Skill: %s\n\n%s", name, StripFrontmatter(content)))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// AlwaysSkills returns available skills flagged for unconditional inclusion.
func (l *Loader) AlwaysSkills() []string {
	var names []string
	for _, ref := range l.ListSkills(true) {
		if l.meta(ref.Name).Always {
			names = append(names, ref.Name)
		}
	}
	return names
}

// Meta returns the parsed frontmatter metadata for a named skill.
func (l *Loader) Meta(name string) Meta {
	return l.meta(name)
}

func (l *Loader) meta(name string) Meta {
	content, ok := l.LoadSkill(name)
	if !ok {
		return Meta{Raw: map[string]string{}}
	}
	return ParseMeta(content, name)
}

// CheckRequirements reports whether every declared binary resolves via the OS
// search path and every declared environment variable is non-empty.
func CheckRequirements(req Requirements) bool {
	for _, bin := range req.Bins {
		if _, err := exec.LookPath(bin); err != nil {
			return false
		}
	}
	for _, env := range req.Env {
		if os.Getenv(env) == "" {
			return false
		}
	}
	return true
}

// MissingRequirements describes unmet requirements, e.g. "CLI: rg, ENV: API_KEY".
func MissingRequirements(req Requirements) string {
	var missing []string
	for _, bin := range req.Bins {
		if _, err := exec.LookPath(bin); err != nil {
			missing = append(missing, "CLI: "+bin)
		}
	}
	for _, env := range req.Env {
		if os.Getenv(env) == "" {
			missing = append(missing, "ENV: "+env)
		}
	}
	return strings.Join(missing, ", ")
}

// BuildSkillsSummary renders the capability manifest injected into the
// agent's context: every discovered skill with name, description, and
// location, plus the missing requirements for unavailable ones. Full skill
// bodies are read on demand, keeping the default context lightweight.
func (l *Loader) BuildSkillsSummary() string {
	refs := l.ListSkills(false)
	if len(refs) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("<skills>\n")
	for _, ref := range refs {
		meta := l.meta(ref.Name)
		desc := meta.Description
		if desc == "" {
			desc = ref.Name
		}
		available := CheckRequirements(meta.Requires)

		fmt.Fprintf(&b, "  <skill available=\"%t\">\n", available)
		fmt.Fprintf(&b, "    <name>%s</name>\n", escapeXML(ref.Name))
		fmt.Fprintf(&b, "    <description>%s</description>\n", escapeXML(desc))
		fmt.Fprintf(&b, "    <location>%s</location>\n", ref.Path)
		if !available {
			if missing := MissingRequirements(meta.Requires); missing != "" {
				fmt.Fprintf(&b, "    <requires>%s</requires>\n", escapeXML(missing))
			}
		}
		b.WriteString("  </skill>\n")
	}
	b.WriteString("</skills>")
	return b.String()
}

func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
