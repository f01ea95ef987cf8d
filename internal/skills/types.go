// Package skills implements capability discovery over SKILL.md packages:
// static listing with requirement gating, the XML capability manifest, and a
// hot-reloadable registry driven by filesystem events.
package skills

// SkillFileName is the definition file every skill directory must contain.
const SkillFileName = "SKILL.md"

// Source identifies which root a skill was loaded from. Priority is
// workspace > global > builtin everywhere.
type Source string

const (
	SourceWorkspace Source = "workspace"
	SourceGlobal    Source = "global"
	SourceBuiltin   Source = "builtin"
)

// SkillCommand is one slash-style command declared in a skill's frontmatter.
// Names are not guaranteed unique across skills.
type SkillCommand struct {
	Name        string
	Description string
	HelpText    string
	SkillName   string
}

// SkillInfo describes one loaded skill. Entries are replaced wholesale on
// modification, never patched.
type SkillInfo struct {
	Name     string
	Path     string
	Source   Source
	Content  string
	Commands []SkillCommand
}

// SkillRef is a lightweight listing entry.
type SkillRef struct {
	Name   string
	Path   string
	Source Source
}
