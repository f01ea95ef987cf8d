package skills

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeSkill(t *testing.T, root, name, content string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, SkillFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestListSkills_WorkspaceBeatsBuiltin(t *testing.T) {
	workspace := t.TempDir()
	builtin := t.TempDir()

	writeSkill(t, workspace, "deploy", "---\ndescription: workspace copy\n---\nws")
	writeSkill(t, builtin, "deploy", "---\ndescription: builtin copy\n---\nbi")
	writeSkill(t, builtin, "lint", "---\ndescription: lint things\n---\nbody")

	l := NewLoader(workspace, builtin, zap.NewNop())
	refs := l.ListSkills(false)

	require.Len(t, refs, 2)
	byName := map[string]SkillRef{}
	for _, r := range refs {
		byName[r.Name] = r
	}
	assert.Equal(t, SourceWorkspace, byName["deploy"].Source)
	assert.Equal(t, SourceBuiltin, byName["lint"].Source)

	content, ok := l.LoadSkill("deploy")
	require.True(t, ok)
	assert.Contains(t, content, "workspace copy")
}

func TestListSkills_FiltersUnavailable(t *testing.T) {
	workspace := t.TempDir()

	writeSkill(t, workspace, "gated", "---\nrequires:\n  bins:\n    - definitely-not-a-real-binary-zz\n---\nbody")
	writeSkill(t, workspace, "open", "---\ndescription: no requirements\n---\nbody")

	l := NewLoader(workspace, "", zap.NewNop())

	all := l.ListSkills(false)
	assert.Len(t, all, 2)

	available := l.ListSkills(true)
	require.Len(t, available, 1)
	assert.Equal(t, "open", available[0].Name)
}

func TestCheckRequirements_Env(t *testing.T) {
	req := Requirements{Env: []string{"LOADER_TEST_VAR"}}
	assert.False(t, CheckRequirements(req))

	t.Setenv("LOADER_TEST_VAR", "set")
	assert.True(t, CheckRequirements(req))
}

func TestBuildSkillsSummary(t *testing.T) {
	workspace := t.TempDir()

	writeSkill(t, workspace, "gated",
		"---\ndescription: needs <tools> & keys\nrequires:\n  bins:\n    - definitely-not-a-real-binary-zz\n  env:\n    - MISSING_KEY_ZZ\n---\nbody")
	writeSkill(t, workspace, "open", "---\ndescription: always ready\n---\nbody")

	l := NewLoader(workspace, "", zap.NewNop())
	summary := l.BuildSkillsSummary()

	assert.True(t, strings.HasPrefix(summary, "<skills>"))
	assert.True(t, strings.HasSuffix(summary, "</skills>"))

	// Unavailable skill carries its missing requirements.
	assert.Contains(t, summary, `<skill available="false">`)
	assert.Contains(t, summary, "<requires>CLI: definitely-not-a-real-binary-zz, ENV: MISSING_KEY_ZZ</requires>")

	// Available skill has no requires element.
	assert.Contains(t, summary, `<skill available="true">`)
	assert.Contains(t, summary, "<description>always ready</description>")

	// Text content is XML-escaped.
	assert.Contains(t, summary, "needs &lt;tools&gt; &amp; keys")
}

func TestBuildSkillsSummary_Empty(t *testing.T) {
	l := NewLoader(t.TempDir(), "", zap.NewNop())
	assert.Equal(t, "", l.BuildSkillsSummary())
}

func TestBuildSkillsSummary_DescriptionFallsBackToName(t *testing.T) {
	workspace := t.TempDir()
	writeSkill(t, workspace, "bare", "no frontmatter at all")

	l := NewLoader(workspace, "", zap.NewNop())
	assert.Contains(t, l.BuildSkillsSummary(), "<description>bare</description>")
}

func TestLoadSkillsForContext(t *testing.T) {
	workspace := t.TempDir()
	writeSkill(t, workspace, "alpha", "---\ndescription: a\n---\nAlpha body")
	writeSkill(t, workspace, "beta", "---\ndescription: b\n---\nBeta body")

	l := NewLoader(workspace, "", zap.NewNop())
	out := l.LoadSkillsForContext([]string{"alpha", "beta", "missing"})

	assert.Contains(t, out, "### Skill: alpha")
	assert.Contains(t, out, "Alpha body")
	assert.Contains(t, out, "\n\n---\n\n")
	assert.NotContains(t, out, "missing")
	assert.NotContains(t, out, "description:")
}

func TestAlwaysSkills(t *testing.T) {
	workspace := t.TempDir()
	writeSkill(t, workspace, "pinned", "---\nalways: true\n---\nbody")
	writeSkill(t, workspace, "ordinary", "---\ndescription: d\n---\nbody")

	l := NewLoader(workspace, "", zap.NewNop())
	assert.Equal(t, []string{"pinned"}, l.AlwaysSkills())
}

func TestListSkills_IgnoresDirsWithoutDefinition(t *testing.T) {
	workspace := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(workspace, "empty-dir"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "stray.md"), []byte("x"), 0644))

	l := NewLoader(workspace, "", zap.NewNop())
	assert.Empty(t, l.ListSkills(false))
}
