package command

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"aide/internal/skills"
)

type fakeSource struct {
	cmds []skills.SkillCommand
}

func (f *fakeSource) Commands() []skills.SkillCommand { return f.cmds }

func TestRegisterAndLookup(t *testing.T) {
	m := NewManager(zap.NewNop())

	m.Register(Info{
		Name:        "weather",
		Description: "current conditions",
		SkillName:   "weather",
		HelpText:    "/weather <city>",
	})

	assert.True(t, m.Has("weather"))
	assert.Equal(t, 1, m.Len())

	info, ok := m.Command("weather")
	require.True(t, ok)
	assert.Equal(t, "current conditions", info.Description)

	help, ok := m.Help("weather")
	require.True(t, ok)
	assert.Equal(t, "/weather <city>", help)

	_, ok = m.Help("nope")
	assert.False(t, ok)
}

func TestRegister_CollisionLastWins(t *testing.T) {
	m := NewManager(zap.NewNop())

	m.Register(Info{Name: "deploy", SkillName: "skill-a"})
	m.Register(Info{Name: "deploy", SkillName: "skill-b"})

	info, ok := m.Command("deploy")
	require.True(t, ok)
	assert.Equal(t, "skill-b", info.SkillName)
	assert.Equal(t, 1, m.Len())
}

func TestUnregister(t *testing.T) {
	m := NewManager(zap.NewNop())
	m.Register(Info{Name: "x", SkillName: "s"})

	m.Unregister("x")
	assert.False(t, m.Has("x"))

	// Removing a missing command is a no-op.
	m.Unregister("x")
}

func TestRegister_WithHandler(t *testing.T) {
	m := NewManager(zap.NewNop())
	m.Register(Info{
		Name:      "ping",
		SkillName: "net",
		Handler: func(ctx context.Context, args []string) (string, error) {
			return "pong", nil
		},
	})

	info, ok := m.Command("ping")
	require.True(t, ok)
	require.NotNil(t, info.Handler)
	out, err := info.Handler(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "pong", out)
}

func TestSyncFromSkills_FullReplace(t *testing.T) {
	m := NewManager(zap.NewNop())
	m.Register(Info{Name: "stale", SkillName: "old"})

	src := &fakeSource{cmds: []skills.SkillCommand{
		{Name: "weather", Description: "now", HelpText: "/weather", SkillName: "weather"},
		{Name: "ship", Description: "deploy", HelpText: "/ship", SkillName: "deploy"},
	}}
	m.SyncFromSkills(src)

	assert.False(t, m.Has("stale"), "sync is full-replace, not incremental")
	assert.Equal(t, 2, m.Len())
	assert.ElementsMatch(t, []string{"weather", "ship"}, m.CommandNames())

	// Empty source empties the registry.
	m.SyncFromSkills(&fakeSource{})
	assert.Equal(t, 0, m.Len())
	assert.Empty(t, m.AllCommands())
}

func TestNotifyUpdate_IsolatesFailures(t *testing.T) {
	m := NewManager(zap.NewNop())

	calls := []string{}
	m.OnUpdate(func() error {
		calls = append(calls, "first")
		return errors.New("first consumer broke")
	})
	m.OnUpdate(func() error {
		calls = append(calls, "second")
		return nil
	})

	m.NotifyUpdate()

	assert.Equal(t, []string{"first", "second"}, calls)
}
