package gateway

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"aide/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Workspace = t.TempDir()
	cfg.DataDir = t.TempDir()
	cfg.Skills.WatchDebounce = "50ms"
	cfg.Archive.DatabasePath = ":memory:"
	return cfg
}

func writeSkill(t *testing.T, root, name, content string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(content), 0644))
}

func TestNew_WiresInitialCommandSync(t *testing.T) {
	cfg := testConfig(t)
	writeSkill(t, cfg.WorkspaceSkillsDir(), "weather",
		"---\ncommands:\n  - name: weather\n    description: now\n    help: /weather\n---\nbody")

	g, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	defer g.Stop()

	assert.True(t, g.Commands().Has("weather"),
		"commands present at scan time must be registered without a reload")
	_, ok := g.Skills().Skill("weather")
	assert.True(t, ok)
}

func TestGateway_ReloadChain(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := testConfig(t)
	g, err := New(cfg, zap.NewNop())
	require.NoError(t, err)

	var updates atomic.Int32
	g.Commands().OnUpdate(func() error {
		updates.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, g.Start(ctx))

	writeSkill(t, cfg.WorkspaceSkillsDir(), "deploy",
		"---\ncommands:\n  - name: ship\n    description: deploy\n    help: /ship\n---\nbody")

	require.Eventually(t, func() bool {
		return g.Commands().Has("ship")
	}, 5*time.Second, 20*time.Millisecond, "reload must resync the command registry")
	require.Eventually(t, func() bool {
		return updates.Load() > 0
	}, 5*time.Second, 20*time.Millisecond, "command consumers must be notified")

	cancel()
	g.Stop()
}

func TestGateway_ContextCancelStopsWatcher(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := testConfig(t)
	g, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	defer g.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, g.Start(ctx))
	require.True(t, g.Skills().Watching())

	cancel()
	require.Eventually(t, func() bool {
		return !g.Skills().Watching()
	}, 5*time.Second, 20*time.Millisecond)
}

func TestGateway_SessionsBackedByArchive(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.MaxMessages = 2
	cfg.Archive.DatabasePath = filepath.Join(t.TempDir(), "archive.db")

	g, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	defer g.Stop()

	sess := g.Sessions().GetOrCreate("cli:direct")
	sess.AddMessage("user", "one")
	sess.AddMessage("assistant", "two")
	sess.AddMessage("user", "three")
	require.NoError(t, g.Sessions().Save(sess))

	count, err := g.Archive().ArchivedCount("cli:direct")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "the truncated head goes to the archive")
}

func TestGateway_ArchiveDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Archive.Enabled = false

	g, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	defer g.Stop()

	assert.Nil(t, g.Archive())

	sess := g.Sessions().GetOrCreate("cli:direct")
	sess.AddMessage("user", "hello")
	require.NoError(t, g.Sessions().Save(sess))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.MaxCacheSize = 0

	_, err := New(cfg, zap.NewNop())
	assert.Error(t, err)
}
