// Package gateway wires the state layer together: sessions, skills,
// commands, and the truncation archive. It owns no transport and no agent
// loop; those arrive as collaborators through the Provider and Channel
// interfaces.
package gateway

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"aide/internal/command"
	"aide/internal/config"
	"aide/internal/session"
	"aide/internal/skills"
	"aide/internal/store"
)

// ChatMessage is one message exchanged with a Provider.
type ChatMessage struct {
	Role    string
	Content string
}

// Provider is an LLM chat-completion backend. The gateway never calls it
// directly; it is threaded through to whatever agent loop is attached.
type Provider interface {
	Chat(ctx context.Context, model string, messages []ChatMessage) (string, error)
	Name() string
}

// Channel is a chat surface (CLI, Telegram, ...) that delivers outbound
// messages to a chat id.
type Channel interface {
	Name() string
	Send(ctx context.Context, chatID, content string) error
}

// Gateway owns the runtime state layer and its reload plumbing.
type Gateway struct {
	cfg *config.Config
	log *zap.Logger

	sessions *session.Manager
	skills   *skills.Manager
	loader   *skills.Loader
	commands *command.Manager
	archive  *store.ArchiveStore
}

// New builds a gateway from config. The skill registry is scanned eagerly;
// watching starts in Start.
func New(cfg *config.Config, log *zap.Logger) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	g := &Gateway{cfg: cfg, log: log}

	// The watcher needs an existing workspace root.
	if err := os.MkdirAll(cfg.WorkspaceSkillsDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace skills directory: %w", err)
	}

	var sessionOpts []session.Option
	sessionOpts = append(sessionOpts, session.WithLegacyDir(cfg.LegacySessionsDir()))

	if cfg.Archive.Enabled {
		archive, err := store.NewArchiveStore(g.archivePath(), log.Named("archive"))
		if err != nil {
			return nil, fmt.Errorf("failed to open archive store: %w", err)
		}
		g.archive = archive
		sessionOpts = append(sessionOpts, session.WithArchiver(archive))
	}

	sessions, err := session.NewManager(
		cfg.SessionsDir(),
		cfg.Session.MaxCacheSize,
		cfg.Session.MaxMessages,
		log.Named("session"),
		sessionOpts...,
	)
	if err != nil {
		if g.archive != nil {
			g.archive.Close()
		}
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}
	g.sessions = sessions

	g.skills = skills.NewManager(
		cfg.WorkspaceSkillsDir(),
		cfg.GlobalSkillsDir(),
		cfg.Skills.BuiltinDir,
		cfg.WatchDebounce(),
		log.Named("skills"),
	)
	g.loader = skills.NewLoader(cfg.WorkspaceSkillsDir(), cfg.Skills.BuiltinDir, log.Named("skills"))
	g.commands = command.NewManager(log.Named("command"))

	// Skill reload feeds the command registry, which then tells its own
	// consumers. Initial sync covers skills found during the eager scan.
	g.skills.OnReload(func() error {
		g.commands.SyncFromSkills(g.skills)
		g.commands.NotifyUpdate()
		return nil
	})
	g.commands.SyncFromSkills(g.skills)

	return g, nil
}

// archivePath resolves the configured database path against the workspace
// when it is relative.
func (g *Gateway) archivePath() string {
	path := g.cfg.Archive.DatabasePath
	if path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(g.cfg.Workspace, path)
}

// Start begins skill hot reload. It returns once watching is established;
// the watcher runs until Stop.
func (g *Gateway) Start(ctx context.Context) error {
	if err := g.skills.StartWatching(); err != nil {
		return fmt.Errorf("failed to start skill watcher: %w", err)
	}
	g.log.Info("gateway started",
		zap.String("workspace", g.cfg.Workspace),
		zap.Int("skills", len(g.skills.AllSkills())),
		zap.Int("commands", g.commands.Len()))

	// Stop watching when the supervising context ends.
	go func() {
		<-ctx.Done()
		g.skills.StopWatching()
	}()
	return nil
}

// Stop stops the watcher and closes owned resources.
func (g *Gateway) Stop() {
	g.skills.StopWatching()
	if g.archive != nil {
		if err := g.archive.Close(); err != nil {
			g.log.Warn("failed to close archive store", zap.Error(err))
		}
	}
	g.log.Info("gateway stopped")
}

// Sessions returns the session manager.
func (g *Gateway) Sessions() *session.Manager { return g.sessions }

// Skills returns the hot-reloading skill registry.
func (g *Gateway) Skills() *skills.Manager { return g.skills }

// SkillsLoader returns the static loader used for context assembly.
func (g *Gateway) SkillsLoader() *skills.Loader { return g.loader }

// Commands returns the command registry.
func (g *Gateway) Commands() *command.Manager { return g.commands }

// Archive returns the truncation archive, or nil when disabled.
func (g *Gateway) Archive() *store.ArchiveStore { return g.archive }
