// Package command implements the process-wide registry of slash-style
// commands. The registry owns no persistent state: it is a derived view,
// rebuilt wholesale from the current skill set after every hot reload.
package command

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"aide/internal/skills"
)

// Handler executes a command. Handlers are optional; commands synced from
// skill frontmatter carry none and are routed by the consumer.
type Handler func(ctx context.Context, args []string) (string, error)

// Info describes one registered command.
type Info struct {
	Name        string
	Description string
	SkillName   string
	HelpText    string
	Handler     Handler
}

// UpdateFunc is notified after the command set changes so downstream routers
// can refresh cached help text. Errors are logged and isolated per callback.
type UpdateFunc func() error

// Source is the slice of skill commands the registry rebuilds from;
// *skills.Manager satisfies it.
type Source interface {
	Commands() []skills.SkillCommand
}

// Manager is the command registry.
type Manager struct {
	log *zap.Logger

	mu        sync.RWMutex
	commands  map[string]Info
	callbacks []UpdateFunc
}

// NewManager creates an empty command registry.
func NewManager(log *zap.Logger) *Manager {
	return &Manager{
		log:      log,
		commands: make(map[string]Info),
	}
}

// Register upserts a command. A name registered by a different skill is
// replaced, last writer wins; the collision is logged so a misbehaving skill
// pack is visible.
func (m *Manager) Register(info Info) {
	m.mu.Lock()
	m.registerLocked(info)
	m.mu.Unlock()
}

func (m *Manager) registerLocked(info Info) {
	if prev, ok := m.commands[info.Name]; ok && prev.SkillName != info.SkillName {
		m.log.Warn("command name collision",
			zap.String("command", info.Name),
			zap.String("previous_skill", prev.SkillName),
			zap.String("new_skill", info.SkillName))
	}
	m.commands[info.Name] = info
	m.log.Debug("registered command",
		zap.String("command", info.Name), zap.String("skill", info.SkillName))
}

// Unregister removes a command by name.
func (m *Manager) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, ok := m.commands[name]; ok {
		delete(m.commands, name)
		m.log.Debug("unregistered command",
			zap.String("command", name), zap.String("skill", info.SkillName))
	}
}

// Command returns a command by name.
func (m *Manager) Command(name string) (Info, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.commands[name]
	return info, ok
}

// Has reports whether a command is registered.
func (m *Manager) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.commands[name]
	return ok
}

// AllCommands returns every registered command.
func (m *Manager) AllCommands() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Info, 0, len(m.commands))
	for _, info := range m.commands {
		out = append(out, info)
	}
	return out
}

// CommandNames returns the registered command names.
func (m *Manager) CommandNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.commands))
	for name := range m.commands {
		out = append(out, name)
	}
	return out
}

// Help returns a command's help text.
func (m *Manager) Help(name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.commands[name]
	if !ok {
		return "", false
	}
	return info.HelpText, true
}

// Len returns the number of registered commands.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.commands)
}

// SyncFromSkills clears the registry and rebuilds it from the source's
// current commands under one lock, so a concurrent reload cannot interleave
// a half-built view.
func (m *Manager) SyncFromSkills(src Source) {
	cmds := src.Commands()

	m.mu.Lock()
	m.commands = make(map[string]Info, len(cmds))
	for _, cmd := range cmds {
		m.registerLocked(Info{
			Name:        cmd.Name,
			Description: cmd.Description,
			SkillName:   cmd.SkillName,
			HelpText:    cmd.HelpText,
		})
	}
	count := len(m.commands)
	m.mu.Unlock()

	m.log.Info("synced commands from skills", zap.Int("count", count))
}

// OnUpdate registers a callback invoked by NotifyUpdate, in registration
// order.
func (m *Manager) OnUpdate(fn UpdateFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// NotifyUpdate tells downstream consumers the command set changed. One
// failing consumer cannot block the others.
func (m *Manager) NotifyUpdate() {
	m.mu.RLock()
	callbacks := make([]UpdateFunc, len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.RUnlock()

	for _, fn := range callbacks {
		if err := fn(); err != nil {
			m.log.Error("command update callback failed", zap.Error(err))
		}
	}
}
