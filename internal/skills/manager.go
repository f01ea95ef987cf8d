package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ReloadFunc is invoked after every processed reload batch. Errors are logged
// and never stop the other callbacks or the watch loop.
type ReloadFunc func() error

// Manager is the stateful, hot-reloadable skill registry. The initial scan
// loads builtin, then global, then workspace skills, so on a name collision
// the workspace copy wins; the same priority applies when a watched file
// changes. At most one watch goroutine runs at a time.
type Manager struct {
	workspaceDir string
	globalDir    string
	builtinDir   string
	debounce     time.Duration
	log          *zap.Logger

	mu        sync.RWMutex
	skills    map[string]*SkillInfo
	callbacks []ReloadFunc

	watchMu     sync.Mutex
	watcher     *fsnotify.Watcher
	debounceMap map[string]time.Time
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// NewManager creates the registry and performs the initial directory scan.
// Any root may be empty or missing.
func NewManager(workspaceSkillsDir, globalSkillsDir, builtinSkillsDir string, debounce time.Duration, log *zap.Logger) *Manager {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	m := &Manager{
		workspaceDir: workspaceSkillsDir,
		globalDir:    globalSkillsDir,
		builtinDir:   builtinSkillsDir,
		debounce:     debounce,
		log:          log,
		skills:       make(map[string]*SkillInfo),
	}
	m.loadAll()
	return m
}

// loadAll scans every root in ascending priority; a later scan overwrites
// same-named entries, leaving the workspace copy in effect.
func (m *Manager) loadAll() {
	m.loadDir(m.builtinDir, SourceBuiltin)
	m.loadDir(m.globalDir, SourceGlobal)
	m.loadDir(m.workspaceDir, SourceWorkspace)
}

func (m *Manager) loadDir(dir string, source Source) {
	if dir == "" {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name(), SkillFileName)
		info, err := loadSkillFile(path, entry.Name(), source)
		if err != nil {
			if !os.IsNotExist(err) {
				m.log.Warn("failed to load skill",
					zap.String("skill", entry.Name()), zap.Error(err))
			}
			continue
		}
		m.mu.Lock()
		m.skills[info.Name] = info
		m.mu.Unlock()
		m.log.Debug("loaded skill",
			zap.String("skill", info.Name), zap.String("source", string(source)))
	}
}

func loadSkillFile(path, name string, source Source) (*SkillInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	content := string(data)
	return &SkillInfo{
		Name:     name,
		Path:     path,
		Source:   source,
		Content:  content,
		Commands: ParseCommands(content, name),
	}, nil
}

// OnReload registers a callback invoked after each processed reload batch, in
// registration order.
func (m *Manager) OnReload(fn ReloadFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// StartWatching begins observing the workspace and global skill roots for
// changes to SKILL.md files. Builtin skills are not watched. Idempotent.
func (m *Manager) StartWatching() error {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	if m.running {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	watched := 0
	for _, root := range []string{m.workspaceDir, m.globalDir} {
		if root == "" {
			continue
		}
		if err := m.addWatchTree(watcher, root); err != nil {
			m.log.Warn("skill root not watchable", zap.String("dir", root), zap.Error(err))
			continue
		}
		watched++
	}
	if watched == 0 {
		watcher.Close()
		return fmt.Errorf("no skill directories to watch")
	}

	m.watcher = watcher
	m.debounceMap = make(map[string]time.Time)
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.running = true

	go m.watchLoop()
	m.log.Info("skill file watcher started")
	return nil
}

// addWatchTree watches a root and its immediate skill subdirectories.
// fsnotify is not recursive; new subdirectories are added as they appear.
func (m *Manager) addWatchTree(watcher *fsnotify.Watcher, root string) error {
	if err := watcher.Add(root); err != nil {
		return err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	for _, entry := range entries {
		if entry.IsDir() {
			if err := watcher.Add(filepath.Join(root, entry.Name())); err != nil {
				m.log.Warn("failed to watch skill dir",
					zap.String("dir", entry.Name()), zap.Error(err))
			}
		}
	}
	return nil
}

// StopWatching signals the watch goroutine and waits for it to exit; after
// return no further event is processed. Idempotent.
func (m *Manager) StopWatching() {
	m.watchMu.Lock()
	if !m.running {
		m.watchMu.Unlock()
		return
	}
	// Flip running first so a concurrent StopWatching returns immediately;
	// the channel close below happens exactly once. The lock is released
	// before waiting because the watch loop needs it to flush its debounce
	// map.
	m.running = false
	stopCh, doneCh, watcher := m.stopCh, m.doneCh, m.watcher
	m.watchMu.Unlock()

	close(stopCh)
	<-doneCh

	if err := watcher.Close(); err != nil {
		m.log.Error("error closing skill watcher", zap.Error(err))
	}

	m.watchMu.Lock()
	m.watcher = nil
	m.debounceMap = nil
	m.watchMu.Unlock()
	m.log.Info("skill file watcher stopped")
}

// Watching reports whether the background watch goroutine is running.
func (m *Manager) Watching() bool {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	return m.running
}

func (m *Manager) watchLoop() {
	defer close(m.doneCh)

	tick := m.debounce / 2
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	if tick > 100*time.Millisecond {
		tick = 100 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return

		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			m.handleEvent(event)

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.log.Error("skill watcher error", zap.Error(err))

		case <-ticker.C:
			if processed := m.processDebounced(); processed > 0 {
				m.fireReloadCallbacks()
			}
		}
	}
}

func (m *Manager) handleEvent(event fsnotify.Event) {
	// A new skill directory needs its own watch; it may already contain a
	// definition file when moved into place wholesale.
	if event.Op&fsnotify.Create != 0 {
		if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
			if err := m.watcher.Add(event.Name); err != nil {
				m.log.Warn("failed to watch new skill dir",
					zap.String("dir", event.Name), zap.Error(err))
			}
			skillFile := filepath.Join(event.Name, SkillFileName)
			if _, err := os.Stat(skillFile); err == nil {
				m.markDirty(skillFile)
			}
			return
		}
	}

	if filepath.Base(event.Name) != SkillFileName {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	m.markDirty(event.Name)
}

func (m *Manager) markDirty(path string) {
	m.watchMu.Lock()
	if m.debounceMap != nil {
		m.debounceMap[path] = time.Now()
	}
	m.watchMu.Unlock()
}

// processDebounced reloads skills whose events have settled past the debounce
// window and returns how many were processed.
func (m *Manager) processDebounced() int {
	m.watchMu.Lock()
	now := time.Now()
	var settled []string
	for path, at := range m.debounceMap {
		if now.Sub(at) >= m.debounce {
			settled = append(settled, path)
			delete(m.debounceMap, path)
		}
	}
	m.watchMu.Unlock()

	for _, path := range settled {
		name := filepath.Base(filepath.Dir(path))
		m.resolveSkill(name)
	}
	return len(settled)
}

// resolveSkill reloads a skill by checking the roots in priority order rather
// than trusting the event path, so an edit to a shadowed copy cannot clobber
// a higher-priority one and a deleted workspace skill falls back to the
// global or builtin copy. No copy anywhere means removal.
func (m *Manager) resolveSkill(name string) {
	for _, root := range []struct {
		dir    string
		source Source
	}{
		{m.workspaceDir, SourceWorkspace},
		{m.globalDir, SourceGlobal},
		{m.builtinDir, SourceBuiltin},
	} {
		if root.dir == "" {
			continue
		}
		path := filepath.Join(root.dir, name, SkillFileName)
		info, err := loadSkillFile(path, name, root.source)
		if err != nil {
			if !os.IsNotExist(err) {
				m.log.Warn("failed to reload skill",
					zap.String("skill", name), zap.Error(err))
			}
			continue
		}
		m.mu.Lock()
		m.skills[name] = info
		m.mu.Unlock()
		m.log.Info("skill reloaded",
			zap.String("skill", name), zap.String("source", string(root.source)))
		return
	}

	m.mu.Lock()
	_, existed := m.skills[name]
	delete(m.skills, name)
	m.mu.Unlock()
	if existed {
		m.log.Info("skill unloaded", zap.String("skill", name))
	}
}

func (m *Manager) fireReloadCallbacks() {
	m.mu.RLock()
	callbacks := make([]ReloadFunc, len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.RUnlock()

	for _, fn := range callbacks {
		if err := fn(); err != nil {
			m.log.Error("reload callback failed", zap.Error(err))
		}
	}
}

// Skill returns a skill by name.
func (m *Manager) Skill(name string) (*SkillInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.skills[name]
	return info, ok
}

// AllSkills returns every loaded skill.
func (m *Manager) AllSkills() []*SkillInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*SkillInfo, 0, len(m.skills))
	for _, info := range m.skills {
		out = append(out, info)
	}
	return out
}

// Commands returns the commands of every loaded skill.
func (m *Manager) Commands() []SkillCommand {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []SkillCommand
	for _, info := range m.skills {
		out = append(out, info.Commands...)
	}
	return out
}

// Command returns a command by name from any skill.
func (m *Manager) Command(name string) (SkillCommand, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, info := range m.skills {
		for _, cmd := range info.Commands {
			if cmd.Name == name {
				return cmd, true
			}
		}
	}
	return SkillCommand{}, false
}

// SkillByCommand returns the skill providing the named command.
func (m *Manager) SkillByCommand(commandName string) (*SkillInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, info := range m.skills {
		for _, cmd := range info.Commands {
			if cmd.Name == commandName {
				return info, true
			}
		}
	}
	return nil, false
}

// ListSkills returns lightweight refs for every loaded skill.
func (m *Manager) ListSkills() []SkillRef {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SkillRef, 0, len(m.skills))
	for _, info := range m.skills {
		out = append(out, SkillRef{Name: info.Name, Path: info.Path, Source: info.Source})
	}
	return out
}
