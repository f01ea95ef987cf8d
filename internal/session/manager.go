package session

import (
	"bufio"
	"container/list"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Archiver receives messages dropped by save-time truncation. The sqlite
// archive store implements it; a nil Archiver disables archiving.
type Archiver interface {
	ArchiveMessages(sessionKey string, msgs []Message) (batchID string, err error)
}

// metadataRecord is the first line of a session file.
type metadataRecord struct {
	Type             string         `json:"_type"`
	Key              string         `json:"key"`
	CreatedAt        string         `json:"created_at"`
	UpdatedAt        string         `json:"updated_at"`
	Metadata         map[string]any `json:"metadata"`
	LastConsolidated int            `json:"last_consolidated"`
}

// Summary is a cheap listing entry read from a session file's metadata line.
type Summary struct {
	Key       string `json:"key"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	Path      string `json:"path"`
}

// Manager is the LRU-cached, disk-backed session store. Sessions persist as
// one JSONL file each: a metadata record line followed by one line per message.
type Manager struct {
	sessionsDir string
	legacyDir   string
	maxCache    int
	maxMessages int
	archiver    Archiver
	log         *zap.Logger

	mu    sync.Mutex
	cache map[string]*list.Element // key -> element holding *cacheEntry
	order *list.List               // front = least recently used
}

type cacheEntry struct {
	key     string
	session *Session
}

// Option configures a Manager.
type Option func(*Manager)

// WithArchiver routes truncated message heads to an archive store.
func WithArchiver(a Archiver) Option {
	return func(m *Manager) { m.archiver = a }
}

// WithLegacyDir sets the pre-workspace global session directory; files found
// there are migrated into the workspace on first access for that key.
func WithLegacyDir(dir string) Option {
	return func(m *Manager) { m.legacyDir = dir }
}

// NewManager creates a session manager rooted at sessionsDir.
func NewManager(sessionsDir string, maxCache, maxMessages int, log *zap.Logger, opts ...Option) (*Manager, error) {
	if err := os.MkdirAll(sessionsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sessions dir: %w", err)
	}
	if maxCache < 1 {
		maxCache = 1
	}
	m := &Manager{
		sessionsDir: sessionsDir,
		maxCache:    maxCache,
		maxMessages: maxMessages,
		log:         log,
		cache:       make(map[string]*list.Element),
		order:       list.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// safeFilename maps a session key to a filesystem-safe stem. The colon in
// channel:chat_id becomes an underscore, matching the legacy file layout.
func safeFilename(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '.', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func (m *Manager) sessionPath(key string) string {
	return filepath.Join(m.sessionsDir, safeFilename(key)+".jsonl")
}

func (m *Manager) legacySessionPath(key string) string {
	if m.legacyDir == "" {
		return ""
	}
	return filepath.Join(m.legacyDir, safeFilename(key)+".jsonl")
}

// GetOrCreate returns the cached session for key, loading it from disk on a
// miss (migrating a legacy file first if one exists) and creating an empty
// session when nothing is persisted. Load failures degrade to an empty
// session; they are logged, never fatal.
func (m *Manager) GetOrCreate(key string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.cache[key]; ok {
		m.order.MoveToBack(el)
		return el.Value.(*cacheEntry).session
	}

	sess := m.load(key)
	if sess == nil {
		sess = New(key)
	}

	el := m.order.PushBack(&cacheEntry{key: key, session: sess})
	m.cache[key] = el

	if m.order.Len() > m.maxCache {
		oldest := m.order.Front()
		evicted := oldest.Value.(*cacheEntry)
		m.order.Remove(oldest)
		delete(m.cache, evicted.key)
		m.log.Debug("evicted session from cache", zap.String("key", evicted.key))
	}

	return sess
}

// load reads a session file, after a one-time move of any legacy file into the
// workspace path. Returns nil when nothing is persisted or the file is
// unreadable.
func (m *Manager) load(key string) *Session {
	path := m.sessionPath(key)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if legacy := m.legacySessionPath(key); legacy != "" {
			if _, err := os.Stat(legacy); err == nil {
				if err := os.Rename(legacy, path); err != nil {
					m.log.Error("failed to migrate legacy session",
						zap.String("key", key), zap.Error(err))
				} else {
					m.log.Info("migrated session from legacy path", zap.String("key", key))
				}
			}
		}
	}

	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			m.log.Warn("failed to open session file", zap.String("key", key), zap.Error(err))
		}
		return nil
	}
	defer f.Close()

	sess := &Session{Key: key, Metadata: map[string]any{}}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var probe struct {
			Type string `json:"_type"`
		}
		if err := json.Unmarshal([]byte(line), &probe); err != nil {
			m.log.Warn("failed to load session", zap.String("key", key), zap.Error(err))
			return nil
		}

		if probe.Type == "metadata" {
			var meta metadataRecord
			if err := json.Unmarshal([]byte(line), &meta); err != nil {
				m.log.Warn("failed to load session", zap.String("key", key), zap.Error(err))
				return nil
			}
			if meta.Metadata != nil {
				sess.Metadata = meta.Metadata
			}
			if t, err := time.Parse(time.RFC3339Nano, meta.CreatedAt); err == nil {
				sess.CreatedAt = t
			}
			if t, err := time.Parse(time.RFC3339Nano, meta.UpdatedAt); err == nil {
				sess.UpdatedAt = t
			}
			sess.LastConsolidated = meta.LastConsolidated
			continue
		}

		var msg Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			m.log.Warn("failed to load session", zap.String("key", key), zap.Error(err))
			return nil
		}
		sess.Messages = append(sess.Messages, msg)
	}
	if err := scanner.Err(); err != nil {
		m.log.Warn("failed to read session file", zap.String("key", key), zap.Error(err))
		return nil
	}

	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = sess.CreatedAt
	}
	if sess.LastConsolidated < 0 {
		sess.LastConsolidated = 0
	}
	if sess.LastConsolidated > len(sess.Messages) {
		sess.LastConsolidated = len(sess.Messages)
	}

	return sess
}

// Save persists the session, truncating to the most recent maxMessages
// entries when the limit is exceeded. Truncation resets LastConsolidated to 0
// because prior offsets are meaningless once the head is discarded; the
// dropped head goes to the archiver when one is configured. Write errors
// propagate: silently losing conversation turns is unacceptable.
func (m *Manager) Save(sess *Session) error {
	msgs := sess.Messages
	if m.maxMessages > 0 && len(msgs) > m.maxMessages {
		dropped := msgs[:len(msgs)-m.maxMessages]
		msgs = msgs[len(msgs)-m.maxMessages:]
		m.log.Debug("truncated session",
			zap.String("key", sess.Key),
			zap.Int("before", len(dropped)+len(msgs)),
			zap.Int("after", len(msgs)))
		sess.LastConsolidated = 0

		if m.archiver != nil {
			if batch, err := m.archiver.ArchiveMessages(sess.Key, dropped); err != nil {
				// The JSONL file remains the source of truth; archive loss
				// only affects external housekeeping.
				m.log.Warn("failed to archive truncated messages",
					zap.String("key", sess.Key), zap.Error(err))
			} else {
				m.log.Debug("archived truncated messages",
					zap.String("key", sess.Key),
					zap.String("batch", batch),
					zap.Int("count", len(dropped)))
			}
		}
	}
	sess.Messages = msgs

	path := m.sessionPath(sess.Key)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create session file %s: %w", path, err)
	}

	w := bufio.NewWriter(f)
	meta := metadataRecord{
		Type:             "metadata",
		Key:              sess.Key,
		CreatedAt:        sess.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:        sess.UpdatedAt.Format(time.RFC3339Nano),
		Metadata:         sess.Metadata,
		LastConsolidated: sess.LastConsolidated,
	}
	if err := writeJSONLine(w, meta); err != nil {
		f.Close()
		return fmt.Errorf("failed to write session metadata: %w", err)
	}
	for _, msg := range sess.Messages {
		if err := writeJSONLine(w, msg); err != nil {
			f.Close()
			return fmt.Errorf("failed to write session message: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to flush session file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close session file: %w", err)
	}

	m.mu.Lock()
	if el, ok := m.cache[sess.Key]; ok {
		el.Value.(*cacheEntry).session = sess
		m.order.MoveToBack(el)
	} else {
		el := m.order.PushBack(&cacheEntry{key: sess.Key, session: sess})
		m.cache[sess.Key] = el
	}
	m.mu.Unlock()

	return nil
}

func writeJSONLine(w *bufio.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.WriteByte('\n')
}

// Invalidate removes a session from the in-memory cache. The disk file is
// untouched and remains loadable.
func (m *Manager) Invalidate(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.cache[key]; ok {
		m.order.Remove(el)
		delete(m.cache, key)
	}
}

// ListSessions enumerates persisted sessions by reading only the metadata line
// of each file. Unreadable or corrupt files are skipped. Results are sorted by
// updated_at descending.
func (m *Manager) ListSessions() []Summary {
	entries, err := os.ReadDir(m.sessionsDir)
	if err != nil {
		m.log.Warn("failed to list sessions dir", zap.Error(err))
		return nil
	}

	var out []Summary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		path := filepath.Join(m.sessionsDir, entry.Name())
		summary, ok := readSummary(path)
		if !ok {
			continue
		}
		if summary.Key == "" {
			// Best-effort key recovery from the filename.
			stem := strings.TrimSuffix(entry.Name(), ".jsonl")
			summary.Key = strings.Replace(stem, "_", ":", 1)
		}
		summary.Path = path
		out = append(out, summary)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt > out[j].UpdatedAt
	})
	return out
}

func readSummary(path string) (Summary, bool) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	if !scanner.Scan() {
		return Summary{}, false
	}
	line := strings.TrimSpace(scanner.Text())
	if line == "" {
		return Summary{}, false
	}

	var meta metadataRecord
	if err := json.Unmarshal([]byte(line), &meta); err != nil || meta.Type != "metadata" {
		return Summary{}, false
	}
	return Summary{Key: meta.Key, CreatedAt: meta.CreatedAt, UpdatedAt: meta.UpdatedAt}, true
}

// CacheLen reports how many sessions are held in memory.
func (m *Manager) CacheLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cache)
}
