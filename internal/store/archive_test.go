package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"aide/internal/session"
)

func newTestStore(t *testing.T) *ArchiveStore {
	t.Helper()
	s, err := NewArchiveStore(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestArchiveMessages_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	msgs := []session.Message{
		{Role: "user", Content: "hello", Timestamp: "2025-01-01T10:00:00Z"},
		{Role: "assistant", Content: "hi", ToolCallID: "c1", Name: "shell"},
	}
	batch, err := s.ArchiveMessages("telegram:42", msgs)
	require.NoError(t, err)
	require.NotEmpty(t, batch)

	count, err := s.ArchivedCount("telegram:42")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	restored, err := s.BatchMessages(batch)
	require.NoError(t, err)
	require.Len(t, restored, 2)
	assert.Equal(t, msgs[0], restored[0])
	assert.Equal(t, msgs[1], restored[1])
}

func TestArchiveMessages_EmptyBatchIsNoop(t *testing.T) {
	s := newTestStore(t)

	batch, err := s.ArchiveMessages("k", nil)
	require.NoError(t, err)
	assert.Empty(t, batch)

	count, err := s.ArchivedCount("k")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRecentBatches(t *testing.T) {
	s := newTestStore(t)

	first, err := s.ArchiveMessages("k", []session.Message{{Role: "user", Content: "1"}})
	require.NoError(t, err)
	second, err := s.ArchiveMessages("k", []session.Message{
		{Role: "user", Content: "2"},
		{Role: "assistant", Content: "3"},
	})
	require.NoError(t, err)

	// A different session must not leak in.
	_, err = s.ArchiveMessages("other", []session.Message{{Role: "user", Content: "x"}})
	require.NoError(t, err)

	batches, err := s.RecentBatches("k", 10)
	require.NoError(t, err)
	require.Len(t, batches, 2)

	ids := []string{batches[0].ID, batches[1].ID}
	assert.ElementsMatch(t, []string{first, second}, ids)

	total := batches[0].Messages + batches[1].Messages
	assert.Equal(t, 3, total)
}

func TestNewArchiveStore_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "archive.db")
	s, err := NewArchiveStore(path, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.ArchiveMessages("k", []session.Message{{Role: "user", Content: "persisted"}})
	require.NoError(t, err)
}

func TestArchiveStore_ImplementsArchiver(t *testing.T) {
	var _ session.Archiver = newTestStore(t)
}
