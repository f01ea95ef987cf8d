package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenCounter_CountText(t *testing.T) {
	c := NewTokenCounter("cl100k_base")

	assert.Equal(t, 0, c.CountText(""))
	assert.Greater(t, c.CountText("hello world, this is a conversation"), 0)
}

func TestTokenCounter_CountHistory(t *testing.T) {
	s := New("k")
	s.AddMessage("user", "what is the weather in Berlin")
	s.AddMessage("assistant", "let me check", WithName("weather"))

	c := NewTokenCounter("cl100k_base")
	n := s.HistoryTokens(c, 100)

	// Two messages with per-message overhead.
	assert.GreaterOrEqual(t, n, 8)
}

func TestHeuristicTokens(t *testing.T) {
	assert.Equal(t, 1, heuristicTokens("hi"))
	ascii := heuristicTokens("a plain english sentence of medium length")
	assert.Greater(t, ascii, 5)

	// CJK text costs more tokens per rune than ASCII.
	assert.Greater(t, heuristicTokens("你好世界你好世界"), heuristicTokens("hihihihi"))
}
