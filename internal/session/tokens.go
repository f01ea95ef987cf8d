package session

import (
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates prompt token costs for history projections. It uses
// tiktoken when the BPE tables are available and falls back to a character
// heuristic offline.
type TokenCounter struct {
	encoder  *tiktoken.Tiktoken
	encoding string
	fallback bool
	mu       sync.RWMutex
}

var (
	defaultCounter     *TokenCounter
	defaultCounterOnce sync.Once
)

// DefaultTokenCounter returns the shared cl100k_base counter.
func DefaultTokenCounter() *TokenCounter {
	defaultCounterOnce.Do(func() {
		defaultCounter = NewTokenCounter("cl100k_base")
	})
	return defaultCounter
}

// NewTokenCounter builds a counter for the given tiktoken encoding name.
func NewTokenCounter(encoding string) *TokenCounter {
	c := &TokenCounter{encoding: encoding}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		// Offline environments may lack the BPE cache.
		c.fallback = true
		return c
	}
	c.encoder = enc
	return c
}

// Count returns the estimated token total for a history projection.
func (c *TokenCounter) Count(msgs []HistoryMessage) int {
	total := 0
	for _, m := range msgs {
		// ~4 tokens of per-message structural overhead.
		total += 4
		total += c.CountText(m.Role)
		total += c.CountText(m.Content)
		if m.Name != "" {
			total += c.CountText(m.Name) + 1
		}
		if len(m.ToolCalls) > 0 {
			total += c.CountText(string(m.ToolCalls))
		}
	}
	return total
}

// CountText returns the estimated token count of a single string.
func (c *TokenCounter) CountText(text string) int {
	if text == "" {
		return 0
	}
	if c.fallback {
		return heuristicTokens(text)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.encoder.Encode(text, nil, nil))
}

// IsPrecise reports whether tiktoken (rather than the heuristic) is in use.
func (c *TokenCounter) IsPrecise() bool {
	return !c.fallback
}

// heuristicTokens approximates ~4 ASCII chars per token and ~1.5 tokens per
// CJK character.
func heuristicTokens(text string) int {
	cjk := 0
	other := 0
	for _, r := range text {
		if isCJK(r) {
			cjk++
		} else {
			other++
		}
	}
	estimate := int(float64(cjk)*1.5 + float64(other)*0.25)
	if estimate < 1 {
		estimate = 1
	}
	return estimate
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x3000 && r <= 0x303F) ||
		(r >= 0xFF00 && r <= 0xFFEF) ||
		(r >= 0xAC00 && r <= 0xD7AF)
}
