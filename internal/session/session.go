// Package session implements the persistent conversation store: the Session
// type and the LRU-cached, JSONL-backed Manager.
package session

import (
	"encoding/json"
	"time"
)

// Message is one conversation turn entry. Messages are append-only for LLM
// prompt-cache efficiency: consolidation summarizes old entries elsewhere but
// never rewrites the list in place.
type Message struct {
	Role       string          `json:"role"`
	Content    string          `json:"content"`
	Timestamp  string          `json:"timestamp,omitempty"`
	ToolCalls  json.RawMessage `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Name       string          `json:"name,omitempty"`
}

// HistoryMessage is the projection of a Message sent to the LLM: role and
// content plus whichever tool-routing fields are present.
type HistoryMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"content"`
	ToolCalls  json.RawMessage `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Name       string          `json:"name,omitempty"`
}

// Session is one conversation, keyed by channel:chat_id.
type Session struct {
	Key       string
	Messages  []Message
	CreatedAt time.Time
	UpdatedAt time.Time
	Metadata  map[string]any

	// LastConsolidated counts leading messages already summarized externally;
	// History never returns them again. 0 <= LastConsolidated <= len(Messages).
	LastConsolidated int
}

// New returns an empty session for the given key.
func New(key string) *Session {
	now := time.Now()
	return &Session{
		Key:       key,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  map[string]any{},
	}
}

// MessageOption sets an optional field on an appended message.
type MessageOption func(*Message)

// WithToolCalls attaches the provider's tool_calls payload verbatim.
func WithToolCalls(raw json.RawMessage) MessageOption {
	return func(m *Message) { m.ToolCalls = raw }
}

// WithToolCallID marks the message as the result of a prior tool call.
func WithToolCallID(id string) MessageOption {
	return func(m *Message) { m.ToolCallID = id }
}

// WithName sets the tool or participant name on the message.
func WithName(name string) MessageOption {
	return func(m *Message) { m.Name = name }
}

// AddMessage appends a message and bumps the update time.
func (s *Session) AddMessage(role, content string, opts ...MessageOption) {
	msg := Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().Format(time.RFC3339Nano),
	}
	for _, opt := range opts {
		opt(&msg)
	}
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = time.Now()
}

// History returns the unconsolidated tail for LLM input, capped at maxMessages
// and aligned to a user turn: leading non-user entries are dropped so a tool
// result is never sent without its originating call (providers reject that).
func (s *Session) History(maxMessages int) []HistoryMessage {
	start := s.LastConsolidated
	if start < 0 {
		start = 0
	}
	if start > len(s.Messages) {
		start = len(s.Messages)
	}
	tail := s.Messages[start:]

	if maxMessages > 0 && len(tail) > maxMessages {
		tail = tail[len(tail)-maxMessages:]
	}

	first := -1
	for i, m := range tail {
		if m.Role == "user" {
			first = i
			break
		}
	}
	if first < 0 {
		return nil
	}
	tail = tail[first:]

	out := make([]HistoryMessage, 0, len(tail))
	for _, m := range tail {
		out = append(out, HistoryMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		})
	}
	return out
}

// Clear wipes all messages and resets the session to its initial state.
func (s *Session) Clear() {
	s.Messages = nil
	s.LastConsolidated = 0
	s.UpdatedAt = time.Now()
}

// HistoryTokens estimates the token cost of the projected history.
func (s *Session) HistoryTokens(counter *TokenCounter, maxMessages int) int {
	return counter.Count(s.History(maxMessages))
}
