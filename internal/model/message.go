// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "strings"

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Valid reports whether the role is one of the three recognized values.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// ParseRole normalizes a user-supplied role string (trimmed, lowercased).
// Unrecognized values come back as-is so the caller can reject them.
func ParseRole(s string) Role {
	return Role(strings.ToLower(strings.TrimSpace(s)))
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
// Name is optional; the API only carries it when non-empty.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewSystemMessage creates a new system message attributed to name.
func NewSystemMessage(name, content string) Message {
	return Message{Role: RoleSystem, Content: content, Name: name}
}

// IsEmpty returns true if the message has no content.
func (m Message) IsEmpty() bool {
	return len(m.Content) == 0
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m Message) Preview(maxLen int) string {
	runes := []rune(m.Content)
	if len(runes) <= maxLen {
		return m.Content
	}
	return string(runes[:maxLen-3]) + "..."
}

// =============================================================================
// EXCHANGE TYPE
// =============================================================================

// Exchange is one committed (prompt, reply) pair. History is a sequence of
// exchanges; an exchange is never edited or deleted once appended.
type Exchange struct {
	Prompt Message `json:"prompt"`
	Reply  Message `json:"reply"`
}

// Messages returns the exchange flattened as [prompt, reply].
func (e Exchange) Messages() []Message {
	return []Message{e.Prompt, e.Reply}
}

// Text returns the concatenated text of the exchange, used as the unit of
// embedding for similarity retrieval.
func (e Exchange) Text() string {
	return e.Prompt.Content + "\n" + e.Reply.Content
}

// Flatten expands a list of exchanges into a flat message sequence,
// preserving exchange order.
func Flatten(exchanges []Exchange) []Message {
	msgs := make([]Message, 0, len(exchanges)*2)
	for _, ex := range exchanges {
		msgs = append(msgs, ex.Prompt, ex.Reply)
	}
	return msgs
}
