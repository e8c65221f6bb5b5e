// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"
)

// DefaultChatTitle is the title every chat starts with until one is generated
// or the user renames it.
const DefaultChatTitle = "New chat"

// =============================================================================
// CHAT TYPE
// =============================================================================

// Chat is a persisted conversation.
type Chat struct {
	// ID is the creation time in unix milliseconds.
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

// NewChat creates an empty chat with the default title.
func NewChat(id int64, modelID string) Chat {
	return Chat{
		ID:        id,
		Title:     DefaultChatTitle,
		Messages:  []Message{},
		Model:     modelID,
		CreatedAt: time.UnixMilli(id),
	}
}

// HasDefaultTitle reports whether the chat still carries its initial title.
func (c Chat) HasDefaultTitle() bool {
	return c.Title == "" || c.Title == DefaultChatTitle
}

// Clone returns a deep copy of the chat.
func (c Chat) Clone() Chat {
	c.Messages = CloneMessages(c.Messages)
	if c.Messages == nil {
		c.Messages = []Message{}
	}
	return c
}

// MatchesQuery reports whether the title contains query, case-insensitively.
// An empty query matches every chat.
func (c Chat) MatchesQuery(query string) bool {
	query = strings.TrimSpace(query)
	if query == "" {
		return true
	}
	return strings.Contains(strings.ToLower(c.Title), strings.ToLower(query))
}

// ExchangeCount returns the number of visible user and assistant messages.
func (c Chat) ExchangeCount() (users, assistants int) {
	for _, m := range c.Messages {
		if m.IsHidden {
			continue
		}
		switch m.Role {
		case RoleUser:
			users++
		case RoleAssistant:
			assistants++
		}
	}
	return users, assistants
}

// CloneChats deep-copies a chat list.
func CloneChats(chats []Chat) []Chat {
	out := make([]Chat, len(chats))
	for i, c := range chats {
		out[i] = c.Clone()
	}
	return out
}
