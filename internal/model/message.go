// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/jeranaias/freechat-tui/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE STATUS
// =============================================================================

// MessageStatus records how an assistant message's generation ended.
type MessageStatus string

const (
	// StatusComplete is the zero value so that completed messages omit the field.
	StatusComplete  MessageStatus = ""
	StatusStreaming MessageStatus = "streaming"
	StatusCancelled MessageStatus = "cancelled"
	StatusFailed    MessageStatus = "failed"
)

// Markers appended to an assistant message that did not complete.
const (
	CancelMarker      = "\n\n*(Generation stopped)*"
	ErrorMarkerPrefix = "\n\n**Error:** "
)

// ErrorMarker returns the inline marker for a failed generation.
func ErrorMarker(msg string) string {
	return ErrorMarkerPrefix + msg
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a chat.
//
// User messages carry their text in OriginalContent, assistant messages in
// Content. Hidden messages steer exactly one outbound request and are never
// persisted or rendered.
type Message struct {
	// Identity
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`

	// Content
	OriginalContent string       `json:"original_content,omitempty"`
	Content         string       `json:"content,omitempty"`
	Files           []Attachment `json:"files,omitempty"`

	IsHidden bool `json:"is_hidden,omitempty"`

	// Generation outcome (assistant messages)
	Status MessageStatus `json:"status,omitempty"`
	Error  string        `json:"error,omitempty"`
	Model  string        `json:"model,omitempty"`
}

// NewUserMessage creates a user message with a fresh ID. Files are deep-copied.
func NewUserMessage(text string, files []Attachment) Message {
	return Message{
		ID:              NewMessageID(),
		Role:            RoleUser,
		CreatedAt:       time.Now(),
		OriginalContent: text,
		Files:           CloneAttachments(files),
	}
}

// NewHiddenUserMessage creates a steering instruction that is sent once and
// never shown.
func NewHiddenUserMessage(text string) Message {
	msg := NewUserMessage(text, nil)
	msg.IsHidden = true
	return msg
}

// NewAssistantMessage creates an empty assistant message in the streaming state.
func NewAssistantMessage(modelID string) Message {
	return Message{
		ID:        NewMessageID(),
		Role:      RoleAssistant,
		CreatedAt: time.Now(),
		Status:    StatusStreaming,
		Model:     modelID,
	}
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return Message{
		ID:        NewMessageID(),
		Role:      RoleSystem,
		CreatedAt: time.Now(),
		Content:   content,
	}
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// Text returns the message text regardless of role.
func (m Message) Text() string {
	if m.Role == RoleUser {
		return m.OriginalContent
	}
	return m.Content
}

// IsMeaningful reports whether a user message has text or files.
// Non-user messages are always meaningful.
func (m Message) IsMeaningful() bool {
	if m.Role != RoleUser {
		return true
	}
	return strings.TrimSpace(m.OriginalContent) != "" || len(m.Files) > 0
}

// IsStreaming reports whether the message is still receiving deltas.
func (m Message) IsStreaming() bool {
	return m.Status == StatusStreaming
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	m.Files = CloneAttachments(m.Files)
	return m
}

// FileIDs returns the attachment IDs in order.
func (m Message) FileIDs() []string {
	ids := make([]string, len(m.Files))
	for i, f := range m.Files {
		ids[i] = f.ID
	}
	return ids
}

// Preview returns a truncated single-line preview of the message text.
func (m Message) Preview(maxLen int) string {
	return util.TruncateRunes(util.SingleLine(m.Text()), maxLen)
}

// SplitMarker separates an assistant message's streamed body from the
// cancel or error marker appended when the generation ended early.
func (m Message) SplitMarker() (body, marker string) {
	switch m.Status {
	case StatusCancelled:
		if strings.HasSuffix(m.Content, CancelMarker) {
			return strings.TrimSuffix(m.Content, CancelMarker), CancelMarker
		}
	case StatusFailed:
		if i := strings.LastIndex(m.Content, ErrorMarkerPrefix); i >= 0 {
			return m.Content[:i], m.Content[i:]
		}
	}
	return m.Content, ""
}

// CloneMessages deep-copies a message slice.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// VisibleMessages returns deep copies of every non-hidden message.
func VisibleMessages(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if !m.IsHidden {
			out = append(out, m.Clone())
		}
	}
	return out
}
