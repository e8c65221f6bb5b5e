// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// NewMessageID returns a time-ordered unique message identifier.
func NewMessageID() string {
	return "msg_" + newV7()
}

// NewAttachmentID returns a unique attachment identifier.
func NewAttachmentID() string {
	return "file_" + newV7()
}

func newV7() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// =============================================================================
// CHAT IDS
// =============================================================================

// ChatIDs hands out chat identifiers derived from the wall clock in unix
// milliseconds. Two calls never return the same value, even within the same
// millisecond.
type ChatIDs struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewChatIDs creates a generator using the system clock.
func NewChatIDs() *ChatIDs {
	return &ChatIDs{now: time.Now}
}

// Next returns the next chat ID.
func (g *ChatIDs) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now
	if g.now != nil {
		now = g.now
	}
	id := now().UnixMilli()
	if id <= g.last {
		id = g.last + 1
	}
	g.last = id
	return id
}

// Observe records an existing ID so that later IDs sort after it.
func (g *ChatIDs) Observe(id int64) {
	g.mu.Lock()
	if id > g.last {
		g.last = id
	}
	g.mu.Unlock()
}
