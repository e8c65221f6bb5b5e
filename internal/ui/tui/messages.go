// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"github.com/jeranaias/freechat-tui/internal/conversation"
	"github.com/jeranaias/freechat-tui/internal/fork"
	"github.com/jeranaias/freechat-tui/internal/model"
)

// StoreEventMsg carries a conversation store event into the update loop.
type StoreEventMsg struct {
	Event conversation.Event
}

// AttachmentMsg reports a staged attachment changing state.
type AttachmentMsg struct {
	Attachment model.Attachment
}

// generationDoneMsg is returned by the command running one cycle.
type generationDoneMsg struct {
	Reply model.Message
	Err   error
}

// editDoneMsg is returned by the command saving an inline edit.
type editDoneMsg struct {
	ID     string
	Text   string
	Files  []model.Attachment
	Result fork.Result
	Err    error
}
