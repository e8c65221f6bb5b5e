// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chats and messages.
//
// This package defines the core domain types shared by the conversation
// store, the generation engine, persistence and the rendering layers.
//
// # Key Types
//
//   - Chat: a persisted conversation with title, model and messages
//   - Message: a single user, assistant or system entry with attachments
//   - Attachment: a file carried by a message (image, text, document)
//   - Settings: user preferences and per-model credentials
//   - ModelDescriptor: a resolved endpoint/model/credential triple
//
// # Usage
//
//	msg := model.NewUserMessage("describe", []model.Attachment{img})
//	if !msg.IsMeaningful() {
//	    return
//	}
//	chat := model.NewChat(ids.Next(), "gpt-oss")
//	chat.Messages = append(chat.Messages, msg.Clone())
package model
