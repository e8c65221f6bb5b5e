// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes chats and messages out of the application.
//
// # Supported Formats
//
//   - Markdown: the chat as a readable transcript
//   - JSON: the persisted chat shape, hidden messages excluded
//   - HTML: a standalone, styled page for one assistant message or a chat
//   - CSV: every table found in rendered markup
//
// # Usage
//
//	data, err := export.Markdown(chat)
//	path, err := export.ToFile(chat, export.NewHTMLExporter(), &export.Options{OutputDir: "."})
package export
