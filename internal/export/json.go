// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"fmt"

	"github.com/jeranaias/freechat-tui/internal/model"
)

// JSONExporter exports the chat in its persisted shape, so an export can be
// merged back into a chats blob.
type JSONExporter struct{}

// Export implements Exporter.
func (JSONExporter) Export(chat model.Chat) ([]byte, error) { return JSON(chat) }

// FileExtension returns the file extension for JSON.
func (JSONExporter) FileExtension() string { return ".json" }

// MimeType returns the MIME type for JSON.
func (JSONExporter) MimeType() string { return "application/json" }

// JSON returns chat indented, hidden messages dropped.
func JSON(chat model.Chat) ([]byte, error) {
	out := chat.Clone()
	out.Messages = visible(out)
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal chat: %w", err)
	}
	return data, nil
}
