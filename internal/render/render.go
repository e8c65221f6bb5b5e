// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render turns message snapshots into presentational output.
//
// Renderers only read the messages they are given; they never reach back
// into the conversation store. TerminalRenderer produces styled terminal
// text, HTMLRenderer produces markup whose code blocks and tables are
// decorated idempotently.
package render

import (
	"strings"

	"github.com/jeranaias/freechat-tui/internal/model"
)

// StreamingCursor is appended to a message that is still receiving deltas.
const StreamingCursor = "▌"

// Renderer turns one message into output.
type Renderer interface {
	RenderMessage(msg model.Message) (string, error)
}

// RenderAll renders msgs in order, separated by blank lines.
func RenderAll(r Renderer, msgs []model.Message) (string, error) {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out, err := r.RenderMessage(m)
		if err != nil {
			return "", err
		}
		parts = append(parts, out)
	}
	return strings.Join(parts, "\n\n"), nil
}

// markerText returns the human-readable text of a cancel or error marker.
func markerText(msg model.Message, marker string) string {
	switch msg.Status {
	case model.StatusCancelled:
		return "(Generation stopped)"
	case model.StatusFailed:
		if msg.Error != "" {
			return "Error: " + msg.Error
		}
		return "Error: " + strings.TrimPrefix(marker, model.ErrorMarkerPrefix)
	}
	return ""
}

func attachmentState(a model.Attachment) string {
	switch a.LoadState {
	case model.LoadPending:
		return "loading"
	case model.LoadError:
		return "error"
	}
	return string(a.FileType)
}
