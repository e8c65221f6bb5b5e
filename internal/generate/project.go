// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package generate

import (
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jeranaias/freechat-tui/internal/model"
)

// contextHeader labels a non-image attachment inlined into a user message.
func contextHeader(name string) string {
	return "\n\n--- Context from file " + name + " ---\n"
}

// SystemPrompt combines the configured system prompt with the instruction to
// address the user by name. Empty when neither is set.
func SystemPrompt(settings model.Settings) string {
	prompt := settings.SystemPrompt
	if name := settings.DisplayName(); name != "" {
		prompt += "\n\nAddress the user by name: " + name + "."
	}
	return strings.TrimSpace(prompt)
}

// Project converts stored messages into wire messages for desc. Hidden
// messages are included. Assistant messages pass through verbatim. User
// messages carrying images become multi-part content when the model accepts
// images; otherwise attachments are inlined as labelled context blocks.
func Project(history []model.Message, desc model.ModelDescriptor) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case model.RoleAssistant:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content})
		case model.RoleSystem:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: m.Content})
		case model.RoleUser:
			if desc.VisionCapable && hasImage(m.Files) {
				out = append(out, multiPart(m))
			} else {
				out = append(out, textBlob(m))
			}
		}
	}
	return out
}

// WithSystemPrompt prepends a system message when prompt is non-empty.
func WithSystemPrompt(prompt string, msgs []openai.ChatCompletionMessage) []openai.ChatCompletionMessage {
	if prompt == "" {
		return msgs
	}
	out := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: prompt})
	return append(out, msgs...)
}

func hasImage(files []model.Attachment) bool {
	for _, f := range files {
		if f.IsImage() {
			return true
		}
	}
	return false
}

func multiPart(m model.Message) openai.ChatCompletionMessage {
	var text []string
	if m.OriginalContent != "" {
		text = append(text, m.OriginalContent)
	}
	var ctxBlocks strings.Builder
	for _, f := range m.Files {
		if f.IsImage() || f.Content == "" {
			continue
		}
		ctxBlocks.WriteString(contextHeader(f.Name))
		ctxBlocks.WriteString(f.Content)
	}
	if ctxBlocks.Len() > 0 {
		text = append(text, ctxBlocks.String())
	}

	parts := []openai.ChatMessagePart{{
		Type: openai.ChatMessagePartTypeText,
		Text: strings.Join(text, "\n"),
	}}
	for _, f := range m.Files {
		if !f.IsImage() {
			continue
		}
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: f.Content},
		})
	}
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: parts}
}

func textBlob(m model.Message) openai.ChatCompletionMessage {
	var sb strings.Builder
	sb.WriteString(m.OriginalContent)
	for _, f := range m.Files {
		sb.WriteString(contextHeader(f.Name))
		if f.FileType == model.FileImage {
			sb.WriteString("[Image: " + f.Name + "]")
		} else {
			sb.WriteString(f.Content)
		}
	}
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: sb.String()}
}
