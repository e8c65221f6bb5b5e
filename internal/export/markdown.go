// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/freechat-tui/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports chats as a Markdown transcript with YAML
// frontmatter.
type MarkdownExporter struct{}

// Export implements Exporter.
func (MarkdownExporter) Export(chat model.Chat) ([]byte, error) {
	s, err := Markdown(chat)
	return []byte(s), err
}

// FileExtension returns the file extension for Markdown.
func (MarkdownExporter) FileExtension() string { return ".md" }

// MimeType returns the MIME type for Markdown.
func (MarkdownExporter) MimeType() string { return "text/markdown" }

// Markdown renders chat as Markdown. Assistant content is written verbatim,
// markers included; user text is quoted so it never turns into structure.
func Markdown(chat model.Chat) (string, error) {
	msgs := visible(chat)
	if len(msgs) == 0 {
		return "", ErrEmptyChat
	}

	var sb strings.Builder

	sb.WriteString("---\n")
	fmt.Fprintf(&sb, "title: %s\n", escapeYAML(chat.Title))
	fmt.Fprintf(&sb, "model: %s\n", chat.Model)
	if !chat.CreatedAt.IsZero() {
		fmt.Fprintf(&sb, "date: %s\n", chat.CreatedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(&sb, "messages: %d\n", len(msgs))
	sb.WriteString("generator: freechat\n")
	sb.WriteString("---\n\n")

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(chat.Title))

	for i, msg := range msgs {
		label := msg.Role.DisplayName()
		if msg.Role == model.RoleAssistant && msg.Model != "" {
			label += " (" + msg.Model + ")"
		}
		if msg.CreatedAt.IsZero() {
			fmt.Fprintf(&sb, "### %s\n\n", label)
		} else {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", label, msg.CreatedAt.Format("Jan 2, 15:04"))
		}

		for _, f := range msg.Files {
			fmt.Fprintf(&sb, "- 📎 %s\n", escapeMarkdown(f.Name))
		}
		if len(msg.Files) > 0 {
			sb.WriteString("\n")
		}

		if msg.Role == model.RoleUser {
			sb.WriteString(quote(msg.OriginalContent))
		} else {
			sb.WriteString(strings.TrimRight(msg.Content, "\n"))
		}
		sb.WriteString("\n\n")

		if i < len(msgs)-1 {
			sb.WriteString("---\n\n")
		}
	}
	return sb.String(), nil
}

func quote(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight("> "+l, " ")
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes characters that would break formatting in headings.
func escapeMarkdown(s string) string {
	r := strings.NewReplacer("#", "\\#", "*", "\\*", "_", "\\_", "[", "\\[", "]", "\\]")
	return r.Replace(s)
}

// escapeYAML quotes a value when it contains YAML syntax.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		r := strings.NewReplacer("\\", "\\\\", "\"", "\\\"", "\n", "\\n", "\r", "\\r")
		return "\"" + r.Replace(s) + "\""
	}
	return s
}
