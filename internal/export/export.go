// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/freechat-tui/internal/model"
	"github.com/jeranaias/freechat-tui/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrEmptyChat is returned when a chat has no visible messages.
	ErrEmptyChat = errors.New("chat has no messages")

	// ErrUnsupportedFormat is returned by ParseFormat for an unknown name.
	ErrUnsupportedFormat = errors.New("unsupported export format")

	// ErrNotAssistant is returned when a standalone page is requested for a
	// message that is not an assistant reply.
	ErrNotAssistant = errors.New("only assistant messages can be exported as a page")
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter converts a chat to one output format.
type Exporter interface {
	Export(chat model.Chat) ([]byte, error)

	// FileExtension returns the extension including the dot.
	FileExtension() string

	MimeType() string
}

// Format names an export format.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatJSON     Format = "json"
	FormatHTML     Format = "html"
)

// ParseFormat accepts md, markdown, json, html and htm.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "md", "markdown":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	case "html", "htm":
		return FormatHTML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// ExporterFor returns the exporter for a format.
func ExporterFor(f Format) (Exporter, error) {
	switch f {
	case FormatMarkdown:
		return MarkdownExporter{}, nil
	case FormatJSON:
		return JSONExporter{}, nil
	case FormatHTML:
		return NewHTMLExporter(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
}

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures where ToFile writes.
type Options struct {
	// OutputDir is used when Path is empty. Default: current directory.
	OutputDir string

	// Path is the exact output file. Overrides OutputDir.
	Path string
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ToFile exports chat with exporter and writes the result atomically.
// Without an explicit path the file is named after the chat title and the
// current time. Returns the path written.
func ToFile(chat model.Chat, exporter Exporter, opts *Options) (string, error) {
	if opts == nil {
		opts = &Options{}
	}

	content, err := exporter.Export(chat)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	outputPath := opts.Path
	if outputPath == "" {
		dir := opts.OutputDir
		if dir == "" {
			dir = "."
		}
		filename := fmt.Sprintf("chat_%s_%s%s",
			sanitizeFilename(chat.Title),
			time.Now().Format("20060102_150405"),
			exporter.FileExtension(),
		)
		outputPath = filepath.Join(dir, filename)
	}

	if err := util.AtomicWriteFile(outputPath, content, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return outputPath, nil
}

// visible returns the chat's messages without hidden ones.
func visible(chat model.Chat) []model.Message {
	out := make([]model.Message, 0, len(chat.Messages))
	for _, m := range chat.Messages {
		if !m.IsHidden {
			out = append(out, m)
		}
	}
	return out
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename replaces characters that are invalid in filenames.
func sanitizeFilename(s string) string {
	runes := []rune(s)
	if len(runes) > 50 {
		runes = runes[:50]
	}

	result := make([]rune, 0, len(runes))
	for _, r := range runes {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			result = append(result, '-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			result = append(result, '_')
		case r < 32 || r == 127:
			result = append(result, '-')
		default:
			result = append(result, r)
		}
	}

	if len(result) == 0 {
		return "chat"
	}
	return string(result)
}
