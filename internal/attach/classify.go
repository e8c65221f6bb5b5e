// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attach

import (
	"path/filepath"
	"strings"

	"github.com/jeranaias/freechat-tui/internal/model"
)

// textExtensions are decoded as text regardless of their MIME type.
var textExtensions = map[string]bool{
	".txt": true, ".me": true, ".md": true, ".log": true, ".csv": true,
	".py": true, ".js": true, ".ts": true, ".html": true, ".css": true,
	".c": true, ".h": true, ".cpp": true, ".hpp": true, ".go": true,
	".rs": true, ".java": true, ".kt": true, ".rb": true, ".sh": true,
	".json": true, ".yaml": true, ".yml": true, ".toml": true, ".xml": true,
	".sql": true,
}

var documentExtensions = map[string]bool{
	".docx": true,
	".doc":  true,
}

// Classify picks the file type from the MIME type and extension.
func Classify(name, mimeType string) model.FileType {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return model.FileImage
	case documentExtensions[ext]:
		return model.FileDocument
	case textExtensions[ext], strings.HasPrefix(mimeType, "text/"):
		return model.FileText
	}
	return model.FileOther
}

// UnsupportedPlaceholder is the content of an attachment whose type cannot
// be read.
func UnsupportedPlaceholder(name string) string {
	return "[Unsupported file type: " + name + "]"
}

// ErrorPlaceholder is the content of an attachment that failed to load.
func ErrorPlaceholder(name string) string {
	return "[Error reading file: " + name + "]"
}
