// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attach

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// Source is something that can be staged as an attachment.
type Source interface {
	Name() string
	MIMEType() string
	// Open returns the content and its size in bytes (-1 if unknown).
	Open() (io.ReadCloser, int64, error)
}

// =============================================================================
// FILE SOURCE
// =============================================================================

type fileSource struct {
	path string
}

// FileSource stages a file from disk.
func FileSource(path string) Source {
	return fileSource{path: path}
}

func (f fileSource) Name() string { return filepath.Base(f.path) }

func (f fileSource) MIMEType() string { return mimeFromName(f.path) }

func (f fileSource) Open() (io.ReadCloser, int64, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, 0, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, err
	}
	if info.IsDir() {
		file.Close()
		return nil, 0, fmt.Errorf("%s is a directory", f.path)
	}
	return file, info.Size(), nil
}

// =============================================================================
// BYTES SOURCE
// =============================================================================

type bytesSource struct {
	name string
	mime string
	data []byte
}

// BytesSource stages in-memory content such as a pasted snippet or a sketch.
// An empty mimeType is derived from the name.
func BytesSource(name, mimeType string, data []byte) Source {
	if mimeType == "" {
		mimeType = mimeFromName(name)
	}
	return bytesSource{name: name, mime: mimeType, data: data}
}

// Snippet stages a block of text under the given name.
func Snippet(name, text string) Source {
	if filepath.Ext(name) == "" {
		name += ".txt"
	}
	return BytesSource(name, "text/plain; charset=utf-8", []byte(text))
}

func (b bytesSource) Name() string     { return b.name }
func (b bytesSource) MIMEType() string { return b.mime }

func (b bytesSource) Open() (io.ReadCloser, int64, error) {
	return io.NopCloser(bytes.NewReader(b.data)), int64(len(b.data)), nil
}

func mimeFromName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	switch ext {
	case ".md", ".me", ".txt":
		return "text/plain"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".doc":
		return "application/msword"
	}
	return "application/octet-stream"
}
