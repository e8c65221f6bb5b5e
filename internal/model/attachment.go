// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "strings"

// FileType classifies an attachment by how its content is carried.
type FileType string

const (
	FileImage    FileType = "image"
	FileText     FileType = "text"
	FileDocument FileType = "document"
	FileOther    FileType = "other"
)

// LoadState tracks asynchronous content extraction for an attachment.
type LoadState string

const (
	LoadPending LoadState = "pending"
	LoadReady   LoadState = "ready"
	LoadError   LoadState = "error"
)

// Attachment is a file staged for, or carried by, a message.
//
// Content holds decoded text, extracted document text, a data URI for
// images, or a placeholder string when extraction failed.
type Attachment struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	FileType  FileType  `json:"file_type"`
	MIMEType  string    `json:"mime_type,omitempty"`
	Size      int64     `json:"size,omitempty"`
	Content   string    `json:"content,omitempty"`
	LoadState LoadState `json:"load_state"`
	Error     string    `json:"error,omitempty"`
}

// IsImage reports whether the attachment is an image held as a data URI.
func (a Attachment) IsImage() bool {
	return a.FileType == FileImage && strings.HasPrefix(a.Content, "data:")
}

// Resolved reports whether extraction has finished, successfully or not.
func (a Attachment) Resolved() bool {
	return a.LoadState == LoadReady || a.LoadState == LoadError
}

// CloneAttachments copies a slice of attachments. Attachments hold no
// reference types so a shallow element copy is a deep copy.
func CloneAttachments(files []Attachment) []Attachment {
	if len(files) == 0 {
		return nil
	}
	out := make([]Attachment, len(files))
	copy(out, files)
	return out
}

// SameAttachmentSet reports whether two attachment lists carry the same IDs
// in the same order.
func SameAttachmentSet(a, b []Attachment) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}
