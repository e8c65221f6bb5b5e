// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package attach stages files for the next outgoing message.
//
// Each staged attachment starts pending and is resolved in the background:
// images become data URIs, text files are decoded, .docx documents have their
// paragraph text extracted. Failures are isolated to the attachment that
// failed, which is still sent with a placeholder in place of its content.
//
// # Usage
//
//	mgr := attach.NewManager(attach.Limits{MaxFiles: 10})
//	mgr.OnChange(func(a model.Attachment) { redraw() })
//	if _, err := mgr.Stage(ctx, attach.FileSource("notes.txt")); err != nil {
//	    notify(err) // attach.ErrTooManyAttachments
//	}
//	files, err := mgr.Resolved(ctx)
package attach
