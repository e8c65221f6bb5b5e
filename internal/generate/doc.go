// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package generate runs generation cycles against the conversation store.
//
// A cycle projects the working history into wire messages, streams the reply
// into the store's pending message, and commits exactly one assistant message
// whatever the outcome. Cancellation appends a stop marker; failures append
// an error marker and mark the message failed. Neither is fatal to the
// session. After a chat's first exchange a short title request runs in the
// background; its failure is ignored.
package generate
