// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation owns the chat session state: the chat list, the
// working history of the current chat, the in-flight assistant message and
// the single generation cycle that may run at a time.
//
// # Key Types
//
//   - Store: the single source of truth, injected into every component
//   - Cycle: a reserved generation cycle; Finish releases it
//   - Snapshot: read-only view for renderers
//   - Event: change notification delivered to subscribers
//
// # Cycles
//
// BeginCycle sets the generating flag and installs a cancellation handle in
// one step. A second BeginCycle fails with ErrGenerating until the first
// cycle's Finish runs. History mutations made by the cycle owner go through
// the Cycle so they cannot interleave with another caller:
//
//	cycle, err := store.BeginCycle(ctx)
//	if err != nil {
//	    return err
//	}
//	defer cycle.Finish()
//	if _, err := cycle.RemoveLastAssistant(); err != nil {
//	    return err
//	}
//
// The Store methods of the same name reject with ErrGenerating while any
// cycle is active.
package conversation
