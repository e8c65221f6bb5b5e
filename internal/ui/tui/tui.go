// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tui is the full-screen terminal surface.
//
// The screen is a Bubble Tea program over an *app.App. Store and attachment
// notifications arrive on other goroutines and are forwarded into the
// update loop with Program.Send; the model then re-reads a store snapshot.
package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/freechat-tui/internal/app"
	"github.com/jeranaias/freechat-tui/internal/conversation"
	"github.com/jeranaias/freechat-tui/internal/model"
)

// Run shows the chat screen until the user quits or ctx is cancelled.
// A generation still running on exit is cancelled.
func Run(ctx context.Context, a *app.App, opts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(New(ctx, a), opts...)

	// Events also fire from inside Update (NewChat, LoadChat), where a
	// blocking Send would deadlock the loop.
	unsubscribe := a.Store().Subscribe(func(ev conversation.Event) {
		go p.Send(StoreEventMsg{Event: ev})
	})
	defer unsubscribe()
	a.Attachments().OnChange(func(att model.Attachment) {
		go p.Send(AttachmentMsg{Attachment: att})
	})

	_, err := p.Run()
	a.Stop()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}
