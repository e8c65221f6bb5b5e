// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/jeranaias/freechat-tui/internal/ui/tui"
)

// ErrNoTerminal is returned when the full-screen chat is asked for without
// a terminal to draw on.
var ErrNoTerminal = errors.New("the full-screen chat needs a terminal; try 'freechat chat' or 'freechat ask'")

func (e *env) newTUICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the full-screen chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.runTUI(cmd.Context())
		},
	}
}

func (e *env) runTUI(ctx context.Context) error {
	if !IsTTY() || !IsStdoutTTY() {
		return ErrNoTerminal
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, closeApp, err := e.openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp()

	watchInBackground(ctx, a)
	return tui.Run(ctx, a)
}
