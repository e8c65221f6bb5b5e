// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeranaias/freechat-tui/internal/attach"
	"github.com/jeranaias/freechat-tui/internal/model"
	"github.com/jeranaias/freechat-tui/internal/render"
	"github.com/jeranaias/freechat-tui/internal/ui/styles"
)

var (
	// ErrNoQuestion is returned when ask gets neither arguments nor stdin.
	ErrNoQuestion = errors.New("no question given")

	// errReported fails the command after the error was already printed.
	errReported = errors.New("failed")
)

type askOptions struct {
	files     []string
	raw       bool
	continued bool
}

func (e *env) newAskCmd() *cobra.Command {
	var opts askOptions
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask one question and print the answer",
		Long: `Ask sends one message and prints the reply.

Without arguments the question is read from stdin. The exchange is saved
as a new chat unless --continue is given.`,
		Example: `  freechat ask "What is a goroutine?"
  freechat ask -f main.go "Review this file"
  cat notes.md | freechat ask --raw`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return e.askFromReader(cmd.Context(), opts)
			}
			return e.ask(cmd.Context(), strings.Join(args, " "), opts)
		},
	}
	f := cmd.Flags()
	f.StringArrayVarP(&opts.files, "file", "f", nil, "attach a file (repeatable)")
	f.BoolVar(&opts.raw, "raw", false, "stream plain text instead of rendered markdown")
	f.BoolVarP(&opts.continued, "continue", "c", false, "continue the most recent chat")
	return cmd
}

func (e *env) askFromReader(ctx context.Context, opts askOptions) error {
	data, err := io.ReadAll(e.in)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	q := strings.TrimSpace(string(data))
	if q == "" && len(opts.files) == 0 {
		return ErrNoQuestion
	}
	return e.ask(ctx, q, opts)
}

func (e *env) ask(ctx context.Context, question string, opts askOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, closeApp, err := e.openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp()

	if !opts.continued {
		if err := a.NewChat(); err != nil {
			return err
		}
	}
	if len(opts.files) > 0 {
		sources := make([]attach.Source, 0, len(opts.files))
		for _, p := range opts.files {
			sources = append(sources, attach.FileSource(p))
		}
		if _, err := a.Attachments().Stage(ctx, sources...); err != nil {
			return err
		}
	}

	raw := opts.raw || !IsStdoutTTY()
	if raw {
		stopStream := followStream(a.Store(), e.out)
		defer stopStream()
	}

	reply, err := a.Send(ctx, question)
	if err != nil {
		return err
	}

	if raw {
		writeOutcome(e.out, reply)
	} else {
		r, err := render.NewTerminalRenderer(styles.NewTheme(a.Settings()), "", TerminalWidth(a.Config().UI.WordWrap))
		if err != nil {
			return err
		}
		body, _ := reply.SplitMarker()
		out, err := r.RenderMessage(model.Message{Role: model.RoleAssistant, Content: body, Model: reply.Model})
		if err != nil {
			return err
		}
		fmt.Fprintln(e.out, out)
		if reply.Status != model.StatusComplete {
			writeOutcome(e.out, reply)
		}
	}

	if reply.Status == model.StatusFailed {
		return errReported
	}
	return nil
}
