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
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/freechat-tui/internal/app"
	"github.com/jeranaias/freechat-tui/internal/fork"
	"github.com/jeranaias/freechat-tui/internal/model"
)

func (e *env) newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat line by line in the current terminal",
		Long: `Chat opens a line-based session on the most recent chat. Replies are
streamed as they arrive; Ctrl+C stops a reply, Ctrl+D leaves.

Type /help for the slash commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.runREPL(cmd.Context())
		},
	}
}

// =============================================================================
// LINE EDITOR
// =============================================================================

// lineEditor is liner with a persistent history file.
type lineEditor struct {
	line        *liner.State
	historyFile string
}

func newLineEditor(historyFile string) *lineEditor {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	line.SetCompleter(completeCommand)

	le := &lineEditor{line: line, historyFile: historyFile}
	if f, err := os.Open(historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	return le
}

// Read prompts for one line. A non-empty prefill is offered as editable text.
func (le *lineEditor) Read(prompt, prefill string) (string, error) {
	var (
		input string
		err   error
	)
	if prefill != "" {
		input, err = le.line.PromptWithSuggestion(prompt, prefill, -1)
	} else {
		input, err = le.line.Prompt(prompt)
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		le.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history with 0600 permissions and restores the terminal.
func (le *lineEditor) Close() {
	if err := os.MkdirAll(filepath.Dir(le.historyFile), 0o700); err == nil {
		if f, err := os.OpenFile(le.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			_, _ = le.line.WriteHistory(f)
			f.Close()
		}
	}
	le.line.Close()
}

// =============================================================================
// REPL
// =============================================================================

// repl is one line-based session over an app.
type repl struct {
	a   *app.App
	out io.Writer

	// editing is set between /edit and the submit or /cancel that ends it.
	editing bool
	prefill string
}

func (e *env) runREPL(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, closeApp, err := e.openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp()
	watchInBackground(ctx, a)

	dataDir, err := a.Config().ResolvedDataDir()
	if err != nil {
		return err
	}
	line := newLineEditor(filepath.Join(dataDir, "chat_history"))
	defer line.Close()

	r := &repl{a: a, out: e.out}
	r.banner()
	for {
		r.syncEdit()
		input, err := line.Read(r.prompt(), r.prefill)
		r.prefill = ""
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) && r.editing {
				r.cancelEdit()
				continue
			}
			// Ctrl+C at an idle prompt, Ctrl+D, or closed input.
			fmt.Fprintln(r.out)
			return nil
		}

		quit, err := r.handle(ctx, input)
		if err != nil {
			fmt.Fprintln(r.out, errorStyle.Render("Error:"), app.Describe(err))
		}
		if quit {
			return nil
		}
	}
}

func (r *repl) banner() {
	snap := r.a.Store().Snapshot()
	fmt.Fprintln(r.out, titleStyle.Render("freechat")+" "+dimStyle.Render(Version))
	fmt.Fprintf(r.out, "%s %s · %s\n", dimStyle.Render("chat:"), snap.Title, r.modelName())
	if n := len(snap.Messages); n > 0 {
		fmt.Fprintln(r.out, dimStyle.Render(fmt.Sprintf("%d messages so far; /history shows them, /new starts over.", n)))
	}
	fmt.Fprintln(r.out, dimStyle.Render("Type /help for commands."))
	fmt.Fprintln(r.out)
}

func (r *repl) prompt() string {
	if r.editing {
		return promptStyle.Render("edit> ")
	}
	return promptStyle.Render("you> ")
}

func (r *repl) modelName() string {
	id := r.a.Store().Model()
	for _, m := range r.a.Models() {
		if m.ID == id {
			return m.DisplayName
		}
	}
	return id
}

// syncEdit drops local edit state when the store ended the edit, as after
// switching chats.
func (r *repl) syncEdit() {
	if r.editing && r.a.Forks().Editing() == "" {
		r.editing = false
	}
}

// handle processes one input line. It reports whether the session should end.
func (r *repl) handle(ctx context.Context, input string) (bool, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		if r.a.Attachments().Count() == 0 {
			return false, nil
		}
	} else if strings.HasPrefix(input, "/") {
		name, args := parseCommand(input)
		return r.command(ctx, name, args)
	} else if !r.editing && (strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit")) {
		return true, nil
	}
	return false, r.submit(ctx, input)
}

// submit sends text, or saves it as the edit in progress.
func (r *repl) submit(ctx context.Context, text string) error {
	if r.editing {
		var res fork.Result
		err := r.stream(ctx, func(ctx context.Context) (model.Message, error) {
			var err error
			res, err = r.a.SaveComposerEdit(ctx, text)
			return res.Reply, err
		})
		if err != nil {
			return err
		}
		r.editing = false
		if !res.Changed {
			fmt.Fprintln(r.out, dimStyle.Render("No changes"))
		}
		return nil
	}
	return r.stream(ctx, func(ctx context.Context) (model.Message, error) {
		return r.a.Send(ctx, text)
	})
}

// stream runs fn while copying the reply to the terminal. Ctrl+C stops the
// generation instead of ending the process.
func (r *repl) stream(ctx context.Context, fn func(context.Context) (model.Message, error)) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-sig:
				r.a.Stop()
			case <-done:
				return
			}
		}
	}()
	defer func() {
		signal.Stop(sig)
		close(done)
	}()

	stopStream := followStream(r.a.Store(), r.out)
	reply, err := fn(ctx)
	stopStream()
	if err != nil {
		return err
	}
	if reply.ID == "" {
		// Nothing was generated (an unchanged edit).
		return nil
	}
	writeOutcome(r.out, reply)
	fmt.Fprintln(r.out)
	return nil
}

func (r *repl) cancelEdit() {
	r.a.CancelComposerEdit()
	r.editing = false
	fmt.Fprintln(r.out, dimStyle.Render("Edit discarded"))
}
