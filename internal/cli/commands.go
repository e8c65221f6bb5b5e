// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jeranaias/freechat-tui/internal/attach"
	"github.com/jeranaias/freechat-tui/internal/fork"
	"github.com/jeranaias/freechat-tui/internal/model"
)

// =============================================================================
// SLASH COMMANDS
// =============================================================================

type slashCommand struct {
	name  string
	args  string
	usage string
}

var slashCommands = []slashCommand{
	{"/new", "", "start a new chat"},
	{"/chats", "[search]", "list saved chats"},
	{"/open", "N", "open chat N from /chats"},
	{"/delete", "N", "delete chat N"},
	{"/rename", "TITLE", "rename the current chat"},
	{"/history", "", "show the current chat, numbered"},
	{"/model", "[ID]", "show or switch the model"},
	{"/models", "", "list models"},
	{"/attach", "PATH...", "attach files to the next message"},
	{"/detach", "N", "remove staged file N"},
	{"/files", "", "list staged files"},
	{"/edit", "N", "edit message N from /history and regenerate"},
	{"/cancel", "", "discard the edit in progress"},
	{"/regen", "", "regenerate the last reply"},
	{"/elaborate", "", "ask for a longer version of the last reply"},
	{"/summarize", "", "ask for a shorter version of the last reply"},
	{"/export", "md|json|html [PATH]", "export the current chat"},
	{"/settings", "", "show settings"},
	{"/set", "KEY VALUE", "change a setting"},
	{"/help", "", "show this help"},
	{"/quit", "", "leave"},
}

// parseCommand splits "/name arg ..." into a lower-cased name and its
// whitespace-separated arguments.
func parseCommand(input string) (string, []string) {
	fields := strings.Fields(strings.TrimSpace(input))
	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToLower(fields[0]), fields[1:]
}

// completeCommand offers slash command names for tab completion.
func completeCommand(line string) []string {
	if !strings.HasPrefix(line, "/") || strings.Contains(line, " ") {
		return nil
	}
	var out []string
	for _, c := range slashCommands {
		if strings.HasPrefix(c.name, strings.ToLower(line)) {
			out = append(out, c.name)
		}
	}
	return out
}

// command runs one slash command and reports whether the session should end.
func (r *repl) command(ctx context.Context, name string, args []string) (bool, error) {
	store := r.a.Store()
	switch name {
	case "/quit", "/exit", "/q":
		return true, nil

	case "/help", "/?":
		r.help()

	case "/new":
		if err := r.a.NewChat(); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, successStyle.Render("New chat")+" "+dimStyle.Render(r.modelName()))

	case "/chats":
		printChats(r.out, store.SearchChats(strings.Join(args, " ")), store.CurrentChatID())

	case "/open", "/delete":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: %s N", name)
		}
		chat, err := resolveChat(store.Chats(), args[0])
		if err != nil {
			return false, err
		}
		if name == "/delete" {
			if err := r.a.DeleteChat(ctx, chat.ID); err != nil {
				return false, err
			}
			fmt.Fprintln(r.out, successStyle.Render("Deleted "+chat.Title))
			return false, nil
		}
		if err := r.a.LoadChat(chat.ID); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, successStyle.Render("Opened "+chat.Title)+" "+dimStyle.Render(r.modelName()))
		printTranscript(r.out, store.History(), r.a.Settings().DisplayName())

	case "/rename":
		id := store.CurrentChatID()
		if id == 0 {
			return false, fmt.Errorf("the chat is saved on its first message; send one before renaming")
		}
		title := strings.Join(args, " ")
		if err := r.a.RenameChat(ctx, id, title); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, successStyle.Render("Renamed to "+title))

	case "/history":
		msgs := store.History()
		if len(model.VisibleMessages(msgs)) == 0 {
			fmt.Fprintln(r.out, dimStyle.Render("No messages yet."))
			return false, nil
		}
		printTranscript(r.out, msgs, r.a.Settings().DisplayName())

	case "/model":
		if len(args) == 0 {
			fmt.Fprintf(r.out, "%s (%s)\n", r.modelName(), store.Model())
			return false, nil
		}
		if err := r.a.SelectModel(args[0]); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, successStyle.Render("Using "+r.modelName()))

	case "/models":
		printModels(r.out, r.a.Models(), store.Model())

	case "/attach":
		if len(args) == 0 {
			return false, fmt.Errorf("usage: /attach PATH...")
		}
		sources := make([]attach.Source, 0, len(args))
		for _, p := range args {
			sources = append(sources, attach.FileSource(p))
		}
		staged, err := r.a.Attachments().Stage(ctx, sources...)
		if err != nil {
			return false, err
		}
		for _, f := range staged {
			fmt.Fprintln(r.out, dimStyle.Render("  + "+f.Name))
		}

	case "/detach":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /detach N")
		}
		staged := r.a.Attachments().Staged()
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 || n > len(staged) {
			return false, fmt.Errorf("no staged file %q; /files lists them", args[0])
		}
		r.a.Attachments().Remove(staged[n-1].ID)
		fmt.Fprintln(r.out, dimStyle.Render("  - "+staged[n-1].Name))

	case "/files":
		r.printStaged()

	case "/edit":
		return false, r.beginEdit(args)

	case "/cancel":
		if !r.editing {
			return false, fmt.Errorf("no edit in progress")
		}
		r.cancelEdit()

	case "/regen":
		return false, r.stream(ctx, r.a.Regenerate)

	case "/elaborate", "/summarize":
		kind := fork.Elaborate
		if name == "/summarize" {
			kind = fork.Summarize
		}
		return false, r.stream(ctx, func(ctx context.Context) (model.Message, error) {
			return r.a.Modify(ctx, kind)
		})

	case "/export":
		if len(args) == 0 || len(args) > 2 {
			return false, fmt.Errorf("usage: /export md|json|html [PATH]")
		}
		chat, ok := store.Chat(store.CurrentChatID())
		if !ok {
			return false, fmt.Errorf("nothing to export yet")
		}
		path := ""
		if len(args) == 2 {
			path = args[1]
		}
		written, err := exportChat(chat, args[0], path)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, successStyle.Render("Exported to "+written))

	case "/settings":
		printSettings(r.out, r.a.Settings())

	case "/set":
		if len(args) < 2 {
			return false, fmt.Errorf("usage: /set KEY VALUE")
		}
		key, value := args[0], strings.Join(args[1:], " ")
		err := r.a.UpdateSettings(ctx, func(s *model.Settings) error {
			return applySetting(s, key, value)
		})
		if err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, successStyle.Render("Saved "+key))

	default:
		return false, fmt.Errorf("unknown command %s; /help lists them", name)
	}
	return false, nil
}

// beginEdit enters composer edit mode for message N of /history.
func (r *repl) beginEdit(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: /edit N")
	}
	visible := model.VisibleMessages(r.a.Store().History())
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(visible) {
		return fmt.Errorf("no message %q; /history numbers them", args[0])
	}
	msg, err := r.a.BeginComposerEdit(visible[n-1].ID)
	if err != nil {
		return err
	}
	r.editing = true
	r.prefill = msg.Content
	fmt.Fprintln(r.out, dimStyle.Render(fmt.Sprintf("Editing message %d: enter saves and regenerates, /cancel or Ctrl+C discards.", n)))
	if len(msg.Files) > 0 {
		r.printStaged()
	}
	return nil
}

func (r *repl) printStaged() {
	staged := r.a.Attachments().Staged()
	if len(staged) == 0 {
		fmt.Fprintln(r.out, dimStyle.Render("No files staged."))
		return
	}
	for i, f := range staged {
		state := string(f.FileType)
		if f.LoadState != model.LoadReady {
			state = string(f.LoadState)
		}
		fmt.Fprintf(r.out, "%3d  %s %s\n", i+1, f.Name, dimStyle.Render("("+state+")"))
	}
}

func (r *repl) help() {
	fmt.Fprintln(r.out, titleStyle.Render("Commands"))
	for _, c := range slashCommands {
		fmt.Fprintf(r.out, "  %-28s %s\n", strings.TrimSpace(c.name+" "+c.args), dimStyle.Render(c.usage))
	}
	fmt.Fprintln(r.out, dimStyle.Render("Anything else is sent as a message. Ctrl+C stops a reply; Ctrl+D leaves."))
}
