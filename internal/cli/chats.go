// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func (e *env) newChatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "chats",
		Aliases: []string{"history"},
		Short:   "List, show, rename, delete and export saved chats",
		Long: `Chats are numbered newest first, as shown by "freechat chats list".
Every subcommand taking CHAT accepts that number or the chat id.`,
	}
	cmd.AddCommand(e.newChatsListCmd(), e.newChatsShowCmd(), e.newChatsRenameCmd(),
		e.newChatsDeleteCmd(), e.newChatsExportCmd())
	return cmd
}

func (e *env) newChatsListCmd() *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved chats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, closeApp, err := e.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()
			printChats(e.out, a.Store().SearchChats(query), a.Store().CurrentChatID())
			return nil
		},
	}
	cmd.Flags().StringVarP(&query, "search", "s", "", "only chats whose title contains this")
	return cmd
}

func (e *env) newChatsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show CHAT",
		Short: "Print a chat transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeApp, err := e.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()
			chat, err := resolveChat(a.Store().Chats(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(e.out, titleStyle.Render(chat.Title))
			fmt.Fprintln(e.out, dimStyle.Render(chat.CreatedAt.Format("2006-01-02 15:04")+" · "+chat.Model))
			fmt.Fprintln(e.out)
			printTranscript(e.out, chat.Messages, a.Settings().DisplayName())
			return nil
		},
	}
}

func (e *env) newChatsRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename CHAT TITLE",
		Short: "Rename a chat",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeApp, err := e.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()
			chat, err := resolveChat(a.Store().Chats(), args[0])
			if err != nil {
				return err
			}
			title := strings.Join(args[1:], " ")
			if err := a.RenameChat(cmd.Context(), chat.ID, title); err != nil {
				return err
			}
			fmt.Fprintln(e.out, successStyle.Render("Renamed to "+title))
			return nil
		},
	}
}

func (e *env) newChatsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete CHAT",
		Aliases: []string{"rm"},
		Short:   "Delete a chat",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeApp, err := e.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()
			chat, err := resolveChat(a.Store().Chats(), args[0])
			if err != nil {
				return err
			}
			if err := a.DeleteChat(cmd.Context(), chat.ID); err != nil {
				return err
			}
			fmt.Fprintln(e.out, successStyle.Render("Deleted "+chat.Title))
			return nil
		},
	}
}

func (e *env) newChatsExportCmd() *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "export CHAT",
		Short: "Export a chat as markdown, JSON or HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeApp, err := e.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()
			chat, err := resolveChat(a.Store().Chats(), args[0])
			if err != nil {
				return err
			}
			path, err := exportChat(chat, format, output)
			if err != nil {
				return err
			}
			fmt.Fprintln(e.out, successStyle.Render("Exported to "+path))
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "F", "md", "md, json or html")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: generated name in the current directory)")
	return cmd
}
