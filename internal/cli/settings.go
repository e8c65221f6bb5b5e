// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/freechat-tui/internal/model"
)

func (e *env) newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change preferences and API keys",
	}
	cmd.AddCommand(e.newSettingsShowCmd(), e.newSettingsSetCmd())
	return cmd
}

func (e *env) newSettingsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show settings (API keys are masked)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, closeApp, err := e.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()
			printSettings(e.out, a.Settings())
			return nil
		},
	}
}

func (e *env) newSettingsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Change one setting",
		Long: `Keys: theme, system_prompt, user_name, accent_color and
api_keys.<slot> where slot is one of chatgpt, deepseek or qwen.`,
		Example: `  freechat settings set api_keys.chatgpt sk-or-v1-...
  freechat settings set theme dark
  freechat settings set system_prompt "Answer briefly."`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeApp, err := e.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()

			key, value := args[0], strings.Join(args[1:], " ")
			err = a.UpdateSettings(cmd.Context(), func(s *model.Settings) error {
				return applySetting(s, key, value)
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(e.out, successStyle.Render("Saved "+key))
			return nil
		},
	}
}
