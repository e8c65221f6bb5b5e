// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func (e *env) newModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List and manage models",
	}
	cmd.AddCommand(e.newModelsListCmd(), e.newModelsAddCmd(), e.newModelsRemoveCmd())
	return cmd
}

func (e *env) newModelsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List built-in and custom models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, closeApp, err := e.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()
			printModels(e.out, a.Models(), a.Store().Model())
			return nil
		},
	}
}

func (e *env) newModelsAddCmd() *cobra.Command {
	var (
		baseURL string
		apiKey  string
		vision  bool
	)
	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Add a custom model",
		Long: `Add registers a model by the name sent upstream as the request's
"model" field. Without --url the default OpenRouter endpoint is used.`,
		Example: `  freechat models add mistralai/mistral-7b-instruct --key sk-or-...
  freechat models add llama3 --url http://localhost:11434/v1/chat/completions --key unused`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeApp, err := e.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()
			m, err := a.AddCustomModel(cmd.Context(), args[0], baseURL, apiKey, vision)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "%s %s\n", successStyle.Render("Added"), m.ID)
			if strings.TrimSpace(m.APIKey) == "" {
				fmt.Fprintln(e.out, warningStyle.Render("No key given; requests to this model will be refused until it is re-added with --key."))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&baseURL, "url", "", "chat completions endpoint")
	f.StringVar(&apiKey, "key", "", "API key for the endpoint")
	f.BoolVar(&vision, "vision", false, "model accepts images")
	return cmd
}

func (e *env) newModelsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove ID",
		Aliases: []string{"rm"},
		Short:   "Remove a custom model",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeApp, err := e.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp()
			if err := a.RemoveCustomModel(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "%s %s\n", successStyle.Render("Removed"), args[0])
			return nil
		},
	}
}
