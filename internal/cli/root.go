// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jeranaias/freechat-tui/internal/app"
	"github.com/jeranaias/freechat-tui/internal/config"
	"github.com/jeranaias/freechat-tui/internal/logging"
)

// Version information (can be overridden at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Surfaces selectable with ui.surface.
const (
	SurfaceAuto = "auto"
	SurfaceTUI  = "tui"
	SurfaceREPL = "repl"
)

// Execute runs the command line and returns the process exit code.
func Execute() int {
	cmd := NewRootCmd(os.Stdin, os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), app.Describe(err))
		}
		return 1
	}
	return 0
}

// =============================================================================
// ENVIRONMENT
// =============================================================================

// env carries what every command needs: the bound flags and the streams.
type env struct {
	v   *viper.Viper
	in  io.Reader
	out io.Writer
	err io.Writer

	// newApp is swapped in tests.
	newApp func(ctx context.Context, opts app.Options) (*app.App, error)
}

// loadConfig reads the config file, then applies environment and flag
// overrides, flags winning.
func (e *env) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := e.v.GetString("config"); path != "" {
		cfg, err = config.LoadFromPath(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if v := e.v.GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v := e.v.GetString("storage"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := e.v.GetString("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if v := e.v.GetString("log-file"); v != "" {
		cfg.Logging.File = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openApp builds the application. The returned close function waits for
// background work, closes storage and the log file.
func (e *env) openApp(ctx context.Context) (*app.App, func(), error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	dataDir, err := cfg.ResolvedDataDir()
	if err != nil {
		return nil, nil, err
	}
	logger, logCloser, err := logging.New(cfg.Logging, dataDir)
	if err != nil {
		return nil, nil, err
	}

	a, err := e.newApp(ctx, app.Options{Config: cfg, Logger: logger})
	if err != nil {
		_ = logCloser.Close()
		return nil, nil, err
	}
	// --model selects for this run only; default_model in the config file
	// seeds fresh sessions.
	if id := e.v.GetString("model"); id != "" {
		if err := a.SelectModel(id); err != nil {
			_ = a.Close()
			_ = logCloser.Close()
			return nil, nil, err
		}
	}
	closeFn := func() {
		if err := a.Close(); err != nil {
			logger.Warn("close_app_failed", "error", err)
		}
		_ = logCloser.Close()
	}
	return a, closeFn, nil
}

// =============================================================================
// ROOT COMMAND
// =============================================================================

// NewRootCmd builds the command tree reading from in and writing to out
// and errOut.
func NewRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	e := &env{v: viper.New(), in: in, out: out, err: errOut, newApp: app.New}

	root := &cobra.Command{
		Use:   "freechat",
		Short: "Chat with hosted language models from the terminal",
		Long: `freechat keeps a local history of chats with OpenAI-compatible models.

Run without a command to open the full-screen chat (or the line REPL when
the terminal cannot host it). Piped input is answered once and printed.`,
		Version:       fmt.Sprintf("%s (%s, %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A missing .env is normal.
			_ = godotenv.Load()
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.runAuto(cmd.Context())
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default ~/.freechat/config.toml)")
	flags.String("data-dir", "", "directory holding chats, settings and logs")
	flags.String("model", "", "model id to use for this run")
	flags.String("storage", "", `storage backend ("file" or "sqlite")`)
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-file", "", `log file ("-" for stderr)`)
	for _, name := range []string{"config", "data-dir", "model", "storage", "log-level", "log-file"} {
		if err := e.v.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
	e.v.SetEnvPrefix("freechat")
	e.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	e.v.AutomaticEnv()

	root.AddCommand(
		e.newTUICmd(),
		e.newChatCmd(),
		e.newAskCmd(),
		e.newChatsCmd(),
		e.newModelsCmd(),
		e.newSettingsCmd(),
		e.newConfigCmd(),
	)
	return root
}

// runAuto picks the surface for a bare "freechat".
func (e *env) runAuto(ctx context.Context) error {
	cfg, err := e.loadConfig()
	if err != nil {
		return err
	}
	surface := cfg.UI.Surface
	if surface == SurfaceAuto || surface == "" {
		switch {
		case IsTTY() && IsStdoutTTY():
			surface = SurfaceTUI
		case IsTTY():
			surface = SurfaceREPL
		default:
			return e.askFromReader(ctx, askOptions{raw: true})
		}
	}
	switch surface {
	case SurfaceTUI:
		return e.runTUI(ctx)
	case SurfaceREPL:
		return e.runREPL(ctx)
	}
	return fmt.Errorf("unknown surface %q", surface)
}

// watchInBackground follows external changes to the store when the backend
// supports it.
func watchInBackground(ctx context.Context, a *app.App) {
	go func() {
		err := a.Watch(ctx)
		if err != nil && !errors.Is(err, app.ErrWatchUnsupported) && ctx.Err() == nil {
			a.Logger().Warn("watch_stopped", "error", err)
		}
	}()
}
