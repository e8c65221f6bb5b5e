// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/freechat-tui/internal/config"
)

func TestNew_WritesToDataDir(t *testing.T) {
	dir := t.TempDir()
	logger, closer, err := New(config.LoggingConfig{Level: "debug", Format: "json"}, dir)
	require.NoError(t, err)

	logger.Debug("generation_started", "chat_id", 42)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, "logs", DefaultFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"generation_started"`)
	assert.Contains(t, string(data), `"chat_id":42`)
}

func TestNew_RespectsLevel(t *testing.T) {
	dir := t.TempDir()
	logger, closer, err := New(config.LoggingConfig{Level: "warn"}, dir)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, "logs", DefaultFileName))
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), "hidden"))
	assert.True(t, strings.Contains(string(data), "shown"))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"":      slog.LevelInfo,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestOrDiscard(t *testing.T) {
	l := OrDiscard(nil)
	require.NotNil(t, l)
	l.Error("goes nowhere")
}
