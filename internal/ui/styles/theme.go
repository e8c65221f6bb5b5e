// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"regexp"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/jeranaias/freechat-tui/internal/model"
)

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Theme holds the styled components shared by the terminal surfaces.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	ColorProfile termenv.Profile

	// GlamourStyle is the glamour standard style matching IsDark.
	GlamourStyle string

	// Accent is the user's accent colour, or the default.
	Accent lipgloss.TerminalColor

	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	StatusBar   lipgloss.Style

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	SystemLabel    lipgloss.Style
	Timestamp      lipgloss.Style

	AttachmentReady   lipgloss.Style
	AttachmentPending lipgloss.Style
	AttachmentError   lipgloss.Style

	ErrorText     lipgloss.Style
	CancelledText lipgloss.Style
	Cursor        lipgloss.Style
	Muted         lipgloss.Style
	Editing       lipgloss.Style
	Selected      lipgloss.Style
}

// NewTheme builds a theme for the user's settings. ThemeSystem follows the
// terminal background.
func NewTheme(settings model.Settings) *Theme {
	t := &Theme{ColorProfile: termenv.ColorProfile()}
	switch settings.Theme {
	case model.ThemeDark:
		t.IsDark = true
	case model.ThemeLight:
		t.IsDark = false
	default:
		t.IsDark = termenv.HasDarkBackground()
	}
	lipgloss.SetHasDarkBackground(t.IsDark)

	t.GlamourStyle = "light"
	if t.IsDark {
		t.GlamourStyle = "dark"
	}

	t.Accent = Accent
	if settings.AccentColor != "" && settings.AccentColor != model.DefaultAccentColor && hexColor.MatchString(settings.AccentColor) {
		t.Accent = lipgloss.Color(settings.AccentColor)
	}

	t.initStyles()
	return t
}

// initStyles initializes all the lip gloss styles.
func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Bold(true).
		Background(SurfaceDim).
		Padding(0, 1)

	t.HeaderTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(t.Accent)

	t.StatusBar = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Background(SurfaceDim).
		Padding(0, 1)

	t.UserLabel = lipgloss.NewStyle().Bold(true).Foreground(t.Accent)
	t.AssistantLabel = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.SystemLabel = lipgloss.NewStyle().Bold(true).Foreground(Amber)
	t.Timestamp = lipgloss.NewStyle().Foreground(TextMuted)

	t.AttachmentReady = lipgloss.NewStyle().Foreground(Emerald)
	t.AttachmentPending = lipgloss.NewStyle().Foreground(Amber).Italic(true)
	t.AttachmentError = lipgloss.NewStyle().Foreground(Rose)

	t.ErrorText = lipgloss.NewStyle().Foreground(Rose).Bold(true)
	t.CancelledText = lipgloss.NewStyle().Foreground(Amber).Italic(true)
	t.Cursor = lipgloss.NewStyle().Foreground(t.Accent)
	t.Muted = lipgloss.NewStyle().Foreground(TextMuted)
	t.Editing = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(Amber).
		PaddingLeft(1)
	t.Selected = lipgloss.NewStyle().Bold(true).Foreground(t.Accent)
}
