// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "strings"

// Theme selects the colour scheme.
type Theme string

const (
	ThemeSystem Theme = "system"
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
)

// Valid reports whether t is a known theme.
func (t Theme) Valid() bool {
	switch t {
	case ThemeSystem, ThemeLight, ThemeDark:
		return true
	}
	return false
}

const (
	// DefaultUserName means "no display name set".
	DefaultUserName    = "User"
	DefaultAccentColor = "#4a5fc1"
)

// Credential slots for the built-in providers.
const (
	SlotChatGPT  = "chatgpt"
	SlotDeepSeek = "deepseek"
	SlotQwen     = "qwen"
)

// CredentialSlots lists the settings keys holding built-in model credentials.
var CredentialSlots = []string{SlotChatGPT, SlotDeepSeek, SlotQwen}

// =============================================================================
// SETTINGS TYPE
// =============================================================================

// Settings is the user-editable preferences blob.
type Settings struct {
	Theme        Theme             `json:"theme"`
	SystemPrompt string            `json:"system_prompt"`
	UserName     string            `json:"user_name"`
	AccentColor  string            `json:"accent_color"`
	APIKeys      map[string]string `json:"api_keys"`
}

// DefaultSettings returns settings with every field at its default.
func DefaultSettings() Settings {
	keys := make(map[string]string, len(CredentialSlots))
	for _, slot := range CredentialSlots {
		keys[slot] = ""
	}
	return Settings{
		Theme:       ThemeSystem,
		UserName:    DefaultUserName,
		AccentColor: DefaultAccentColor,
		APIKeys:     keys,
	}
}

// Normalize fills missing fields with defaults. Stored blobs from older
// versions may lack fields or credential slots.
func (s Settings) Normalize() Settings {
	def := DefaultSettings()
	if !s.Theme.Valid() {
		s.Theme = def.Theme
	}
	if strings.TrimSpace(s.UserName) == "" {
		s.UserName = def.UserName
	}
	if strings.TrimSpace(s.AccentColor) == "" {
		s.AccentColor = def.AccentColor
	}
	keys := make(map[string]string, len(def.APIKeys)+len(s.APIKeys))
	for k := range def.APIKeys {
		keys[k] = ""
	}
	for k, v := range s.APIKeys {
		keys[k] = v
	}
	s.APIKeys = keys
	return s
}

// Clone returns a deep copy of the settings.
func (s Settings) Clone() Settings {
	keys := make(map[string]string, len(s.APIKeys))
	for k, v := range s.APIKeys {
		keys[k] = v
	}
	s.APIKeys = keys
	return s
}

// DisplayName returns the user's chosen name, or "" when none is set.
func (s Settings) DisplayName() string {
	name := strings.TrimSpace(s.UserName)
	if name == "" || name == DefaultUserName {
		return ""
	}
	return name
}
