// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/jeranaias/freechat-tui/internal/export"
	"github.com/jeranaias/freechat-tui/internal/model"
	"github.com/jeranaias/freechat-tui/internal/registry"
	"github.com/jeranaias/freechat-tui/internal/util"
)

var (
	// ErrNoSuchChat is returned for a chat reference that matches nothing.
	ErrNoSuchChat = errors.New("no such chat")

	// ErrUnknownSetting is returned by settings set for an unknown key.
	ErrUnknownSetting = errors.New("unknown setting")
)

// =============================================================================
// CHATS
// =============================================================================

// resolveChat finds a chat by its position in chats (1-based, as listed) or
// by its id.
func resolveChat(chats []model.Chat, ref string) (model.Chat, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(ref), 10, 64)
	if err != nil {
		return model.Chat{}, fmt.Errorf("%w: %q", ErrNoSuchChat, ref)
	}
	if n >= 1 && n <= int64(len(chats)) {
		return chats[n-1], nil
	}
	for _, c := range chats {
		if c.ID == n {
			return c, nil
		}
	}
	return model.Chat{}, fmt.Errorf("%w: %q", ErrNoSuchChat, ref)
}

// printChats lists chats newest first, marking current.
func printChats(w io.Writer, chats []model.Chat, current int64) {
	if len(chats) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No chats yet."))
		return
	}
	for i, c := range chats {
		mark := " "
		if c.ID == current {
			mark = "*"
		}
		title := c.Title
		if c.HasDefaultTitle() && len(c.Messages) > 0 {
			title = c.Messages[0].Preview(40)
		}
		users, _ := c.ExchangeCount()
		fmt.Fprintf(w, "%s %3d  %-40s %s  %s\n",
			mark, i+1,
			util.TruncateWidth(title, 40),
			dimStyle.Render(c.CreatedAt.Format("2006-01-02 15:04")),
			dimStyle.Render(fmt.Sprintf("%d msgs · %s", users, c.Model)),
		)
	}
}

// printTranscript writes the visible messages of a chat as plain text,
// numbered for /edit.
func printTranscript(w io.Writer, msgs []model.Message, userName string) {
	for i, m := range model.VisibleMessages(msgs) {
		label := m.Role.DisplayName()
		if m.Role == model.RoleUser && userName != "" {
			label = userName
		}
		fmt.Fprintf(w, "%s %s\n", dimStyle.Render(fmt.Sprintf("[%d]", i+1)), labelStyle.Render(label))
		body, marker := m.SplitMarker()
		if body != "" {
			fmt.Fprintln(w, body)
		}
		for _, f := range m.Files {
			fmt.Fprintln(w, dimStyle.Render("  + "+f.Name))
		}
		switch m.Status {
		case model.StatusCancelled:
			fmt.Fprintln(w, warningStyle.Render("(Generation stopped)"))
		case model.StatusFailed:
			fmt.Fprintln(w, errorStyle.Render("Error: "+m.Error))
		default:
			if marker != "" {
				fmt.Fprintln(w, dimStyle.Render(marker))
			}
		}
		fmt.Fprintln(w)
	}
}

// exportChat writes chat in format to path, or to a generated name in the
// current directory when path is empty.
func exportChat(chat model.Chat, format, path string) (string, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return "", err
	}
	exp, err := export.ExporterFor(f)
	if err != nil {
		return "", err
	}
	return export.ToFile(chat, exp, &export.Options{Path: path})
}

// =============================================================================
// MODELS
// =============================================================================

// printModels lists models, marking selected and flagging missing keys.
func printModels(w io.Writer, models []model.ModelDescriptor, selected string) {
	for _, m := range models {
		mark := " "
		if m.ID == selected {
			mark = "*"
		}
		var tags []string
		if m.BuiltIn {
			tags = append(tags, "built-in")
		} else {
			tags = append(tags, "custom")
		}
		if m.VisionCapable {
			tags = append(tags, "vision")
		}
		key := successStyle.Render("key set")
		if registry.RequireCredential(m) != nil {
			key = warningStyle.Render("no key")
		}
		fmt.Fprintf(w, "%s %-24s %-24s %s  %s\n",
			mark, m.ID, util.TruncateWidth(m.DisplayName, 24),
			dimStyle.Render(strings.Join(tags, ", ")), key)
	}
}

// =============================================================================
// SETTINGS
// =============================================================================

// settingKeys lists what settings set accepts, besides api_keys.<slot>.
var settingKeys = []string{"theme", "system_prompt", "user_name", "accent_color"}

// printSettings shows s with credentials reduced to fingerprints.
func printSettings(w io.Writer, s model.Settings) {
	fmt.Fprintln(w, renderLabel("theme")+string(s.Theme))
	fmt.Fprintln(w, renderLabel("user_name")+s.UserName)
	fmt.Fprintln(w, renderLabel("accent_color")+s.AccentColor)
	prompt := s.SystemPrompt
	if prompt == "" {
		prompt = dimStyle.Render("(none)")
	}
	fmt.Fprintln(w, renderLabel("system_prompt")+prompt)

	slots := make([]string, 0, len(s.APIKeys))
	for slot := range s.APIKeys {
		slots = append(slots, slot)
	}
	sort.Strings(slots)
	for _, slot := range slots {
		val := dimStyle.Render("(unset)")
		if k := s.APIKeys[slot]; k != "" {
			val = "set (" + registry.Fingerprint(k) + ")"
		}
		fmt.Fprintln(w, renderLabel("api_keys."+slot)+val)
	}
}

// applySetting sets key on s. Values are validated here; Normalize fills
// in defaults afterwards.
func applySetting(s *model.Settings, key, value string) error {
	if slot, ok := strings.CutPrefix(key, "api_keys."); ok {
		for _, known := range model.CredentialSlots {
			if known == slot {
				s.APIKeys[slot] = strings.TrimSpace(value)
				return nil
			}
		}
		return fmt.Errorf("%w: %q (slots: %s)", ErrUnknownSetting, key, strings.Join(model.CredentialSlots, ", "))
	}
	switch key {
	case "theme":
		t := model.Theme(strings.ToLower(strings.TrimSpace(value)))
		if !t.Valid() {
			return fmt.Errorf("invalid theme %q (system, light or dark)", value)
		}
		s.Theme = t
	case "system_prompt":
		s.SystemPrompt = value
	case "user_name":
		s.UserName = value
	case "accent_color":
		s.AccentColor = strings.TrimSpace(value)
	default:
		return fmt.Errorf("%w: %q (keys: %s, api_keys.<slot>)", ErrUnknownSetting, key, strings.Join(settingKeys, ", "))
	}
	return nil
}
