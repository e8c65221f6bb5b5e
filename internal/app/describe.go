// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"errors"
	"fmt"

	"github.com/jeranaias/freechat-tui/internal/attach"
	"github.com/jeranaias/freechat-tui/internal/cloud"
	"github.com/jeranaias/freechat-tui/internal/conversation"
	"github.com/jeranaias/freechat-tui/internal/registry"
)

// Describe turns core errors into a short instruction for the user. Errors
// it does not recognize are returned as their message.
func Describe(err error) string {
	var cred *registry.CredentialError
	var limit *attach.LimitError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &cred):
		if cred.Slot != "" {
			return fmt.Sprintf("No API key for %s. Run: freechat settings set api_keys.%s <key>", cred.DisplayName, cred.Slot)
		}
		return fmt.Sprintf("No API key for %s. Remove the model and add it again with a key.", cred.DisplayName)
	case errors.As(err, &limit):
		return limit.Error()
	case errors.Is(err, conversation.ErrGenerating):
		return "Still generating; stop the current reply first"
	case errors.Is(err, conversation.ErrNoExchange):
		return "Nothing to regenerate yet"
	case errors.Is(err, conversation.ErrEmptyMessage):
		return "Type a message or attach a file first"
	case errors.Is(err, registry.ErrUnknownModel):
		return err.Error() + ". Run: freechat models list"
	case errors.Is(err, cloud.ErrAuthFailed):
		return "The provider rejected the API key"
	case errors.Is(err, cloud.ErrRateLimited):
		return "Rate limited by the provider; try again shortly"
	}
	return err.Error()
}
