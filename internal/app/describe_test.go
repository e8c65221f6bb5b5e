// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jeranaias/freechat-tui/internal/cloud"
	"github.com/jeranaias/freechat-tui/internal/conversation"
	"github.com/jeranaias/freechat-tui/internal/model"
	"github.com/jeranaias/freechat-tui/internal/registry"
)

func TestDescribe(t *testing.T) {
	cred := &registry.CredentialError{ModelID: "qwen", DisplayName: "Qwen (Vision)", Slot: model.SlotQwen}
	assert.Contains(t, Describe(cred), "api_keys.qwen")
	assert.Contains(t, Describe(&registry.CredentialError{DisplayName: "mine"}), "add it again")
	assert.Contains(t, Describe(fmt.Errorf("wrap: %w", conversation.ErrGenerating)), "Still generating")
	assert.Contains(t, Describe(&cloud.APIError{Status: 429}), "Rate limited")
	assert.Equal(t, "boom", Describe(errors.New("boom")))
	assert.Empty(t, Describe(nil))
}
