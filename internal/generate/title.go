// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package generate

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jeranaias/freechat-tui/internal/cloud"
	"github.com/jeranaias/freechat-tui/internal/model"
	"github.com/jeranaias/freechat-tui/internal/registry"
	"github.com/jeranaias/freechat-tui/internal/util"
)

const (
	titleMaxTokens   = 20
	titleReplyPrefix = 150
)

var titleQuotes = strings.NewReplacer(`"`, "", "'", "", "«", "", "»", "")

// TitlePrompt builds the request asking for a short chat title.
func TitlePrompt(userText, reply string) string {
	return "Come up with a short title (3-5 words) for this conversation. " +
		"Reply with the title only. Conversation:\n\nUser: " + userText +
		"\nAI: " + util.TruncateRunesNoEllipsis(reply, titleReplyPrefix)
}

// CleanTitle strips quotes and surrounding whitespace from a model reply.
func CleanTitle(raw string) string {
	return strings.TrimSpace(titleQuotes.Replace(raw))
}

// maybeTitle starts a title request when the current chat has just completed
// its first exchange and still has the default title.
func (e *Engine) maybeTitle(ctx context.Context, desc model.ModelDescriptor) {
	if !e.titles {
		return
	}
	chat, ok := e.store.Chat(e.store.CurrentChatID())
	if !ok || !chat.HasDefaultTitle() {
		return
	}
	users, assistants := chat.ExchangeCount()
	if users != 1 || assistants != 1 {
		return
	}
	var userText, reply string
	for _, m := range chat.Messages {
		switch m.Role {
		case model.RoleUser:
			userText = m.OriginalContent
		case model.RoleAssistant:
			reply = m.Content
			if m.Status != model.StatusComplete {
				reply = ""
			}
		}
	}
	if reply == "" {
		return
	}
	if chat.Model != "" && chat.Model != desc.ID {
		resolved, err := e.models.Resolve(chat.Model, e.settings())
		if err != nil || registry.RequireCredential(resolved) != nil {
			return
		}
		desc = resolved
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.generateTitle(ctx, chat.ID, desc, userText, reply)
	}()
}

func (e *Engine) generateTitle(ctx context.Context, chatID int64, desc model.ModelDescriptor, userText, reply string) {
	ctx, cancel := context.WithTimeout(ctx, e.titleTimeout)
	defer cancel()

	raw, err := e.client.Complete(ctx, cloud.Request{
		Endpoint:   desc.Endpoint,
		Credential: desc.Credential,
		Model:      desc.ModelIdentifier,
		Messages: []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleUser,
			Content: TitlePrompt(userText, reply),
		}},
		MaxTokens: titleMaxTokens,
	})
	if err != nil {
		e.logger.Debug("title_generation_failed", "chat_id", chatID, "error", err)
		return
	}
	title := CleanTitle(raw)
	if title == "" {
		return
	}
	if _, err := e.store.SetGeneratedTitle(ctx, chatID, title); err != nil {
		e.logger.Debug("title_not_saved", "chat_id", chatID, "error", err)
	}
}
