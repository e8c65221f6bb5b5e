// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the freechat command line.
//
// # Commands
//
//   - freechat: full-screen chat when attached to a terminal, the line REPL
//     when only stdin is, and a one-shot answer for piped input
//   - freechat tui | chat | ask
//   - freechat chats list|show|rename|delete|export
//   - freechat models list|add|remove
//   - freechat settings show|set
//   - freechat config init|show|get|set|path
//
// Flags are bound through viper, so every persistent flag can also be set
// with a FREECHAT_ environment variable. A .env file in the working
// directory is loaded first.
package cli
