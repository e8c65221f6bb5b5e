// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides persistence for freechat.
//
// Three independent JSON blobs are stored in a key-value backend: the chat
// list, the settings object and the custom model list.
//
// # Key Types
//
//   - KV: minimal key-value backend interface
//   - FileKV: one JSON file per key, written atomically, with change watching
//   - SQLiteKV: single-table SQLite backend (pure Go driver)
//   - MemoryKV: in-process backend for tests and ephemeral sessions
//   - Gateway: typed load/save of the three blobs
//   - Sealer: optional at-rest sealing of API keys
//
// # Usage
//
//	kv, err := storage.OpenFileKV(filepath.Join(dataDir, "store"))
//	gw := storage.NewGateway(kv, storage.WithLogger(logger))
//	chats, err := gw.LoadChats(ctx)
//
// # Storage Location
//
// By default blobs live in ~/.freechat/store/ (file backend) or
// ~/.freechat/freechat.db (sqlite backend).
package storage
