// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"fmt"
	"path/filepath"
)

// Backend names accepted by OpenBackend.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// OpenBackend opens the named backend under dataDir.
func OpenBackend(backend, dataDir string) (KV, error) {
	switch backend {
	case "", BackendFile:
		return OpenFileKV(filepath.Join(dataDir, "store"))
	case BackendSQLite:
		return OpenSQLite(filepath.Join(dataDir, "freechat.db"))
	case BackendMemory:
		return NewMemoryKV(), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", backend)
}

// KeyFilePath returns where the credential sealing key lives.
func KeyFilePath(dataDir string) string {
	return filepath.Join(dataDir, "secret.key")
}
