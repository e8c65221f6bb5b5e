// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jeranaias/freechat-tui/internal/util"
)

const fileExt = ".json"

// =============================================================================
// FILE KV
// =============================================================================

// FileKV stores each key as <dir>/<key>.json.
type FileKV struct {
	dir string

	mu sync.Mutex
	// written holds the digest of our own last write per key so the watcher
	// can skip events we caused.
	written map[string][sha256.Size]byte
}

// OpenFileKV opens (creating if needed) a file backend rooted at dir.
func OpenFileKV(dir string) (*FileKV, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileKV{dir: dir, written: make(map[string][sha256.Size]byte)}, nil
}

// Dir returns the backing directory.
func (f *FileKV) Dir() string { return f.dir }

func (f *FileKV) path(key string) string {
	return filepath.Join(f.dir, key+fileExt)
}

func (f *FileKV) Get(_ context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

func (f *FileKV) Put(_ context.Context, key string, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	f.mu.Lock()
	f.written[key] = sha256.Sum256(value)
	f.mu.Unlock()

	if err := util.AtomicWriteFile(f.path(key), value, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (f *FileKV) Keys(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list store: %w", err)
	}
	var keys []string
	for _, e := range entries {
		if key, ok := keyFromName(e.Name()); ok && !e.IsDir() {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *FileKV) Close() error { return nil }

func keyFromName(name string) (string, bool) {
	if !strings.HasSuffix(name, fileExt) || strings.HasPrefix(name, ".") {
		return "", false
	}
	key := strings.TrimSuffix(name, fileExt)
	return key, checkKey(key) == nil
}

// =============================================================================
// CHANGE WATCHING
// =============================================================================

// Watch reports keys changed by another process (a second freechat instance,
// a sync tool, a manual edit). Events are debounced per key and writes made
// through this FileKV are ignored. Watch blocks until ctx is done.
func (f *FileKV) Watch(ctx context.Context, debounce time.Duration, onChange func(key string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(f.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", f.dir, err)
	}

	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	pending := make(map[string]time.Time)
	tick := time.NewTicker(debounce / 2)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if key, ok := keyFromName(filepath.Base(ev.Name)); ok {
				pending[key] = time.Now()
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher failed: %w", err)

		case now := <-tick.C:
			for key, at := range pending {
				if now.Sub(at) < debounce {
					continue
				}
				delete(pending, key)
				if f.isOwnWrite(key) {
					continue
				}
				onChange(key)
			}
		}
	}
}

func (f *FileKV) isOwnWrite(key string) bool {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		return false
	}
	sum := sha256.Sum256(data)

	f.mu.Lock()
	defer f.mu.Unlock()
	last, ok := f.written[key]
	return ok && last == sum
}
