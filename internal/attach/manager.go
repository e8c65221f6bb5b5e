// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/freechat-tui/internal/logging"
	"github.com/jeranaias/freechat-tui/internal/model"
)

// DefaultMaxFiles is the staging limit when Limits.MaxFiles is unset.
const DefaultMaxFiles = 10

// loaderConcurrency bounds how many attachments are read at once.
const loaderConcurrency = 4

// ErrTooManyAttachments is returned when a batch would push the staged count
// over the limit. Nothing from the batch is staged.
var ErrTooManyAttachments = errors.New("too many attachments")

// LimitError carries the numbers behind ErrTooManyAttachments.
type LimitError struct {
	Max    int
	Staged int
	Adding int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("at most %d files can be attached (%d staged, %d more requested)", e.Max, e.Staged, e.Adding)
}

func (e *LimitError) Unwrap() error { return ErrTooManyAttachments }

// Limits bounds staging and loading.
type Limits struct {
	MaxFiles          int
	MaxFileBytes      int64
	MaxImageDimension int
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager owns the attachments staged for the next outgoing message.
// All methods are safe for concurrent use.
type Manager struct {
	limits Limits
	logger *slog.Logger

	mu        sync.Mutex
	items     []model.Attachment
	listeners []func(model.Attachment)
	// changed is closed and replaced on every state transition.
	changed chan struct{}

	loads sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates an empty manager.
func NewManager(limits Limits, opts ...Option) *Manager {
	if limits.MaxFiles <= 0 {
		limits.MaxFiles = DefaultMaxFiles
	}
	m := &Manager{limits: limits, changed: make(chan struct{})}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.OrDiscard(m.logger)
	return m
}

// OnChange registers fn to be called after every attachment state change
// (staged, resolved, removed). fn runs on the goroutine that made the change.
func (m *Manager) OnChange(fn func(model.Attachment)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Stage adds a batch of sources. The whole batch is rejected with a
// *LimitError if it would exceed the limit. Accepted attachments are
// returned in the pending state and resolve in the background.
func (m *Manager) Stage(ctx context.Context, sources ...Source) ([]model.Attachment, error) {
	if len(sources) == 0 {
		return nil, nil
	}

	m.mu.Lock()
	if len(m.items)+len(sources) > m.limits.MaxFiles {
		err := &LimitError{Max: m.limits.MaxFiles, Staged: len(m.items), Adding: len(sources)}
		m.mu.Unlock()
		return nil, err
	}

	batch := make([]model.Attachment, len(sources))
	for i, src := range sources {
		batch[i] = model.Attachment{
			ID:        model.NewAttachmentID(),
			Name:      src.Name(),
			FileType:  Classify(src.Name(), src.MIMEType()),
			MIMEType:  src.MIMEType(),
			LoadState: model.LoadPending,
		}
	}
	m.items = append(m.items, batch...)
	m.loads.Add(1)
	m.mu.Unlock()

	for _, a := range batch {
		m.notify(a)
	}

	go m.loadBatch(ctx, batch, sources)
	return model.CloneAttachments(batch), nil
}

func (m *Manager) loadBatch(ctx context.Context, batch []model.Attachment, sources []Source) {
	defer m.loads.Done()

	var g errgroup.Group
	g.SetLimit(loaderConcurrency)
	for i := range batch {
		a, src := batch[i], sources[i]
		g.Go(func() error {
			m.resolve(m.load(ctx, a, src))
			return nil
		})
	}
	_ = g.Wait()
}

// load runs the extractor for one attachment. It never fails; errors are
// recorded on the attachment.
func (m *Manager) load(ctx context.Context, a model.Attachment, src Source) model.Attachment {
	fail := func(content string, err error) model.Attachment {
		a.Content = content
		a.LoadState = model.LoadError
		a.Error = err.Error()
		m.logger.Debug("attachment_failed", "name", a.Name, "type", a.FileType, "error", err)
		return a
	}

	if err := ctx.Err(); err != nil {
		return fail(ErrorPlaceholder(a.Name), err)
	}
	if a.FileType == model.FileOther {
		return fail(UnsupportedPlaceholder(a.Name), errors.New("unsupported file type"))
	}

	rc, size, err := src.Open()
	if err != nil {
		return fail(ErrorPlaceholder(a.Name), err)
	}
	defer rc.Close()
	a.Size = size

	data, err := readLimited(rc, m.limits.MaxFileBytes)
	if err != nil {
		return fail(ErrorPlaceholder(a.Name), err)
	}
	a.Size = int64(len(data))

	switch a.FileType {
	case model.FileImage:
		a.Content = imageDataURI(a.Name, a.MIMEType, data, m.limits.MaxImageDimension)
	case model.FileText:
		text, err := decodeText(data)
		if err != nil {
			return fail(ErrorPlaceholder(a.Name), err)
		}
		a.Content = text
	case model.FileDocument:
		text, err := extractDocx(data)
		if err != nil {
			return fail(ErrorPlaceholder(a.Name), err)
		}
		a.Content = text
	}
	a.LoadState = model.LoadReady
	return a
}

// resolve stores a finished attachment unless it was removed meanwhile.
func (m *Manager) resolve(a model.Attachment) {
	m.mu.Lock()
	found := false
	for i := range m.items {
		if m.items[i].ID == a.ID {
			m.items[i] = a
			found = true
			break
		}
	}
	if found {
		m.broadcastLocked()
	}
	m.mu.Unlock()

	if found {
		m.notify(a)
	}
}

// Remove unstages one attachment. A load still in progress is discarded.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	var removed *model.Attachment
	for i := range m.items {
		if m.items[i].ID == id {
			a := m.items[i]
			removed = &a
			m.items = append(m.items[:i], m.items[i+1:]...)
			break
		}
	}
	if removed != nil {
		m.broadcastLocked()
	}
	m.mu.Unlock()

	if removed == nil {
		return false
	}
	m.notify(*removed)
	return true
}

// Clear unstages everything.
func (m *Manager) Clear() {
	m.mu.Lock()
	removed := m.items
	m.items = nil
	m.broadcastLocked()
	m.mu.Unlock()

	for _, a := range removed {
		m.notify(a)
	}
}

// Discard unstages the given attachments by id, leaving anything staged
// since they were read.
func (m *Manager) Discard(files []model.Attachment) {
	if len(files) == 0 {
		return
	}
	ids := make(map[string]bool, len(files))
	for _, f := range files {
		ids[f.ID] = true
	}

	m.mu.Lock()
	var removed []model.Attachment
	kept := m.items[:0:0]
	for _, a := range m.items {
		if ids[a.ID] {
			removed = append(removed, a)
			continue
		}
		kept = append(kept, a)
	}
	m.items = kept
	if len(removed) > 0 {
		m.broadcastLocked()
	}
	m.mu.Unlock()

	for _, a := range removed {
		m.notify(a)
	}
}

// Replace swaps the staged set for files, typically the attachments of a
// message being edited in the composer.
func (m *Manager) Replace(files []model.Attachment) {
	m.mu.Lock()
	m.items = model.CloneAttachments(files)
	m.broadcastLocked()
	m.mu.Unlock()

	for _, a := range files {
		m.notify(a)
	}
}

// Staged returns copies of the staged attachments in staging order.
func (m *Manager) Staged() []model.Attachment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return model.CloneAttachments(m.items)
}

// Count returns the number of staged attachments.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Pending reports whether any staged attachment is still loading.
func (m *Manager) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingLocked()
}

// Resolved waits until no staged attachment is pending, then returns copies.
func (m *Manager) Resolved(ctx context.Context) ([]model.Attachment, error) {
	for {
		m.mu.Lock()
		if !m.pendingLocked() {
			out := model.CloneAttachments(m.items)
			m.mu.Unlock()
			return out, nil
		}
		ch := m.changed
		m.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Wait blocks until every background load has finished, including loads of
// attachments that were removed.
func (m *Manager) Wait() {
	m.loads.Wait()
}

func (m *Manager) pendingLocked() bool {
	for _, a := range m.items {
		if a.LoadState == model.LoadPending {
			return true
		}
	}
	return false
}

func (m *Manager) broadcastLocked() {
	close(m.changed)
	m.changed = make(chan struct{})
}

func (m *Manager) notify(a model.Attachment) {
	m.mu.Lock()
	listeners := append([]func(model.Attachment){}, m.listeners...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(a)
	}
}
