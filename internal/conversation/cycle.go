// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"context"
	"sync"

	"github.com/jeranaias/freechat-tui/internal/model"
)

// Cycle is a reserved generation cycle. Exactly one exists at a time.
type Cycle struct {
	store  *Store
	seq    uint64
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	// committed is guarded by store.mu.
	committed bool
}

// BeginCycle reserves the store for one generation cycle. The generating flag
// and the cancellation handle are installed together; a concurrent call gets
// ErrGenerating.
func (s *Store) BeginCycle(ctx context.Context) (*Cycle, error) {
	s.mu.Lock()
	if s.generating {
		s.mu.Unlock()
		return nil, ErrGenerating
	}
	cctx, cancel := context.WithCancel(ctx)
	s.cycleSeq++
	s.generating = true
	s.cancel = cancel
	c := &Cycle{store: s, seq: s.cycleSeq, ctx: cctx, cancel: cancel}
	chatID := s.currentID
	s.mu.Unlock()

	s.logger.Debug("cycle_started", "cycle", c.seq, "chat_id", chatID)
	s.subs.publish(Event{Kind: EventGenerationStarted, ChatID: chatID})
	return c, nil
}

// Cancel aborts the active cycle's request. Reports whether a cycle was
// active.
func (s *Store) Cancel() bool {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// Context is cancelled by Store.Cancel or when the cycle finishes.
func (c *Cycle) Context() context.Context { return c.ctx }

// Cancelled reports whether the cycle was cancelled before finishing.
func (c *Cycle) Cancelled() bool { return c.ctx.Err() != nil }

// Finish is the terminal step of a cycle: it clears the generating flag and
// the cancellation handle. Safe to call more than once.
func (c *Cycle) Finish() {
	c.once.Do(func() {
		s := c.store
		s.mu.Lock()
		if s.cycleSeq == c.seq {
			s.generating = false
			s.cancel = nil
			s.pending = nil
		}
		chatID := s.currentID
		s.mu.Unlock()
		c.cancel()

		s.logger.Debug("cycle_finished", "cycle", c.seq, "chat_id", chatID)
		s.subs.publish(Event{Kind: EventGenerationFinished, ChatID: chatID})
	})
}

// AppendUserMessage is Store.AppendUserMessage for the cycle owner.
func (c *Cycle) AppendUserMessage(text string, files []model.Attachment) (model.Message, error) {
	var msg model.Message
	err := c.store.mutate(c.seq, func() (ev []Event, err error) {
		msg, ev, err = c.store.appendUserLocked(text, files)
		return ev, err
	})
	return msg, err
}

// ForkAt is Store.ForkAt for the cycle owner.
func (c *Cycle) ForkAt(id, text string, files []model.Attachment) (model.Message, error) {
	var msg model.Message
	err := c.store.mutate(c.seq, func() (ev []Event, err error) {
		msg, ev, err = c.store.forkAtLocked(id, text, files)
		return ev, err
	})
	return msg, err
}

// RemoveLastAssistant is Store.RemoveLastAssistant for the cycle owner.
func (c *Cycle) RemoveLastAssistant() (model.Message, error) {
	var msg model.Message
	err := c.store.mutate(c.seq, func() (ev []Event, err error) {
		msg, ev, err = c.store.removeLastAssistantLocked()
		return ev, err
	})
	return msg, err
}

// PushHidden is Store.PushHidden for the cycle owner.
func (c *Cycle) PushHidden(text string) (model.Message, error) {
	var msg model.Message
	err := c.store.mutate(c.seq, func() ([]Event, error) {
		var err error
		msg, err = c.store.pushHiddenLocked(text)
		return nil, err
	})
	return msg, err
}

// StartPending begins the cycle's in-flight assistant message. Any previous
// pending message is discarded.
func (c *Cycle) StartPending(modelID string) (model.Message, error) {
	var msg model.Message
	err := c.store.mutate(c.seq, func() ([]Event, error) {
		s := c.store
		p := &pendingMessage{msg: model.NewAssistantMessage(modelID)}
		s.pending = p
		msg = p.msg.Clone()
		return []Event{{Kind: EventMessageAppended, ChatID: s.currentID, MessageID: msg.ID}}, nil
	})
	return msg, err
}

// AppendPending appends a streamed delta to the in-flight message. A delta
// with no pending message is dropped.
func (c *Cycle) AppendPending(delta string) error {
	if delta == "" {
		return nil
	}
	return c.store.mutate(c.seq, func() ([]Event, error) {
		s := c.store
		if s.pending == nil {
			return nil, nil
		}
		s.pending.content.WriteString(delta)
		return []Event{{Kind: EventMessageUpdated, ChatID: s.currentID, MessageID: s.pending.msg.ID}}, nil
	})
}

// TakePending removes and returns the in-flight message with its
// accumulated content.
func (c *Cycle) TakePending() (model.Message, bool) {
	var (
		msg model.Message
		ok  bool
	)
	_ = c.store.mutate(c.seq, func() ([]Event, error) {
		s := c.store
		if s.pending == nil {
			return nil, nil
		}
		msg, ok = s.pending.msg, true
		msg.Content = s.pending.content.String()
		s.pending = nil
		return nil, nil
	})
	return msg, ok
}

// CommitAssistantMessage appends the cycle's finished assistant message to
// the working history. A cycle commits at most once.
func (c *Cycle) CommitAssistantMessage(msg model.Message) error {
	if msg.Role != model.RoleAssistant {
		return ErrNotAssistant
	}
	if msg.ID == "" {
		msg.ID = model.NewMessageID()
	}
	if msg.Status == model.StatusStreaming {
		msg.Status = model.StatusComplete
	}
	return c.store.mutate(c.seq, func() ([]Event, error) {
		if c.committed {
			return nil, ErrAlreadyCommitted
		}
		c.committed = true
		s := c.store
		s.history = append(s.history, msg.Clone())
		return []Event{{Kind: EventMessageUpdated, ChatID: s.currentID, MessageID: msg.ID}}, nil
	})
}
