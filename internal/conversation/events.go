// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"slices"
	"sync"
)

// EventKind identifies what changed in the store.
type EventKind string

const (
	EventSessionChanged     EventKind = "session_changed"
	EventMessageAppended    EventKind = "message_appended"
	EventMessageUpdated     EventKind = "message_updated"
	EventHistoryTruncated   EventKind = "history_truncated"
	EventChatsChanged       EventKind = "chats_changed"
	EventGenerationStarted  EventKind = "generation_started"
	EventGenerationFinished EventKind = "generation_finished"
	EventEditChanged        EventKind = "edit_changed"
)

// Event is delivered to subscribers after the store lock is released.
type Event struct {
	Kind      EventKind
	ChatID    int64
	MessageID string
}

// subscribers is a copy-on-write list so publish never holds a lock while
// calling out.
type subscribers struct {
	mu     sync.Mutex
	nextID int
	list   []subscriber
}

type subscriber struct {
	id int
	fn func(Event)
}

func (s *subscribers) add(fn func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.list = append(slices.Clone(s.list), subscriber{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.list = slices.DeleteFunc(slices.Clone(s.list), func(sub subscriber) bool { return sub.id == id })
	}
}

func (s *subscribers) publish(events ...Event) {
	if len(events) == 0 {
		return
	}
	s.mu.Lock()
	list := s.list
	s.mu.Unlock()

	for _, ev := range events {
		for _, sub := range list {
			sub.fn(ev)
		}
	}
}
