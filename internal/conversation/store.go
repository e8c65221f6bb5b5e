// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/jeranaias/freechat-tui/internal/logging"
	"github.com/jeranaias/freechat-tui/internal/model"
)

// Errors returned by Store and Cycle operations. None of them leave state
// modified.
var (
	ErrGenerating       = errors.New("a response is still being generated")
	ErrEmptyMessage     = errors.New("message has no text or attachments")
	ErrMessageNotFound  = errors.New("message not found")
	ErrNotEditable      = errors.New("only user messages can be edited")
	ErrNoExchange       = errors.New("no assistant reply to replace")
	ErrChatNotFound     = errors.New("chat not found")
	ErrEmptyTitle       = errors.New("chat title is empty")
	ErrCycleFinished    = errors.New("generation cycle already finished")
	ErrNotAssistant     = errors.New("only assistant messages can be committed")
	ErrAlreadyCommitted = errors.New("cycle already committed its reply")
)

// Persister stores the chat list. storage.Gateway implements it.
type Persister interface {
	SaveChats(ctx context.Context, chats []model.Chat) error
}

// Option configures a Store.
type Option func(*Store)

// WithPersister sets where Reconcile writes the chat list.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = logging.OrDiscard(l) }
}

// WithChatIDs replaces the chat id generator.
func WithChatIDs(ids *model.ChatIDs) Option {
	return func(s *Store) {
		if ids != nil {
			s.ids = ids
		}
	}
}

// WithModel sets the initially selected model id.
func WithModel(id string) Option {
	return func(s *Store) { s.modelID = id }
}

type pendingMessage struct {
	msg     model.Message
	content strings.Builder
}

// =============================================================================
// STORE
// =============================================================================

// Store is the single owner of session state. All methods are safe for
// concurrent use; subscribers are notified after the lock is released.
type Store struct {
	mu         sync.Mutex
	chats      []model.Chat // newest first
	currentID  int64        // 0 when no chat is active
	history    []model.Message
	pending    *pendingMessage
	generating bool
	cancel     context.CancelFunc
	cycleSeq   uint64
	editingID  string
	modelID    string

	ids       *model.ChatIDs
	persister Persister
	saveMu    sync.Mutex
	logger    *slog.Logger
	subs      subscribers
}

// NewStore creates a store over a previously persisted chat list. The session
// starts empty; call LoadSession to open a chat.
func NewStore(chats []model.Chat, opts ...Option) *Store {
	s := &Store{
		ids:    model.NewChatIDs(),
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.chats = sortChats(model.CloneChats(chats))
	for _, c := range s.chats {
		s.ids.Observe(c.ID)
	}
	return s
}

func sortChats(chats []model.Chat) []model.Chat {
	slices.SortStableFunc(chats, func(a, b model.Chat) int { return cmp.Compare(b.ID, a.ID) })
	return chats
}

// Subscribe registers fn for change events and returns a function that
// removes it. fn must not block for long; it runs on the mutating goroutine.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	return s.subs.add(fn)
}

// mutate runs fn under the lock. owner is 0 for callers outside any cycle,
// which are rejected while one is active, or the sequence of the cycle the
// caller holds.
func (s *Store) mutate(owner uint64, fn func() ([]Event, error)) error {
	s.mu.Lock()
	switch {
	case owner == 0 && s.generating:
		s.mu.Unlock()
		return ErrGenerating
	case owner != 0 && (!s.generating || s.cycleSeq != owner):
		s.mu.Unlock()
		return ErrCycleFinished
	}
	events, err := fn()
	s.mu.Unlock()
	s.subs.publish(events...)
	return err
}

// =============================================================================
// SESSION
// =============================================================================

// StartNewSession clears the current chat and working history. Nothing is
// persisted until a message is sent.
func (s *Store) StartNewSession() error {
	return s.mutate(0, func() ([]Event, error) {
		s.resetSessionLocked()
		return []Event{{Kind: EventSessionChanged}}, nil
	})
}

func (s *Store) resetSessionLocked() {
	s.currentID = 0
	s.history = nil
	s.editingID = ""
}

// LoadSession makes chat id current. An unknown id falls back to a new
// session without error. Returns ErrGenerating while a cycle is active.
func (s *Store) LoadSession(id int64) error {
	return s.mutate(0, func() ([]Event, error) {
		idx := s.indexLocked(id)
		if idx < 0 {
			s.logger.Debug("chat_not_found", "chat_id", id)
			s.resetSessionLocked()
			return []Event{{Kind: EventSessionChanged}}, nil
		}
		chat := s.chats[idx]
		s.currentID = chat.ID
		s.history = model.CloneMessages(chat.Messages)
		s.editingID = ""
		if chat.Model != "" {
			s.modelID = chat.Model
		}
		return []Event{{Kind: EventSessionChanged, ChatID: chat.ID}}, nil
	})
}

func (s *Store) indexLocked(id int64) int {
	if id == 0 {
		return -1
	}
	return slices.IndexFunc(s.chats, func(c model.Chat) bool { return c.ID == id })
}

// CurrentChatID returns the active chat id, or 0 for a new unsaved session.
func (s *Store) CurrentChatID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentID
}

// Model returns the selected model id.
func (s *Store) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modelID
}

// SelectModel changes the model used by the next cycle and records it on
// the current chat. A running cycle keeps the model it started with.
func (s *Store) SelectModel(id string) {
	s.mu.Lock()
	s.modelID = id
	if idx := s.indexLocked(s.currentID); idx >= 0 {
		s.chats[idx].Model = id
	}
	chatID := s.currentID
	s.mu.Unlock()
	s.subs.publish(Event{Kind: EventSessionChanged, ChatID: chatID})
}

// IsGenerating reports whether a cycle is active.
func (s *Store) IsGenerating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generating
}

// =============================================================================
// HISTORY MUTATIONS
// =============================================================================

// AppendUserMessage appends a user message, creating the chat on first use.
// Returns ErrEmptyMessage when both text and files are empty.
func (s *Store) AppendUserMessage(text string, files []model.Attachment) (model.Message, error) {
	var msg model.Message
	err := s.mutate(0, func() (ev []Event, err error) {
		msg, ev, err = s.appendUserLocked(text, files)
		return ev, err
	})
	return msg, err
}

func (s *Store) appendUserLocked(text string, files []model.Attachment) (model.Message, []Event, error) {
	msg := model.NewUserMessage(text, files)
	if !msg.IsMeaningful() {
		return model.Message{}, nil, ErrEmptyMessage
	}

	var events []Event
	if s.indexLocked(s.currentID) < 0 {
		chat := model.NewChat(s.ids.Next(), s.modelID)
		s.chats = append([]model.Chat{chat}, s.chats...)
		s.currentID = chat.ID
		events = append(events, Event{Kind: EventChatsChanged, ChatID: chat.ID})
	}
	s.history = append(s.history, msg)
	events = append(events, Event{Kind: EventMessageAppended, ChatID: s.currentID, MessageID: msg.ID})
	return msg.Clone(), events, nil
}

// ForkAt replaces message id's text and files and discards every message
// after it. Only visible user messages can be forked.
func (s *Store) ForkAt(id, text string, files []model.Attachment) (model.Message, error) {
	var msg model.Message
	err := s.mutate(0, func() (ev []Event, err error) {
		msg, ev, err = s.forkAtLocked(id, text, files)
		return ev, err
	})
	return msg, err
}

func (s *Store) forkAtLocked(id, text string, files []model.Attachment) (model.Message, []Event, error) {
	idx := slices.IndexFunc(s.history, func(m model.Message) bool { return m.ID == id })
	if idx < 0 {
		return model.Message{}, nil, ErrMessageNotFound
	}
	target := s.history[idx]
	if target.Role != model.RoleUser || target.IsHidden {
		return model.Message{}, nil, ErrNotEditable
	}
	target.OriginalContent = text
	target.Files = model.CloneAttachments(files)
	if !target.IsMeaningful() {
		return model.Message{}, nil, ErrEmptyMessage
	}

	s.history = append(s.history[:idx:idx], target)
	if s.editingID != "" && s.indexOfLocked(s.editingID) < 0 {
		s.editingID = ""
	}
	return target.Clone(), []Event{
		{Kind: EventHistoryTruncated, ChatID: s.currentID, MessageID: target.ID},
		{Kind: EventMessageUpdated, ChatID: s.currentID, MessageID: target.ID},
	}, nil
}

func (s *Store) indexOfLocked(id string) int {
	return slices.IndexFunc(s.history, func(m model.Message) bool { return m.ID == id })
}

// RemoveLastAssistant drops the most recent assistant message and anything
// after it. Returns ErrNoExchange when there is no assistant reply.
func (s *Store) RemoveLastAssistant() (model.Message, error) {
	var msg model.Message
	err := s.mutate(0, func() (ev []Event, err error) {
		msg, ev, err = s.removeLastAssistantLocked()
		return ev, err
	})
	return msg, err
}

func (s *Store) removeLastAssistantLocked() (model.Message, []Event, error) {
	idx := -1
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].Role == model.RoleAssistant {
			idx = i
			break
		}
	}
	if idx < 0 || !slices.ContainsFunc(s.history[:idx], func(m model.Message) bool { return m.Role == model.RoleUser }) {
		return model.Message{}, nil, ErrNoExchange
	}
	removed := s.history[idx]
	s.history = slices.Clone(s.history[:idx])
	return removed, []Event{{Kind: EventHistoryTruncated, ChatID: s.currentID, MessageID: removed.ID}}, nil
}

// PushHidden appends a hidden user instruction. It is sent with the next
// request and never rendered or persisted.
func (s *Store) PushHidden(text string) (model.Message, error) {
	var msg model.Message
	err := s.mutate(0, func() (ev []Event, err error) {
		msg, err = s.pushHiddenLocked(text)
		return nil, err
	})
	return msg, err
}

func (s *Store) pushHiddenLocked(text string) (model.Message, error) {
	if strings.TrimSpace(text) == "" {
		return model.Message{}, ErrEmptyMessage
	}
	msg := model.NewHiddenUserMessage(text)
	s.history = append(s.history, msg)
	return msg.Clone(), nil
}

// StripHidden removes hidden messages from the working history.
func (s *Store) StripHidden() int {
	s.mu.Lock()
	before := len(s.history)
	s.history = slices.DeleteFunc(s.history, func(m model.Message) bool { return m.IsHidden })
	removed := before - len(s.history)
	s.mu.Unlock()
	return removed
}

// =============================================================================
// IN-FLIGHT MESSAGE
// =============================================================================

// Pending returns a copy of the in-flight message with the content
// streamed so far.
func (s *Store) Pending() (model.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return model.Message{}, false
	}
	msg := s.pending.msg.Clone()
	msg.Content = s.pending.content.String()
	return msg, true
}

// =============================================================================
// RECONCILE & PERSISTENCE
// =============================================================================

// Reconcile writes the working history, without hidden messages, back into
// the current chat and persists the chat list.
func (s *Store) Reconcile(ctx context.Context) error {
	s.mu.Lock()
	chatID := s.currentID
	if idx := s.indexLocked(chatID); idx >= 0 {
		s.chats[idx].Messages = model.VisibleMessages(s.history)
		if s.modelID != "" {
			s.chats[idx].Model = s.modelID
		}
	} else {
		chatID = 0
	}
	s.mu.Unlock()

	if chatID == 0 {
		return nil
	}
	if err := s.persist(ctx); err != nil {
		return err
	}
	s.subs.publish(Event{Kind: EventChatsChanged, ChatID: chatID})
	return nil
}

// persist saves a snapshot of the chat list. Saves are serialized so a
// slower earlier save never overwrites a later one.
func (s *Store) persist(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	chats := model.CloneChats(s.chats)
	s.mu.Unlock()

	if err := s.persister.SaveChats(ctx, chats); err != nil {
		s.logger.Error("persist_chats_failed", "error", err)
		return fmt.Errorf("save chats: %w", err)
	}
	return nil
}

// =============================================================================
// CHAT LIST
// =============================================================================

// Chats returns copies of every chat, newest first.
func (s *Store) Chats() []model.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.CloneChats(s.chats)
}

// SearchChats returns chats whose title contains query, newest first.
func (s *Store) SearchChats(query string) []model.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Chat
	for _, c := range s.chats {
		if c.MatchesQuery(query) {
			out = append(out, c.Clone())
		}
	}
	return out
}

// Chat returns a copy of chat id.
func (s *Store) Chat(id int64) (model.Chat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return model.Chat{}, false
	}
	return s.chats[idx].Clone(), true
}

// DeleteChat removes chat id. If it was current, the most recent remaining
// chat becomes current, or a new session starts when none remain. The
// current chat cannot be deleted while a cycle is active.
func (s *Store) DeleteChat(ctx context.Context, id int64) error {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return ErrChatNotFound
	}
	wasCurrent := id == s.currentID
	if wasCurrent && s.generating {
		s.mu.Unlock()
		return ErrGenerating
	}
	s.chats = slices.Delete(s.chats, idx, idx+1)
	events := []Event{{Kind: EventChatsChanged, ChatID: id}}
	if wasCurrent {
		if len(s.chats) > 0 {
			next := s.chats[0]
			s.currentID = next.ID
			s.history = model.CloneMessages(next.Messages)
			s.editingID = ""
			if next.Model != "" {
				s.modelID = next.Model
			}
		} else {
			s.resetSessionLocked()
		}
		events = append(events, Event{Kind: EventSessionChanged, ChatID: s.currentID})
	}
	s.mu.Unlock()

	err := s.persist(ctx)
	s.subs.publish(events...)
	return err
}

// RenameChat sets a chat's title.
func (s *Store) RenameChat(ctx context.Context, id int64, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return ErrChatNotFound
	}
	s.chats[idx].Title = title
	s.mu.Unlock()

	err := s.persist(ctx)
	s.subs.publish(Event{Kind: EventChatsChanged, ChatID: id})
	return err
}

// SetGeneratedTitle applies an automatically generated title, but only while
// the chat still has its default title. Reports whether the title changed.
func (s *Store) SetGeneratedTitle(ctx context.Context, id int64, title string) (bool, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return false, nil
	}
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 || !s.chats[idx].HasDefaultTitle() {
		s.mu.Unlock()
		return false, nil
	}
	s.chats[idx].Title = title
	s.mu.Unlock()

	err := s.persist(ctx)
	s.subs.publish(Event{Kind: EventChatsChanged, ChatID: id})
	return true, err
}

// ReplaceChats swaps in a chat list loaded from outside, such as after
// another process wrote the store. The current chat keeps its working
// history; it is refreshed from the new list only when idle.
func (s *Store) ReplaceChats(chats []model.Chat) {
	s.mu.Lock()
	next := sortChats(model.CloneChats(chats))
	for _, c := range next {
		s.ids.Observe(c.ID)
	}
	events := []Event{{Kind: EventChatsChanged}}

	if s.currentID != 0 {
		idx := slices.IndexFunc(next, func(c model.Chat) bool { return c.ID == s.currentID })
		switch {
		case idx < 0 && len(s.history) > 0:
			if cur := s.indexLocked(s.currentID); cur >= 0 {
				own := s.chats[cur].Clone()
				own.Messages = model.VisibleMessages(s.history)
				next = sortChats(append(next, own))
			}
		case idx < 0:
			s.resetSessionLocked()
			events = append(events, Event{Kind: EventSessionChanged})
		case !s.generating && s.editingID == "":
			s.history = model.CloneMessages(next[idx].Messages)
			events = append(events, Event{Kind: EventSessionChanged, ChatID: s.currentID})
		}
	}
	s.chats = next
	s.mu.Unlock()
	s.subs.publish(events...)
}

// =============================================================================
// READ ACCESS
// =============================================================================

// History returns a deep copy of the working history, hidden messages
// included.
func (s *Store) History() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.CloneMessages(s.history)
}

// Message returns a copy of message id from the working history.
func (s *Store) Message(id string) (model.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOfLocked(id)
	if idx < 0 {
		return model.Message{}, false
	}
	return s.history[idx].Clone(), true
}

// Snapshot is a read-only copy of what a renderer needs.
type Snapshot struct {
	ChatID     int64
	Title      string
	Model      string
	Messages   []model.Message // visible history followed by the pending message
	PendingID  string
	Generating bool
	EditingID  string
}

// Snapshot returns the current view. Hidden messages never appear in it.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ChatID:     s.currentID,
		Title:      model.DefaultChatTitle,
		Model:      s.modelID,
		Messages:   model.VisibleMessages(s.history),
		Generating: s.generating,
		EditingID:  s.editingID,
	}
	if idx := s.indexLocked(s.currentID); idx >= 0 {
		snap.Title = s.chats[idx].Title
	}
	if p := s.pending; p != nil {
		msg := p.msg.Clone()
		msg.Content = p.content.String()
		snap.Messages = append(snap.Messages, msg)
		snap.PendingID = msg.ID
	}
	return snap
}

// =============================================================================
// EDIT STATE
// =============================================================================

// BeginEdit marks message id as being edited and returns the id of any
// edit it replaced, whose unsaved changes are discarded.
func (s *Store) BeginEdit(id string) (previous string, err error) {
	s.mu.Lock()
	idx := s.indexOfLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return "", ErrMessageNotFound
	}
	if m := s.history[idx]; m.Role != model.RoleUser || m.IsHidden {
		s.mu.Unlock()
		return "", ErrNotEditable
	}
	previous = s.editingID
	s.editingID = id
	chatID := s.currentID
	s.mu.Unlock()
	s.subs.publish(Event{Kind: EventEditChanged, ChatID: chatID, MessageID: id})
	return previous, nil
}

// EndEdit clears the edit state. Reports whether an edit was active.
func (s *Store) EndEdit() bool {
	s.mu.Lock()
	id := s.editingID
	s.editingID = ""
	chatID := s.currentID
	s.mu.Unlock()
	if id == "" {
		return false
	}
	s.subs.publish(Event{Kind: EventEditChanged, ChatID: chatID, MessageID: id})
	return true
}

// Editing returns the id of the message being edited, or "".
func (s *Store) Editing() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editingID
}
