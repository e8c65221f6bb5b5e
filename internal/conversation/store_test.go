// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/freechat-tui/internal/model"
)

type recordingPersister struct {
	mu    sync.Mutex
	saves [][]model.Chat
	err   error
}

func (p *recordingPersister) SaveChats(_ context.Context, chats []model.Chat) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saves = append(p.saves, chats)
	return p.err
}

func (p *recordingPersister) last() []model.Chat {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.saves) == 0 {
		return nil
	}
	return p.saves[len(p.saves)-1]
}

func newTestStore(t *testing.T, chats ...model.Chat) (*Store, *recordingPersister) {
	t.Helper()
	p := &recordingPersister{}
	return NewStore(chats, WithPersister(p), WithModel("gpt-oss")), p
}

func textFile(id, name string) model.Attachment {
	return model.Attachment{ID: id, Name: name, FileType: model.FileText, Content: "body", LoadState: model.LoadReady}
}

// reply runs a trivial cycle that commits an assistant message.
func reply(t *testing.T, s *Store, text string) {
	t.Helper()
	cycle, err := s.BeginCycle(context.Background())
	require.NoError(t, err)
	defer cycle.Finish()
	_, err = cycle.StartPending("gpt-oss")
	require.NoError(t, err)
	require.NoError(t, cycle.AppendPending(text))
	msg, ok := cycle.TakePending()
	require.True(t, ok)
	require.NoError(t, cycle.CommitAssistantMessage(msg))
	require.NoError(t, s.Reconcile(context.Background()))
}

func TestAppendEmptyIsNoOp(t *testing.T) {
	s, p := newTestStore(t)
	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := s.AppendUserMessage(text, nil)
		assert.ErrorIs(t, err, ErrEmptyMessage)
	}
	assert.Empty(t, s.History())
	assert.Empty(t, s.Chats())
	assert.Zero(t, s.CurrentChatID())
	assert.Empty(t, p.saves)
}

func TestAppendFilesOnly(t *testing.T) {
	s, _ := newTestStore(t)
	msg, err := s.AppendUserMessage("", []model.Attachment{textFile("f1", "a.txt")})
	require.NoError(t, err)
	assert.Equal(t, []string{"f1"}, msg.FileIDs())
}

func TestChatCreatedLazily(t *testing.T) {
	s, p := newTestStore(t)
	require.NoError(t, s.StartNewSession())
	assert.Empty(t, s.Chats())
	require.NoError(t, s.Reconcile(context.Background()))
	assert.Empty(t, p.saves)

	_, err := s.AppendUserMessage("Hello", nil)
	require.NoError(t, err)
	chats := s.Chats()
	require.Len(t, chats, 1)
	assert.Equal(t, model.DefaultChatTitle, chats[0].Title)
	assert.Equal(t, "gpt-oss", chats[0].Model)
	assert.Equal(t, chats[0].ID, s.CurrentChatID())
}

func TestSendScenario(t *testing.T) {
	s, p := newTestStore(t)
	var started, finished int
	s.Subscribe(func(ev Event) {
		switch ev.Kind {
		case EventGenerationStarted:
			started++
		case EventGenerationFinished:
			finished++
		}
	})

	_, err := s.AppendUserMessage("Hello", nil)
	require.NoError(t, err)
	reply(t, s, "Hi there")

	hist := s.History()
	require.Len(t, hist, 2)
	assert.Equal(t, model.RoleUser, hist[0].Role)
	assert.Equal(t, model.RoleAssistant, hist[1].Role)
	assert.Equal(t, "Hi there", hist[1].Content)
	assert.Equal(t, model.StatusComplete, hist[1].Status)
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, finished)
	assert.False(t, s.IsGenerating())

	saved := p.last()
	require.Len(t, saved, 1)
	assert.Len(t, saved[0].Messages, 2)
}

func TestAttachmentsDeepCopiedOnSend(t *testing.T) {
	s, _ := newTestStore(t)
	files := []model.Attachment{textFile("f1", "a.txt")}
	_, err := s.AppendUserMessage("see file", files)
	require.NoError(t, err)

	files[0].Content = "mutated after send"
	hist := s.History()
	assert.Equal(t, "body", hist[0].Files[0].Content)
}

func TestSecondCycleRejected(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.AppendUserMessage("Hello", nil)
	require.NoError(t, err)

	cycle, err := s.BeginCycle(context.Background())
	require.NoError(t, err)
	_, err = cycle.StartPending("gpt-oss")
	require.NoError(t, err)

	_, err = s.BeginCycle(context.Background())
	assert.ErrorIs(t, err, ErrGenerating)
	_, err = s.AppendUserMessage("again", nil)
	assert.ErrorIs(t, err, ErrGenerating)
	assert.ErrorIs(t, s.LoadSession(123), ErrGenerating)
	assert.ErrorIs(t, s.StartNewSession(), ErrGenerating)

	snap := s.Snapshot()
	assistants := 0
	for _, m := range snap.Messages {
		if m.Role == model.RoleAssistant {
			assistants++
		}
	}
	assert.Equal(t, 1, assistants)

	msg, _ := cycle.TakePending()
	require.NoError(t, cycle.CommitAssistantMessage(msg))
	assert.ErrorIs(t, cycle.CommitAssistantMessage(msg), ErrAlreadyCommitted)
	cycle.Finish()
	cycle.Finish()
	assert.ErrorIs(t, cycle.CommitAssistantMessage(model.NewAssistantMessage("gpt-oss")), ErrCycleFinished)
	assert.Len(t, s.History(), 2)

	next, err := s.BeginCycle(context.Background())
	require.NoError(t, err)
	next.Finish()
}

func TestCancelCancelsCycleContext(t *testing.T) {
	s, _ := newTestStore(t)
	assert.False(t, s.Cancel())

	cycle, err := s.BeginCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Cancel())
	<-cycle.Context().Done()
	assert.True(t, cycle.Cancelled())
	assert.True(t, s.IsGenerating(), "flag clears only in Finish")
	cycle.Finish()
	assert.False(t, s.IsGenerating())
}

func TestFinishedCycleCannotMutate(t *testing.T) {
	s, _ := newTestStore(t)
	cycle, err := s.BeginCycle(context.Background())
	require.NoError(t, err)
	cycle.Finish()

	_, err = cycle.AppendUserMessage("late", nil)
	assert.ErrorIs(t, err, ErrCycleFinished)
	assert.Empty(t, s.History())
}

func TestCycleOwnerMutates(t *testing.T) {
	s, _ := newTestStore(t)
	cycle, err := s.BeginCycle(context.Background())
	require.NoError(t, err)
	defer cycle.Finish()

	_, err = cycle.AppendUserMessage("inside", nil)
	require.NoError(t, err)
	hidden, err := cycle.PushHidden("steer")
	require.NoError(t, err)
	assert.True(t, hidden.IsHidden)
	assert.Len(t, s.History(), 2)
}

func TestLoadSessionUnknownFallsBack(t *testing.T) {
	chat := model.NewChat(100, "deepseek")
	chat.Messages = []model.Message{model.NewUserMessage("old", nil)}
	s, _ := newTestStore(t, chat)

	require.NoError(t, s.LoadSession(100))
	assert.Equal(t, int64(100), s.CurrentChatID())
	assert.Equal(t, "deepseek", s.Model())
	assert.Len(t, s.History(), 1)

	require.NoError(t, s.LoadSession(999))
	assert.Zero(t, s.CurrentChatID())
	assert.Empty(t, s.History())
}

func TestLoadSessionIsIsolatedCopy(t *testing.T) {
	chat := model.NewChat(100, "gpt-oss")
	chat.Messages = []model.Message{model.NewUserMessage("old", nil)}
	s, _ := newTestStore(t, chat)
	require.NoError(t, s.LoadSession(100))

	_, err := s.AppendUserMessage("new", nil)
	require.NoError(t, err)
	stored, ok := s.Chat(100)
	require.True(t, ok)
	assert.Len(t, stored.Messages, 1, "chat changes only on Reconcile")

	require.NoError(t, s.Reconcile(context.Background()))
	stored, _ = s.Chat(100)
	assert.Len(t, stored.Messages, 2)
}

func TestForkAtTruncates(t *testing.T) {
	s, _ := newTestStore(t)
	first, err := s.AppendUserMessage("one", nil)
	require.NoError(t, err)
	reply(t, s, "r1")
	_, err = s.AppendUserMessage("two", nil)
	require.NoError(t, err)
	reply(t, s, "r2")
	require.Len(t, s.History(), 4)

	edited, err := s.ForkAt(first.ID, "one, edited", []model.Attachment{textFile("f9", "x.txt")})
	require.NoError(t, err)
	assert.Equal(t, first.ID, edited.ID)

	hist := s.History()
	require.Len(t, hist, 1)
	assert.Equal(t, "one, edited", hist[0].OriginalContent)
	assert.Equal(t, []string{"f9"}, hist[0].FileIDs())
}

func TestForkAtErrors(t *testing.T) {
	s, _ := newTestStore(t)
	user, err := s.AppendUserMessage("one", nil)
	require.NoError(t, err)
	reply(t, s, "r1")
	asst := s.History()[1]

	_, err = s.ForkAt("missing", "x", nil)
	assert.ErrorIs(t, err, ErrMessageNotFound)
	_, err = s.ForkAt(asst.ID, "x", nil)
	assert.ErrorIs(t, err, ErrNotEditable)
	_, err = s.ForkAt(user.ID, "  ", nil)
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Len(t, s.History(), 2)
}

func TestRemoveLastAssistant(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.RemoveLastAssistant()
	assert.ErrorIs(t, err, ErrNoExchange)

	_, err = s.AppendUserMessage("one", nil)
	require.NoError(t, err)
	_, err = s.RemoveLastAssistant()
	assert.ErrorIs(t, err, ErrNoExchange)

	reply(t, s, "r1")
	removed, err := s.RemoveLastAssistant()
	require.NoError(t, err)
	assert.Equal(t, "r1", removed.Content)
	assert.Len(t, s.History(), 1)
}

func TestHiddenMessagesNeverPersistedOrShown(t *testing.T) {
	s, p := newTestStore(t)
	_, err := s.AppendUserMessage("one", nil)
	require.NoError(t, err)
	_, err = s.PushHidden("be brief")
	require.NoError(t, err)

	assert.Len(t, s.History(), 2)
	for _, m := range s.Snapshot().Messages {
		assert.False(t, m.IsHidden)
	}
	require.NoError(t, s.Reconcile(context.Background()))
	for _, m := range p.last()[0].Messages {
		assert.False(t, m.IsHidden)
	}

	assert.Equal(t, 1, s.StripHidden())
	assert.Len(t, s.History(), 1)
}

func TestFinishedCycleCannotWrite(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.AppendUserMessage("one", nil)
	require.NoError(t, err)

	stale, err := s.BeginCycle(context.Background())
	require.NoError(t, err)
	stale.Finish()
	current, err := s.BeginCycle(context.Background())
	require.NoError(t, err)
	defer current.Finish()

	_, err = stale.StartPending("gpt-oss")
	assert.ErrorIs(t, err, ErrCycleFinished)
	assert.ErrorIs(t, stale.AppendPending("x"), ErrCycleFinished)
	_, ok := stale.TakePending()
	assert.False(t, ok)
	assert.ErrorIs(t, stale.CommitAssistantMessage(model.NewAssistantMessage("gpt-oss")), ErrCycleFinished)
	assert.Len(t, s.History(), 1)

	_, err = current.StartPending("gpt-oss")
	require.NoError(t, err)
	require.NoError(t, current.AppendPending("ok"))
	msg, ok := current.TakePending()
	require.True(t, ok)
	assert.Equal(t, "ok", msg.Content)
	assert.ErrorIs(t, current.CommitAssistantMessage(model.NewUserMessage("no", nil)), ErrNotAssistant)
}

func TestSnapshotIncludesPending(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.AppendUserMessage("one", nil)
	require.NoError(t, err)
	cycle, err := s.BeginCycle(context.Background())
	require.NoError(t, err)
	defer cycle.Finish()

	pending, err := cycle.StartPending("gpt-oss")
	require.NoError(t, err)
	require.NoError(t, cycle.AppendPending("par"))
	require.NoError(t, cycle.AppendPending("tial"))

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, pending.ID, snap.PendingID)
	assert.Equal(t, "partial", snap.Messages[1].Content)
	assert.True(t, snap.Messages[1].IsStreaming())
	assert.True(t, snap.Generating)

	inflight, ok := s.Pending()
	require.True(t, ok)
	assert.Equal(t, "partial", inflight.Content)

	snap.Messages[0].OriginalContent = "tampered"
	assert.Equal(t, "one", s.History()[0].OriginalContent)
}

func TestDeleteChatCascade(t *testing.T) {
	older := model.NewChat(100, "gpt-oss")
	newer := model.NewChat(200, "qwen")
	s, p := newTestStore(t, older, newer)

	require.NoError(t, s.LoadSession(200))
	require.NoError(t, s.DeleteChat(context.Background(), 200))
	assert.Equal(t, int64(100), s.CurrentChatID())
	require.Len(t, p.last(), 1)

	require.NoError(t, s.DeleteChat(context.Background(), 100))
	assert.Zero(t, s.CurrentChatID())
	assert.Empty(t, s.Chats())

	assert.ErrorIs(t, s.DeleteChat(context.Background(), 100), ErrChatNotFound)
}

func TestDeleteCurrentWhileGenerating(t *testing.T) {
	s, _ := newTestStore(t, model.NewChat(100, "gpt-oss"))
	require.NoError(t, s.LoadSession(100))
	cycle, err := s.BeginCycle(context.Background())
	require.NoError(t, err)
	defer cycle.Finish()
	assert.ErrorIs(t, s.DeleteChat(context.Background(), 100), ErrGenerating)
}

func TestChatsNewestFirst(t *testing.T) {
	s, _ := newTestStore(t, model.NewChat(100, "a"), model.NewChat(300, "c"), model.NewChat(200, "b"))
	var ids []int64
	for _, c := range s.Chats() {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []int64{300, 200, 100}, ids)

	_, err := s.AppendUserMessage("new", nil)
	require.NoError(t, err)
	assert.Greater(t, s.Chats()[0].ID, int64(300))
}

func TestRenameAndGeneratedTitle(t *testing.T) {
	s, _ := newTestStore(t, model.NewChat(100, "gpt-oss"))
	ctx := context.Background()

	changed, err := s.SetGeneratedTitle(ctx, 100, "Trip Planning Help")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.SetGeneratedTitle(ctx, 100, "Something Else")
	require.NoError(t, err)
	assert.False(t, changed, "only default titles are replaced")

	require.NoError(t, s.RenameChat(ctx, 100, "  Mine  "))
	chat, _ := s.Chat(100)
	assert.Equal(t, "Mine", chat.Title)

	assert.ErrorIs(t, s.RenameChat(ctx, 100, " "), ErrEmptyTitle)
	assert.ErrorIs(t, s.RenameChat(ctx, 5, "x"), ErrChatNotFound)
}

func TestSearchChats(t *testing.T) {
	a := model.NewChat(100, "m")
	a.Title = "Go concurrency"
	b := model.NewChat(200, "m")
	b.Title = "Pasta recipes"
	s, _ := newTestStore(t, a, b)

	got := s.SearchChats("GO")
	require.Len(t, got, 1)
	assert.Equal(t, int64(100), got[0].ID)
	assert.Len(t, s.SearchChats(""), 2)
}

func TestEditState(t *testing.T) {
	s, _ := newTestStore(t)
	one, err := s.AppendUserMessage("one", nil)
	require.NoError(t, err)
	reply(t, s, "r1")
	two, err := s.AppendUserMessage("two", nil)
	require.NoError(t, err)

	prev, err := s.BeginEdit(one.ID)
	require.NoError(t, err)
	assert.Empty(t, prev)

	prev, err = s.BeginEdit(two.ID)
	require.NoError(t, err)
	assert.Equal(t, one.ID, prev)
	assert.Equal(t, two.ID, s.Editing())

	_, err = s.BeginEdit(s.History()[1].ID)
	assert.ErrorIs(t, err, ErrNotEditable)

	assert.True(t, s.EndEdit())
	assert.False(t, s.EndEdit())
	assert.Empty(t, s.Editing())
}

func TestReconcilePersistError(t *testing.T) {
	s, p := newTestStore(t)
	p.err = errors.New("disk full")
	_, err := s.AppendUserMessage("one", nil)
	require.NoError(t, err)
	err = s.Reconcile(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, s.History(), 1)
}

func TestSelectModelRecordedOnChat(t *testing.T) {
	s, p := newTestStore(t)
	_, err := s.AppendUserMessage("one", nil)
	require.NoError(t, err)
	s.SelectModel("qwen")
	require.NoError(t, s.Reconcile(context.Background()))
	assert.Equal(t, "qwen", p.last()[0].Model)
}

func TestReplaceChatsKeepsUnsavedCurrent(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.AppendUserMessage("local only", nil)
	require.NoError(t, err)
	current := s.CurrentChatID()

	s.ReplaceChats([]model.Chat{model.NewChat(50, "m")})
	chats := s.Chats()
	require.Len(t, chats, 2)
	assert.Equal(t, current, chats[0].ID)
	assert.Equal(t, current, s.CurrentChatID())
}

func TestReplaceChatsRefreshesIdleCurrent(t *testing.T) {
	chat := model.NewChat(100, "m")
	s, _ := newTestStore(t, chat)
	require.NoError(t, s.LoadSession(100))

	updated := chat.Clone()
	updated.Messages = []model.Message{model.NewUserMessage("from elsewhere", nil)}
	s.ReplaceChats([]model.Chat{updated})
	hist := s.History()
	require.Len(t, hist, 1)
	assert.Equal(t, "from elsewhere", hist[0].OriginalContent)
}

func TestUnsubscribe(t *testing.T) {
	s, _ := newTestStore(t)
	var n int
	unsub := s.Subscribe(func(Event) { n++ })
	require.NoError(t, s.StartNewSession())
	unsub()
	require.NoError(t, s.StartNewSession())
	assert.Equal(t, 1, n)
}
