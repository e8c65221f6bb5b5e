// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"testing"
	"time"
)

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestMessage_IsMeaningful(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want bool
	}{
		{"empty user", NewUserMessage("", nil), false},
		{"whitespace user", NewUserMessage("  \n\t", nil), false},
		{"text user", NewUserMessage("hi", nil), true},
		{"files only", NewUserMessage("", []Attachment{{ID: "f1", Name: "a.txt"}}), true},
		{"empty assistant", NewAssistantMessage("gpt-oss"), true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.msg.IsMeaningful(); got != tc.want {
				t.Errorf("IsMeaningful() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMessage_CloneIsDeep(t *testing.T) {
	files := []Attachment{{ID: "f1", Name: "a.txt", Content: "one"}}
	msg := NewUserMessage("hi", files)

	// NewUserMessage copies its input.
	files[0].Content = "mutated"
	if msg.Files[0].Content != "one" {
		t.Fatalf("NewUserMessage shared the caller's slice")
	}

	clone := msg.Clone()
	clone.Files[0].Content = "changed"
	if msg.Files[0].Content != "one" {
		t.Errorf("Clone shared the Files backing array")
	}
}

func TestMessage_Text(t *testing.T) {
	user := NewUserMessage("question", nil)
	if user.Text() != "question" {
		t.Errorf("user Text() = %q", user.Text())
	}

	asst := NewAssistantMessage("m")
	asst.Content = "answer"
	if asst.Text() != "answer" {
		t.Errorf("assistant Text() = %q", asst.Text())
	}
	if !asst.IsStreaming() {
		t.Errorf("new assistant message should be streaming")
	}
}

func TestMessage_Preview(t *testing.T) {
	msg := NewUserMessage("hello\n   world, this is long", nil)
	if got := msg.Preview(100); got != "hello world, this is long" {
		t.Errorf("Preview collapsed whitespace incorrectly: %q", got)
	}
	if got := msg.Preview(8); got != "hello..." {
		t.Errorf("Preview(8) = %q", got)
	}
}

func TestVisibleMessages_DropsHidden(t *testing.T) {
	msgs := []Message{
		NewUserMessage("a", nil),
		NewHiddenUserMessage("steer"),
		NewAssistantMessage("m"),
	}
	got := VisibleMessages(msgs)
	if len(got) != 2 {
		t.Fatalf("VisibleMessages len = %d, want 2", len(got))
	}
	for _, m := range got {
		if m.IsHidden {
			t.Errorf("hidden message leaked: %+v", m)
		}
	}
}

func TestNewMessageID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewMessageID()
		if !strings.HasPrefix(id, "msg_") {
			t.Fatalf("unexpected id format %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

// =============================================================================
// ATTACHMENT TESTS
// =============================================================================

func TestSameAttachmentSet(t *testing.T) {
	a := []Attachment{{ID: "1"}, {ID: "2"}}
	tests := []struct {
		name string
		b    []Attachment
		want bool
	}{
		{"identical", []Attachment{{ID: "1"}, {ID: "2"}}, true},
		{"reordered", []Attachment{{ID: "2"}, {ID: "1"}}, false},
		{"shorter", []Attachment{{ID: "1"}}, false},
		{"empty", nil, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := SameAttachmentSet(a, tc.b); got != tc.want {
				t.Errorf("SameAttachmentSet = %v, want %v", got, tc.want)
			}
		})
	}
	if !SameAttachmentSet(nil, []Attachment{}) {
		t.Errorf("nil and empty should compare equal")
	}
}

func TestAttachment_IsImage(t *testing.T) {
	img := Attachment{FileType: FileImage, Content: "data:image/png;base64,AAAA"}
	if !img.IsImage() {
		t.Errorf("data URI image should be an image")
	}
	broken := Attachment{FileType: FileImage, Content: "[Error reading file: x.png]", LoadState: LoadError}
	if broken.IsImage() {
		t.Errorf("failed image should not be sent as an image")
	}
}

// =============================================================================
// CHAT TESTS
// =============================================================================

func TestChat_DefaultsAndQuery(t *testing.T) {
	c := NewChat(1700000000000, "gpt-oss")
	if !c.HasDefaultTitle() {
		t.Errorf("new chat should have default title, got %q", c.Title)
	}
	if !c.CreatedAt.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("CreatedAt = %v", c.CreatedAt)
	}

	c.Title = "Go Channels Explained"
	if !c.MatchesQuery("channels") {
		t.Errorf("query should match case-insensitively")
	}
	if c.MatchesQuery("rust") {
		t.Errorf("query should not match")
	}
	if !c.MatchesQuery("  ") {
		t.Errorf("blank query matches everything")
	}
}

func TestChat_ExchangeCountIgnoresHidden(t *testing.T) {
	c := NewChat(1, "m")
	c.Messages = []Message{
		NewUserMessage("q", nil),
		NewHiddenUserMessage("steer"),
		NewAssistantMessage("m"),
	}
	u, a := c.ExchangeCount()
	if u != 1 || a != 1 {
		t.Errorf("ExchangeCount = (%d, %d), want (1, 1)", u, a)
	}
}

func TestChatIDs_StrictlyIncreasing(t *testing.T) {
	fixed := time.UnixMilli(5000)
	g := &ChatIDs{now: func() time.Time { return fixed }}
	a, b := g.Next(), g.Next()
	if a != 5000 || b != 5001 {
		t.Errorf("Next() = %d, %d; want 5000, 5001", a, b)
	}

	g.Observe(9000)
	if c := g.Next(); c != 9001 {
		t.Errorf("Next after Observe = %d, want 9001", c)
	}
}

// =============================================================================
// SETTINGS TESTS
// =============================================================================

func TestSettings_Normalize(t *testing.T) {
	s := Settings{APIKeys: map[string]string{SlotQwen: "k", "extra": "x"}}.Normalize()

	if s.Theme != ThemeSystem || s.UserName != DefaultUserName || s.AccentColor != DefaultAccentColor {
		t.Errorf("defaults not applied: %+v", s)
	}
	for _, slot := range CredentialSlots {
		if _, ok := s.APIKeys[slot]; !ok {
			t.Errorf("slot %q missing after Normalize", slot)
		}
	}
	if s.APIKeys[SlotQwen] != "k" || s.APIKeys["extra"] != "x" {
		t.Errorf("existing keys lost: %v", s.APIKeys)
	}
}

func TestSettings_DisplayName(t *testing.T) {
	if DefaultSettings().DisplayName() != "" {
		t.Errorf("default user name should not count as a display name")
	}
	s := DefaultSettings()
	s.UserName = "  Ada "
	if s.DisplayName() != "Ada" {
		t.Errorf("DisplayName() = %q", s.DisplayName())
	}
}

func TestCustomModel_Descriptor(t *testing.T) {
	d := CustomModel{ID: "custom-1", Name: "llama-3-70b", APIKey: "sk"}.Descriptor()
	if d.Endpoint != DefaultEndpoint {
		t.Errorf("Endpoint = %q, want default", d.Endpoint)
	}
	if d.ModelIdentifier != "llama-3-70b" || d.Credential != "sk" || d.BuiltIn {
		t.Errorf("unexpected descriptor %+v", d)
	}
}

func TestMessage_SplitMarker(t *testing.T) {
	tests := []struct {
		name       string
		msg        Message
		wantBody   string
		wantMarker string
	}{
		{"complete", Message{Role: RoleAssistant, Content: "all good"}, "all good", ""},
		{"cancelled", Message{Role: RoleAssistant, Status: StatusCancelled, Content: "part" + CancelMarker}, "part", CancelMarker},
		{"failed", Message{Role: RoleAssistant, Status: StatusFailed, Content: "part" + ErrorMarker("429")}, "part", ErrorMarker("429")},
		{"unmarked cancel", Message{Role: RoleAssistant, Status: StatusCancelled, Content: "part"}, "part", ""},
	}
	for _, tt := range tests {
		body, marker := tt.msg.SplitMarker()
		if body != tt.wantBody || marker != tt.wantMarker {
			t.Errorf("%s: SplitMarker() = (%q, %q), want (%q, %q)", tt.name, body, marker, tt.wantBody, tt.wantMarker)
		}
	}
}
