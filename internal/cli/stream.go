// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/jeranaias/freechat-tui/internal/conversation"
	"github.com/jeranaias/freechat-tui/internal/model"
)

// streamWriter copies the in-flight reply to w as it grows.
type streamWriter struct {
	store *conversation.Store
	w     io.Writer

	mu      sync.Mutex
	id      string
	written int
}

// followStream writes every streamed delta to w until the returned stop
// function is called.
func followStream(store *conversation.Store, w io.Writer) (stop func()) {
	sw := &streamWriter{store: store, w: w}
	return store.Subscribe(sw.onEvent)
}

func (sw *streamWriter) onEvent(ev conversation.Event) {
	if ev.Kind != conversation.EventMessageAppended && ev.Kind != conversation.EventMessageUpdated {
		return
	}
	msg, ok := sw.store.Pending()
	if !ok {
		return
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()
	if msg.ID != sw.id {
		sw.id, sw.written = msg.ID, 0
	}
	if len(msg.Content) > sw.written {
		_, _ = io.WriteString(sw.w, msg.Content[sw.written:])
		sw.written = len(msg.Content)
	}
}

// writeOutcome finishes a streamed reply: the trailing newline and, for a
// reply that did not complete, its marker.
func writeOutcome(w io.Writer, reply model.Message) {
	fmt.Fprintln(w)
	switch reply.Status {
	case model.StatusCancelled:
		fmt.Fprintln(w, warningStyle.Render("(Generation stopped)"))
	case model.StatusFailed:
		fmt.Fprintln(w, errorStyle.Render("Error: "+reply.Error))
	}
}
