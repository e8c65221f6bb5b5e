// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attach

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/freechat-tui/internal/model"
)

// =============================================================================
// HELPERS
// =============================================================================

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func docxBytes(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>`+
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`+
		body+`</w:body></w:document>`)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func resolved(t *testing.T, m *Manager) []model.Attachment {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	files, err := m.Resolved(ctx)
	require.NoError(t, err)
	return files
}

// blockingSource hangs in Open until released.
type blockingSource struct {
	name    string
	release chan struct{}
}

func (b blockingSource) Name() string     { return b.name }
func (b blockingSource) MIMEType() string { return "text/plain" }
func (b blockingSource) Open() (io.ReadCloser, int64, error) {
	<-b.release
	return io.NopCloser(strings.NewReader("late")), 4, nil
}

// =============================================================================
// CLASSIFY
// =============================================================================

func TestClassify(t *testing.T) {
	tests := []struct {
		name, mime string
		want       model.FileType
	}{
		{"cat.png", "image/png", model.FileImage},
		{"report.docx", "", model.FileDocument},
		{"legacy.doc", "application/msword", model.FileDocument},
		{"main.py", "", model.FileText},
		{"README.me", "", model.FileText},
		{"notes", "text/plain", model.FileText},
		{"archive.zip", "application/zip", model.FileOther},
	}
	for _, tc := range tests {
		if got := Classify(tc.name, tc.mime); got != tc.want {
			t.Errorf("Classify(%q, %q) = %q, want %q", tc.name, tc.mime, got, tc.want)
		}
	}
}

// =============================================================================
// STAGING
// =============================================================================

func TestStage_TextAndFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n"), 0644))

	m := NewManager(Limits{})
	staged, err := m.Stage(context.Background(), FileSource(path), Snippet("snippet", "hello"))
	require.NoError(t, err)
	require.Len(t, staged, 2)
	assert.Equal(t, model.LoadPending, staged[0].LoadState)

	files := resolved(t, m)
	require.Len(t, files, 2)
	assert.Equal(t, "main.go", files[0].Name)
	assert.Equal(t, "package main\n", files[0].Content)
	assert.Equal(t, model.LoadReady, files[0].LoadState)
	assert.Equal(t, "snippet.txt", files[1].Name)
	assert.Equal(t, "hello", files[1].Content)
}

func TestStage_ImageDataURI(t *testing.T) {
	m := NewManager(Limits{MaxImageDimension: 16})
	_, err := m.Stage(context.Background(),
		BytesSource("small.png", "image/png", pngBytes(t, 8, 8)),
		BytesSource("big.png", "image/png", pngBytes(t, 64, 32)),
	)
	require.NoError(t, err)

	files := resolved(t, m)
	for _, f := range files {
		require.True(t, f.IsImage(), f.Name)
		require.True(t, strings.HasPrefix(f.Content, "data:image/png;base64,"))
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(files[1].Content, "data:image/png;base64,"))
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Width, "large image is fit into the max dimension")
	assert.Equal(t, 8, cfg.Height)

	raw, err = base64.StdEncoding.DecodeString(strings.TrimPrefix(files[0].Content, "data:image/png;base64,"))
	require.NoError(t, err)
	assert.Equal(t, pngBytes(t, 8, 8), raw, "small image is passed through")
}

func TestStage_Docx(t *testing.T) {
	body := `<w:p><w:r><w:t>First</w:t></w:r><w:r><w:tab/><w:t>para</w:t></w:r></w:p><w:p><w:r><w:t>Second</w:t></w:r></w:p>`
	m := NewManager(Limits{})
	_, err := m.Stage(context.Background(), BytesSource("r.docx", "", docxBytes(t, body)))
	require.NoError(t, err)

	files := resolved(t, m)
	assert.Equal(t, model.FileDocument, files[0].FileType)
	assert.Equal(t, "First\tpara\nSecond", files[0].Content)
}

func TestStage_FailuresAreIsolated(t *testing.T) {
	m := NewManager(Limits{MaxFileBytes: 8})
	_, err := m.Stage(context.Background(),
		BytesSource("data.bin", "application/octet-stream", []byte{1, 2}),
		BytesSource("old.doc", "application/msword", []byte("not a zip")),
		BytesSource("huge.txt", "text/plain", []byte("way more than eight bytes")),
		FileSource(filepath.Join(t.TempDir(), "missing.txt")),
		Snippet("ok", "fine"),
	)
	require.NoError(t, err)

	files := resolved(t, m)
	require.Len(t, files, 5)

	assert.Equal(t, "[Unsupported file type: data.bin]", files[0].Content)
	assert.Equal(t, "[Error reading file: old.doc]", files[1].Content)
	assert.Equal(t, "[Error reading file: huge.txt]", files[2].Content)
	assert.Contains(t, files[2].Error, "size limit")
	assert.Equal(t, "[Error reading file: missing.txt]", files[3].Content)
	for _, f := range files[:4] {
		assert.Equal(t, model.LoadError, f.LoadState, f.Name)
	}
	assert.Equal(t, model.LoadReady, files[4].LoadState)
	assert.Equal(t, "fine", files[4].Content)
}

func TestStage_LimitRejectsWholeBatch(t *testing.T) {
	m := NewManager(Limits{MaxFiles: 3})
	ctx := context.Background()

	_, err := m.Stage(ctx, Snippet("a", "1"), Snippet("b", "2"))
	require.NoError(t, err)

	_, err = m.Stage(ctx, Snippet("c", "3"), Snippet("d", "4"))
	require.True(t, errors.Is(err, ErrTooManyAttachments))
	var lerr *LimitError
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, 3, lerr.Max)
	assert.Equal(t, 2, m.Count(), "nothing from the rejected batch is staged")

	_, err = m.Stage(ctx, Snippet("c", "3"))
	require.NoError(t, err)
	assert.Equal(t, 3, m.Count())
}

func TestStage_DefaultLimitIsTen(t *testing.T) {
	m := NewManager(Limits{})
	srcs := make([]Source, 11)
	for i := range srcs {
		srcs[i] = Snippet("s", "x")
	}
	_, err := m.Stage(context.Background(), srcs...)
	assert.True(t, errors.Is(err, ErrTooManyAttachments))
	_, err = m.Stage(context.Background(), srcs[:10]...)
	assert.NoError(t, err)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestRemove_DropsInFlightLoad(t *testing.T) {
	m := NewManager(Limits{})
	release := make(chan struct{})
	staged, err := m.Stage(context.Background(), blockingSource{name: "slow.txt", release: release})
	require.NoError(t, err)
	require.True(t, m.Pending())

	require.True(t, m.Remove(staged[0].ID))
	close(release)
	m.Wait()

	assert.Empty(t, m.Staged())
	assert.False(t, m.Remove(staged[0].ID))
}

func TestResolved_WaitsForPending(t *testing.T) {
	m := NewManager(Limits{})
	release := make(chan struct{})
	_, err := m.Stage(context.Background(), blockingSource{name: "slow.txt", release: release}, Snippet("fast", "x"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	_, err = m.Resolved(ctx)
	cancel()
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	files := resolved(t, m)
	assert.Equal(t, "late", files[0].Content)
}

func TestOnChange_ReportsTransitions(t *testing.T) {
	m := NewManager(Limits{})
	var (
		mu     sync.Mutex
		states []model.LoadState
	)
	m.OnChange(func(a model.Attachment) {
		mu.Lock()
		states = append(states, a.LoadState)
		mu.Unlock()
	})

	_, err := m.Stage(context.Background(), Snippet("a", "1"))
	require.NoError(t, err)
	resolved(t, m)
	m.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []model.LoadState{model.LoadPending, model.LoadReady}, states)
}

func TestReplaceAndClear(t *testing.T) {
	m := NewManager(Limits{})
	files := []model.Attachment{{ID: "f1", Name: "a.txt", LoadState: model.LoadReady, Content: "a"}}
	m.Replace(files)

	files[0].Content = "mutated"
	assert.Equal(t, "a", m.Staged()[0].Content, "Replace copies its input")

	m.Clear()
	assert.Zero(t, m.Count())
}

func TestDiscard_KeepsLaterStaging(t *testing.T) {
	m := NewManager(Limits{})
	ctx := context.Background()

	_, err := m.Stage(ctx, Snippet("sent", "one"))
	require.NoError(t, err)
	sent := resolved(t, m)

	_, err = m.Stage(ctx, Snippet("late", "two"))
	require.NoError(t, err)

	m.Discard(sent)
	left := m.Staged()
	require.Len(t, left, 1)
	assert.Equal(t, "late.txt", left[0].Name)

	m.Discard(nil)
	assert.Equal(t, 1, m.Count())
	m.Wait()
}

// =============================================================================
// DECODING
// =============================================================================

func TestDecodeText_BOMs(t *testing.T) {
	utf16le := []byte{0xFF, 0xFE, 'h', 0, 'i', 0}
	got, err := decodeText(utf16le)
	require.NoError(t, err)
	assert.Equal(t, "hi", got)

	utf8bom := append([]byte{0xEF, 0xBB, 0xBF}, []byte("привет")...)
	got, err = decodeText(utf8bom)
	require.NoError(t, err)
	assert.Equal(t, "привет", got)

	got, err = decodeText([]byte{'a', 0xFF, 'b'})
	require.NoError(t, err)
	assert.Equal(t, "a�b", got)
}
