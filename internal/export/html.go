// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/jeranaias/freechat-tui/internal/model"
	"github.com/jeranaias/freechat-tui/internal/render"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports chats as standalone pages with embedded CSS.
type HTMLExporter struct {
	renderer *render.HTMLRenderer
	theme    string
}

// NewHTMLExporter creates an HTML exporter using the dark page theme.
func NewHTMLExporter() *HTMLExporter {
	return &HTMLExporter{renderer: render.NewHTMLRenderer(), theme: "dark"}
}

// WithTheme returns a copy using "light" or "dark".
func (e *HTMLExporter) WithTheme(theme string) *HTMLExporter {
	c := *e
	if theme == "light" {
		c.theme = "light"
	} else {
		c.theme = "dark"
	}
	return &c
}

// Export implements Exporter.
func (e *HTMLExporter) Export(chat model.Chat) ([]byte, error) {
	msgs := visible(chat)
	if len(msgs) == 0 {
		return nil, ErrEmptyChat
	}
	var body strings.Builder
	fmt.Fprintf(&body, "<header class=\"header\"><h1>%s</h1><p class=\"metadata\">%s · %d messages</p></header>\n",
		html.EscapeString(chat.Title), html.EscapeString(chat.Model), len(msgs))
	body.WriteString("<main class=\"conversation\">\n")
	for _, m := range msgs {
		out, err := e.renderer.RenderMessage(m)
		if err != nil {
			return nil, err
		}
		body.WriteString(out)
		body.WriteString("\n")
	}
	body.WriteString("</main>\n")
	return []byte(e.page(chat.Title, body.String())), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string { return ".html" }

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string { return "text/html" }

// MessageHTML renders one assistant reply as a standalone page.
func MessageHTML(msg model.Message) ([]byte, error) {
	return NewHTMLExporter().Message(msg)
}

// Message renders one assistant reply as a standalone page.
func (e *HTMLExporter) Message(msg model.Message) ([]byte, error) {
	if msg.Role != model.RoleAssistant {
		return nil, ErrNotAssistant
	}
	out, err := e.renderer.RenderMessage(msg)
	if err != nil {
		return nil, err
	}
	title := "Response"
	if msg.Model != "" {
		title += " · " + msg.Model
	}
	return []byte(e.page(title, "<main class=\"conversation\">\n"+out+"\n</main>\n")), nil
}

func (e *HTMLExporter) page(title, body string) string {
	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	sb.WriteString("<meta charset=\"UTF-8\">\n")
	sb.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	fmt.Fprintf(&sb, "<title>%s</title>\n", html.EscapeString(title))
	sb.WriteString("<meta name=\"generator\" content=\"freechat\">\n")
	fmt.Fprintf(&sb, "<meta name=\"date\" content=\"%s\">\n", time.Now().Format(time.RFC3339))
	sb.WriteString(stylesheet)
	sb.WriteString("</head>\n")
	fmt.Fprintf(&sb, "<body class=\"%s-theme\">\n<div class=\"container\">\n", e.theme)
	sb.WriteString(body)
	sb.WriteString("</div>\n")
	sb.WriteString(script)
	sb.WriteString("</body>\n</html>\n")
	return sb.String()
}

// =============================================================================
// EMBEDDED CSS AND JAVASCRIPT
// =============================================================================

const stylesheet = `<style>
* { margin: 0; padding: 0; box-sizing: border-box; }
:root {
  --font-sans: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Arial, sans-serif;
  --font-mono: "SF Mono", "Fira Code", "Source Code Pro", monospace;
}
.dark-theme {
  --bg-primary: #1a1b26; --bg-secondary: #24283b; --bg-tertiary: #414868;
  --text-primary: #c0caf5; --text-muted: #565f89; --border-color: #414868;
  --user-bg: #1f2335; --code-bg: #1a1b26; --accent: #7aa2f7; --error: #f7768e;
}
.light-theme {
  --bg-primary: #ffffff; --bg-secondary: #f7f8fa; --bg-tertiary: #e1e4e8;
  --text-primary: #24292e; --text-muted: #6a737d; --border-color: #e1e4e8;
  --user-bg: #f6f8fa; --code-bg: #f6f8fa; --accent: #4a5fc1; --error: #d73a49;
}
body { font-family: var(--font-sans); line-height: 1.6; color: var(--text-primary); background: var(--bg-primary); padding: 20px; }
.container { max-width: 900px; margin: 0 auto; background: var(--bg-secondary); border-radius: 12px; overflow: hidden; }
.header { padding: 24px 32px; background: var(--bg-tertiary); }
.metadata { color: var(--text-muted); font-size: 14px; }
.conversation { padding: 24px 32px; }
.message { margin-bottom: 24px; padding: 16px; border-radius: 8px; }
.message.user { background: var(--user-bg); border-left: 3px solid var(--accent); }
.attachments { list-style: none; font-size: 13px; color: var(--text-muted); margin-bottom: 8px; }
.content p { margin-bottom: 12px; }
.marker.error { color: var(--error); font-weight: 600; }
.marker.cancelled { color: var(--text-muted); font-style: italic; }
pre { background: var(--code-bg); border: 1px solid var(--border-color); border-radius: 6px; margin: 12px 0; overflow: hidden; }
.code-block-header { display: flex; justify-content: space-between; padding: 6px 12px; font-size: 12px; background: var(--bg-tertiary); }
.code-block-content { padding: 12px; overflow-x: auto; font-family: var(--font-mono); font-size: 14px; }
.table-wrapper { overflow-x: auto; margin: 12px 0; }
.table-wrapper table { border-collapse: collapse; width: 100%; }
.table-wrapper th, .table-wrapper td { border: 1px solid var(--border-color); padding: 6px 10px; }
.table-actions { margin-top: 6px; }
button { cursor: pointer; font-size: 12px; padding: 2px 8px; border-radius: 4px; border: 1px solid var(--border-color); background: transparent; color: inherit; }
</style>
`

const script = `<script>
document.addEventListener('click', function (ev) {
  const btn = ev.target.closest('button[data-action]');
  if (!btn) return;
  const action = btn.dataset.action;
  if (action === 'copy' || action === 'download') {
    const code = btn.closest('pre').querySelector('code').innerText;
    if (action === 'copy') { navigator.clipboard.writeText(code); return; }
    save(code, 'code-snippet-' + Date.now() + '.' + btn.dataset.ext, 'text/plain');
    return;
  }
  const table = btn.closest('.table-wrapper').querySelector('table');
  const rows = Array.from(table.querySelectorAll('tr')).map(function (tr) {
    return Array.from(tr.querySelectorAll('th, td')).map(function (td) { return td.innerText.trim(); });
  });
  if (action === 'copy-table') {
    navigator.clipboard.writeText(rows.map(function (r) { return r.join('\t'); }).join('\n'));
    return;
  }
  const csv = rows.map(function (r) {
    return r.map(function (c) { return /[",\n]/.test(c) ? '"' + c.replace(/"/g, '""') + '"' : c; }).join(',');
  }).join('\n');
  save(csv, 'table-export-' + Date.now() + '.csv', 'text/csv;charset=utf-8;');
});
function save(text, name, type) {
  const a = document.createElement('a');
  a.href = URL.createObjectURL(new Blob([text], { type: type }));
  a.download = name;
  a.click();
  URL.revokeObjectURL(a.href);
}
</script>
`
