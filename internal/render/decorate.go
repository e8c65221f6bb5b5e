// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	chromastyles "github.com/alecthomas/chroma/v2/styles"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	classCodeHeader   = "code-block-header"
	classCodeActions  = "code-block-actions"
	classCodeContent  = "code-block-content"
	classTableWrapper = "table-wrapper"
	classTableActions = "table-actions"

	defaultCodeLabel = "code"
)

var extensions = map[string]string{
	"python": "py", "javascript": "js", "js": "js", "html": "html", "css": "css",
	"java": "java", "csharp": "cs", "cpp": "cpp", "c": "c", "go": "go",
	"ruby": "rb", "php": "php", "swift": "swift", "typescript": "ts",
	"shell": "sh", "bash": "sh", "sql": "sql", "json": "json", "markdown": "md",
}

// LanguageExtension returns the download file extension for a code block
// language, "txt" when unknown.
func LanguageExtension(lang string) string {
	if ext, ok := extensions[strings.ToLower(lang)]; ok {
		return ext
	}
	return "txt"
}

// Decorate adds a header with copy and download actions to every code block
// and wraps every table with a scroll container and its actions. Code is
// syntax highlighted. Blocks that are already decorated are left alone, so
// Decorate(Decorate(x)) == Decorate(x).
func Decorate(markup string) (string, error) {
	root, err := parseFragment(markup)
	if err != nil {
		return "", err
	}

	var pres, tables []*html.Node
	walk(root, func(n *html.Node) {
		switch n.DataAtom {
		case atom.Pre:
			pres = append(pres, n)
		case atom.Table:
			tables = append(tables, n)
		}
	})

	for _, pre := range pres {
		if err := decorateCode(pre); err != nil {
			return "", err
		}
	}
	for _, t := range tables {
		wrapTable(t)
	}
	return renderChildren(root)
}

// =============================================================================
// CODE BLOCKS
// =============================================================================

func decorateCode(pre *html.Node) error {
	if findClass(pre, classCodeHeader) != nil {
		return nil
	}
	code := firstChild(pre, atom.Code)
	if code == nil {
		return nil
	}

	lang := strings.TrimPrefix(attr(code, "class"), "language-")
	label := lang
	if label == "" {
		label = defaultCodeLabel
	}
	source := textContent(code)

	if err := highlight(code, lang, source); err != nil {
		return err
	}

	header := element(atom.Div, "class", classCodeHeader)
	header.AppendChild(textElement(atom.Span, label))
	actions := element(atom.Div, "class", classCodeActions)
	actions.AppendChild(button("copy", "Copy"))
	dl := button("download", "Download")
	dl.Attr = append(dl.Attr, html.Attribute{Key: "data-ext", Val: LanguageExtension(label)})
	actions.AppendChild(dl)
	header.AppendChild(actions)

	content := element(atom.Div, "class", classCodeContent)
	pre.RemoveChild(code)
	content.AppendChild(code)

	for c := pre.FirstChild; c != nil; c = pre.FirstChild {
		pre.RemoveChild(c)
	}
	pre.AppendChild(header)
	pre.AppendChild(content)
	return nil
}

// highlight replaces code's children with chroma's inline-styled tokens.
func highlight(code *html.Node, lang, source string) error {
	var lexer chroma.Lexer
	if lang != "" {
		lexer = lexers.Get(lang)
	}
	if lexer == nil {
		lexer = lexers.Analyse(source)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromastyles.Get("github")
	if style == nil {
		style = chromastyles.Fallback
	}

	it, err := lexer.Tokenise(nil, source)
	if err != nil {
		return fmt.Errorf("tokenise %s: %w", lang, err)
	}
	var buf bytes.Buffer
	f := chromahtml.New(chromahtml.WithClasses(false), chromahtml.PreventSurroundingPre(true))
	if err := f.Format(&buf, style, it); err != nil {
		return fmt.Errorf("highlight %s: %w", lang, err)
	}

	nodes, err := html.ParseFragment(&buf, code)
	if err != nil {
		return fmt.Errorf("parse highlighted code: %w", err)
	}
	for c := code.FirstChild; c != nil; c = code.FirstChild {
		code.RemoveChild(c)
	}
	for _, n := range nodes {
		code.AppendChild(n)
	}
	return nil
}

// =============================================================================
// TABLES
// =============================================================================

func wrapTable(table *html.Node) {
	if p := table.Parent; p != nil && hasClass(p, classTableWrapper) {
		return
	}
	wrapper := element(atom.Div, "class", classTableWrapper)
	table.Parent.InsertBefore(wrapper, table)
	table.Parent.RemoveChild(table)
	wrapper.AppendChild(table)

	actions := element(atom.Div, "class", classTableActions)
	actions.AppendChild(button("copy-table", "Copy"))
	actions.AppendChild(button("download-csv", "CSV"))
	wrapper.AppendChild(actions)
}

// Tables returns the cell text of every table in markup, one row per tr.
func Tables(markup string) ([][][]string, error) {
	root, err := parseFragment(markup)
	if err != nil {
		return nil, err
	}
	var out [][][]string
	walk(root, func(n *html.Node) {
		if n.DataAtom != atom.Table {
			return
		}
		var rows [][]string
		walk(n, func(tr *html.Node) {
			if tr.DataAtom != atom.Tr {
				return
			}
			var cells []string
			for c := tr.FirstChild; c != nil; c = c.NextSibling {
				if c.DataAtom == atom.Th || c.DataAtom == atom.Td {
					cells = append(cells, strings.TrimSpace(textContent(c)))
				}
			}
			rows = append(rows, cells)
		})
		out = append(out, rows)
	})
	return out, nil
}

// =============================================================================
// NODE HELPERS
// =============================================================================

func parseFragment(markup string) (*html.Node, error) {
	root := element(atom.Div)
	nodes, err := html.ParseFragment(strings.NewReader(markup), element(atom.Div))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	return root, nil
}

func renderChildren(root *html.Node) (string, error) {
	var buf bytes.Buffer
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("render html: %w", err)
		}
	}
	return buf.String(), nil
}

func walk(n *html.Node, fn func(*html.Node)) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			fn(c)
		}
		walk(c, fn)
	}
}

func element(a atom.Atom, kv ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	for i := 0; i+1 < len(kv); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: kv[i], Val: kv[i+1]})
	}
	return n
}

func textElement(a atom.Atom, text string) *html.Node {
	n := element(a)
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	return n
}

func button(action, label string) *html.Node {
	b := textElement(atom.Button, label)
	b.Attr = []html.Attribute{{Key: "type", Val: "button"}, {Key: "data-action", Val: action}}
	return b
}

func firstChild(n *html.Node, a atom.Atom) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.DataAtom == a {
			return c
		}
	}
	return nil
}

func findClass(n *html.Node, class string) *html.Node {
	var found *html.Node
	walk(n, func(c *html.Node) {
		if found == nil && hasClass(c, class) {
			found = c
		}
	})
	return found
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
	}
	return b.String()
}
