// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/jeranaias/freechat-tui/internal/render"
)

// TablesCSV returns one CSV document per table found in markup, in
// document order. Markup without tables yields an empty slice.
func TablesCSV(markup string) ([][]byte, error) {
	tables, err := render.Tables(markup)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(tables))
	for i, rows := range tables {
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.WriteAll(rows); err != nil {
			return nil, fmt.Errorf("write table %d: %w", i+1, err)
		}
		out = append(out, buf.Bytes())
	}
	return out, nil
}

// MarkdownTablesCSV renders markdown and extracts its tables as CSV.
func MarkdownTablesCSV(markdown string) ([][]byte, error) {
	markup, err := render.NewHTMLRenderer().Markdown(markdown)
	if err != nil {
		return nil, err
	}
	return TablesCSV(markup)
}
