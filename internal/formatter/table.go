// Package formatter renders run reports as aligned plain-text tables.
package formatter

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// RenderTable returns a markdown-style table whose columns are aligned by
// display width, so accented and wide characters line up in a terminal.
// Rows shorter than the header are padded with empty cells.
func RenderTable(headers []string, rows [][]string) string {
	colCount := len(headers)
	for _, row := range rows {
		if len(row) > colCount {
			colCount = len(row)
		}
	}

	if colCount == 0 {
		return ""
	}

	colWidths := make([]int, colCount)

	measure := func(row []string) {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > colWidths[i] {
				colWidths[i] = w
			}
		}
	}

	measure(headers)

	for _, row := range rows {
		measure(row)
	}

	// A separator needs at least three dashes.
	for i := range colWidths {
		if colWidths[i] < 3 {
			colWidths[i] = 3
		}
	}

	var sb strings.Builder

	writeRow(&sb, headers, colWidths)

	sep := make([]string, colCount)
	for i, w := range colWidths {
		sep[i] = strings.Repeat("-", w)
	}

	writeRow(&sb, sep, colWidths)

	for _, row := range rows {
		writeRow(&sb, row, colWidths)
	}

	return sb.String()
}

func writeRow(sb *strings.Builder, cells []string, widths []int) {
	sb.WriteString("|")

	for i, w := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}

		sb.WriteString(" ")
		sb.WriteString(cell)
		sb.WriteString(strings.Repeat(" ", w-runewidth.StringWidth(cell)))
		sb.WriteString(" |")
	}

	sb.WriteString("\n")
}
