package report

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// AlignTable pads the cells of a markdown table so every column lines up by
// display width. The separator row, when present as the second row, is
// rebuilt from dashes.
func AlignTable(rows []string) []string {
	// Needs a header and a separator.
	if len(rows) < 2 {
		return rows
	}

	table := make([][]string, 0, len(rows))

	for _, row := range rows {
		parts := strings.Split(row, "|")

		if len(parts) > 0 && strings.TrimSpace(parts[0]) == "" {
			parts = parts[1:]
		}

		if len(parts) > 0 && strings.TrimSpace(parts[len(parts)-1]) == "" {
			parts = parts[:len(parts)-1]
		}

		cells := make([]string, 0, len(parts))
		for _, p := range parts {
			cells = append(cells, strings.TrimSpace(p))
		}

		table = append(table, cells)
	}

	colCount := 0
	for _, row := range table {
		if len(row) > colCount {
			colCount = len(row)
		}
	}

	separatorRowIdx := -1
	if isSeparator(table[1]) {
		separatorRowIdx = 1
	}

	colWidths := make([]int, colCount)

	for rIdx, row := range table {
		if rIdx == separatorRowIdx {
			continue
		}

		for i, c := range row {
			if w := runewidth.StringWidth(c); w > colWidths[i] {
				colWidths[i] = w
			}
		}
	}

	// "---" is the shortest valid separator.
	for i := range colWidths {
		if colWidths[i] < 3 {
			colWidths[i] = 3
		}
	}

	result := make([]string, 0, len(table))

	for i, row := range table {
		var sb strings.Builder

		sb.WriteString("|")

		for j := 0; j < colCount; j++ {
			sb.WriteString(" ")

			if i == separatorRowIdx {
				sb.WriteString(strings.Repeat("-", colWidths[j]))
			} else {
				content := ""
				if j < len(row) {
					content = row[j]
				}

				sb.WriteString(runewidth.FillRight(content, colWidths[j]))
			}

			sb.WriteString(" |")
		}

		result = append(result, sb.String())
	}

	return result
}

func isSeparator(row []string) bool {
	for _, c := range row {
		trim := strings.NewReplacer("-", "", ":", "", " ", "").Replace(c)
		if trim != "" {
			return false
		}
	}

	return true
}
