package extract

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXExtractor reads spreadsheet workbooks. Every sheet is scanned; the
// header row is the first row with at least two non-empty cells, which skips
// vendor banner and title rows above the real table.
type XLSXExtractor struct{}

func (e *XLSXExtractor) Extract(_ context.Context, path string) (*Result, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "extract: open xlsx")
	}

	var tables []Record
	var text strings.Builder

	for _, sheet := range f.Sheets {
		var header []string
		for _, row := range sheet.Rows {
			cells := rowToStrings(row)
			if line := strings.TrimSpace(strings.Join(cells, " | ")); strings.Trim(line, " |") != "" {
				text.WriteString(line)
				text.WriteString("\n")
			}

			if header == nil {
				if countNonEmpty(cells) >= 2 {
					header = cells
				}
				continue
			}

			if countNonEmpty(cells) == 0 {
				continue
			}
			rec := Record{}
			for i, h := range header {
				h = strings.TrimSpace(h)
				if h == "" || i >= len(cells) {
					continue
				}
				rec[h] = strings.TrimSpace(cells[i])
			}
			if len(rec) > 0 {
				tables = append(tables, rec)
			}
		}
	}

	return &Result{
		Tables:    tables,
		FullText:  text.String(),
		PageCount: len(f.Sheets),
		Method:    "tealeg-xlsx",
	}, nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

func countNonEmpty(cells []string) int {
	n := 0
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			n++
		}
	}
	return n
}
