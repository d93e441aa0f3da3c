package extract

import (
	"context"
	"encoding/csv"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVExtractor reads comma-separated files. The first row with at least two
// non-empty cells becomes the header, matching the spreadsheet behavior.
type CSVExtractor struct{}

func (e *CSVExtractor) Extract(_ context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "extract: open csv")
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "extract: parse csv")
	}

	var tables []Record
	var text strings.Builder
	var header []string

	for _, cells := range rows {
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

	return &Result{
		Tables:    tables,
		FullText:  text.String(),
		PageCount: 1,
		Method:    "encoding-csv",
	}, nil
}
