package extract

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// PDFExtractor extracts text and tables from PDFs using the pdftotext CLI.
// Layout mode preserves column alignment, which is what makes table
// reconstruction from the text possible.
type PDFExtractor struct {
	binPath string
}

// NewPDFExtractor creates a PDFExtractor. If binPath is empty, "pdftotext" is used.
func NewPDFExtractor(binPath string) *PDFExtractor {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PDFExtractor{binPath: binPath}
}

func (e *PDFExtractor) Extract(ctx context.Context, path string) (*Result, error) {
	cmd := exec.CommandContext(ctx, e.binPath, "-layout", path, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, eris.Wrapf(err, "extract: pdftotext failed for %s: %s", path, stderr.String())
	}

	text := stdout.String()
	pageCount, err := api.PageCountFile(path)
	if err != nil {
		// Text extraction succeeded, so a page count failure is not fatal.
		zap.L().Warn("pdf page count failed", zap.String("path", path), zap.Error(err))
		pageCount = strings.Count(text, "\f") + 1
	}

	var tables []Record
	for _, page := range strings.Split(text, "\f") {
		tables = append(tables, parseLayoutTables(page)...)
	}

	return &Result{
		Tables:    tables,
		FullText:  strings.ReplaceAll(text, "\f", "\n\n"),
		PageCount: pageCount,
		Method:    "pdftotext",
	}, nil
}

// parseLayoutTables reconstructs tables from layout-preserved text. Runs of
// two or more spaces act as column separators; consecutive lines with the
// same column count form a table, the first line being the header.
func parseLayoutTables(page string) []Record {
	lines := strings.Split(page, "\n")

	var records []Record
	var header []string
	var block []string
	cols := 0

	flush := func() {
		if len(header) >= 2 && len(block) > 0 {
			for _, line := range block {
				cells := splitColumns(line)
				rec := Record{}
				for i, h := range header {
					if i < len(cells) {
						rec[h] = cells[i]
					}
				}
				records = append(records, rec)
			}
		}
		header = nil
		block = nil
		cols = 0
	}

	for _, line := range lines {
		cells := splitColumns(line)
		if len(cells) < 2 {
			flush()
			continue
		}
		switch {
		case header == nil:
			header = cells
			cols = len(cells)
		case len(cells) == cols:
			block = append(block, line)
		default:
			flush()
			header = cells
			cols = len(cells)
		}
	}
	flush()
	return records
}

// splitColumns splits a layout line on runs of two or more spaces.
func splitColumns(line string) []string {
	var cells []string
	for _, part := range strings.Split(line, "  ") {
		part = strings.TrimSpace(part)
		if part != "" {
			cells = append(cells, part)
		}
	}
	return cells
}
