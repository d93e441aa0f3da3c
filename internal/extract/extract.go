// Package extract pulls tables and text out of procurement documents.
// Each supported format has its own extractor; they all produce the same
// Result shape so the mapping stage does not care where a document came from.
package extract

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrUnsupportedFormat is returned for file extensions no extractor handles.
var ErrUnsupportedFormat = eris.New("unsupported file format")

// Record is a single table row keyed by column header.
type Record map[string]string

// Result is the outcome of extracting a single document.
type Result struct {
	Tables    []Record
	FullText  string
	PageCount int
	Method    string
}

// Extractor converts one document format into a Result.
type Extractor interface {
	Extract(ctx context.Context, path string) (*Result, error)
}

// Registry dispatches to an extractor by file extension.
type Registry struct {
	pdf  *PDFExtractor
	xlsx *XLSXExtractor
	docx *DOCXExtractor
	csv  *CSVExtractor
}

// NewRegistry builds a registry with all format extractors.
func NewRegistry() *Registry {
	return &Registry{
		pdf:  NewPDFExtractor(""),
		xlsx: &XLSXExtractor{},
		docx: &DOCXExtractor{},
		csv:  &CSVExtractor{},
	}
}

// SupportedExtensions lists the extensions the registry accepts, without dots.
func SupportedExtensions() []string {
	return []string{"pdf", "xlsx", "xls", "docx", "doc", "csv"}
}

// Supported reports whether the given filename has an extractable extension.
func Supported(filename string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	for _, s := range SupportedExtensions() {
		if ext == s {
			return true
		}
	}
	return false
}

// Extract runs the extractor matching the file's extension.
func (r *Registry) Extract(ctx context.Context, path string) (*Result, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return r.pdf.Extract(ctx, path)
	case ".xlsx", ".xls":
		return r.xlsx.Extract(ctx, path)
	case ".docx", ".doc":
		return r.docx.Extract(ctx, path)
	case ".csv":
		return r.csv.Extract(ctx, path)
	default:
		return nil, eris.Wrapf(ErrUnsupportedFormat, "%s", filepath.Ext(path))
	}
}
