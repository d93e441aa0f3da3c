package extract

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// DOCXExtractor reads Word documents. A .docx file is a ZIP archive; the
// body text and tables live in word/document.xml.
type DOCXExtractor struct{}

func (e *DOCXExtractor) Extract(_ context.Context, path string) (*Result, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, eris.Wrap(err, "extract: open docx")
	}
	defer reader.Close()

	var raw []byte
	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, eris.Wrap(err, "extract: open document.xml")
		}
		raw, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, eris.Wrap(err, "extract: read document.xml")
		}
		break
	}
	if raw == nil {
		// Archive without a document body yields an empty result.
		return &Result{Method: "docx-xml", PageCount: 1}, nil
	}

	var doc wordDocument
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, eris.Wrap(err, "extract: parse document.xml")
	}

	var paragraphs []string
	for _, p := range doc.Body.Paragraphs {
		if text := p.text(); text != "" {
			paragraphs = append(paragraphs, text)
		}
	}

	var tables []Record
	for _, tbl := range doc.Body.Tables {
		tables = append(tables, tbl.records()...)
	}

	return &Result{
		Tables:    tables,
		FullText:  strings.Join(paragraphs, "\n\n"),
		PageCount: 1,
		Method:    "docx-xml",
	}, nil
}

// wordDocument mirrors the parts of word/document.xml we read.
type wordDocument struct {
	Body struct {
		Paragraphs []wordParagraph `xml:"p"`
		Tables     []wordTable     `xml:"tbl"`
	} `xml:"body"`
}

type wordParagraph struct {
	Runs []struct {
		Text []struct {
			Content string `xml:",chardata"`
		} `xml:"t"`
	} `xml:"r"`
}

func (p wordParagraph) text() string {
	var sb strings.Builder
	for _, r := range p.Runs {
		for _, t := range r.Text {
			sb.WriteString(t.Content)
		}
	}
	return strings.TrimSpace(sb.String())
}

type wordTable struct {
	Rows []struct {
		Cells []struct {
			Paragraphs []wordParagraph `xml:"p"`
		} `xml:"tc"`
	} `xml:"tr"`
}

// records converts a table to header-keyed rows. The first row is the header.
func (t wordTable) records() []Record {
	if len(t.Rows) < 2 {
		return nil
	}

	cellText := func(paras []wordParagraph) string {
		var parts []string
		for _, p := range paras {
			if text := p.text(); text != "" {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, " ")
	}

	var header []string
	for _, c := range t.Rows[0].Cells {
		header = append(header, cellText(c.Paragraphs))
	}

	var records []Record
	for _, row := range t.Rows[1:] {
		rec := Record{}
		for i, c := range row.Cells {
			if i >= len(header) || header[i] == "" {
				continue
			}
			rec[header[i]] = cellText(c.Paragraphs)
		}
		if len(rec) > 0 {
			records = append(records, rec)
		}
	}
	return records
}
