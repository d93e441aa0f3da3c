package extract

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func TestSupported(t *testing.T) {
	assert.True(t, Supported("quote.xlsx"))
	assert.True(t, Supported("Quote.PDF"))
	assert.True(t, Supported("items.csv"))
	assert.False(t, Supported("archive.zip"))
	assert.False(t, Supported("noext"))
}

func TestRegistry_UnsupportedFormat(t *testing.T) {
	r := NewRegistry()
	_, err := r.Extract(context.Background(), "document.txt")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestCSVExtractor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.csv")
	content := "Part Number,Description,Qty,Unit Price\n" +
		"C9300-48P,Catalyst 9300 48-port,2,5000.00\n" +
		"PWR-C1,Power Supply,4,250.00\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	res, err := (&CSVExtractor{}).Extract(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "encoding-csv", res.Method)
	require.Len(t, res.Tables, 2)
	assert.Equal(t, "C9300-48P", res.Tables[0]["Part Number"])
	assert.Equal(t, "250.00", res.Tables[1]["Unit Price"])
	assert.Contains(t, res.FullText, "Catalyst 9300 48-port")
}

func TestCSVExtractor_BannerRowsBeforeHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quote.csv")
	// Vendor banner and blank rows above the real header must be skipped.
	content := "ACME FEDERAL QUOTE,,,\n" +
		",,,\n" +
		"Part Number,Description,Qty,Unit Price\n" +
		"SRV-100,PowerEdge R750,1,5000\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	res, err := (&CSVExtractor{}).Extract(context.Background(), path)
	require.NoError(t, err)

	require.Len(t, res.Tables, 1)
	assert.Equal(t, "SRV-100", res.Tables[0]["Part Number"])
	assert.Equal(t, "PowerEdge R750", res.Tables[0]["Description"])
}

func TestCSVExtractor_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	res, err := (&CSVExtractor{}).Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, res.Tables)
	assert.Empty(t, res.FullText)
}

func TestXLSXExtractor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quote.xlsx")

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Quote")
	require.NoError(t, err)

	banner := sheet.AddRow()
	banner.AddCell().SetString("Globex Corp Official Quote")
	sheet.AddRow() // blank
	header := sheet.AddRow()
	for _, h := range []string{"Part No.", "Product", "Qty", "Price"} {
		header.AddCell().SetString(h)
	}
	row := sheet.AddRow()
	row.AddCell().SetString("FW-3100")
	row.AddCell().SetString("Firewall Appliance")
	row.AddCell().SetString("2")
	row.AddCell().SetString("900")
	require.NoError(t, f.Save(path))

	res, err := (&XLSXExtractor{}).Extract(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "tealeg-xlsx", res.Method)
	assert.Equal(t, 1, res.PageCount)
	require.Len(t, res.Tables, 1)
	assert.Equal(t, "FW-3100", res.Tables[0]["Part No."])
	assert.Equal(t, "900", res.Tables[0]["Price"])
	assert.Contains(t, res.FullText, "Globex Corp Official Quote")
}

const docxBody = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Statement of Work</w:t></w:r></w:p>
<w:p><w:r><w:t>Period of performance is twelve months.</w:t></w:r></w:p>
<w:tbl>
<w:tr><w:tc><w:p><w:r><w:t>CLIN</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Description</w:t></w:r></w:p></w:tc></w:tr>
<w:tr><w:tc><w:p><w:r><w:t>0001</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Engineering Support</w:t></w:r></w:p></w:tc></w:tr>
</w:tbl>
</w:body>
</w:document>`

func writeDocx(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "sow.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(docxBody))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestDOCXExtractor(t *testing.T) {
	path := writeDocx(t, t.TempDir())

	res, err := (&DOCXExtractor{}).Extract(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "docx-xml", res.Method)
	assert.Contains(t, res.FullText, "Statement of Work")
	assert.Contains(t, res.FullText, "Period of performance is twelve months.")
	require.Len(t, res.Tables, 1)
	assert.Equal(t, "0001", res.Tables[0]["CLIN"])
	assert.Equal(t, "Engineering Support", res.Tables[0]["Description"])
}

func TestParseLayoutTables(t *testing.T) {
	page := `Acme Federal Quote Q-2025-014

Part Number    Description              Qty    Unit Price
C9300-48P      Catalyst 9300 48-port    2      5,000.00
PWR-C1         Power Supply             4      250.00

Thank you for your business.`

	records := parseLayoutTables(page)
	require.Len(t, records, 2)
	assert.Equal(t, "C9300-48P", records[0]["Part Number"])
	assert.Equal(t, "Catalyst 9300 48-port", records[0]["Description"])
	assert.Equal(t, "250.00", records[1]["Unit Price"])
}

func TestParseLayoutTables_NoTable(t *testing.T) {
	assert.Empty(t, parseLayoutTables("just a paragraph of prose\nwith no columns"))
	assert.Empty(t, parseLayoutTables(""))
}

func TestSplitColumns(t *testing.T) {
	assert.Equal(t, []string{"a", "b c", "d"}, splitColumns("a    b c   d"))
	assert.Empty(t, splitColumns("   "))
}
