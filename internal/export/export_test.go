package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/sells-group/procdoc/internal/model"
)

func sampleItems() []model.LineItem {
	ln := 1
	qty, price, ext := 2.0, 5000.0, 10000.0
	return []model.LineItem{
		{
			LineNumber:     &ln,
			CLIN:           "0001",
			PartNumber:     "C9300-48P",
			Manufacturer:   "Cisco",
			ProductName:    "Catalyst 9300",
			Category:       model.CategoryHardware,
			Quantity:       &qty,
			UnitOfIssue:    "each",
			UnitPrice:      &price,
			ExtendedPrice:  &ext,
			VendorName:     "Acme Federal",
			DocumentNumber: "Q-2025-014",
			DocumentType:   model.DocTypeVendorQuote,
			DocumentDate:   "2025-03-14",
			ContractNumber: "GS-35F-0001",
		},
		{ProductName: "Support Plan"},
	}
}

func TestCSV(t *testing.T) {
	data, err := CSV(sampleItems())
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, Headers, records[0])
	assert.Equal(t, []string{
		"1", "0001", "C9300-48P", "Cisco", "Catalyst 9300",
		"", "hardware", "", "2", "each",
		"5000", "10000", "Acme Federal", "Q-2025-014",
		"vendor_quote", "2025-03-14", "GS-35F-0001",
	}, records[1])

	// Optional fields are blank, not zero.
	assert.Equal(t, "", records[2][0])
	assert.Equal(t, "Support Plan", records[2][4])
	assert.Equal(t, "", records[2][10])
}

func TestCSV_Empty(t *testing.T) {
	data, err := CSV(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(strings.TrimSpace(string(data)), "\n")+1)
}

func TestXLSX(t *testing.T) {
	data, err := XLSX(sampleItems())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Line Items")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Headers, rows[0])
	assert.Equal(t, "Catalyst 9300", rows[1][4])
	assert.Equal(t, "Acme Federal", rows[1][12])
}
