package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/procdoc/internal/model"
)

func TestSplitParagraphs_Empty(t *testing.T) {
	assert.Nil(t, SplitParagraphs("", 500, 50))
	assert.Nil(t, SplitParagraphs("\n\n  \n\n", 500, 50))
}

func TestSplitParagraphs_SingleParagraph(t *testing.T) {
	chunks := SplitParagraphs("one short paragraph", 500, 50)
	require.Len(t, chunks, 1)
	assert.Equal(t, "one short paragraph", chunks[0])
}

func TestSplitParagraphs_AccumulatesUntilSize(t *testing.T) {
	text := "first paragraph here\n\nsecond paragraph here\n\nthird paragraph here"
	chunks := SplitParagraphs(text, 500, 50)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0], "first paragraph here")
	assert.Contains(t, chunks[0], "third paragraph here")
}

func TestSplitParagraphs_OverlapSeedsNextChunk(t *testing.T) {
	long := strings.Repeat("alpha ", 30)
	text := strings.TrimSpace(long) + "\n\nbeta paragraph follows"

	chunks := SplitParagraphs(text, 100, 5)
	require.Len(t, chunks, 2)
	// The second chunk starts with the last words of the first.
	assert.True(t, strings.HasPrefix(chunks[1], "alpha alpha alpha alpha alpha"))
	assert.Contains(t, chunks[1], "beta paragraph follows")
}

func TestSplitParagraphs_NoOverlap(t *testing.T) {
	text := strings.Repeat("word ", 40) + "\n\nnext block"
	chunks := SplitParagraphs(text, 100, 0)
	require.Len(t, chunks, 2)
	assert.Equal(t, "next block", chunks[1])
}

func f(v float64) *float64 { return &v }

func testDoc() *model.Document {
	return &model.Document{
		VendorName:     "Acme Federal",
		DocumentNumber: "Q-2025-014",
		DocumentType:   model.DocTypeVendorQuote,
		DocumentDate:   "2025-03-14",
	}
}

func TestLineItemChunks_Empty(t *testing.T) {
	assert.Nil(t, LineItemChunks(testDoc(), nil))
}

func TestLineItemChunks_FullItem(t *testing.T) {
	items := []model.LineItem{{
		ProductName:   "Catalyst 9300 48-port",
		PartNumber:    "C9300-48P",
		Manufacturer:  "Cisco",
		Quantity:      f(2),
		UnitOfIssue:   "each",
		UnitPrice:     f(5000),
		ExtendedPrice: f(10000),
		Category:      model.CategoryHardware,
	}}

	chunks := LineItemChunks(testDoc(), items)
	require.Len(t, chunks, 1)

	want := strings.Join([]string{
		"Vendor: Acme Federal",
		"Document: Q-2025-014 (vendor_quote)",
		"Date: 2025-03-14",
		"Product: Catalyst 9300 48-port",
		"Part Number: C9300-48P",
		"Manufacturer: Cisco",
		"Quantity: 2 each",
		"Unit Price: $5,000.00",
		"Extended Price: $10,000.00",
		"Category: hardware",
	}, "\n")
	assert.Equal(t, want, chunks[0])
}

func TestLineItemChunks_SparseItemSkipsMissingFields(t *testing.T) {
	items := []model.LineItem{{
		LaborCategory: "Senior Engineer",
		LaborHours:    f(80),
	}}

	doc := testDoc()
	doc.VendorName = ""
	chunks := LineItemChunks(doc, items)
	require.Len(t, chunks, 1)

	assert.Contains(t, chunks[0], "Vendor: Unknown Vendor")
	assert.Contains(t, chunks[0], "Labor Category: Senior Engineer")
	assert.NotContains(t, chunks[0], "Product:")
	assert.NotContains(t, chunks[0], "Unit Price:")
	assert.NotContains(t, chunks[0], "Quantity:")
}

func TestLineItemChunks_QuantityDefaultsUnit(t *testing.T) {
	items := []model.LineItem{{ProductName: "Patch Cable", Quantity: f(25)}}

	chunks := LineItemChunks(testDoc(), items)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0], "Quantity: 25 each")
}

func TestLineItemChunks_OnePerItem(t *testing.T) {
	items := []model.LineItem{
		{ProductName: "Switch"},
		{ProductName: "Router"},
		{ProductName: "Firewall"},
	}

	chunks := LineItemChunks(testDoc(), items)
	require.Len(t, chunks, 3)
	assert.Contains(t, chunks[0], "Product: Switch")
	assert.Contains(t, chunks[2], "Product: Firewall")
}
