package mapper

import (
	"context"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/procdoc/internal/extract"
	"github.com/sells-group/procdoc/internal/model"
	"github.com/sells-group/procdoc/pkg/anthropic"
)

// fakeClient returns a canned response or error.
type fakeClient struct {
	resp    *anthropic.MessageResponse
	err     error
	lastReq anthropic.MessageRequest
}

func (f *fakeClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func textResponse(s string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: s}},
	}
}

const goodResponse = `{
  "document_type": "vendor_quote",
  "metadata": {
    "vendor_name": "Acme Federal",
    "document_number": "Q-2025-014",
    "document_date": "2025-03-14",
    "total_amount": "10,450.00"
  },
  "line_items": [
    {
      "line_number": 1,
      "part_number": "C9300-48P",
      "product_name": "Catalyst 9300",
      "category": "Hardware",
      "quantity": 2,
      "unit_price": "$5,000.00",
      "extended_price": 10000,
      "mapping_confidence": 0.95
    },
    {
      "line_number": 2,
      "product_name": "Smartnet Support",
      "category": "gadgets",
      "extended_price": 450,
      "mapping_confidence": 0.8
    }
  ]
}`

func TestMapDocument(t *testing.T) {
	client := &fakeClient{resp: textResponse(goodResponse)}
	m := New(client, "claude-sonnet-4-5-20250929")

	result := m.MapDocument(context.Background(), []extract.Record{
		{"Part Number": "C9300-48P", "Qty": "2"},
	}, "quote text", "xlsx", nil)

	assert.Empty(t, result.Error)
	assert.Equal(t, model.DocTypeVendorQuote, result.DocumentType)
	assert.Equal(t, "Acme Federal", result.Metadata.VendorName)
	require.NotNil(t, result.Metadata.TotalAmount.Ptr())
	assert.InDelta(t, 10450.00, result.Metadata.TotalAmount.Value, 0.001)

	require.Len(t, result.LineItems, 2)
	first := result.LineItems[0]
	assert.Equal(t, model.CategoryHardware, first.Category)
	assert.InDelta(t, 5000, first.UnitPrice.Value, 0.001)
	require.NotNil(t, first.LineNumber.Ptr())
	assert.Equal(t, 1, first.LineNumber.Value)

	// Out-of-vocabulary categories collapse to "other".
	assert.Equal(t, model.CategoryOther, result.LineItems[1].Category)
}

func TestMapDocument_FencedResponse(t *testing.T) {
	fenced := "```json\n" + goodResponse + "\n```"
	client := &fakeClient{resp: textResponse(fenced)}
	m := New(client, "claude-sonnet-4-5-20250929")

	result := m.MapDocument(context.Background(), nil, "", "pdf", nil)
	assert.Empty(t, result.Error)
	assert.Equal(t, model.DocTypeVendorQuote, result.DocumentType)
}

func TestMapDocument_APIError(t *testing.T) {
	client := &fakeClient{err: eris.New("api unavailable")}
	m := New(client, "claude-sonnet-4-5-20250929")

	result := m.MapDocument(context.Background(), nil, "", "pdf", nil)

	assert.Equal(t, model.DocTypeOther, result.DocumentType)
	assert.Empty(t, result.LineItems)
	assert.Contains(t, result.Error, "api unavailable")
}

func TestMapDocument_MalformedJSON(t *testing.T) {
	client := &fakeClient{resp: textResponse("the document appears to be a quote")}
	m := New(client, "claude-sonnet-4-5-20250929")

	result := m.MapDocument(context.Background(), nil, "", "pdf", nil)

	assert.Equal(t, model.DocTypeOther, result.DocumentType)
	assert.Empty(t, result.LineItems)
	assert.Contains(t, result.Error, "JSON parse error")
}

func TestBuildPrompt_TruncatesAndHints(t *testing.T) {
	client := &fakeClient{resp: textResponse(goodResponse)}
	m := New(client, "claude-sonnet-4-5-20250929")

	// More records than the cap, with long values to force the char limit.
	var tables []extract.Record
	for i := 0; i < 80; i++ {
		tables = append(tables, extract.Record{"Description": strings.Repeat("z", 400)})
	}
	longText := strings.Repeat("t", 10000)

	known := []model.FieldMapping{
		{SourceColumnName: "Part No.", TargetField: "part_number", Confidence: 0.95, TimesConfirmed: 3},
	}
	m.MapDocument(context.Background(), tables, longText, "xlsx", known)

	prompt := client.lastReq.Messages[0].Content
	assert.LessOrEqual(t, strings.Count(prompt, "Description"), maxTableRecords+1)
	assert.Contains(t, prompt, `"Part No." -> part_number`)
	assert.NotContains(t, prompt, strings.Repeat("t", maxTextChars+1))
}

func TestCleanJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, cleanJSON("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, cleanJSON("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, cleanJSON(`Here is the result: {"a":1} Hope that helps!`))
	assert.Equal(t, `{"a":1}`, cleanJSON(`{"a":1}`))
}

func TestFlexFloat(t *testing.T) {
	var f FlexFloat
	require.NoError(t, f.UnmarshalJSON([]byte(`"$1,250.50"`)))
	assert.True(t, f.Valid)
	assert.InDelta(t, 1250.50, f.Value, 0.001)

	require.NoError(t, f.UnmarshalJSON([]byte(`null`)))
	assert.False(t, f.Valid)
	assert.Nil(t, f.Ptr())

	require.NoError(t, f.UnmarshalJSON([]byte(`"N/A"`)))
	assert.False(t, f.Valid)

	require.NoError(t, f.UnmarshalJSON([]byte(`42.5`)))
	assert.True(t, f.Valid)
	assert.InDelta(t, 42.5, f.Value, 0.001)
}
