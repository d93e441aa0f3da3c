// Package mapper classifies documents and maps extracted rows to the
// canonical line item schema using the Anthropic API.
package mapper

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/procdoc/internal/extract"
	"github.com/sells-group/procdoc/internal/model"
	"github.com/sells-group/procdoc/internal/resilience"
	"github.com/sells-group/procdoc/pkg/anthropic"
)

const (
	maxTableRecords = 50
	maxTableChars   = 8000
	maxTextChars    = 4000
	maxTokens       = 4096
)

const mappingPrompt = `You are analyzing a procurement document. Given the following raw table data extracted from a %s file, please:

1. Identify the document type. Choose one of: vendor_quote, purchase_order, invoice, bom, contract_mod, timesheet, obligation, delivery_receipt, other

2. Extract header/metadata:
   - vendor_name, document_number, document_date
   - contract_number, task_order_number
   - total_amount, period_of_performance_start, period_of_performance_end

3. Map each row to our canonical schema with these fields:
   - line_number (sequential)
   - part_number (SKU, Part #, Item Code, Catalog #, Product ID)
   - product_name (Description, Item, Product, Title)
   - product_description (extended description if available)
   - manufacturer (Mfr, Brand, Make)
   - category: one of hardware, software, service, license, maintenance, labor, other
   - sub_category (e.g., laptop, server, endpoint_security, etc.)
   - quantity (Qty, Count, Units)
   - unit_of_issue (UOI, Unit - e.g., each, lot, month, year, hour)
   - unit_price (Unit $, Price, Rate, Unit Cost)
   - extended_price (Ext Price, Total, Amount, Line Total)
   - clin (CLIN, Line Item #)
   - labor_category (LCAT, Role, Position - for labor items)
   - labor_hours (Hours, Hrs)
   - labor_rate (Rate, Hourly Rate)
   - mapping_confidence: 0.0 to 1.0 for each row

Return ONLY valid JSON with this structure (no markdown, no explanation):
{
  "document_type": "...",
  "metadata": {
    "vendor_name": "...",
    "document_number": "...",
    "document_date": "...",
    "contract_number": "...",
    "task_order_number": "...",
    "total_amount": null or number,
    "period_of_performance_start": "...",
    "period_of_performance_end": "..."
  },
  "line_items": [
    {
      "line_number": 1,
      "part_number": "...",
      "product_name": "...",
      "product_description": "...",
      "manufacturer": "...",
      "category": "...",
      "sub_category": "...",
      "quantity": number or null,
      "unit_of_issue": "...",
      "unit_price": number or null,
      "extended_price": number or null,
      "clin": "...",
      "labor_category": "...",
      "labor_hours": number or null,
      "labor_rate": number or null,
      "mapping_confidence": 0.95
    }
  ]
}

Raw table data:
%s

Additional document text for context:
%s`

// Mapper sends extracted document data to the API for field mapping.
type Mapper struct {
	client anthropic.Client
	model  string
}

// New creates a Mapper using the given client and model ID.
func New(client anthropic.Client, modelID string) *Mapper {
	return &Mapper{client: client, model: modelID}
}

// MapDocument classifies a document and maps its rows to the canonical
// schema. Failures never return an error; they come back as a MapResult
// with document type "other", no items, and the Error field set, so a bad
// API response cannot take down the pipeline.
func (m *Mapper) MapDocument(ctx context.Context, tables []extract.Record, documentText, fileFormat string, known []model.FieldMapping) *MapResult {
	prompt := m.buildPrompt(tables, documentText, fileFormat, known)

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("field_mapping")
	resp, err := resilience.Do(ctx, retryCfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return m.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     m.model,
			MaxTokens: maxTokens,
			Messages: []anthropic.Message{
				{Role: "user", Content: prompt},
			},
		})
	})
	if err != nil {
		zap.L().Error("field mapping request failed", zap.Error(err))
		return errorResult(err.Error())
	}
	resp.Usage.LogCost(m.model, "field_mapping")

	result, err := parseMapResponse(resp.Text())
	if err != nil {
		zap.L().Error("field mapping response unparseable", zap.Error(err))
		return errorResult(fmt.Sprintf("JSON parse error: %v", err))
	}
	return result
}

func (m *Mapper) buildPrompt(tables []extract.Record, documentText, fileFormat string, known []model.FieldMapping) string {
	if len(tables) > maxTableRecords {
		tables = tables[:maxTableRecords]
	}
	tableJSON, err := json.MarshalIndent(tables, "", "  ")
	if err != nil {
		tableJSON = []byte("[]")
	}
	tableStr := truncate(string(tableJSON), maxTableChars)
	textSnippet := truncate(documentText, maxTextChars)

	prompt := fmt.Sprintf(mappingPrompt, fileFormat, tableStr, textSnippet)

	if len(known) > 0 {
		var sb strings.Builder
		sb.WriteString("\n\nPreviously confirmed column mappings for this vendor (prefer these when the source columns match):\n")
		for _, k := range known {
			fmt.Fprintf(&sb, "- %q -> %s (confidence %.2f, confirmed %dx)\n",
				k.SourceColumnName, k.TargetField, k.Confidence, k.TimesConfirmed)
		}
		prompt += sb.String()
	}
	return prompt
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func errorResult(msg string) *MapResult {
	return &MapResult{
		DocumentType: model.DocTypeOther,
		LineItems:    []MappedItem{},
		Error:        msg,
	}
}
