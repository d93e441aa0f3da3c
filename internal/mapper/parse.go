package mapper

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/procdoc/internal/model"
)

// MapResult is the parsed outcome of a field mapping call.
type MapResult struct {
	DocumentType string       `json:"document_type"`
	Metadata     Metadata     `json:"metadata"`
	LineItems    []MappedItem `json:"line_items"`
	Error        string       `json:"error,omitempty"`
}

// Metadata carries document-level fields identified by the model.
type Metadata struct {
	VendorName               string    `json:"vendor_name"`
	DocumentNumber           string    `json:"document_number"`
	DocumentDate             string    `json:"document_date"`
	ContractNumber           string    `json:"contract_number"`
	TaskOrderNumber          string    `json:"task_order_number"`
	TotalAmount              FlexFloat `json:"total_amount"`
	PeriodOfPerformanceStart string    `json:"period_of_performance_start"`
	PeriodOfPerformanceEnd   string    `json:"period_of_performance_end"`
}

// MappedItem is one canonical line item as returned by the model.
type MappedItem struct {
	LineNumber         FlexInt   `json:"line_number"`
	PartNumber         string    `json:"part_number"`
	ProductName        string    `json:"product_name"`
	ProductDescription string    `json:"product_description"`
	Manufacturer       string    `json:"manufacturer"`
	Category           string    `json:"category"`
	SubCategory        string    `json:"sub_category"`
	Quantity           FlexFloat `json:"quantity"`
	UnitOfIssue        string    `json:"unit_of_issue"`
	UnitPrice          FlexFloat `json:"unit_price"`
	ExtendedPrice      FlexFloat `json:"extended_price"`
	CLIN               string    `json:"clin"`
	LaborCategory      string    `json:"labor_category"`
	LaborHours         FlexFloat `json:"labor_hours"`
	LaborRate          FlexFloat `json:"labor_rate"`
	MappingConfidence  FlexFloat `json:"mapping_confidence"`
}

// FlexFloat tolerates the numeric sloppiness of model output: plain numbers,
// quoted numbers, currency strings like "$1,250.00", and null.
type FlexFloat struct {
	Value float64
	Valid bool
}

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*f = FlexFloat{}
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		str = strings.TrimSpace(strings.NewReplacer("$", "", ",", "", "%", "").Replace(str))
		if str == "" {
			*f = FlexFloat{}
			return nil
		}
		v, err := strconv.ParseFloat(str, 64)
		if err != nil {
			// Unparseable strings degrade to null rather than failing the row.
			*f = FlexFloat{}
			return nil
		}
		*f = FlexFloat{Value: v, Valid: true}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = FlexFloat{Value: v, Valid: true}
	return nil
}

// Ptr returns the value as a *float64, nil when absent.
func (f FlexFloat) Ptr() *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

// FlexInt is FlexFloat for integer fields.
type FlexInt struct {
	Value int
	Valid bool
}

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	var ff FlexFloat
	if err := ff.UnmarshalJSON(data); err != nil {
		return err
	}
	*f = FlexInt{Value: int(ff.Value), Valid: ff.Valid}
	return nil
}

// Ptr returns the value as a *int, nil when absent.
func (f FlexInt) Ptr() *int {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

// parseMapResponse strips code fences and decodes the mapping JSON, then
// normalizes the enumerated fields.
func parseMapResponse(text string) (*MapResult, error) {
	var result MapResult
	if err := json.Unmarshal([]byte(cleanJSON(text)), &result); err != nil {
		return nil, eris.Wrap(err, "mapper: decode response")
	}

	result.DocumentType = normalizeDocType(result.DocumentType)
	if result.LineItems == nil {
		result.LineItems = []MappedItem{}
	}
	for i := range result.LineItems {
		result.LineItems[i].Category = normalizeCategory(result.LineItems[i].Category)
	}
	return &result, nil
}

// cleanJSON strips markdown code fences and surrounding prose from a model
// response, leaving the outermost JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

var validDocTypes = map[string]bool{
	model.DocTypeVendorQuote:     true,
	model.DocTypePurchaseOrder:   true,
	model.DocTypeInvoice:         true,
	model.DocTypeBOM:             true,
	model.DocTypeContractMod:     true,
	model.DocTypeTimesheet:       true,
	model.DocTypeObligation:      true,
	model.DocTypeDeliveryReceipt: true,
	model.DocTypeOther:           true,
}

func normalizeDocType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if validDocTypes[t] {
		return t
	}
	return model.DocTypeOther
}

func normalizeCategory(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == "" {
		return ""
	}
	for _, known := range model.Categories {
		if c == known {
			return c
		}
	}
	return model.CategoryOther
}
