package model

import "time"

// Category vocabulary for line items. The mapper instructs the model to
// pick from this set but values are stored as given.
const (
	CategoryHardware    = "hardware"
	CategorySoftware    = "software"
	CategoryService     = "service"
	CategoryLicense     = "license"
	CategoryMaintenance = "maintenance"
	CategoryLabor       = "labor"
	CategoryOther       = "other"
)

// Categories lists the closed-ish category vocabulary in prompt order.
var Categories = []string{
	CategoryHardware, CategorySoftware, CategoryService,
	CategoryLicense, CategoryMaintenance, CategoryLabor, CategoryOther,
}

// LineItem is one normalized row extracted from a document.
//
// ExtendedPrice is extracted independently of UnitPrice and Quantity and may
// legitimately diverge from their product (pre-discount or rounded totals).
type LineItem struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`

	LineNumber *int   `json:"line_number,omitempty"`
	CLIN       string `json:"clin,omitempty"`
	SLIN       string `json:"slin,omitempty"`

	PartNumber             string `json:"part_number,omitempty"`
	Manufacturer           string `json:"manufacturer,omitempty"`
	ManufacturerPartNumber string `json:"manufacturer_part_number,omitempty"`
	ProductName            string `json:"product_name,omitempty"`
	ProductDescription     string `json:"product_description,omitempty"`

	Category    string `json:"category,omitempty"`
	SubCategory string `json:"sub_category,omitempty"`

	Quantity        *float64 `json:"quantity,omitempty"`
	UnitOfIssue     string   `json:"unit_of_issue,omitempty"`
	UnitPrice       *float64 `json:"unit_price,omitempty"`
	ExtendedPrice   *float64 `json:"extended_price,omitempty"`
	DiscountPercent *float64 `json:"discount_percent,omitempty"`
	DiscountAmount  *float64 `json:"discount_amount,omitempty"`

	LaborCategory string   `json:"labor_category,omitempty"`
	LaborHours    *float64 `json:"labor_hours,omitempty"`
	LaborRate     *float64 `json:"labor_rate,omitempty"`

	PeriodStart string `json:"period_start,omitempty"`
	PeriodEnd   string `json:"period_end,omitempty"`

	MappingConfidence *float64 `json:"mapping_confidence,omitempty"`
	HumanVerified     bool     `json:"human_verified"`
	OriginalRowText   string   `json:"original_row_text,omitempty"`

	SessionID string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`

	// Denormalized from the owning document for list and search responses.
	VendorName       string `json:"vendor_name,omitempty"`
	DocumentNumber   string `json:"document_number,omitempty"`
	DocumentType     string `json:"document_type,omitempty"`
	DocumentDate     string `json:"document_date,omitempty"`
	ContractNumber   string `json:"contract_number,omitempty"`
	OriginalFilename string `json:"original_filename,omitempty"`
}

// LineItemFilter narrows line-item listings and exports.
type LineItemFilter struct {
	Search         string
	Vendor         string
	Category       string
	SubCategory    string
	MinPrice       *float64
	MaxPrice       *float64
	DateFrom       string
	DateTo         string
	DocumentType   string
	ContractNumber string
	SortBy         string
	SortOrder      string
	Page           int
	PerPage        int
}
