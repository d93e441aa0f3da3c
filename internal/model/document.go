package model

import "time"

// DocumentStatus tracks a document through the normalization pipeline.
type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusExtracting DocumentStatus = "extracting"
	StatusMapping    DocumentStatus = "mapping"
	StatusReview     DocumentStatus = "review"
	StatusComplete   DocumentStatus = "complete"
	StatusFailed     DocumentStatus = "failed"
)

// DefaultSessionID is the partition used when no tenant is supplied at the
// API boundary. Core code never assumes it.
const DefaultSessionID = "__default__"

// DocumentType values returned by the field mapper.
const (
	DocTypeVendorQuote     = "vendor_quote"
	DocTypePurchaseOrder   = "purchase_order"
	DocTypeInvoice         = "invoice"
	DocTypeBOM             = "bom"
	DocTypeContractMod     = "contract_mod"
	DocTypeTimesheet       = "timesheet"
	DocTypeObligation      = "obligation"
	DocTypeDeliveryReceipt = "delivery_receipt"
	DocTypeOther           = "other"
)

// Document is one uploaded procurement file and the metadata extracted
// from it.
type Document struct {
	ID string `json:"id"`

	// Source file
	OriginalFilename string `json:"original_filename"`
	FileFormat       string `json:"file_format"`
	FileSizeBytes    int64  `json:"file_size_bytes"`
	FileHash         string `json:"file_hash"`
	StoredPath       string `json:"stored_path"`

	// Classification and extracted metadata
	DocumentType             string   `json:"document_type,omitempty"`
	VendorName               string   `json:"vendor_name,omitempty"`
	DocumentNumber           string   `json:"document_number,omitempty"`
	DocumentDate             string   `json:"document_date,omitempty"`
	ContractNumber           string   `json:"contract_number,omitempty"`
	TaskOrderNumber          string   `json:"task_order_number,omitempty"`
	PeriodOfPerformanceStart string   `json:"period_of_performance_start,omitempty"`
	PeriodOfPerformanceEnd   string   `json:"period_of_performance_end,omitempty"`
	TotalAmount              *float64 `json:"total_amount,omitempty"`
	Currency                 string   `json:"currency,omitempty"`

	// Processing
	ProcessingStatus     DocumentStatus `json:"processing_status"`
	ExtractionMethod     string         `json:"extraction_method,omitempty"`
	ExtractionConfidence *float64       `json:"extraction_confidence,omitempty"`
	AIModelUsed          string         `json:"ai_model_used,omitempty"`

	// Review
	ReviewedBy  string `json:"reviewed_by,omitempty"`
	ReviewedAt  string `json:"reviewed_at,omitempty"`
	ReviewNotes string `json:"review_notes,omitempty"`

	ChunkCount int    `json:"chunk_count"`
	UploadedBy string `json:"uploaded_by,omitempty"`
	Notes      string `json:"notes,omitempty"`

	SessionID string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Populated on detail responses only.
	LineItemCount int        `json:"line_item_count"`
	LineItems     []LineItem `json:"line_items,omitempty"`
}

// DocumentFilter narrows document listings.
type DocumentFilter struct {
	DocumentType     string
	VendorName       string
	ProcessingStatus DocumentStatus
	Search           string
	Page             int
	PerPage          int
}
