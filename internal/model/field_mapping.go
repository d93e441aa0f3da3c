package model

import "time"

// FieldMapping is a learned association between a vendor's raw column name
// and a canonical field. Confidence grows as humans confirm corrections and
// is capped at 1.0. Mappings with an empty vendor act as global fallbacks.
type FieldMapping struct {
	ID               string    `json:"id"`
	VendorName       string    `json:"vendor_name,omitempty"`
	SourceColumnName string    `json:"source_column_name"`
	TargetField      string    `json:"target_field"`
	Confidence       float64   `json:"confidence"`
	TimesConfirmed   int       `json:"times_confirmed"`
	SessionID        string    `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
}

// Reinforcement constants for the correction feedback loop.
const (
	MappingSeedConfidence = 0.9
	MappingConfidenceStep = 0.05
	MappingConfidenceCap  = 1.0
)
