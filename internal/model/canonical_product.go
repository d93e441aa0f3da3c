package model

import "time"

// PricePoint is one observation in a canonical product's price history.
type PricePoint struct {
	Price  float64 `json:"price"`
	Date   string  `json:"date,omitempty"`
	Vendor string  `json:"vendor,omitempty"`
}

// CanonicalProduct is a derived, rebuildable price aggregate keyed by
// product name. It is a materialized view over line items, never a source
// of truth; the catalog rebuild recomputes every field.
type CanonicalProduct struct {
	ID            string `json:"id"`
	CanonicalName string `json:"canonical_name"`
	Category      string `json:"category,omitempty"`
	Manufacturer  string `json:"manufacturer,omitempty"`

	KnownPartNumbers []string `json:"known_part_numbers"`
	KnownAliases     []string `json:"known_aliases"`

	LastKnownPrice *float64     `json:"last_known_price,omitempty"`
	LastPriceDate  string       `json:"last_price_date,omitempty"`
	AvgPrice       *float64     `json:"avg_price,omitempty"`
	MinPrice       *float64     `json:"min_price,omitempty"`
	MaxPrice       *float64     `json:"max_price,omitempty"`
	PriceHistory   []PricePoint `json:"price_history"`

	SessionID string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// ProductFilter narrows catalog listings.
type ProductFilter struct {
	Search   string
	Category string
	Page     int
	PerPage  int
}
