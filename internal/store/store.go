package store

import (
	"context"
	"errors"

	"github.com/sells-group/procdoc/internal/model"
)

// ErrNotFound is returned when an entity id does not exist in the store.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a compare-and-swap status transition fails
// because the document was not in any of the expected states.
var ErrConflict = errors.New("status conflict")

// SpendBucket is one aggregation row in the spend analysis.
type SpendBucket struct {
	Key   string  `json:"key"`
	Total float64 `json:"total"`
}

// SpendAnalysis aggregates extended prices across line items.
type SpendAnalysis struct {
	ByVendor   []SpendBucket `json:"spend_by_vendor"`
	ByCategory []SpendBucket `json:"spend_by_category"`
	OverTime   []SpendBucket `json:"spend_over_time"`
}

// DashboardStats summarizes the whole partition for the dashboard.
type DashboardStats struct {
	DocumentCount   int            `json:"document_count"`
	DocumentsByType []SpendBucket  `json:"documents_by_type"`
	StatusCounts    map[string]int `json:"status_counts"`
	LineItemCount   int            `json:"line_item_count"`
	TotalSpend      float64        `json:"total_spend"`
	VendorCount     int            `json:"vendor_count"`
	ProductCount    int            `json:"product_count"`
}

// Store defines the persistence interface for the normalization pipeline
// and the retrieval layer. Every method is scoped by session id.
type Store interface {
	// Documents
	CreateDocument(ctx context.Context, doc *model.Document) error
	GetDocument(ctx context.Context, sessionID, id string) (*model.Document, error)
	ListDocuments(ctx context.Context, sessionID string, filter model.DocumentFilter) ([]model.Document, int, error)
	UpdateDocument(ctx context.Context, doc *model.Document) error
	// TransitionStatus atomically moves a document from one of the expected
	// states to the target state. Returns ErrConflict when the document is
	// not currently in any expected state.
	TransitionStatus(ctx context.Context, sessionID, id string, to model.DocumentStatus, from ...model.DocumentStatus) error
	DeleteDocument(ctx context.Context, sessionID, id string) error

	// Line items
	InsertLineItems(ctx context.Context, items []model.LineItem) error
	GetLineItem(ctx context.Context, sessionID, id string) (*model.LineItem, error)
	ListLineItems(ctx context.Context, sessionID string, filter model.LineItemFilter) ([]model.LineItem, int, error)
	ListLineItemsByDocument(ctx context.Context, sessionID, documentID string) ([]model.LineItem, error)
	ListLineItemsByProduct(ctx context.Context, sessionID, productName string, limit int) ([]model.LineItem, error)
	ListAllLineItems(ctx context.Context, sessionID string) ([]model.LineItem, error)
	UpdateLineItem(ctx context.Context, item *model.LineItem) error
	DeleteLineItemsByDocument(ctx context.Context, sessionID, documentID string) error
	SearchLineItems(ctx context.Context, sessionID string, terms []string, limit int) ([]model.LineItem, error)

	// Chunks
	InsertChunks(ctx context.Context, chunks []model.DocumentChunk) error
	DeleteChunksByDocument(ctx context.Context, sessionID, documentID string) error
	SearchChunks(ctx context.Context, sessionID string, terms []string, limit int) ([]model.DocumentChunk, error)

	// Field-mapping memory
	ListFieldMappings(ctx context.Context, sessionID, vendorName string) ([]model.FieldMapping, error)
	ReinforceFieldMapping(ctx context.Context, sessionID, vendorName, sourceColumn, targetField string) (*model.FieldMapping, error)

	// Canonical products
	ListProducts(ctx context.Context, sessionID string, filter model.ProductFilter) ([]model.CanonicalProduct, int, error)
	GetProduct(ctx context.Context, sessionID, id string) (*model.CanonicalProduct, error)
	GetProductByName(ctx context.Context, sessionID, name string) (*model.CanonicalProduct, error)
	UpsertProduct(ctx context.Context, product *model.CanonicalProduct) (created bool, err error)

	// Aggregations
	SpendAnalysis(ctx context.Context, sessionID string) (*SpendAnalysis, error)
	DashboardStats(ctx context.Context, sessionID string) (*DashboardStats, error)
	DistinctVendors(ctx context.Context, sessionID string, limit int) ([]string, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
