package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/procdoc/internal/model"
	"github.com/sells-group/procdoc/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedPurchases(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	older := &model.Document{
		OriginalFilename: "q1.xlsx", FileFormat: "xlsx",
		VendorName: "Acme Federal", DocumentDate: "2025-01-10",
	}
	newer := &model.Document{
		OriginalFilename: "q2.xlsx", FileFormat: "xlsx",
		VendorName: "Globex Corp", DocumentDate: "2025-06-01",
	}
	require.NoError(t, s.CreateDocument(ctx, older))
	require.NoError(t, s.CreateDocument(ctx, newer))

	p1, p2, p3 := 5000.0, 4800.0, 120.0
	require.NoError(t, s.InsertLineItems(ctx, []model.LineItem{
		{DocumentID: older.ID, ProductName: "PowerEdge R750", PartNumber: "SRV-100", Manufacturer: "Dell", Category: model.CategoryHardware, UnitPrice: &p1},
		{DocumentID: newer.ID, ProductName: "PowerEdge R750", PartNumber: "SRV-100B", Manufacturer: "Dell", Category: model.CategoryHardware, UnitPrice: &p2},
		{DocumentID: newer.ID, ProductName: "Patch Cable", UnitPrice: &p3},
		{DocumentID: newer.ID, ProductName: ""}, // no name, skipped
	}))
}

func TestRebuild(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedPurchases(t, s)

	svc := New(s)
	result, err := svc.Rebuild(ctx, model.DefaultSessionID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Zero(t, result.Updated)
	assert.Equal(t, 2, result.Total)

	product, err := s.GetProductByName(ctx, model.DefaultSessionID, "PowerEdge R750")
	require.NoError(t, err)
	assert.Equal(t, model.CategoryHardware, product.Category)
	assert.Equal(t, "Dell", product.Manufacturer)
	assert.ElementsMatch(t, []string{"SRV-100", "SRV-100B"}, product.KnownPartNumbers)
	require.NotNil(t, product.AvgPrice)
	assert.InDelta(t, 4900, *product.AvgPrice, 0.001)
	assert.InDelta(t, 4800, *product.MinPrice, 0.001)
	assert.InDelta(t, 5000, *product.MaxPrice, 0.001)
	// Last price comes from the most recent document date.
	require.NotNil(t, product.LastKnownPrice)
	assert.InDelta(t, 4800, *product.LastKnownPrice, 0.001)
	assert.Equal(t, "2025-06-01", product.LastPriceDate)
	require.Len(t, product.PriceHistory, 2)
	assert.Equal(t, "2025-01-10", product.PriceHistory[0].Date)
	assert.Equal(t, "Globex Corp", product.PriceHistory[1].Vendor)
}

func TestRebuild_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedPurchases(t, s)

	svc := New(s)
	_, err := svc.Rebuild(ctx, model.DefaultSessionID)
	require.NoError(t, err)

	result, err := svc.Rebuild(ctx, model.DefaultSessionID)
	require.NoError(t, err)
	assert.Zero(t, result.Created)
	assert.Equal(t, 2, result.Updated)

	products, total, err := s.ListProducts(ctx, model.DefaultSessionID, model.ProductFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, products, 2)
}

func TestRebuild_PreservesAliases(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedPurchases(t, s)

	_, err := s.UpsertProduct(ctx, &model.CanonicalProduct{
		CanonicalName: "PowerEdge R750",
		KnownAliases:  []string{"R750 Server"},
	})
	require.NoError(t, err)

	svc := New(s)
	_, err = svc.Rebuild(ctx, model.DefaultSessionID)
	require.NoError(t, err)

	product, err := s.GetProductByName(ctx, model.DefaultSessionID, "PowerEdge R750")
	require.NoError(t, err)
	assert.Equal(t, []string{"R750 Server"}, product.KnownAliases)
}

func TestGenerateEstimate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedPurchases(t, s)

	svc := New(s)
	_, err := svc.Rebuild(ctx, model.DefaultSessionID)
	require.NoError(t, err)

	product, err := s.GetProductByName(ctx, model.DefaultSessionID, "PowerEdge R750")
	require.NoError(t, err)

	est, err := svc.GenerateEstimate(ctx, model.DefaultSessionID, product.ID, 10, 0.03)
	require.NoError(t, err)

	assert.Equal(t, "PowerEdge R750", est.ProductName)
	assert.InDelta(t, 4900, est.AvgUnitPrice, 0.001)
	assert.InDelta(t, 5047, est.EstimatedUnitPrice, 0.001) // 4900 * 1.03
	assert.InDelta(t, 50470, est.EstimatedTotal, 0.001)
	assert.Equal(t, 2, est.DataPoints)
	require.Len(t, est.PriceSources, 2)
	// Sources are most recent first.
	assert.Equal(t, "2025-06-01", est.PriceSources[0].Date)
}

func TestGenerateEstimate_NoPricing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertProduct(ctx, &model.CanonicalProduct{CanonicalName: "Mystery Box"})
	require.NoError(t, err)
	product, err := s.GetProductByName(ctx, model.DefaultSessionID, "Mystery Box")
	require.NoError(t, err)

	svc := New(s)
	_, err = svc.GenerateEstimate(ctx, model.DefaultSessionID, product.ID, 1, DefaultEscalationRate)
	assert.ErrorIs(t, err, ErrNoPricing)
}

func TestGenerateEstimate_MissingProduct(t *testing.T) {
	s := newTestStore(t)
	svc := New(s)
	_, err := svc.GenerateEstimate(context.Background(), model.DefaultSessionID, "nope", 1, 0.03)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
