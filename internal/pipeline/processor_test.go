package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/procdoc/internal/extract"
	"github.com/sells-group/procdoc/internal/mapper"
	"github.com/sells-group/procdoc/internal/model"
	"github.com/sells-group/procdoc/internal/store"
)

type fakeExtractor struct {
	result *extract.Result
	err    error
}

func (f *fakeExtractor) Extract(context.Context, string) (*extract.Result, error) {
	return f.result, f.err
}

type fakeMapper struct {
	result *mapper.MapResult
	known  []model.FieldMapping
}

func (f *fakeMapper) MapDocument(_ context.Context, _ []extract.Record, _, _ string, known []model.FieldMapping) *mapper.MapResult {
	f.known = known
	return f.result
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedDoc(t *testing.T, s store.Store, vendor string) *model.Document {
	t.Helper()
	doc := &model.Document{
		OriginalFilename: "quote.xlsx",
		FileFormat:       "xlsx",
		VendorName:       vendor,
		StoredPath:       "/tmp/quote.xlsx",
	}
	require.NoError(t, s.CreateDocument(context.Background(), doc))
	return doc
}

func ff(v float64) mapper.FlexFloat { return mapper.FlexFloat{Value: v, Valid: true} }
func fi(v int) mapper.FlexInt       { return mapper.FlexInt{Value: v, Valid: true} }

func goodMapResult() *mapper.MapResult {
	return &mapper.MapResult{
		DocumentType: model.DocTypeVendorQuote,
		Metadata: mapper.Metadata{
			VendorName:     "Acme Federal",
			DocumentNumber: "Q-2025-014",
			DocumentDate:   "2025-03-14",
			TotalAmount:    ff(10450),
		},
		LineItems: []mapper.MappedItem{
			{
				LineNumber:        fi(1),
				PartNumber:        "C9300-48P",
				ProductName:       "Catalyst 9300",
				Category:          model.CategoryHardware,
				Quantity:          ff(2),
				UnitPrice:         ff(5000),
				ExtendedPrice:     ff(10000),
				MappingConfidence: ff(0.95),
			},
			{
				LineNumber:        fi(2),
				ProductName:       "Smartnet Support",
				Category:          model.CategoryService,
				ExtendedPrice:     ff(450),
				MappingConfidence: ff(0.8),
			},
		},
	}
}

func TestProcess_HappyPath(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := seedDoc(t, s, "")

	ex := &fakeExtractor{result: &extract.Result{
		Tables:   []extract.Record{{"Part Number": "C9300-48P"}},
		FullText: "Quote Q-2025-014 from Acme Federal.",
		Method:   "tealeg-xlsx",
	}}
	p := New(s, ex, &fakeMapper{result: goodMapResult()}, Options{ModelID: "claude-sonnet-4-5-20250929"})

	summary, err := p.Process(ctx, model.DefaultSessionID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.LineItemsCreated)
	// one paragraph chunk from the full text, one table chunk per line item
	assert.Equal(t, 3, summary.ChunksCreated)

	got, err := s.GetDocument(ctx, model.DefaultSessionID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReview, got.ProcessingStatus)
	assert.Equal(t, model.DocTypeVendorQuote, got.DocumentType)
	assert.Equal(t, "Acme Federal", got.VendorName)
	assert.Equal(t, "tealeg-xlsx", got.ExtractionMethod)
	assert.Equal(t, "claude-sonnet-4-5-20250929", got.AIModelUsed)
	assert.Equal(t, 3, got.ChunkCount)
	require.NotNil(t, got.ExtractionConfidence)
	assert.InDelta(t, 0.875, *got.ExtractionConfidence, 0.0001)
	require.NotNil(t, got.TotalAmount)
	assert.InDelta(t, 10450, *got.TotalAmount, 0.001)

	items, err := s.ListLineItemsByDocument(ctx, model.DefaultSessionID, doc.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Catalyst 9300", items[0].ProductName)
	assert.Contains(t, items[0].OriginalRowText, "C9300-48P")
}

func TestProcess_TableChunksSearchable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := seedDoc(t, s, "")

	// The part number appears only in the structured rows, never in the
	// document text.
	ex := &fakeExtractor{result: &extract.Result{
		FullText: "Quote attached.",
		Method:   "tealeg-xlsx",
	}}
	p := New(s, ex, &fakeMapper{result: goodMapResult()}, Options{})

	_, err := p.Process(ctx, model.DefaultSessionID, doc.ID)
	require.NoError(t, err)

	chunks, err := s.SearchChunks(ctx, model.DefaultSessionID, []string{"C9300-48P"}, 10)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, model.ChunkTypeTable, chunks[0].ChunkType)
	assert.Contains(t, chunks[0].Content, "Vendor: Acme Federal")
	assert.Contains(t, chunks[0].Content, "Document: Q-2025-014 (vendor_quote)")
	assert.Contains(t, chunks[0].Content, "Unit Price: $5,000.00")
}

func TestProcess_ConcurrentAttemptConflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := seedDoc(t, s, "")

	require.NoError(t, s.TransitionStatus(ctx, model.DefaultSessionID, doc.ID, model.StatusExtracting))

	p := New(s, &fakeExtractor{}, &fakeMapper{result: goodMapResult()}, Options{})
	_, err := p.Process(ctx, model.DefaultSessionID, doc.ID)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestProcess_ExtractionFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := seedDoc(t, s, "")

	p := New(s, &fakeExtractor{err: eris.New("pdftotext exited 1")}, &fakeMapper{}, Options{})
	_, err := p.Process(ctx, model.DefaultSessionID, doc.ID)
	require.Error(t, err)

	got, err := s.GetDocument(ctx, model.DefaultSessionID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.ProcessingStatus)
	assert.Contains(t, got.Notes, "pdftotext exited 1")
}

func TestProcess_MappingError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := seedDoc(t, s, "")

	fm := &fakeMapper{result: &mapper.MapResult{
		DocumentType: model.DocTypeOther,
		LineItems:    []mapper.MappedItem{},
		Error:        "JSON parse error: unexpected token",
	}}
	p := New(s, &fakeExtractor{result: &extract.Result{FullText: "text"}}, fm, Options{})

	_, err := p.Process(ctx, model.DefaultSessionID, doc.ID)
	require.Error(t, err)

	got, err := s.GetDocument(ctx, model.DefaultSessionID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.ProcessingStatus)
	assert.Contains(t, got.Notes, "JSON parse error")

	// A failed document is eligible for another attempt.
	fm.result = goodMapResult()
	_, err = p.Process(ctx, model.DefaultSessionID, doc.ID)
	assert.NoError(t, err)
}

func TestProcess_PassesKnownMappings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := seedDoc(t, s, "Acme Federal")

	_, err := s.ReinforceFieldMapping(ctx, model.DefaultSessionID, "Acme Federal", "Part No.", "part_number")
	require.NoError(t, err)

	fm := &fakeMapper{result: goodMapResult()}
	p := New(s, &fakeExtractor{result: &extract.Result{FullText: "t"}}, fm, Options{})
	_, err = p.Process(ctx, model.DefaultSessionID, doc.ID)
	require.NoError(t, err)

	require.Len(t, fm.known, 1)
	assert.Equal(t, "part_number", fm.known[0].TargetField)
}

func TestProcess_MetadataMergePreservesExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := seedDoc(t, s, "Pre-set Vendor")
	doc.ContractNumber = "GS-35F-0001"
	require.NoError(t, s.UpdateDocument(ctx, doc))

	result := goodMapResult()
	result.Metadata.VendorName = ""     // mapping found nothing
	result.Metadata.ContractNumber = "" // ditto
	p := New(s, &fakeExtractor{result: &extract.Result{FullText: "t"}}, &fakeMapper{result: result}, Options{})

	_, err := p.Process(ctx, model.DefaultSessionID, doc.ID)
	require.NoError(t, err)

	got, err := s.GetDocument(ctx, model.DefaultSessionID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pre-set Vendor", got.VendorName)
	assert.Equal(t, "GS-35F-0001", got.ContractNumber)
}

func TestApprove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := seedDoc(t, s, "")
	require.NoError(t, s.TransitionStatus(ctx, model.DefaultSessionID, doc.ID, model.StatusReview))

	p := New(s, &fakeExtractor{}, &fakeMapper{}, Options{})
	got, err := p.Approve(ctx, model.DefaultSessionID, doc.ID, "jordan", "prices spot checked")
	require.NoError(t, err)

	assert.Equal(t, model.StatusComplete, got.ProcessingStatus)
	assert.Equal(t, "jordan", got.ReviewedBy)
	assert.NotEmpty(t, got.ReviewedAt)
	assert.Equal(t, "prices spot checked", got.ReviewNotes)

	_, err = p.Approve(ctx, model.DefaultSessionID, "missing", "jordan", "")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestApprove_RequiresReviewStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := seedDoc(t, s, "")

	p := New(s, &fakeExtractor{}, &fakeMapper{}, Options{})
	_, err := p.Approve(ctx, model.DefaultSessionID, doc.ID, "jordan", "")
	assert.ErrorIs(t, err, store.ErrConflict)

	got, err := s.GetDocument(ctx, model.DefaultSessionID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusUploaded, got.ProcessingStatus)
	assert.Empty(t, got.ReviewedBy)
}

func TestReprocess(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := seedDoc(t, s, "")

	ex := &fakeExtractor{result: &extract.Result{FullText: "some text", Method: "tealeg-xlsx"}}
	p := New(s, ex, &fakeMapper{result: goodMapResult()}, Options{ModelID: "m"})
	_, err := p.Process(ctx, model.DefaultSessionID, doc.ID)
	require.NoError(t, err)

	got, err := p.Reprocess(ctx, model.DefaultSessionID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusUploaded, got.ProcessingStatus)
	assert.Empty(t, got.ExtractionMethod)
	assert.Nil(t, got.ExtractionConfidence)
	assert.Zero(t, got.ChunkCount)

	items, err := s.ListLineItemsByDocument(ctx, model.DefaultSessionID, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, items)

	// And it can run again from scratch.
	_, err = p.Process(ctx, model.DefaultSessionID, doc.ID)
	assert.NoError(t, err)
}

func TestReprocess_ConflictsWhileProcessing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ex := &fakeExtractor{result: &extract.Result{FullText: "some text", Method: "tealeg-xlsx"}}
	p := New(s, ex, &fakeMapper{result: goodMapResult()}, Options{})

	for _, status := range []model.DocumentStatus{model.StatusExtracting, model.StatusMapping} {
		doc := seedDoc(t, s, "")
		_, err := p.Process(ctx, model.DefaultSessionID, doc.ID)
		require.NoError(t, err)

		items, err := s.ListLineItemsByDocument(ctx, model.DefaultSessionID, doc.ID)
		require.NoError(t, err)
		require.NotEmpty(t, items)

		// Another worker has picked the document back up.
		require.NoError(t, s.TransitionStatus(ctx, model.DefaultSessionID, doc.ID, status))

		_, err = p.Reprocess(ctx, model.DefaultSessionID, doc.ID)
		assert.ErrorIs(t, err, store.ErrConflict, "status %s", status)

		// The in-flight run's output is untouched.
		items, err = s.ListLineItemsByDocument(ctx, model.DefaultSessionID, doc.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, items, "status %s", status)
	}
}
