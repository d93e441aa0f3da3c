// Package pipeline drives documents through extraction, AI field mapping,
// and chunking.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/procdoc/internal/chunk"
	"github.com/sells-group/procdoc/internal/extract"
	"github.com/sells-group/procdoc/internal/mapper"
	"github.com/sells-group/procdoc/internal/model"
	"github.com/sells-group/procdoc/internal/store"
)

// Extractor pulls tables and text from a stored document.
type Extractor interface {
	Extract(ctx context.Context, path string) (*extract.Result, error)
}

// FieldMapper maps extracted data to the canonical schema.
type FieldMapper interface {
	MapDocument(ctx context.Context, tables []extract.Record, documentText, fileFormat string, known []model.FieldMapping) *mapper.MapResult
}

// Processor runs the document pipeline: uploaded -> extracting -> mapping
// -> review. Failures at any stage land the document in failed with the
// reason recorded, never stuck in an intermediate state.
type Processor struct {
	store        store.Store
	extractor    Extractor
	mapper       FieldMapper
	modelID      string
	mapTimeout   time.Duration
	chunkSize    int
	chunkOverlap int
}

// Options configures a Processor.
type Options struct {
	ModelID      string
	MapTimeout   time.Duration
	ChunkSize    int
	ChunkOverlap int
}

// New creates a Processor.
func New(st store.Store, ex Extractor, fm FieldMapper, opts Options) *Processor {
	if opts.MapTimeout <= 0 {
		opts.MapTimeout = 120 * time.Second
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = chunk.DefaultSize
	}
	if opts.ChunkOverlap <= 0 {
		opts.ChunkOverlap = chunk.DefaultOverlap
	}
	return &Processor{
		store:        st,
		extractor:    ex,
		mapper:       fm,
		modelID:      opts.ModelID,
		mapTimeout:   opts.MapTimeout,
		chunkSize:    opts.ChunkSize,
		chunkOverlap: opts.ChunkOverlap,
	}
}

// Summary reports what a pipeline run produced.
type Summary struct {
	Document         *model.Document
	LineItemsCreated int
	ChunksCreated    int
}

// Process runs the full pipeline for one document. Only documents in the
// uploaded or failed state are eligible; a concurrent attempt on the same
// document loses the status handoff and returns store.ErrConflict.
func (p *Processor) Process(ctx context.Context, sessionID, docID string) (*Summary, error) {
	if err := p.store.TransitionStatus(ctx, sessionID, docID, model.StatusExtracting,
		model.StatusUploaded, model.StatusFailed); err != nil {
		return nil, err
	}

	doc, err := p.store.GetDocument(ctx, sessionID, docID)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("document_id", docID), zap.String("filename", doc.OriginalFilename))
	log.Info("extraction started", zap.String("format", doc.FileFormat))

	extraction, err := p.extractor.Extract(ctx, doc.StoredPath)
	if err != nil {
		return nil, p.fail(ctx, doc, eris.Wrap(err, "extraction"))
	}
	doc.ExtractionMethod = extraction.Method
	log.Info("extraction finished",
		zap.String("method", extraction.Method),
		zap.Int("tables", len(extraction.Tables)),
		zap.Int("pages", extraction.PageCount))

	if err := p.store.TransitionStatus(ctx, sessionID, docID, model.StatusMapping, model.StatusExtracting); err != nil {
		return nil, err
	}

	var known []model.FieldMapping
	if doc.VendorName != "" {
		known, err = p.store.ListFieldMappings(ctx, sessionID, doc.VendorName)
		if err != nil {
			return nil, p.fail(ctx, doc, eris.Wrap(err, "load field mappings"))
		}
	}

	mapCtx, cancel := context.WithTimeout(ctx, p.mapTimeout)
	defer cancel()
	result := p.mapper.MapDocument(mapCtx, extraction.Tables, extraction.FullText, doc.FileFormat, known)
	if result.Error != "" {
		return nil, p.fail(ctx, doc, eris.New(result.Error))
	}

	p.applyMetadata(doc, result)

	// Reprocessing runs through here too, so clear any prior output first.
	if err := p.store.DeleteLineItemsByDocument(ctx, sessionID, docID); err != nil {
		return nil, p.fail(ctx, doc, err)
	}
	if err := p.store.DeleteChunksByDocument(ctx, sessionID, docID); err != nil {
		return nil, p.fail(ctx, doc, err)
	}

	items := buildLineItems(doc, result.LineItems, sessionID)
	if err := p.store.InsertLineItems(ctx, items); err != nil {
		return nil, p.fail(ctx, doc, err)
	}

	chunks := buildTextChunks(doc, extraction.FullText, sessionID, p.chunkSize, p.chunkOverlap)
	chunks = append(chunks, buildTableChunks(doc, items, sessionID)...)
	if err := p.store.InsertChunks(ctx, chunks); err != nil {
		return nil, p.fail(ctx, doc, err)
	}
	doc.ChunkCount = len(chunks)

	if conf := meanConfidence(result.LineItems); conf != nil {
		doc.ExtractionConfidence = conf
	}

	doc.ProcessingStatus = model.StatusReview
	if err := p.store.UpdateDocument(ctx, doc); err != nil {
		return nil, err
	}

	log.Info("pipeline finished",
		zap.String("document_type", doc.DocumentType),
		zap.Int("line_items", len(items)),
		zap.Int("chunks", len(chunks)))

	return &Summary{
		Document:         doc,
		LineItemsCreated: len(items),
		ChunksCreated:    len(chunks),
	}, nil
}

// Approve marks a reviewed document complete. Only documents in review are
// eligible.
func (p *Processor) Approve(ctx context.Context, sessionID, docID, reviewer, notes string) (*model.Document, error) {
	if err := p.store.TransitionStatus(ctx, sessionID, docID, model.StatusComplete,
		model.StatusReview); err != nil {
		return nil, err
	}

	doc, err := p.store.GetDocument(ctx, sessionID, docID)
	if err != nil {
		return nil, err
	}

	doc.ReviewedBy = reviewer
	doc.ReviewedAt = time.Now().UTC().Format(time.RFC3339)
	if notes != "" {
		doc.ReviewNotes = notes
	}

	if err := p.store.UpdateDocument(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Reprocess clears extracted output and resets the document to uploaded.
// Documents mid-pipeline are not eligible; deleting their output under a
// running Process call would let both runs write.
func (p *Processor) Reprocess(ctx context.Context, sessionID, docID string) (*model.Document, error) {
	if err := p.store.TransitionStatus(ctx, sessionID, docID, model.StatusUploaded,
		model.StatusReview, model.StatusComplete, model.StatusFailed); err != nil {
		return nil, err
	}

	doc, err := p.store.GetDocument(ctx, sessionID, docID)
	if err != nil {
		return nil, err
	}

	if err := p.store.DeleteLineItemsByDocument(ctx, sessionID, docID); err != nil {
		return nil, err
	}
	if err := p.store.DeleteChunksByDocument(ctx, sessionID, docID); err != nil {
		return nil, err
	}

	doc.ProcessingStatus = model.StatusUploaded
	doc.ExtractionMethod = ""
	doc.ExtractionConfidence = nil
	doc.AIModelUsed = ""
	doc.ChunkCount = 0
	doc.ReviewedBy = ""
	doc.ReviewedAt = ""
	doc.ReviewNotes = ""

	if err := p.store.UpdateDocument(ctx, doc); err != nil {
		return nil, err
	}
	doc.LineItemCount = 0
	return doc, nil
}

// fail records the failure reason on the document and passes the original
// error through.
func (p *Processor) fail(ctx context.Context, doc *model.Document, cause error) error {
	zap.L().Error("pipeline failed", zap.String("document_id", doc.ID), zap.Error(cause))

	doc.ProcessingStatus = model.StatusFailed
	doc.Notes = fmt.Sprintf("Processing error: %v", cause)
	if err := p.store.UpdateDocument(ctx, doc); err != nil {
		zap.L().Error("could not record failure", zap.String("document_id", doc.ID), zap.Error(err))
	}
	return cause
}

// applyMetadata merges mapped metadata into the document. Mapped values win
// only when non-empty, so operator-entered fields survive a mapping that
// could not find them.
func (p *Processor) applyMetadata(doc *model.Document, result *mapper.MapResult) {
	if result.DocumentType != "" {
		doc.DocumentType = result.DocumentType
	}
	md := result.Metadata
	doc.VendorName = firstNonEmpty(md.VendorName, doc.VendorName)
	doc.DocumentNumber = firstNonEmpty(md.DocumentNumber, doc.DocumentNumber)
	doc.DocumentDate = firstNonEmpty(md.DocumentDate, doc.DocumentDate)
	doc.ContractNumber = firstNonEmpty(md.ContractNumber, doc.ContractNumber)
	doc.TaskOrderNumber = firstNonEmpty(md.TaskOrderNumber, doc.TaskOrderNumber)
	doc.PeriodOfPerformanceStart = firstNonEmpty(md.PeriodOfPerformanceStart, doc.PeriodOfPerformanceStart)
	doc.PeriodOfPerformanceEnd = firstNonEmpty(md.PeriodOfPerformanceEnd, doc.PeriodOfPerformanceEnd)
	if v := md.TotalAmount.Ptr(); v != nil {
		doc.TotalAmount = v
	}
	doc.AIModelUsed = p.modelID
}

func buildLineItems(doc *model.Document, mapped []mapper.MappedItem, sessionID string) []model.LineItem {
	items := make([]model.LineItem, 0, len(mapped))
	for _, mi := range mapped {
		raw, _ := json.Marshal(mi)
		items = append(items, model.LineItem{
			DocumentID:         doc.ID,
			LineNumber:         mi.LineNumber.Ptr(),
			CLIN:               mi.CLIN,
			PartNumber:         mi.PartNumber,
			Manufacturer:       mi.Manufacturer,
			ProductName:        mi.ProductName,
			ProductDescription: mi.ProductDescription,
			Category:           mi.Category,
			SubCategory:        mi.SubCategory,
			Quantity:           mi.Quantity.Ptr(),
			UnitOfIssue:        mi.UnitOfIssue,
			UnitPrice:          mi.UnitPrice.Ptr(),
			ExtendedPrice:      mi.ExtendedPrice.Ptr(),
			LaborCategory:      mi.LaborCategory,
			LaborHours:         mi.LaborHours.Ptr(),
			LaborRate:          mi.LaborRate.Ptr(),
			MappingConfidence:  mi.MappingConfidence.Ptr(),
			OriginalRowText:    string(raw),
			SessionID:          sessionID,
		})
	}
	return items
}

func buildTextChunks(doc *model.Document, fullText, sessionID string, size, overlap int) []model.DocumentChunk {
	pieces := chunk.SplitParagraphs(fullText, size, overlap)
	chunks := make([]model.DocumentChunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, model.DocumentChunk{
			DocumentID: doc.ID,
			ChunkIndex: i,
			Content:    piece,
			ChunkType:  model.ChunkTypeParagraph,
			SessionID:  sessionID,
		})
	}
	return chunks
}

// buildTableChunks makes structured line item fields reachable through the
// same text search as document prose. Indexed independently of the text
// chunks, matching one chunk per line item.
func buildTableChunks(doc *model.Document, items []model.LineItem, sessionID string) []model.DocumentChunk {
	pieces := chunk.LineItemChunks(doc, items)
	chunks := make([]model.DocumentChunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, model.DocumentChunk{
			DocumentID: doc.ID,
			ChunkIndex: i,
			Content:    piece,
			ChunkType:  model.ChunkTypeTable,
			SessionID:  sessionID,
		})
	}
	return chunks
}

// meanConfidence averages the per-row confidences the model reported,
// rounded to three decimals. Nil when no row carried one.
func meanConfidence(items []mapper.MappedItem) *float64 {
	var sum float64
	n := 0
	for _, it := range items {
		if it.MappingConfidence.Valid {
			sum += it.MappingConfidence.Value
			n++
		}
	}
	if n == 0 {
		return nil
	}
	mean := math.Round(sum/float64(n)*1000) / 1000
	return &mean
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
