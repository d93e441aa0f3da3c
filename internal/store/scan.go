package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/procdoc/internal/model"
)

// rowScanner is satisfied by *sql.Row, *sql.Rows, pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// result abstracts sql.Result for the sqlite backend.
type result interface {
	RowsAffected() (int64, error)
}

func checkRowsAffected(res result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "store: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var doc model.Document
	var (
		fileHash, storedPath, docType, vendor, docNum, docDate               sql.NullString
		contract, taskOrder, popStart, popEnd, currency                     sql.NullString
		method, aiModel, reviewedBy, reviewedAt, reviewNotes                sql.NullString
		uploadedBy, notes                                                   sql.NullString
		totalAmount, confidence                                             sql.NullFloat64
		status                                                              string
	)

	err := row.Scan(&doc.ID, &doc.OriginalFilename, &doc.FileFormat, &doc.FileSizeBytes, &fileHash,
		&storedPath, &docType, &vendor, &docNum, &docDate,
		&contract, &taskOrder, &popStart, &popEnd, &totalAmount, &currency,
		&status, &method, &confidence, &aiModel,
		&reviewedBy, &reviewedAt, &reviewNotes, &doc.ChunkCount, &uploadedBy, &notes,
		&doc.SessionID, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, eris.Wrap(ErrNotFound, "document")
		}
		return nil, eris.Wrap(err, "store: scan document")
	}

	doc.FileHash = fileHash.String
	doc.StoredPath = storedPath.String
	doc.DocumentType = docType.String
	doc.VendorName = vendor.String
	doc.DocumentNumber = docNum.String
	doc.DocumentDate = docDate.String
	doc.ContractNumber = contract.String
	doc.TaskOrderNumber = taskOrder.String
	doc.PeriodOfPerformanceStart = popStart.String
	doc.PeriodOfPerformanceEnd = popEnd.String
	doc.Currency = currency.String
	doc.ProcessingStatus = model.DocumentStatus(status)
	doc.ExtractionMethod = method.String
	doc.AIModelUsed = aiModel.String
	doc.ReviewedBy = reviewedBy.String
	doc.ReviewedAt = reviewedAt.String
	doc.ReviewNotes = reviewNotes.String
	doc.UploadedBy = uploadedBy.String
	doc.Notes = notes.String
	if totalAmount.Valid {
		doc.TotalAmount = &totalAmount.Float64
	}
	if confidence.Valid {
		doc.ExtractionConfidence = &confidence.Float64
	}
	return &doc, nil
}

func scanLineItem(row rowScanner) (*model.LineItem, error) {
	var it model.LineItem
	var (
		lineNumber                                                        sql.NullInt64
		clin, slin, partNum, mfr, mfrPart, name, desc                     sql.NullString
		category, subCategory, uoi, laborCat, periodStart, periodEnd      sql.NullString
		rowText                                                           sql.NullString
		qty, unitPrice, extPrice, discPct, discAmt, hours, rate, conf     sql.NullFloat64
		verified                                                          int
		vendor, docNum, docType, docDate, contractNum, filename           sql.NullString
	)

	err := row.Scan(&it.ID, &it.DocumentID, &lineNumber, &clin, &slin,
		&partNum, &mfr, &mfrPart, &name, &desc,
		&category, &subCategory, &qty, &uoi, &unitPrice, &extPrice,
		&discPct, &discAmt, &laborCat, &hours, &rate,
		&periodStart, &periodEnd, &conf, &verified, &rowText,
		&it.SessionID, &it.CreatedAt,
		&vendor, &docNum, &docType, &docDate, &contractNum, &filename)
	if err != nil {
		if isNoRows(err) {
			return nil, eris.Wrap(ErrNotFound, "line item")
		}
		return nil, eris.Wrap(err, "store: scan line item")
	}

	if lineNumber.Valid {
		n := int(lineNumber.Int64)
		it.LineNumber = &n
	}
	it.CLIN = clin.String
	it.SLIN = slin.String
	it.PartNumber = partNum.String
	it.Manufacturer = mfr.String
	it.ManufacturerPartNumber = mfrPart.String
	it.ProductName = name.String
	it.ProductDescription = desc.String
	it.Category = category.String
	it.SubCategory = subCategory.String
	it.UnitOfIssue = uoi.String
	it.LaborCategory = laborCat.String
	it.PeriodStart = periodStart.String
	it.PeriodEnd = periodEnd.String
	it.OriginalRowText = rowText.String
	it.HumanVerified = verified != 0
	it.Quantity = nullFloat(qty)
	it.UnitPrice = nullFloat(unitPrice)
	it.ExtendedPrice = nullFloat(extPrice)
	it.DiscountPercent = nullFloat(discPct)
	it.DiscountAmount = nullFloat(discAmt)
	it.LaborHours = nullFloat(hours)
	it.LaborRate = nullFloat(rate)
	it.MappingConfidence = nullFloat(conf)
	it.VendorName = vendor.String
	it.DocumentNumber = docNum.String
	it.DocumentType = docType.String
	it.DocumentDate = docDate.String
	it.ContractNumber = contractNum.String
	it.OriginalFilename = filename.String
	return &it, nil
}

func scanProduct(row rowScanner) (*model.CanonicalProduct, error) {
	var p model.CanonicalProduct
	var (
		category, manufacturer, lastPriceDate         sql.NullString
		partNumbers, aliases, history                 string
		lastPrice, avgPrice, minPrice, maxPrice       sql.NullFloat64
	)

	err := row.Scan(&p.ID, &p.CanonicalName, &category, &manufacturer, &partNumbers, &aliases,
		&lastPrice, &lastPriceDate, &avgPrice, &minPrice, &maxPrice, &history,
		&p.SessionID, &p.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, eris.Wrap(ErrNotFound, "product")
		}
		return nil, eris.Wrap(err, "store: scan product")
	}

	p.Category = category.String
	p.Manufacturer = manufacturer.String
	p.LastPriceDate = lastPriceDate.String
	p.LastKnownPrice = nullFloat(lastPrice)
	p.AvgPrice = nullFloat(avgPrice)
	p.MinPrice = nullFloat(minPrice)
	p.MaxPrice = nullFloat(maxPrice)

	// Stored JSON is best-effort; a corrupt value degrades to empty.
	if err := json.Unmarshal([]byte(partNumbers), &p.KnownPartNumbers); err != nil {
		p.KnownPartNumbers = []string{}
	}
	if err := json.Unmarshal([]byte(aliases), &p.KnownAliases); err != nil {
		p.KnownAliases = []string{}
	}
	if err := json.Unmarshal([]byte(history), &p.PriceHistory); err != nil {
		p.PriceHistory = []model.PricePoint{}
	}
	return &p, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func likePattern(term string) string {
	return "%" + strings.ToLower(strings.TrimSpace(term)) + "%"
}

func pageBounds(page, perPage int) (limit, offset int) {
	if perPage <= 0 {
		perPage = 25
	}
	if perPage > 100 {
		perPage = 100
	}
	if page <= 0 {
		page = 1
	}
	return perPage, (page - 1) * perPage
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func emptyIfNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func emptyIfNilHistory(h []model.PricePoint) []model.PricePoint {
	if h == nil {
		return []model.PricePoint{}
	}
	return h
}
