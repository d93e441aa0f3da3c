package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/procdoc/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id                   TEXT PRIMARY KEY,
	original_filename    TEXT NOT NULL,
	file_format          TEXT NOT NULL,
	file_size_bytes      INTEGER NOT NULL DEFAULT 0,
	file_hash            TEXT,
	stored_path          TEXT,
	document_type        TEXT,
	vendor_name          TEXT,
	document_number      TEXT,
	document_date        TEXT,
	contract_number      TEXT,
	task_order_number    TEXT,
	pop_start            TEXT,
	pop_end              TEXT,
	total_amount         REAL,
	currency             TEXT NOT NULL DEFAULT 'USD',
	processing_status    TEXT NOT NULL DEFAULT 'uploaded',
	extraction_method    TEXT,
	extraction_confidence REAL,
	ai_model_used        TEXT,
	reviewed_by          TEXT,
	reviewed_at          TEXT,
	review_notes         TEXT,
	chunk_count          INTEGER NOT NULL DEFAULT 0,
	uploaded_by          TEXT,
	notes                TEXT,
	session_id           TEXT NOT NULL DEFAULT '__default__',
	created_at           DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at           DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS line_items (
	id                 TEXT PRIMARY KEY,
	document_id        TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	line_number        INTEGER,
	clin               TEXT,
	slin               TEXT,
	part_number        TEXT,
	manufacturer       TEXT,
	manufacturer_part_number TEXT,
	product_name       TEXT,
	product_description TEXT,
	category           TEXT,
	sub_category       TEXT,
	quantity           REAL,
	unit_of_issue      TEXT,
	unit_price         REAL,
	extended_price     REAL,
	discount_percent   REAL,
	discount_amount    REAL,
	labor_category     TEXT,
	labor_hours        REAL,
	labor_rate         REAL,
	period_start       TEXT,
	period_end         TEXT,
	mapping_confidence REAL,
	human_verified     INTEGER NOT NULL DEFAULT 0,
	original_row_text  TEXT,
	session_id         TEXT NOT NULL DEFAULT '__default__',
	created_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS document_chunks (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	chunk_index INTEGER NOT NULL,
	content     TEXT NOT NULL,
	chunk_type  TEXT,
	page_number INTEGER,
	session_id  TEXT NOT NULL DEFAULT '__default__',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS field_mappings (
	id                 TEXT PRIMARY KEY,
	vendor_name        TEXT NOT NULL DEFAULT '',
	source_column_name TEXT NOT NULL,
	target_field       TEXT NOT NULL,
	confidence         REAL NOT NULL DEFAULT 1.0,
	times_confirmed    INTEGER NOT NULL DEFAULT 1,
	session_id         TEXT NOT NULL DEFAULT '__default__',
	created_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (session_id, vendor_name, target_field)
);

CREATE TABLE IF NOT EXISTS canonical_products (
	id                 TEXT PRIMARY KEY,
	canonical_name     TEXT NOT NULL,
	category           TEXT,
	manufacturer       TEXT,
	known_part_numbers TEXT NOT NULL DEFAULT '[]',
	known_aliases      TEXT NOT NULL DEFAULT '[]',
	last_known_price   REAL,
	last_price_date    TEXT,
	avg_price          REAL,
	min_price          REAL,
	max_price          REAL,
	price_history      TEXT NOT NULL DEFAULT '[]',
	session_id         TEXT NOT NULL DEFAULT '__default__',
	created_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (session_id, canonical_name)
);

CREATE INDEX IF NOT EXISTS idx_documents_session ON documents(session_id);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(processing_status);
CREATE INDEX IF NOT EXISTS idx_documents_vendor ON documents(vendor_name);
CREATE INDEX IF NOT EXISTS idx_line_items_document ON line_items(document_id);
CREATE INDEX IF NOT EXISTS idx_line_items_session ON line_items(session_id);
CREATE INDEX IF NOT EXISTS idx_line_items_product ON line_items(product_name);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON document_chunks(document_id);
CREATE INDEX IF NOT EXISTS idx_chunks_session ON document_chunks(session_id);
CREATE INDEX IF NOT EXISTS idx_field_mappings_vendor ON field_mappings(vendor_name);
CREATE INDEX IF NOT EXISTS idx_products_name ON canonical_products(canonical_name);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Documents ---

const documentCols = `id, original_filename, file_format, file_size_bytes, file_hash,
	stored_path, document_type, vendor_name, document_number, document_date,
	contract_number, task_order_number, pop_start, pop_end, total_amount, currency,
	processing_status, extraction_method, extraction_confidence, ai_model_used,
	reviewed_by, reviewed_at, review_notes, chunk_count, uploaded_by, notes,
	session_id, created_at, updated_at`

func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *model.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.SessionID == "" {
		doc.SessionID = model.DefaultSessionID
	}
	if doc.ProcessingStatus == "" {
		doc.ProcessingStatus = model.StatusUploaded
	}
	if doc.Currency == "" {
		doc.Currency = "USD"
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (`+documentCols+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.OriginalFilename, doc.FileFormat, doc.FileSizeBytes, doc.FileHash,
		doc.StoredPath, doc.DocumentType, doc.VendorName, doc.DocumentNumber, doc.DocumentDate,
		doc.ContractNumber, doc.TaskOrderNumber, doc.PeriodOfPerformanceStart, doc.PeriodOfPerformanceEnd,
		doc.TotalAmount, doc.Currency,
		string(doc.ProcessingStatus), doc.ExtractionMethod, doc.ExtractionConfidence, doc.AIModelUsed,
		doc.ReviewedBy, doc.ReviewedAt, doc.ReviewNotes, doc.ChunkCount, doc.UploadedBy, doc.Notes,
		doc.SessionID, doc.CreatedAt, doc.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: insert document")
}

func (s *SQLiteStore) GetDocument(ctx context.Context, sessionID, id string) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentCols+` FROM documents WHERE session_id = ? AND id = ?`,
		sessionID, id,
	)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, err
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM line_items WHERE session_id = ? AND document_id = ?`,
		sessionID, id,
	).Scan(&doc.LineItemCount); err != nil {
		return nil, eris.Wrap(err, "sqlite: count line items")
	}
	return doc, nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, sessionID string, filter model.DocumentFilter) ([]model.Document, int, error) {
	where := `WHERE session_id = ?`
	args := []any{sessionID}

	if filter.DocumentType != "" {
		where += ` AND document_type = ?`
		args = append(args, filter.DocumentType)
	}
	if filter.VendorName != "" {
		where += ` AND lower(vendor_name) LIKE ?`
		args = append(args, likePattern(filter.VendorName))
	}
	if filter.ProcessingStatus != "" {
		where += ` AND processing_status = ?`
		args = append(args, string(filter.ProcessingStatus))
	}
	if filter.Search != "" {
		where += ` AND (lower(original_filename) LIKE ? OR lower(vendor_name) LIKE ?
			OR lower(document_number) LIKE ? OR lower(contract_number) LIKE ?)`
		p := likePattern(filter.Search)
		args = append(args, p, p, p, p)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents `+where, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: count documents")
	}

	limit, offset := pageBounds(filter.Page, filter.PerPage)
	query := `SELECT ` + documentCols + ` FROM documents ` + where +
		` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: list documents")
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, *doc)
	}
	return docs, total, eris.Wrap(rows.Err(), "sqlite: list documents rows")
}

func (s *SQLiteStore) UpdateDocument(ctx context.Context, doc *model.Document) error {
	doc.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET
			document_type = ?, vendor_name = ?, document_number = ?, document_date = ?,
			contract_number = ?, task_order_number = ?, pop_start = ?, pop_end = ?,
			total_amount = ?, currency = ?, processing_status = ?, extraction_method = ?,
			extraction_confidence = ?, ai_model_used = ?, reviewed_by = ?, reviewed_at = ?,
			review_notes = ?, chunk_count = ?, notes = ?, updated_at = ?
		 WHERE session_id = ? AND id = ?`,
		doc.DocumentType, doc.VendorName, doc.DocumentNumber, doc.DocumentDate,
		doc.ContractNumber, doc.TaskOrderNumber, doc.PeriodOfPerformanceStart, doc.PeriodOfPerformanceEnd,
		doc.TotalAmount, doc.Currency, string(doc.ProcessingStatus), doc.ExtractionMethod,
		doc.ExtractionConfidence, doc.AIModelUsed, doc.ReviewedBy, doc.ReviewedAt,
		doc.ReviewNotes, doc.ChunkCount, doc.Notes, doc.UpdatedAt,
		doc.SessionID, doc.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update document %s", doc.ID)
	}
	return checkRowsAffected(res, "document", doc.ID)
}

func (s *SQLiteStore) TransitionStatus(ctx context.Context, sessionID, id string, to model.DocumentStatus, from ...model.DocumentStatus) error {
	query := `UPDATE documents SET processing_status = ?, updated_at = ? WHERE session_id = ? AND id = ?`
	args := []any{string(to), time.Now().UTC(), sessionID, id}
	if len(from) > 0 {
		query += ` AND processing_status IN (` + placeholders(len(from)) + `)`
		for _, f := range from {
			args = append(args, string(f))
		}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: transition document %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		// Distinguish a missing document from a failed CAS.
		var exists int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM documents WHERE session_id = ? AND id = ?`, sessionID, id,
		).Scan(&exists); err != nil {
			return eris.Wrap(err, "sqlite: transition lookup")
		}
		if exists == 0 {
			return eris.Wrapf(ErrNotFound, "document %s", id)
		}
		return eris.Wrapf(ErrConflict, "document %s not in expected state", id)
	}
	return nil
}

func (s *SQLiteStore) DeleteDocument(ctx context.Context, sessionID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE session_id = ? AND id = ?`, sessionID, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete document %s", id)
	}
	return checkRowsAffected(res, "document", id)
}

// --- Line items ---

const lineItemCols = `li.id, li.document_id, li.line_number, li.clin, li.slin,
	li.part_number, li.manufacturer, li.manufacturer_part_number, li.product_name, li.product_description,
	li.category, li.sub_category, li.quantity, li.unit_of_issue, li.unit_price, li.extended_price,
	li.discount_percent, li.discount_amount, li.labor_category, li.labor_hours, li.labor_rate,
	li.period_start, li.period_end, li.mapping_confidence, li.human_verified, li.original_row_text,
	li.session_id, li.created_at,
	d.vendor_name, d.document_number, d.document_type, d.document_date, d.contract_number, d.original_filename`

const lineItemJoin = ` FROM line_items li JOIN documents d ON d.id = li.document_id`

func (s *SQLiteStore) InsertLineItems(ctx context.Context, items []model.LineItem) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO line_items (id, document_id, line_number, clin, slin,
			part_number, manufacturer, manufacturer_part_number, product_name, product_description,
			category, sub_category, quantity, unit_of_issue, unit_price, extended_price,
			discount_percent, discount_amount, labor_category, labor_hours, labor_rate,
			period_start, period_end, mapping_confidence, human_verified, original_row_text,
			session_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert line item")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range items {
		it := &items[i]
		if it.ID == "" {
			it.ID = uuid.New().String()
		}
		if it.SessionID == "" {
			it.SessionID = model.DefaultSessionID
		}
		it.CreatedAt = now
		if _, err := stmt.ExecContext(ctx,
			it.ID, it.DocumentID, it.LineNumber, it.CLIN, it.SLIN,
			it.PartNumber, it.Manufacturer, it.ManufacturerPartNumber, it.ProductName, it.ProductDescription,
			it.Category, it.SubCategory, it.Quantity, it.UnitOfIssue, it.UnitPrice, it.ExtendedPrice,
			it.DiscountPercent, it.DiscountAmount, it.LaborCategory, it.LaborHours, it.LaborRate,
			it.PeriodStart, it.PeriodEnd, it.MappingConfidence, boolToInt(it.HumanVerified), it.OriginalRowText,
			it.SessionID, it.CreatedAt,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert line item")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit line items")
}

func (s *SQLiteStore) GetLineItem(ctx context.Context, sessionID, id string) (*model.LineItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+lineItemCols+lineItemJoin+` WHERE li.session_id = ? AND li.id = ?`,
		sessionID, id,
	)
	return scanLineItem(row)
}

// lineItemSortColumns whitelists sortable columns for ListLineItems.
var lineItemSortColumns = map[string]string{
	"created_at":     "li.created_at",
	"product_name":   "li.product_name",
	"unit_price":     "li.unit_price",
	"extended_price": "li.extended_price",
	"quantity":       "li.quantity",
	"category":       "li.category",
	"part_number":    "li.part_number",
	"line_number":    "li.line_number",
}

func buildLineItemWhere(sessionID string, filter model.LineItemFilter) (string, []any) {
	where := ` WHERE li.session_id = ?`
	args := []any{sessionID}

	if filter.Search != "" {
		where += ` AND (lower(li.product_name) LIKE ? OR lower(li.part_number) LIKE ?
			OR lower(li.manufacturer) LIKE ? OR lower(li.product_description) LIKE ?)`
		p := likePattern(filter.Search)
		args = append(args, p, p, p, p)
	}
	if filter.Vendor != "" {
		where += ` AND lower(d.vendor_name) LIKE ?`
		args = append(args, likePattern(filter.Vendor))
	}
	if filter.Category != "" {
		where += ` AND li.category = ?`
		args = append(args, filter.Category)
	}
	if filter.SubCategory != "" {
		where += ` AND li.sub_category = ?`
		args = append(args, filter.SubCategory)
	}
	if filter.MinPrice != nil {
		where += ` AND li.unit_price >= ?`
		args = append(args, *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		where += ` AND li.unit_price <= ?`
		args = append(args, *filter.MaxPrice)
	}
	if filter.DateFrom != "" {
		where += ` AND d.document_date >= ?`
		args = append(args, filter.DateFrom)
	}
	if filter.DateTo != "" {
		where += ` AND d.document_date <= ?`
		args = append(args, filter.DateTo)
	}
	if filter.DocumentType != "" {
		where += ` AND d.document_type = ?`
		args = append(args, filter.DocumentType)
	}
	if filter.ContractNumber != "" {
		where += ` AND lower(d.contract_number) LIKE ?`
		args = append(args, likePattern(filter.ContractNumber))
	}
	return where, args
}

func (s *SQLiteStore) ListLineItems(ctx context.Context, sessionID string, filter model.LineItemFilter) ([]model.LineItem, int, error) {
	where, args := buildLineItemWhere(sessionID, filter)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*)`+lineItemJoin+where, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: count line items")
	}

	sortCol, ok := lineItemSortColumns[filter.SortBy]
	if !ok {
		sortCol = "li.created_at"
	}
	dir := "DESC"
	if strings.EqualFold(filter.SortOrder, "asc") {
		dir = "ASC"
	}

	limit, offset := pageBounds(filter.Page, filter.PerPage)
	query := `SELECT ` + lineItemCols + lineItemJoin + where +
		` ORDER BY ` + sortCol + ` ` + dir + ` LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	items, err := s.queryLineItems(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *SQLiteStore) ListLineItemsByDocument(ctx context.Context, sessionID, documentID string) ([]model.LineItem, error) {
	return s.queryLineItems(ctx,
		`SELECT `+lineItemCols+lineItemJoin+
			` WHERE li.session_id = ? AND li.document_id = ? ORDER BY li.line_number, li.created_at`,
		sessionID, documentID,
	)
}

func (s *SQLiteStore) ListLineItemsByProduct(ctx context.Context, sessionID, productName string, limit int) ([]model.LineItem, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.queryLineItems(ctx,
		`SELECT `+lineItemCols+lineItemJoin+
			` WHERE li.session_id = ? AND li.product_name = ? ORDER BY d.document_date DESC, li.created_at DESC LIMIT ?`,
		sessionID, productName, limit,
	)
}

func (s *SQLiteStore) ListAllLineItems(ctx context.Context, sessionID string) ([]model.LineItem, error) {
	return s.queryLineItems(ctx,
		`SELECT `+lineItemCols+lineItemJoin+
			` WHERE li.session_id = ? ORDER BY d.document_date, li.created_at`,
		sessionID,
	)
}

func (s *SQLiteStore) UpdateLineItem(ctx context.Context, item *model.LineItem) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE line_items SET
			line_number = ?, clin = ?, slin = ?, part_number = ?, manufacturer = ?,
			manufacturer_part_number = ?, product_name = ?, product_description = ?,
			category = ?, sub_category = ?, quantity = ?, unit_of_issue = ?,
			unit_price = ?, extended_price = ?, discount_percent = ?, discount_amount = ?,
			labor_category = ?, labor_hours = ?, labor_rate = ?,
			period_start = ?, period_end = ?, human_verified = ?
		 WHERE session_id = ? AND id = ?`,
		item.LineNumber, item.CLIN, item.SLIN, item.PartNumber, item.Manufacturer,
		item.ManufacturerPartNumber, item.ProductName, item.ProductDescription,
		item.Category, item.SubCategory, item.Quantity, item.UnitOfIssue,
		item.UnitPrice, item.ExtendedPrice, item.DiscountPercent, item.DiscountAmount,
		item.LaborCategory, item.LaborHours, item.LaborRate,
		item.PeriodStart, item.PeriodEnd, boolToInt(item.HumanVerified),
		item.SessionID, item.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update line item %s", item.ID)
	}
	return checkRowsAffected(res, "line item", item.ID)
}

func (s *SQLiteStore) DeleteLineItemsByDocument(ctx context.Context, sessionID, documentID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM line_items WHERE session_id = ? AND document_id = ?`, sessionID, documentID)
	return eris.Wrapf(err, "sqlite: delete line items for %s", documentID)
}

func (s *SQLiteStore) SearchLineItems(ctx context.Context, sessionID string, terms []string, limit int) ([]model.LineItem, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	var conds []string
	args := []any{sessionID}
	for _, term := range terms {
		p := likePattern(term)
		conds = append(conds, `lower(li.product_name) LIKE ?`, `lower(li.part_number) LIKE ?`,
			`lower(li.manufacturer) LIKE ?`, `lower(li.category) LIKE ?`, `lower(li.labor_category) LIKE ?`,
			`lower(d.vendor_name) LIKE ?`, `lower(d.contract_number) LIKE ?`, `lower(d.document_number) LIKE ?`)
		args = append(args, p, p, p, p, p, p, p, p)
	}
	args = append(args, limit)

	return s.queryLineItems(ctx,
		`SELECT `+lineItemCols+lineItemJoin+
			` WHERE li.session_id = ? AND (`+strings.Join(conds, " OR ")+`) LIMIT ?`,
		args...,
	)
}

func (s *SQLiteStore) queryLineItems(ctx context.Context, query string, args ...any) ([]model.LineItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query line items")
	}
	defer rows.Close()

	var items []model.LineItem
	for rows.Next() {
		item, err := scanLineItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: line item rows")
}

// --- Chunks ---

func (s *SQLiteStore) InsertChunks(ctx context.Context, chunks []model.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO document_chunks (id, document_id, chunk_index, content, chunk_type, page_number, session_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert chunk")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range chunks {
		c := &chunks[i]
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		if c.SessionID == "" {
			c.SessionID = model.DefaultSessionID
		}
		c.CreatedAt = now
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.DocumentID, c.ChunkIndex, c.Content, c.ChunkType, c.PageNumber, c.SessionID, c.CreatedAt,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert chunk")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit chunks")
}

func (s *SQLiteStore) DeleteChunksByDocument(ctx context.Context, sessionID, documentID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM document_chunks WHERE session_id = ? AND document_id = ?`, sessionID, documentID)
	return eris.Wrapf(err, "sqlite: delete chunks for %s", documentID)
}

func (s *SQLiteStore) SearchChunks(ctx context.Context, sessionID string, terms []string, limit int) ([]model.DocumentChunk, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	var conds []string
	args := []any{sessionID}
	for _, term := range terms {
		conds = append(conds, `lower(c.content) LIKE ?`)
		args = append(args, likePattern(term))
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.document_id, c.chunk_index, c.content, c.chunk_type, c.page_number,
			c.session_id, c.created_at, d.vendor_name, d.document_number, d.original_filename
		 FROM document_chunks c JOIN documents d ON d.id = c.document_id
		 WHERE c.session_id = ? AND (`+strings.Join(conds, " OR ")+`) LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: search chunks")
	}
	defer rows.Close()

	var chunks []model.DocumentChunk
	for rows.Next() {
		var c model.DocumentChunk
		var chunkType, vendor, docNum, filename sql.NullString
		var pageNum sql.NullInt64
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content, &chunkType, &pageNum,
			&c.SessionID, &c.CreatedAt, &vendor, &docNum, &filename); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan chunk")
		}
		c.ChunkType = chunkType.String
		if pageNum.Valid {
			n := int(pageNum.Int64)
			c.PageNumber = &n
		}
		c.VendorName = vendor.String
		c.DocumentNumber = docNum.String
		c.OriginalFilename = filename.String
		chunks = append(chunks, c)
	}
	return chunks, eris.Wrap(rows.Err(), "sqlite: chunk rows")
}

// --- Field mappings ---

func (s *SQLiteStore) ListFieldMappings(ctx context.Context, sessionID, vendorName string) ([]model.FieldMapping, error) {
	// Empty-vendor mappings act as global fallbacks and are always included.
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, vendor_name, source_column_name, target_field, confidence, times_confirmed, session_id, created_at
		 FROM field_mappings
		 WHERE session_id = ? AND (vendor_name = ? OR vendor_name = '')
		 ORDER BY confidence DESC`,
		sessionID, vendorName,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list field mappings")
	}
	defer rows.Close()

	var mappings []model.FieldMapping
	for rows.Next() {
		var m model.FieldMapping
		if err := rows.Scan(&m.ID, &m.VendorName, &m.SourceColumnName, &m.TargetField,
			&m.Confidence, &m.TimesConfirmed, &m.SessionID, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan field mapping")
		}
		mappings = append(mappings, m)
	}
	return mappings, eris.Wrap(rows.Err(), "sqlite: field mapping rows")
}

func (s *SQLiteStore) ReinforceFieldMapping(ctx context.Context, sessionID, vendorName, sourceColumn, targetField string) (*model.FieldMapping, error) {
	var m model.FieldMapping
	err := s.db.QueryRowContext(ctx,
		`SELECT id, vendor_name, source_column_name, target_field, confidence, times_confirmed, session_id, created_at
		 FROM field_mappings WHERE session_id = ? AND vendor_name = ? AND target_field = ?`,
		sessionID, vendorName, targetField,
	).Scan(&m.ID, &m.VendorName, &m.SourceColumnName, &m.TargetField,
		&m.Confidence, &m.TimesConfirmed, &m.SessionID, &m.CreatedAt)

	switch {
	case err == sql.ErrNoRows:
		m = model.FieldMapping{
			ID:               uuid.New().String(),
			VendorName:       vendorName,
			SourceColumnName: sourceColumn,
			TargetField:      targetField,
			Confidence:       model.MappingSeedConfidence,
			TimesConfirmed:   1,
			SessionID:        sessionID,
			CreatedAt:        time.Now().UTC(),
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO field_mappings (id, vendor_name, source_column_name, target_field, confidence, times_confirmed, session_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.VendorName, m.SourceColumnName, m.TargetField, m.Confidence, m.TimesConfirmed, m.SessionID, m.CreatedAt,
		)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: insert field mapping")
		}
		return &m, nil
	case err != nil:
		return nil, eris.Wrap(err, "sqlite: lookup field mapping")
	}

	m.TimesConfirmed++
	m.Confidence = min(model.MappingConfidenceCap, m.Confidence+model.MappingConfidenceStep)
	if _, err := s.db.ExecContext(ctx,
		`UPDATE field_mappings SET confidence = ?, times_confirmed = ? WHERE id = ?`,
		m.Confidence, m.TimesConfirmed, m.ID,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: update field mapping")
	}
	return &m, nil
}

// --- Canonical products ---

const productCols = `id, canonical_name, category, manufacturer, known_part_numbers, known_aliases,
	last_known_price, last_price_date, avg_price, min_price, max_price, price_history, session_id, created_at`

func (s *SQLiteStore) ListProducts(ctx context.Context, sessionID string, filter model.ProductFilter) ([]model.CanonicalProduct, int, error) {
	where := `WHERE session_id = ?`
	args := []any{sessionID}

	if filter.Search != "" {
		where += ` AND (lower(canonical_name) LIKE ? OR lower(manufacturer) LIKE ? OR lower(category) LIKE ?)`
		p := likePattern(filter.Search)
		args = append(args, p, p, p)
	}
	if filter.Category != "" {
		where += ` AND category = ?`
		args = append(args, filter.Category)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM canonical_products `+where, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: count products")
	}

	limit, offset := pageBounds(filter.Page, filter.PerPage)
	args = append(args, limit, offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+productCols+` FROM canonical_products `+where+
			` ORDER BY canonical_name LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: list products")
	}
	defer rows.Close()

	var products []model.CanonicalProduct
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, *p)
	}
	return products, total, eris.Wrap(rows.Err(), "sqlite: product rows")
}

func (s *SQLiteStore) GetProduct(ctx context.Context, sessionID, id string) (*model.CanonicalProduct, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+productCols+` FROM canonical_products WHERE session_id = ? AND id = ?`,
		sessionID, id)
	return scanProduct(row)
}

func (s *SQLiteStore) GetProductByName(ctx context.Context, sessionID, name string) (*model.CanonicalProduct, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+productCols+` FROM canonical_products WHERE session_id = ? AND canonical_name = ?`,
		sessionID, name)
	return scanProduct(row)
}

func (s *SQLiteStore) UpsertProduct(ctx context.Context, product *model.CanonicalProduct) (bool, error) {
	if product.SessionID == "" {
		product.SessionID = model.DefaultSessionID
	}
	partNumbers, err := json.Marshal(emptyIfNilStrings(product.KnownPartNumbers))
	if err != nil {
		return false, eris.Wrap(err, "sqlite: marshal part numbers")
	}
	aliases, err := json.Marshal(emptyIfNilStrings(product.KnownAliases))
	if err != nil {
		return false, eris.Wrap(err, "sqlite: marshal aliases")
	}
	history, err := json.Marshal(emptyIfNilHistory(product.PriceHistory))
	if err != nil {
		return false, eris.Wrap(err, "sqlite: marshal price history")
	}

	existing, err := s.GetProductByName(ctx, product.SessionID, product.CanonicalName)
	if err != nil && !eris.Is(err, ErrNotFound) {
		return false, err
	}

	if existing != nil {
		product.ID = existing.ID
		product.CreatedAt = existing.CreatedAt
		_, err := s.db.ExecContext(ctx,
			`UPDATE canonical_products SET category = ?, manufacturer = ?,
				known_part_numbers = ?, known_aliases = ?, last_known_price = ?, last_price_date = ?,
				avg_price = ?, min_price = ?, max_price = ?, price_history = ?
			 WHERE id = ?`,
			product.Category, product.Manufacturer,
			string(partNumbers), string(aliases), product.LastKnownPrice, product.LastPriceDate,
			product.AvgPrice, product.MinPrice, product.MaxPrice, string(history),
			existing.ID,
		)
		return false, eris.Wrap(err, "sqlite: update product")
	}

	product.ID = uuid.New().String()
	product.CreatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO canonical_products (`+productCols+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		product.ID, product.CanonicalName, product.Category, product.Manufacturer,
		string(partNumbers), string(aliases), product.LastKnownPrice, product.LastPriceDate,
		product.AvgPrice, product.MinPrice, product.MaxPrice, string(history),
		product.SessionID, product.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert product")
	}
	return true, nil
}

// --- Aggregations ---

func (s *SQLiteStore) SpendAnalysis(ctx context.Context, sessionID string) (*SpendAnalysis, error) {
	analysis := &SpendAnalysis{}

	byVendor, err := s.queryBuckets(ctx,
		`SELECT d.vendor_name, SUM(li.extended_price)
		 FROM line_items li JOIN documents d ON d.id = li.document_id
		 WHERE li.session_id = ? AND d.vendor_name IS NOT NULL AND d.vendor_name != ''
		 GROUP BY d.vendor_name ORDER BY SUM(li.extended_price) DESC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	analysis.ByVendor = byVendor

	byCategory, err := s.queryBuckets(ctx,
		`SELECT li.category, SUM(li.extended_price)
		 FROM line_items li WHERE li.session_id = ? AND li.category IS NOT NULL AND li.category != ''
		 GROUP BY li.category ORDER BY SUM(li.extended_price) DESC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	analysis.ByCategory = byCategory

	// Document dates are stored as YYYY-MM-DD strings; the month is a prefix.
	overTime, err := s.queryBuckets(ctx,
		`SELECT substr(d.document_date, 1, 7), SUM(li.extended_price)
		 FROM line_items li JOIN documents d ON d.id = li.document_id
		 WHERE li.session_id = ? AND d.document_date IS NOT NULL AND d.document_date != ''
		 GROUP BY substr(d.document_date, 1, 7) ORDER BY substr(d.document_date, 1, 7)`,
		sessionID)
	if err != nil {
		return nil, err
	}
	analysis.OverTime = overTime

	return analysis, nil
}

func (s *SQLiteStore) DashboardStats(ctx context.Context, sessionID string) (*DashboardStats, error) {
	stats := &DashboardStats{StatusCounts: map[string]int{}}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE session_id = ?`, sessionID).Scan(&stats.DocumentCount); err != nil {
		return nil, eris.Wrap(err, "sqlite: count documents")
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM line_items WHERE session_id = ?`, sessionID).Scan(&stats.LineItemCount); err != nil {
		return nil, eris.Wrap(err, "sqlite: count line items")
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM canonical_products WHERE session_id = ?`, sessionID).Scan(&stats.ProductCount); err != nil {
		return nil, eris.Wrap(err, "sqlite: count products")
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT vendor_name) FROM documents WHERE session_id = ? AND vendor_name IS NOT NULL AND vendor_name != ''`,
		sessionID).Scan(&stats.VendorCount); err != nil {
		return nil, eris.Wrap(err, "sqlite: count vendors")
	}

	var spend sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		`SELECT SUM(extended_price) FROM line_items WHERE session_id = ?`, sessionID).Scan(&spend); err != nil {
		return nil, eris.Wrap(err, "sqlite: total spend")
	}
	stats.TotalSpend = round2(spend.Float64)

	byType, err := s.queryBuckets(ctx,
		`SELECT document_type, COUNT(*) FROM documents
		 WHERE session_id = ? AND document_type IS NOT NULL AND document_type != ''
		 GROUP BY document_type ORDER BY COUNT(*) DESC`, sessionID)
	if err != nil {
		return nil, err
	}
	stats.DocumentsByType = byType

	rows, err := s.db.QueryContext(ctx,
		`SELECT processing_status, COUNT(*) FROM documents WHERE session_id = ? GROUP BY processing_status`,
		sessionID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: status counts")
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan status count")
		}
		stats.StatusCounts[status] = n
	}
	return stats, eris.Wrap(rows.Err(), "sqlite: status count rows")
}

func (s *SQLiteStore) DistinctVendors(ctx context.Context, sessionID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT vendor_name FROM documents
		 WHERE session_id = ? AND vendor_name IS NOT NULL AND vendor_name != ''
		 ORDER BY vendor_name LIMIT ?`,
		sessionID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: distinct vendors")
	}
	defer rows.Close()

	var vendors []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan vendor")
		}
		vendors = append(vendors, v)
	}
	return vendors, eris.Wrap(rows.Err(), "sqlite: vendor rows")
}

func (s *SQLiteStore) queryBuckets(ctx context.Context, query string, args ...any) ([]SpendBucket, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: aggregate query")
	}
	defer rows.Close()

	var buckets []SpendBucket
	for rows.Next() {
		var key sql.NullString
		var total sql.NullFloat64
		if err := rows.Scan(&key, &total); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan bucket")
		}
		buckets = append(buckets, SpendBucket{Key: key.String, Total: round2(total.Float64)})
	}
	return buckets, eris.Wrap(rows.Err(), "sqlite: bucket rows")
}
