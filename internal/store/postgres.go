package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/procdoc/internal/model"
)

// Pool is the subset of pgxpool.Pool used by the store. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id                   TEXT PRIMARY KEY,
	original_filename    TEXT NOT NULL,
	file_format          TEXT NOT NULL,
	file_size_bytes      BIGINT NOT NULL DEFAULT 0,
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
	total_amount         DOUBLE PRECISION,
	currency             TEXT NOT NULL DEFAULT 'USD',
	processing_status    TEXT NOT NULL DEFAULT 'uploaded',
	extraction_method    TEXT,
	extraction_confidence DOUBLE PRECISION,
	ai_model_used        TEXT,
	reviewed_by          TEXT,
	reviewed_at          TEXT,
	review_notes         TEXT,
	chunk_count          INTEGER NOT NULL DEFAULT 0,
	uploaded_by          TEXT,
	notes                TEXT,
	session_id           TEXT NOT NULL DEFAULT '__default__',
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
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
	quantity           DOUBLE PRECISION,
	unit_of_issue      TEXT,
	unit_price         DOUBLE PRECISION,
	extended_price     DOUBLE PRECISION,
	discount_percent   DOUBLE PRECISION,
	discount_amount    DOUBLE PRECISION,
	labor_category     TEXT,
	labor_hours        DOUBLE PRECISION,
	labor_rate         DOUBLE PRECISION,
	period_start       TEXT,
	period_end         TEXT,
	mapping_confidence DOUBLE PRECISION,
	human_verified     INTEGER NOT NULL DEFAULT 0,
	original_row_text  TEXT,
	session_id         TEXT NOT NULL DEFAULT '__default__',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS document_chunks (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	chunk_index INTEGER NOT NULL,
	content     TEXT NOT NULL,
	chunk_type  TEXT,
	page_number INTEGER,
	session_id  TEXT NOT NULL DEFAULT '__default__',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS field_mappings (
	id                 TEXT PRIMARY KEY,
	vendor_name        TEXT NOT NULL DEFAULT '',
	source_column_name TEXT NOT NULL,
	target_field       TEXT NOT NULL,
	confidence         DOUBLE PRECISION NOT NULL DEFAULT 1.0,
	times_confirmed    INTEGER NOT NULL DEFAULT 1,
	session_id         TEXT NOT NULL DEFAULT '__default__',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (session_id, vendor_name, target_field)
);

CREATE TABLE IF NOT EXISTS canonical_products (
	id                 TEXT PRIMARY KEY,
	canonical_name     TEXT NOT NULL,
	category           TEXT,
	manufacturer       TEXT,
	known_part_numbers TEXT NOT NULL DEFAULT '[]',
	known_aliases      TEXT NOT NULL DEFAULT '[]',
	last_known_price   DOUBLE PRECISION,
	last_price_date    TEXT,
	avg_price          DOUBLE PRECISION,
	min_price          DOUBLE PRECISION,
	max_price          DOUBLE PRECISION,
	price_history      TEXT NOT NULL DEFAULT '[]',
	session_id         TEXT NOT NULL DEFAULT '__default__',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
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

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// rebind converts ?-style placeholders to $n so the query text can be shared
// with the sqlite backend.
func rebind(query string) string {
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// --- Documents ---

func (s *PostgresStore) CreateDocument(ctx context.Context, doc *model.Document) error {
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

	_, err := s.pool.Exec(ctx,
		rebind(`INSERT INTO documents (`+documentCols+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		doc.ID, doc.OriginalFilename, doc.FileFormat, doc.FileSizeBytes, doc.FileHash,
		doc.StoredPath, doc.DocumentType, doc.VendorName, doc.DocumentNumber, doc.DocumentDate,
		doc.ContractNumber, doc.TaskOrderNumber, doc.PeriodOfPerformanceStart, doc.PeriodOfPerformanceEnd,
		doc.TotalAmount, doc.Currency,
		string(doc.ProcessingStatus), doc.ExtractionMethod, doc.ExtractionConfidence, doc.AIModelUsed,
		doc.ReviewedBy, doc.ReviewedAt, doc.ReviewNotes, doc.ChunkCount, doc.UploadedBy, doc.Notes,
		doc.SessionID, doc.CreatedAt, doc.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: insert document")
}

func (s *PostgresStore) GetDocument(ctx context.Context, sessionID, id string) (*model.Document, error) {
	row := s.pool.QueryRow(ctx,
		rebind(`SELECT `+documentCols+` FROM documents WHERE session_id = ? AND id = ?`),
		sessionID, id,
	)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, err
	}
	if err := s.pool.QueryRow(ctx,
		rebind(`SELECT COUNT(*) FROM line_items WHERE session_id = ? AND document_id = ?`),
		sessionID, id,
	).Scan(&doc.LineItemCount); err != nil {
		return nil, eris.Wrap(err, "postgres: count line items")
	}
	return doc, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, sessionID string, filter model.DocumentFilter) ([]model.Document, int, error) {
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
	if err := s.pool.QueryRow(ctx, rebind(`SELECT COUNT(*) FROM documents `+where), args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "postgres: count documents")
	}

	limit, offset := pageBounds(filter.Page, filter.PerPage)
	args = append(args, limit, offset)
	rows, err := s.pool.Query(ctx,
		rebind(`SELECT `+documentCols+` FROM documents `+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`),
		args...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "postgres: list documents")
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
	return docs, total, eris.Wrap(rows.Err(), "postgres: list documents rows")
}

func (s *PostgresStore) UpdateDocument(ctx context.Context, doc *model.Document) error {
	doc.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		rebind(`UPDATE documents SET
			document_type = ?, vendor_name = ?, document_number = ?, document_date = ?,
			contract_number = ?, task_order_number = ?, pop_start = ?, pop_end = ?,
			total_amount = ?, currency = ?, processing_status = ?, extraction_method = ?,
			extraction_confidence = ?, ai_model_used = ?, reviewed_by = ?, reviewed_at = ?,
			review_notes = ?, chunk_count = ?, notes = ?, updated_at = ?
		 WHERE session_id = ? AND id = ?`),
		doc.DocumentType, doc.VendorName, doc.DocumentNumber, doc.DocumentDate,
		doc.ContractNumber, doc.TaskOrderNumber, doc.PeriodOfPerformanceStart, doc.PeriodOfPerformanceEnd,
		doc.TotalAmount, doc.Currency, string(doc.ProcessingStatus), doc.ExtractionMethod,
		doc.ExtractionConfidence, doc.AIModelUsed, doc.ReviewedBy, doc.ReviewedAt,
		doc.ReviewNotes, doc.ChunkCount, doc.Notes, doc.UpdatedAt,
		doc.SessionID, doc.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update document %s", doc.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "document %s", doc.ID)
	}
	return nil
}

func (s *PostgresStore) TransitionStatus(ctx context.Context, sessionID, id string, to model.DocumentStatus, from ...model.DocumentStatus) error {
	query := `UPDATE documents SET processing_status = ?, updated_at = ? WHERE session_id = ? AND id = ?`
	args := []any{string(to), time.Now().UTC(), sessionID, id}
	if len(from) > 0 {
		query += ` AND processing_status IN (` + placeholders(len(from)) + `)`
		for _, f := range from {
			args = append(args, string(f))
		}
	}

	tag, err := s.pool.Exec(ctx, rebind(query), args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: transition document %s", id)
	}
	if tag.RowsAffected() == 0 {
		var exists int
		if err := s.pool.QueryRow(ctx,
			rebind(`SELECT COUNT(*) FROM documents WHERE session_id = ? AND id = ?`), sessionID, id,
		).Scan(&exists); err != nil {
			return eris.Wrap(err, "postgres: transition lookup")
		}
		if exists == 0 {
			return eris.Wrapf(ErrNotFound, "document %s", id)
		}
		return eris.Wrapf(ErrConflict, "document %s not in expected state", id)
	}
	return nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, sessionID, id string) error {
	tag, err := s.pool.Exec(ctx,
		rebind(`DELETE FROM documents WHERE session_id = ? AND id = ?`), sessionID, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete document %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "document %s", id)
	}
	return nil
}

// --- Line items ---

func (s *PostgresStore) InsertLineItems(ctx context.Context, items []model.LineItem) error {
	if len(items) == 0 {
		return nil
	}
	query := rebind(`INSERT INTO line_items (id, document_id, line_number, clin, slin,
		part_number, manufacturer, manufacturer_part_number, product_name, product_description,
		category, sub_category, quantity, unit_of_issue, unit_price, extended_price,
		discount_percent, discount_amount, labor_category, labor_hours, labor_rate,
		period_start, period_end, mapping_confidence, human_verified, original_row_text,
		session_id, created_at)
	 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

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
		if _, err := s.pool.Exec(ctx, query,
			it.ID, it.DocumentID, it.LineNumber, it.CLIN, it.SLIN,
			it.PartNumber, it.Manufacturer, it.ManufacturerPartNumber, it.ProductName, it.ProductDescription,
			it.Category, it.SubCategory, it.Quantity, it.UnitOfIssue, it.UnitPrice, it.ExtendedPrice,
			it.DiscountPercent, it.DiscountAmount, it.LaborCategory, it.LaborHours, it.LaborRate,
			it.PeriodStart, it.PeriodEnd, it.MappingConfidence, boolToInt(it.HumanVerified), it.OriginalRowText,
			it.SessionID, it.CreatedAt,
		); err != nil {
			return eris.Wrap(err, "postgres: insert line item")
		}
	}
	return nil
}

func (s *PostgresStore) GetLineItem(ctx context.Context, sessionID, id string) (*model.LineItem, error) {
	row := s.pool.QueryRow(ctx,
		rebind(`SELECT `+lineItemCols+lineItemJoin+` WHERE li.session_id = ? AND li.id = ?`),
		sessionID, id,
	)
	return scanLineItem(row)
}

func (s *PostgresStore) ListLineItems(ctx context.Context, sessionID string, filter model.LineItemFilter) ([]model.LineItem, int, error) {
	where, args := buildLineItemWhere(sessionID, filter)

	var total int
	if err := s.pool.QueryRow(ctx, rebind(`SELECT COUNT(*)`+lineItemJoin+where), args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "postgres: count line items")
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
	args = append(args, limit, offset)
	items, err := s.queryLineItems(ctx,
		rebind(`SELECT `+lineItemCols+lineItemJoin+where+
			` ORDER BY `+sortCol+` `+dir+` LIMIT ? OFFSET ?`),
		args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *PostgresStore) ListLineItemsByDocument(ctx context.Context, sessionID, documentID string) ([]model.LineItem, error) {
	return s.queryLineItems(ctx,
		rebind(`SELECT `+lineItemCols+lineItemJoin+
			` WHERE li.session_id = ? AND li.document_id = ? ORDER BY li.line_number, li.created_at`),
		sessionID, documentID,
	)
}

func (s *PostgresStore) ListLineItemsByProduct(ctx context.Context, sessionID, productName string, limit int) ([]model.LineItem, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.queryLineItems(ctx,
		rebind(`SELECT `+lineItemCols+lineItemJoin+
			` WHERE li.session_id = ? AND li.product_name = ? ORDER BY d.document_date DESC, li.created_at DESC LIMIT ?`),
		sessionID, productName, limit,
	)
}

func (s *PostgresStore) ListAllLineItems(ctx context.Context, sessionID string) ([]model.LineItem, error) {
	return s.queryLineItems(ctx,
		rebind(`SELECT `+lineItemCols+lineItemJoin+
			` WHERE li.session_id = ? ORDER BY d.document_date, li.created_at`),
		sessionID,
	)
}

func (s *PostgresStore) UpdateLineItem(ctx context.Context, item *model.LineItem) error {
	tag, err := s.pool.Exec(ctx,
		rebind(`UPDATE line_items SET
			line_number = ?, clin = ?, slin = ?, part_number = ?, manufacturer = ?,
			manufacturer_part_number = ?, product_name = ?, product_description = ?,
			category = ?, sub_category = ?, quantity = ?, unit_of_issue = ?,
			unit_price = ?, extended_price = ?, discount_percent = ?, discount_amount = ?,
			labor_category = ?, labor_hours = ?, labor_rate = ?,
			period_start = ?, period_end = ?, human_verified = ?
		 WHERE session_id = ? AND id = ?`),
		item.LineNumber, item.CLIN, item.SLIN, item.PartNumber, item.Manufacturer,
		item.ManufacturerPartNumber, item.ProductName, item.ProductDescription,
		item.Category, item.SubCategory, item.Quantity, item.UnitOfIssue,
		item.UnitPrice, item.ExtendedPrice, item.DiscountPercent, item.DiscountAmount,
		item.LaborCategory, item.LaborHours, item.LaborRate,
		item.PeriodStart, item.PeriodEnd, boolToInt(item.HumanVerified),
		item.SessionID, item.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update line item %s", item.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "line item %s", item.ID)
	}
	return nil
}

func (s *PostgresStore) DeleteLineItemsByDocument(ctx context.Context, sessionID, documentID string) error {
	_, err := s.pool.Exec(ctx,
		rebind(`DELETE FROM line_items WHERE session_id = ? AND document_id = ?`), sessionID, documentID)
	return eris.Wrapf(err, "postgres: delete line items for %s", documentID)
}

func (s *PostgresStore) SearchLineItems(ctx context.Context, sessionID string, terms []string, limit int) ([]model.LineItem, error) {
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
		rebind(`SELECT `+lineItemCols+lineItemJoin+
			` WHERE li.session_id = ? AND (`+strings.Join(conds, " OR ")+`) LIMIT ?`),
		args...,
	)
}

func (s *PostgresStore) queryLineItems(ctx context.Context, query string, args ...any) ([]model.LineItem, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query line items")
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
	return items, eris.Wrap(rows.Err(), "postgres: line item rows")
}

// --- Chunks ---

func (s *PostgresStore) InsertChunks(ctx context.Context, chunks []model.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	query := rebind(`INSERT INTO document_chunks (id, document_id, chunk_index, content, chunk_type, page_number, session_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

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
		if _, err := s.pool.Exec(ctx, query,
			c.ID, c.DocumentID, c.ChunkIndex, c.Content, c.ChunkType, c.PageNumber, c.SessionID, c.CreatedAt,
		); err != nil {
			return eris.Wrap(err, "postgres: insert chunk")
		}
	}
	return nil
}

func (s *PostgresStore) DeleteChunksByDocument(ctx context.Context, sessionID, documentID string) error {
	_, err := s.pool.Exec(ctx,
		rebind(`DELETE FROM document_chunks WHERE session_id = ? AND document_id = ?`), sessionID, documentID)
	return eris.Wrapf(err, "postgres: delete chunks for %s", documentID)
}

func (s *PostgresStore) SearchChunks(ctx context.Context, sessionID string, terms []string, limit int) ([]model.DocumentChunk, error) {
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

	rows, err := s.pool.Query(ctx,
		rebind(`SELECT c.id, c.document_id, c.chunk_index, c.content, c.chunk_type, c.page_number,
			c.session_id, c.created_at, d.vendor_name, d.document_number, d.original_filename
		 FROM document_chunks c JOIN documents d ON d.id = c.document_id
		 WHERE c.session_id = ? AND (`+strings.Join(conds, " OR ")+`) LIMIT ?`),
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: search chunks")
	}
	defer rows.Close()

	var chunks []model.DocumentChunk
	for rows.Next() {
		var c model.DocumentChunk
		var chunkType, vendor, docNum, filename sql.NullString
		var pageNum sql.NullInt64
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content, &chunkType, &pageNum,
			&c.SessionID, &c.CreatedAt, &vendor, &docNum, &filename); err != nil {
			return nil, eris.Wrap(err, "postgres: scan chunk")
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
	return chunks, eris.Wrap(rows.Err(), "postgres: chunk rows")
}

// --- Field mappings ---

func (s *PostgresStore) ListFieldMappings(ctx context.Context, sessionID, vendorName string) ([]model.FieldMapping, error) {
	rows, err := s.pool.Query(ctx,
		rebind(`SELECT id, vendor_name, source_column_name, target_field, confidence, times_confirmed, session_id, created_at
		 FROM field_mappings
		 WHERE session_id = ? AND (vendor_name = ? OR vendor_name = '')
		 ORDER BY confidence DESC`),
		sessionID, vendorName,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list field mappings")
	}
	defer rows.Close()

	var mappings []model.FieldMapping
	for rows.Next() {
		var m model.FieldMapping
		if err := rows.Scan(&m.ID, &m.VendorName, &m.SourceColumnName, &m.TargetField,
			&m.Confidence, &m.TimesConfirmed, &m.SessionID, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan field mapping")
		}
		mappings = append(mappings, m)
	}
	return mappings, eris.Wrap(rows.Err(), "postgres: field mapping rows")
}

func (s *PostgresStore) ReinforceFieldMapping(ctx context.Context, sessionID, vendorName, sourceColumn, targetField string) (*model.FieldMapping, error) {
	var m model.FieldMapping
	err := s.pool.QueryRow(ctx,
		rebind(`SELECT id, vendor_name, source_column_name, target_field, confidence, times_confirmed, session_id, created_at
		 FROM field_mappings WHERE session_id = ? AND vendor_name = ? AND target_field = ?`),
		sessionID, vendorName, targetField,
	).Scan(&m.ID, &m.VendorName, &m.SourceColumnName, &m.TargetField,
		&m.Confidence, &m.TimesConfirmed, &m.SessionID, &m.CreatedAt)

	switch {
	case isNoRows(err):
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
		_, err = s.pool.Exec(ctx,
			rebind(`INSERT INTO field_mappings (id, vendor_name, source_column_name, target_field, confidence, times_confirmed, session_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			m.ID, m.VendorName, m.SourceColumnName, m.TargetField, m.Confidence, m.TimesConfirmed, m.SessionID, m.CreatedAt,
		)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: insert field mapping")
		}
		return &m, nil
	case err != nil:
		return nil, eris.Wrap(err, "postgres: lookup field mapping")
	}

	m.TimesConfirmed++
	m.Confidence = min(model.MappingConfidenceCap, m.Confidence+model.MappingConfidenceStep)
	if _, err := s.pool.Exec(ctx,
		rebind(`UPDATE field_mappings SET confidence = ?, times_confirmed = ? WHERE id = ?`),
		m.Confidence, m.TimesConfirmed, m.ID,
	); err != nil {
		return nil, eris.Wrap(err, "postgres: update field mapping")
	}
	return &m, nil
}

// --- Canonical products ---

func (s *PostgresStore) ListProducts(ctx context.Context, sessionID string, filter model.ProductFilter) ([]model.CanonicalProduct, int, error) {
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
	if err := s.pool.QueryRow(ctx, rebind(`SELECT COUNT(*) FROM canonical_products `+where), args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "postgres: count products")
	}

	limit, offset := pageBounds(filter.Page, filter.PerPage)
	args = append(args, limit, offset)
	rows, err := s.pool.Query(ctx,
		rebind(`SELECT `+productCols+` FROM canonical_products `+where+
			` ORDER BY canonical_name LIMIT ? OFFSET ?`), args...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "postgres: list products")
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
	return products, total, eris.Wrap(rows.Err(), "postgres: product rows")
}

func (s *PostgresStore) GetProduct(ctx context.Context, sessionID, id string) (*model.CanonicalProduct, error) {
	row := s.pool.QueryRow(ctx,
		rebind(`SELECT `+productCols+` FROM canonical_products WHERE session_id = ? AND id = ?`),
		sessionID, id)
	return scanProduct(row)
}

func (s *PostgresStore) GetProductByName(ctx context.Context, sessionID, name string) (*model.CanonicalProduct, error) {
	row := s.pool.QueryRow(ctx,
		rebind(`SELECT `+productCols+` FROM canonical_products WHERE session_id = ? AND canonical_name = ?`),
		sessionID, name)
	return scanProduct(row)
}

func (s *PostgresStore) UpsertProduct(ctx context.Context, product *model.CanonicalProduct) (bool, error) {
	if product.SessionID == "" {
		product.SessionID = model.DefaultSessionID
	}
	partNumbers, err := json.Marshal(emptyIfNilStrings(product.KnownPartNumbers))
	if err != nil {
		return false, eris.Wrap(err, "postgres: marshal part numbers")
	}
	aliases, err := json.Marshal(emptyIfNilStrings(product.KnownAliases))
	if err != nil {
		return false, eris.Wrap(err, "postgres: marshal aliases")
	}
	history, err := json.Marshal(emptyIfNilHistory(product.PriceHistory))
	if err != nil {
		return false, eris.Wrap(err, "postgres: marshal price history")
	}

	existing, err := s.GetProductByName(ctx, product.SessionID, product.CanonicalName)
	if err != nil && !eris.Is(err, ErrNotFound) {
		return false, err
	}

	if existing != nil {
		product.ID = existing.ID
		product.CreatedAt = existing.CreatedAt
		_, err := s.pool.Exec(ctx,
			rebind(`UPDATE canonical_products SET category = ?, manufacturer = ?,
				known_part_numbers = ?, known_aliases = ?, last_known_price = ?, last_price_date = ?,
				avg_price = ?, min_price = ?, max_price = ?, price_history = ?
			 WHERE id = ?`),
			product.Category, product.Manufacturer,
			string(partNumbers), string(aliases), product.LastKnownPrice, product.LastPriceDate,
			product.AvgPrice, product.MinPrice, product.MaxPrice, string(history),
			existing.ID,
		)
		return false, eris.Wrap(err, "postgres: update product")
	}

	product.ID = uuid.New().String()
	product.CreatedAt = time.Now().UTC()
	_, err = s.pool.Exec(ctx,
		rebind(`INSERT INTO canonical_products (`+productCols+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		product.ID, product.CanonicalName, product.Category, product.Manufacturer,
		string(partNumbers), string(aliases), product.LastKnownPrice, product.LastPriceDate,
		product.AvgPrice, product.MinPrice, product.MaxPrice, string(history),
		product.SessionID, product.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrap(err, "postgres: insert product")
	}
	return true, nil
}

// --- Aggregations ---

func (s *PostgresStore) SpendAnalysis(ctx context.Context, sessionID string) (*SpendAnalysis, error) {
	analysis := &SpendAnalysis{}

	byVendor, err := s.queryBuckets(ctx,
		rebind(`SELECT d.vendor_name, SUM(li.extended_price)
		 FROM line_items li JOIN documents d ON d.id = li.document_id
		 WHERE li.session_id = ? AND d.vendor_name IS NOT NULL AND d.vendor_name != ''
		 GROUP BY d.vendor_name ORDER BY SUM(li.extended_price) DESC`),
		sessionID)
	if err != nil {
		return nil, err
	}
	analysis.ByVendor = byVendor

	byCategory, err := s.queryBuckets(ctx,
		rebind(`SELECT li.category, SUM(li.extended_price)
		 FROM line_items li WHERE li.session_id = ? AND li.category IS NOT NULL AND li.category != ''
		 GROUP BY li.category ORDER BY SUM(li.extended_price) DESC`),
		sessionID)
	if err != nil {
		return nil, err
	}
	analysis.ByCategory = byCategory

	overTime, err := s.queryBuckets(ctx,
		rebind(`SELECT substr(d.document_date, 1, 7), SUM(li.extended_price)
		 FROM line_items li JOIN documents d ON d.id = li.document_id
		 WHERE li.session_id = ? AND d.document_date IS NOT NULL AND d.document_date != ''
		 GROUP BY substr(d.document_date, 1, 7) ORDER BY substr(d.document_date, 1, 7)`),
		sessionID)
	if err != nil {
		return nil, err
	}
	analysis.OverTime = overTime

	return analysis, nil
}

func (s *PostgresStore) DashboardStats(ctx context.Context, sessionID string) (*DashboardStats, error) {
	stats := &DashboardStats{StatusCounts: map[string]int{}}

	if err := s.pool.QueryRow(ctx,
		rebind(`SELECT COUNT(*) FROM documents WHERE session_id = ?`), sessionID).Scan(&stats.DocumentCount); err != nil {
		return nil, eris.Wrap(err, "postgres: count documents")
	}
	if err := s.pool.QueryRow(ctx,
		rebind(`SELECT COUNT(*) FROM line_items WHERE session_id = ?`), sessionID).Scan(&stats.LineItemCount); err != nil {
		return nil, eris.Wrap(err, "postgres: count line items")
	}
	if err := s.pool.QueryRow(ctx,
		rebind(`SELECT COUNT(*) FROM canonical_products WHERE session_id = ?`), sessionID).Scan(&stats.ProductCount); err != nil {
		return nil, eris.Wrap(err, "postgres: count products")
	}
	if err := s.pool.QueryRow(ctx,
		rebind(`SELECT COUNT(DISTINCT vendor_name) FROM documents WHERE session_id = ? AND vendor_name IS NOT NULL AND vendor_name != ''`),
		sessionID).Scan(&stats.VendorCount); err != nil {
		return nil, eris.Wrap(err, "postgres: count vendors")
	}

	var spend sql.NullFloat64
	if err := s.pool.QueryRow(ctx,
		rebind(`SELECT SUM(extended_price) FROM line_items WHERE session_id = ?`), sessionID).Scan(&spend); err != nil {
		return nil, eris.Wrap(err, "postgres: total spend")
	}
	stats.TotalSpend = round2(spend.Float64)

	byType, err := s.queryBuckets(ctx,
		rebind(`SELECT document_type, COUNT(*) FROM documents
		 WHERE session_id = ? AND document_type IS NOT NULL AND document_type != ''
		 GROUP BY document_type ORDER BY COUNT(*) DESC`), sessionID)
	if err != nil {
		return nil, err
	}
	stats.DocumentsByType = byType

	rows, err := s.pool.Query(ctx,
		rebind(`SELECT processing_status, COUNT(*) FROM documents WHERE session_id = ? GROUP BY processing_status`),
		sessionID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: status counts")
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan status count")
		}
		stats.StatusCounts[status] = n
	}
	return stats, eris.Wrap(rows.Err(), "postgres: status count rows")
}

func (s *PostgresStore) DistinctVendors(ctx context.Context, sessionID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		rebind(`SELECT DISTINCT vendor_name FROM documents
		 WHERE session_id = ? AND vendor_name IS NOT NULL AND vendor_name != ''
		 ORDER BY vendor_name LIMIT ?`),
		sessionID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: distinct vendors")
	}
	defer rows.Close()

	var vendors []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, eris.Wrap(err, "postgres: scan vendor")
		}
		vendors = append(vendors, v)
	}
	return vendors, eris.Wrap(rows.Err(), "postgres: vendor rows")
}

func (s *PostgresStore) queryBuckets(ctx context.Context, query string, args ...any) ([]SpendBucket, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: aggregate query")
	}
	defer rows.Close()

	var buckets []SpendBucket
	for rows.Next() {
		var key sql.NullString
		var total sql.NullFloat64
		if err := rows.Scan(&key, &total); err != nil {
			return nil, eris.Wrap(err, "postgres: scan bucket")
		}
		buckets = append(buckets, SpendBucket{Key: key.String, Total: round2(total.Float64)})
	}
	return buckets, eris.Wrap(rows.Err(), "postgres: bucket rows")
}
