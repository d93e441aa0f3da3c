package server

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/procdoc/internal/extract"
	"github.com/sells-group/procdoc/internal/model"
)

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Upload.MaxSizeBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxSizeBytes)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	if !extract.Supported(header.Filename) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf(
			"unsupported file format, expected one of: %s",
			strings.Join(extract.SupportedExtensions(), ", ")))
		return
	}

	if err := os.MkdirAll(s.cfg.Upload.Dir, 0o755); err != nil {
		writeStoreError(w, err)
		return
	}

	storedName := strings.ReplaceAll(uuid.NewString(), "-", "") + "_" + filepath.Base(header.Filename)
	storedPath := filepath.Join(s.cfg.Upload.Dir, storedName)

	out, err := os.Create(storedPath)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	hash := sha256.New()
	size, err := io.Copy(out, io.TeeReader(file, hash))
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(storedPath)
		writeStoreError(w, err)
		return
	}

	doc := &model.Document{
		ID:               uuid.NewString(),
		OriginalFilename: header.Filename,
		FileFormat:       normalizeFormat(header.Filename),
		FileSizeBytes:    size,
		FileHash:         hex.EncodeToString(hash.Sum(nil)),
		StoredPath:       storedPath,
		ProcessingStatus: model.StatusUploaded,
		UploadedBy:       r.FormValue("uploaded_by"),
		SessionID:        sessionID(r),
	}

	if err := s.store.CreateDocument(r.Context(), doc); err != nil {
		os.Remove(storedPath)
		writeStoreError(w, err)
		return
	}

	zap.L().Info("document uploaded",
		zap.String("document_id", doc.ID),
		zap.String("filename", doc.OriginalFilename),
		zap.Int64("size_bytes", doc.FileSizeBytes))

	writeJSON(w, http.StatusCreated, doc)
}

// normalizeFormat maps a filename to the canonical file format. Legacy
// Office extensions collapse onto their modern equivalents because the
// extractors treat them the same way.
func normalizeFormat(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	switch ext {
	case "xls":
		return "xlsx"
	case "doc":
		return "docx"
	}
	return ext
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.DocumentFilter{
		DocumentType:     q.Get("document_type"),
		VendorName:       q.Get("vendor"),
		ProcessingStatus: model.DocumentStatus(q.Get("processing_status")),
		Search:           q.Get("search"),
		Page:             queryInt(r, "page", 1),
		PerPage:          queryInt(r, "per_page", 25),
	}

	docs, total, err := s.store.ListDocuments(r.Context(), sessionID(r), filter)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":    docs,
		"total":    total,
		"page":     filter.Page,
		"per_page": filter.PerPage,
	})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	session := sessionID(r)
	id := chi.URLParam(r, "id")

	doc, err := s.store.GetDocument(r.Context(), session, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	items, err := s.store.ListLineItemsByDocument(r.Context(), session, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	doc.LineItems = items
	doc.LineItemCount = len(items)

	writeJSON(w, http.StatusOK, doc)
}

// documentUpdate carries the metadata fields a reviewer may correct.
type documentUpdate struct {
	DocumentType             *string  `json:"document_type"`
	VendorName               *string  `json:"vendor_name"`
	DocumentNumber           *string  `json:"document_number"`
	DocumentDate             *string  `json:"document_date"`
	ContractNumber           *string  `json:"contract_number"`
	TaskOrderNumber          *string  `json:"task_order_number"`
	PeriodOfPerformanceStart *string  `json:"period_of_performance_start"`
	PeriodOfPerformanceEnd   *string  `json:"period_of_performance_end"`
	TotalAmount              *float64 `json:"total_amount"`
	Currency                 *string  `json:"currency"`
	Notes                    *string  `json:"notes"`
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	session := sessionID(r)
	id := chi.URLParam(r, "id")

	var update documentUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	doc, err := s.store.GetDocument(r.Context(), session, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	applyString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	applyString(&doc.DocumentType, update.DocumentType)
	applyString(&doc.VendorName, update.VendorName)
	applyString(&doc.DocumentNumber, update.DocumentNumber)
	applyString(&doc.DocumentDate, update.DocumentDate)
	applyString(&doc.ContractNumber, update.ContractNumber)
	applyString(&doc.TaskOrderNumber, update.TaskOrderNumber)
	applyString(&doc.PeriodOfPerformanceStart, update.PeriodOfPerformanceStart)
	applyString(&doc.PeriodOfPerformanceEnd, update.PeriodOfPerformanceEnd)
	applyString(&doc.Currency, update.Currency)
	applyString(&doc.Notes, update.Notes)
	if update.TotalAmount != nil {
		doc.TotalAmount = update.TotalAmount
	}

	if err := s.store.UpdateDocument(r.Context(), doc); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	session := sessionID(r)
	id := chi.URLParam(r, "id")

	doc, err := s.store.GetDocument(r.Context(), session, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	if doc.StoredPath != "" {
		if err := os.Remove(doc.StoredPath); err != nil && !os.IsNotExist(err) {
			zap.L().Warn("stored file removal failed",
				zap.String("path", doc.StoredPath), zap.Error(err))
		}
	}

	if err := s.store.DeleteDocument(r.Context(), session, id); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "document deleted"})
}

func (s *Server) handleProcessDocument(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Anthropic.Key == "" {
		writeError(w, http.StatusBadRequest, "Anthropic API key not configured")
		return
	}

	summary, err := s.processor.Process(r.Context(), sessionID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":            "document processed",
		"document":           summary.Document,
		"line_items_created": summary.LineItemsCreated,
		"chunks_created":     summary.ChunksCreated,
	})
}

func (s *Server) handleApproveDocument(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ReviewedBy  string `json:"reviewed_by"`
		ReviewNotes string `json:"review_notes"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if body.ReviewedBy == "" {
		body.ReviewedBy = "api"
	}

	doc, err := s.processor.Approve(r.Context(), sessionID(r), chi.URLParam(r, "id"), body.ReviewedBy, body.ReviewNotes)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleReprocessDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.processor.Reprocess(r.Context(), sessionID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}
