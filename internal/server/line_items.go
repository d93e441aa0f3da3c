package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/procdoc/internal/export"
	"github.com/sells-group/procdoc/internal/model"
)

func lineItemFilter(r *http.Request) model.LineItemFilter {
	q := r.URL.Query()
	return model.LineItemFilter{
		Search:         q.Get("search"),
		Vendor:         q.Get("vendor"),
		Category:       q.Get("category"),
		SubCategory:    q.Get("sub_category"),
		MinPrice:       queryFloat(r, "min_price"),
		MaxPrice:       queryFloat(r, "max_price"),
		DateFrom:       q.Get("date_from"),
		DateTo:         q.Get("date_to"),
		DocumentType:   q.Get("document_type"),
		ContractNumber: q.Get("contract_number"),
		SortBy:         q.Get("sort_by"),
		SortOrder:      q.Get("sort_order"),
		Page:           queryInt(r, "page", 1),
		PerPage:        queryInt(r, "per_page", 25),
	}
}

func (s *Server) handleListLineItems(w http.ResponseWriter, r *http.Request) {
	filter := lineItemFilter(r)

	items, total, err := s.store.ListLineItems(r.Context(), sessionID(r), filter)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":    items,
		"total":    total,
		"page":     filter.Page,
		"per_page": filter.PerPage,
	})
}

// lineItemUpdate carries the fields a reviewer may correct on a line item.
// The JSON keys double as source column names for field-mapping
// reinforcement: a manual correction confirms that this vendor's data maps
// onto that canonical field.
type lineItemUpdate struct {
	PartNumber         *string  `json:"part_number"`
	Manufacturer       *string  `json:"manufacturer"`
	ProductName        *string  `json:"product_name"`
	ProductDescription *string  `json:"product_description"`
	Category           *string  `json:"category"`
	SubCategory        *string  `json:"sub_category"`
	Quantity           *float64 `json:"quantity"`
	UnitOfIssue        *string  `json:"unit_of_issue"`
	UnitPrice          *float64 `json:"unit_price"`
	ExtendedPrice      *float64 `json:"extended_price"`
	CLIN               *string  `json:"clin"`
	LaborCategory      *string  `json:"labor_category"`
	LaborHours         *float64 `json:"labor_hours"`
	LaborRate          *float64 `json:"labor_rate"`
}

func (s *Server) handleUpdateLineItem(w http.ResponseWriter, r *http.Request) {
	session := sessionID(r)
	id := chi.URLParam(r, "id")

	var update lineItemUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := s.store.GetLineItem(r.Context(), session, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var changed []string
	applyString := func(field string, dst *string, src *string) {
		if src != nil && *src != *dst {
			*dst = *src
			changed = append(changed, field)
		}
	}
	applyFloat := func(field string, dst **float64, src *float64) {
		if src != nil && (*dst == nil || **dst != *src) {
			*dst = src
			changed = append(changed, field)
		}
	}

	applyString("part_number", &item.PartNumber, update.PartNumber)
	applyString("manufacturer", &item.Manufacturer, update.Manufacturer)
	applyString("product_name", &item.ProductName, update.ProductName)
	applyString("product_description", &item.ProductDescription, update.ProductDescription)
	applyString("category", &item.Category, update.Category)
	applyString("sub_category", &item.SubCategory, update.SubCategory)
	applyString("unit_of_issue", &item.UnitOfIssue, update.UnitOfIssue)
	applyString("clin", &item.CLIN, update.CLIN)
	applyString("labor_category", &item.LaborCategory, update.LaborCategory)
	applyFloat("quantity", &item.Quantity, update.Quantity)
	applyFloat("unit_price", &item.UnitPrice, update.UnitPrice)
	applyFloat("extended_price", &item.ExtendedPrice, update.ExtendedPrice)
	applyFloat("labor_hours", &item.LaborHours, update.LaborHours)
	applyFloat("labor_rate", &item.LaborRate, update.LaborRate)

	item.HumanVerified = true
	if err := s.store.UpdateLineItem(r.Context(), item); err != nil {
		writeStoreError(w, err)
		return
	}

	// A human correction is the strongest mapping signal this vendor's
	// documents can produce.
	if len(changed) > 0 {
		doc, err := s.store.GetDocument(r.Context(), session, item.DocumentID)
		if err == nil && doc.VendorName != "" {
			for _, field := range changed {
				if _, err := s.store.ReinforceFieldMapping(r.Context(), session, doc.VendorName, field, field); err != nil {
					zap.L().Warn("field mapping reinforcement failed",
						zap.String("vendor", doc.VendorName),
						zap.String("field", field),
						zap.Error(err))
				}
			}
		}
	}

	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleExportLineItems(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "xlsx" {
		writeError(w, http.StatusBadRequest, "format must be csv or xlsx")
		return
	}

	session := sessionID(r)
	filter := lineItemFilter(r)
	filter.Page = 1
	filter.PerPage = 100

	// Exports ignore pagination and walk every matching page.
	var items []model.LineItem
	for {
		page, total, err := s.store.ListLineItems(r.Context(), session, filter)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		items = append(items, page...)
		if len(items) >= total || len(page) == 0 {
			break
		}
		filter.Page++
	}

	var (
		data []byte
		err  error
	)
	if format == "csv" {
		data, err = export.CSV(items)
	} else {
		data, err = export.XLSX(items)
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}

	contentType := "text/csv"
	if format == "xlsx" {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	filename := fmt.Sprintf("line_items_%s.%s", time.Now().Format("20060102"), format)

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		zap.L().Error("export write failed", zap.Error(err))
	}
}

func (s *Server) handleSpendAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis, err := s.store.SpendAnalysis(r.Context(), sessionID(r))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}
