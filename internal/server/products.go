package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/procdoc/internal/catalog"
	"github.com/sells-group/procdoc/internal/model"
)

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.ProductFilter{
		Search:   q.Get("search"),
		Category: q.Get("category"),
		Page:     queryInt(r, "page", 1),
		PerPage:  queryInt(r, "per_page", 25),
	}

	products, total, err := s.store.ListProducts(r.Context(), sessionID(r), filter)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":    products,
		"total":    total,
		"page":     filter.Page,
		"per_page": filter.PerPage,
	})
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	session := sessionID(r)

	product, err := s.store.GetProduct(r.Context(), session, chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	recent, err := s.store.ListLineItemsByProduct(r.Context(), session, product.CanonicalName, 20)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"product":           product,
		"recent_line_items": recent,
	})
}

func (s *Server) handleGenerateEstimate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Quantity       *float64 `json:"quantity"`
		EscalationRate *float64 `json:"escalation_rate"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	quantity := 1.0
	if body.Quantity != nil {
		quantity = *body.Quantity
	}
	if quantity <= 0 {
		writeError(w, http.StatusBadRequest, "quantity must be positive")
		return
	}

	escalation := catalog.DefaultEscalationRate
	if body.EscalationRate != nil {
		escalation = *body.EscalationRate
	}
	if escalation < 0 {
		writeError(w, http.StatusBadRequest, "escalation_rate must not be negative")
		return
	}

	estimate, err := s.catalog.GenerateEstimate(r.Context(), sessionID(r), chi.URLParam(r, "id"), quantity, escalation)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, estimate)
}

func (s *Server) handleRebuildCatalog(w http.ResponseWriter, r *http.Request) {
	result, err := s.catalog.Rebuild(r.Context(), sessionID(r))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "catalog rebuilt",
		"created": result.Created,
		"updated": result.Updated,
		"total":   result.Total,
	})
}
