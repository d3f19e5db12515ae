package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/stock-ledger/internal/api/middleware"
	"github.com/example/stock-ledger/internal/domain/stock"
	"github.com/example/stock-ledger/internal/infrastructure/store"
	"github.com/example/stock-ledger/internal/ledger"
)

type Handlers struct {
	ledger *ledger.Service
}

func NewHandlers(svc *ledger.Service) *Handlers {
	return &Handlers{ledger: svc}
}

// recordView adds the derived fields to the wire representation.
type recordView struct {
	*stock.Record
	Status         stock.Status `json:"status"`
	AvailableStock int          `json:"available_stock"`
}

func view(rec *stock.Record) recordView {
	return recordView{
		Record:         rec,
		Status:         rec.Status(),
		AvailableStock: rec.AvailableStock(),
	}
}

func views(recs []*stock.Record) []recordView {
	out := make([]recordView, len(recs))
	for i, rec := range recs {
		out[i] = view(rec)
	}
	return out
}

// Record handlers

func (h *Handlers) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var in ledger.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rec, err := h.ledger.Create(r.Context(), middleware.GetPrincipal(r.Context()), in)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, view(rec))
}

func (h *Handlers) ListRecords(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())

	var (
		recs []*stock.Record
		err  error
	)
	if owner := r.URL.Query().Get("owner"); owner != "" {
		recs, err = h.ledger.ListByOwner(r.Context(), p, owner)
	} else {
		recs, err = h.ledger.List(r.Context(), p)
	}
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, views(recs))
}

func (h *Handlers) GetRecord(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/stock/")
	rec, err := h.ledger.Get(r.Context(), middleware.GetPrincipal(r.Context()), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view(rec))
}

func (h *Handlers) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/stock/")

	var d store.Details
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rec, err := h.ledger.Update(r.Context(), middleware.GetPrincipal(r.Context()), id, d)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view(rec))
}

func (h *Handlers) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/stock/")
	if err := h.ledger.Delete(r.Context(), middleware.GetPrincipal(r.Context()), id); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Record deleted"})
}

// Stock mutation handlers

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

type adjustRequest struct {
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason"`
}

func (h *Handlers) Reserve(w http.ResponseWriter, r *http.Request) {
	h.mutateQuantity(w, r, "/reserve", h.ledger.Reserve)
}

func (h *Handlers) Release(w http.ResponseWriter, r *http.Request) {
	h.mutateQuantity(w, r, "/release", h.ledger.Release)
}

func (h *Handlers) ConfirmSale(w http.ResponseWriter, r *http.Request) {
	h.mutateQuantity(w, r, "/confirm", h.ledger.ConfirmSale)
}

func (h *Handlers) DirectSale(w http.ResponseWriter, r *http.Request) {
	h.mutateQuantity(w, r, "/sell", h.ledger.DirectSale)
}

func (h *Handlers) mutateQuantity(w http.ResponseWriter, r *http.Request, suffix string,
	op func(ctx context.Context, productID string, qty int) (*stock.Record, error)) {
	id := actionPathParam(r.URL.Path, suffix)

	var req quantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rec, err := op(r.Context(), id, req.Quantity)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view(rec))
}

func (h *Handlers) Restock(w http.ResponseWriter, r *http.Request) {
	id := actionPathParam(r.URL.Path, "/restock")

	var req quantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rec, err := h.ledger.Restock(r.Context(), middleware.GetPrincipal(r.Context()), id, req.Quantity)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view(rec))
}

func (h *Handlers) SetQuantity(w http.ResponseWriter, r *http.Request) {
	id := actionPathParam(r.URL.Path, "/quantity")

	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rec, err := h.ledger.SetQuantity(r.Context(), middleware.GetPrincipal(r.Context()), id, req.Quantity, req.Reason)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view(rec))
}

func (h *Handlers) Deactivate(w http.ResponseWriter, r *http.Request) {
	id := actionPathParam(r.URL.Path, "/deactivate")
	rec, err := h.ledger.Deactivate(r.Context(), middleware.GetPrincipal(r.Context()), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view(rec))
}

func (h *Handlers) Reactivate(w http.ResponseWriter, r *http.Request) {
	id := actionPathParam(r.URL.Path, "/reactivate")
	rec, err := h.ledger.Reactivate(r.Context(), middleware.GetPrincipal(r.Context()), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view(rec))
}

// Availability handlers

func (h *Handlers) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	id := actionPathParam(r.URL.Path, "/availability")

	qty, err := strconv.Atoi(r.URL.Query().Get("quantity"))
	if err != nil {
		http.Error(w, "quantity query parameter required", http.StatusBadRequest)
		return
	}

	ok, err := h.ledger.CheckAvailability(r.Context(), id, qty)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"product_id": id,
		"quantity":   qty,
		"available":  ok,
	})
}

func (h *Handlers) GetAvailable(w http.ResponseWriter, r *http.Request) {
	id := actionPathParam(r.URL.Path, "/available")

	available, err := h.ledger.GetAvailable(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"product_id": id,
		"available":  available,
	})
}

// Report handlers

func (h *Handlers) LowStockReport(w http.ResponseWriter, r *http.Request) {
	recs, err := h.ledger.LowStock(r.Context(), middleware.GetPrincipal(r.Context()))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, views(recs))
}

func (h *Handlers) OutOfStockReport(w http.ResponseWriter, r *http.Request) {
	recs, err := h.ledger.OutOfStock(r.Context(), middleware.GetPrincipal(r.Context()))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, views(recs))
}

func (h *Handlers) StatusReport(w http.ResponseWriter, r *http.Request) {
	status := stock.Status(strings.ToUpper(extractPathParam(r.URL.Path, "/reports/status/")))
	recs, err := h.ledger.ByStatus(r.Context(), middleware.GetPrincipal(r.Context()), status)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, views(recs))
}

func (h *Handlers) TopSellingReport(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	recs, err := h.ledger.TopSelling(r.Context(), middleware.GetPrincipal(r.Context()), limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, views(recs))
}

func (h *Handlers) VendorValuation(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/reports/vendors/")
	ownerID := strings.TrimSuffix(path, "/valuation")

	total, err := h.ledger.VendorValuation(r.Context(), middleware.GetPrincipal(r.Context()), ownerID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"owner_id":        ownerID,
		"inventory_value": total,
	})
}

func (h *Handlers) VendorDashboard(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/reports/vendors/")
	ownerID := strings.TrimSuffix(path, "/dashboard")

	stats, err := h.ledger.VendorDashboard(r.Context(), middleware.GetPrincipal(r.Context()), ownerID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, stock.ErrRecordNotFound):
		status = http.StatusNotFound
	case errors.Is(err, stock.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, stock.ErrInsufficientStock), errors.Is(err, stock.ErrRecordConflict):
		status = http.StatusConflict
	case errors.Is(err, stock.ErrInvalidQuantity), errors.Is(err, ledger.ErrInvalidRecord):
		status = http.StatusBadRequest
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func extractPathParam(path, prefix string) string {
	return strings.TrimPrefix(path, prefix)
}

// actionPathParam extracts the product ID from /stock/{id}{suffix} paths.
func actionPathParam(path, suffix string) string {
	return strings.TrimSuffix(strings.TrimPrefix(path, "/stock/"), suffix)
}
