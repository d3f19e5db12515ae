package api

import (
	"net/http"
	"strings"

	"github.com/example/stock-ledger/internal/api/middleware"
	"github.com/example/stock-ledger/internal/auth"
)

func NewRouter(h *Handlers, validator *auth.TokenValidator) http.Handler {
	mux := http.NewServeMux()

	authed := middleware.Auth(validator)
	optional := middleware.OptionalAuth(validator)

	wrap := func(mw func(http.Handler) http.Handler, fn http.HandlerFunc) http.Handler {
		return mw(fn)
	}

	listRecords := wrap(optional, h.ListRecords)
	createRecord := wrap(authed, h.CreateRecord)
	getRecord := wrap(optional, h.GetRecord)
	updateRecord := wrap(authed, h.UpdateRecord)
	deleteRecord := wrap(authed, h.DeleteRecord)

	reserve := wrap(authed, h.Reserve)
	release := wrap(authed, h.Release)
	confirmSale := wrap(authed, h.ConfirmSale)
	directSale := wrap(authed, h.DirectSale)
	restock := wrap(authed, h.Restock)
	setQuantity := wrap(authed, h.SetQuantity)
	deactivate := wrap(authed, h.Deactivate)
	reactivate := wrap(authed, h.Reactivate)

	checkAvailability := wrap(optional, h.CheckAvailability)
	getAvailable := wrap(optional, h.GetAvailable)

	mux.HandleFunc("/stock", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			listRecords.ServeHTTP(w, r)
		case http.MethodPost:
			createRecord.ServeHTTP(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/stock/", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		if r.Method == http.MethodPost {
			switch {
			case strings.HasSuffix(path, "/reserve"):
				reserve.ServeHTTP(w, r)
			case strings.HasSuffix(path, "/release"):
				release.ServeHTTP(w, r)
			case strings.HasSuffix(path, "/confirm"):
				confirmSale.ServeHTTP(w, r)
			case strings.HasSuffix(path, "/sell"):
				directSale.ServeHTTP(w, r)
			case strings.HasSuffix(path, "/restock"):
				restock.ServeHTTP(w, r)
			case strings.HasSuffix(path, "/deactivate"):
				deactivate.ServeHTTP(w, r)
			case strings.HasSuffix(path, "/reactivate"):
				reactivate.ServeHTTP(w, r)
			default:
				http.Error(w, "Not found", http.StatusNotFound)
			}
			return
		}

		if r.Method == http.MethodGet {
			switch {
			case strings.HasSuffix(path, "/availability"):
				checkAvailability.ServeHTTP(w, r)
			case strings.HasSuffix(path, "/available"):
				getAvailable.ServeHTTP(w, r)
			default:
				getRecord.ServeHTTP(w, r)
			}
			return
		}

		switch r.Method {
		case http.MethodPut:
			if strings.HasSuffix(path, "/quantity") {
				setQuantity.ServeHTTP(w, r)
				return
			}
			http.Error(w, "Not found", http.StatusNotFound)
		case http.MethodPatch:
			updateRecord.ServeHTTP(w, r)
		case http.MethodDelete:
			deleteRecord.ServeHTTP(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Reports
	lowStock := wrap(authed, h.LowStockReport)
	outOfStock := wrap(authed, h.OutOfStockReport)
	statusReport := wrap(optional, h.StatusReport)
	topSelling := wrap(optional, h.TopSellingReport)
	valuation := wrap(authed, h.VendorValuation)
	dashboard := wrap(authed, h.VendorDashboard)

	mux.Handle("/reports/low-stock", lowStock)
	mux.Handle("/reports/out-of-stock", outOfStock)
	mux.Handle("/reports/status/", statusReport)
	mux.Handle("/reports/top-selling", topSelling)

	mux.HandleFunc("/reports/vendors/", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/valuation"):
			valuation.ServeHTTP(w, r)
		case strings.HasSuffix(r.URL.Path, "/dashboard"):
			dashboard.ServeHTTP(w, r)
		default:
			http.Error(w, "Not found", http.StatusNotFound)
		}
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return mux
}
