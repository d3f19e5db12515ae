package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/stock-ledger/internal/auth"
	"github.com/example/stock-ledger/internal/identity"
	"github.com/example/stock-ledger/internal/infrastructure/store"
	"github.com/example/stock-ledger/internal/ledger"
)

const testSecret = "api-test-secret"

type testServer struct {
	router    http.Handler
	validator *auth.TokenValidator
}

func newTestServer() *testServer {
	svc := ledger.NewService(store.NewMemoryStore(), nil, nil)
	validator := auth.NewTokenValidator(testSecret)
	return &testServer{
		router:    NewRouter(NewHandlers(svc), validator),
		validator: validator,
	}
}

func (ts *testServer) token(t *testing.T, p identity.Principal) string {
	t.Helper()
	token, err := ts.validator.Issue(p, time.Hour)
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	return rr
}

func decodeView(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

var (
	apiAdmin  = identity.Principal{ID: "admin-1", Role: identity.RoleAdmin}
	apiVendor = identity.Principal{ID: "vendor-a", Role: identity.RoleVendor, Approved: true}
)

func createViaAPI(t *testing.T, ts *testServer, token string, productID string, qty int) {
	t.Helper()
	rr := ts.do(t, http.MethodPost, "/stock", token, ledger.CreateInput{
		ProductID:     productID,
		ProductName:   "Widget",
		StockQuantity: qty,
		ReorderLevel:  5,
		UnitPrice:     1200,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
}

func TestAPI_CreateAndGet(t *testing.T) {
	ts := newTestServer()
	token := ts.token(t, apiVendor)

	createViaAPI(t, ts, token, "prod-1", 20)

	rr := ts.do(t, http.MethodGet, "/stock/prod-1", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeView(t, rr)
	assert.Equal(t, "prod-1", body["product_id"])
	assert.Equal(t, "vendor-a", body["owner_id"])
	assert.Equal(t, "IN_STOCK", body["status"])
	assert.Equal(t, float64(20), body["available_stock"])
}

func TestAPI_CreateRequiresAuth(t *testing.T) {
	ts := newTestServer()

	rr := ts.do(t, http.MethodPost, "/stock", "", ledger.CreateInput{
		ProductID: "prod-1", ProductName: "Widget",
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAPI_ReserveFlow(t *testing.T) {
	ts := newTestServer()
	token := ts.token(t, apiVendor)
	createViaAPI(t, ts, token, "prod-1", 20)

	rr := ts.do(t, http.MethodPost, "/stock/prod-1/reserve", token, quantityRequest{Quantity: 18})
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeView(t, rr)
	assert.Equal(t, "LOW_STOCK", body["status"])
	assert.Equal(t, float64(2), body["available_stock"])

	// Over-reserving maps to 409.
	rr = ts.do(t, http.MethodPost, "/stock/prod-1/reserve", token, quantityRequest{Quantity: 3})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = ts.do(t, http.MethodPost, "/stock/prod-1/confirm", token, quantityRequest{Quantity: 18})
	require.Equal(t, http.StatusOK, rr.Code)
	body = decodeView(t, rr)
	assert.Equal(t, float64(2), body["stock_quantity"])
	assert.Equal(t, float64(18), body["sold_quantity"])
}

func TestAPI_InvalidQuantity(t *testing.T) {
	ts := newTestServer()
	token := ts.token(t, apiVendor)
	createViaAPI(t, ts, token, "prod-1", 20)

	rr := ts.do(t, http.MethodPost, "/stock/prod-1/reserve", token, quantityRequest{Quantity: 0})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_Availability(t *testing.T) {
	ts := newTestServer()
	token := ts.token(t, apiVendor)
	createViaAPI(t, ts, token, "prod-1", 5)

	rr := ts.do(t, http.MethodGet, "/stock/prod-1/availability?quantity=3", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decodeView(t, rr)["available"])

	rr = ts.do(t, http.MethodGet, "/stock/prod-1/availability?quantity=9", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, false, decodeView(t, rr)["available"])

	rr = ts.do(t, http.MethodGet, "/stock/prod-1/available", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(5), decodeView(t, rr)["available"])

	rr = ts.do(t, http.MethodGet, "/stock/missing/available", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAPI_RestockPermissionMapping(t *testing.T) {
	ts := newTestServer()
	vendorToken := ts.token(t, apiVendor)
	otherToken := ts.token(t, identity.Principal{ID: "vendor-b", Role: identity.RoleVendor, Approved: true})
	createViaAPI(t, ts, vendorToken, "prod-1", 10)

	rr := ts.do(t, http.MethodPost, "/stock/prod-1/restock", otherToken, quantityRequest{Quantity: 5})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.do(t, http.MethodPost, "/stock/prod-1/restock", vendorToken, quantityRequest{Quantity: 5})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(15), decodeView(t, rr)["stock_quantity"])
}

func TestAPI_SetQuantityAdminOnly(t *testing.T) {
	ts := newTestServer()
	vendorToken := ts.token(t, apiVendor)
	adminToken := ts.token(t, apiAdmin)
	createViaAPI(t, ts, vendorToken, "prod-1", 30)

	rr := ts.do(t, http.MethodPut, "/stock/prod-1/quantity", vendorToken, adjustRequest{Quantity: 12, Reason: "count"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.do(t, http.MethodPut, "/stock/prod-1/quantity", adminToken, adjustRequest{Quantity: 12, Reason: "count"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(12), decodeView(t, rr)["stock_quantity"])
}

func TestAPI_DeactivateHidesFromAnonymous(t *testing.T) {
	ts := newTestServer()
	token := ts.token(t, apiVendor)
	createViaAPI(t, ts, token, "prod-1", 10)

	rr := ts.do(t, http.MethodPost, "/stock/prod-1/deactivate", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "DISCONTINUED", decodeView(t, rr)["status"])

	rr = ts.do(t, http.MethodGet, "/stock/prod-1", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.do(t, http.MethodGet, "/stock/prod-1", token, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAPI_DeleteMapping(t *testing.T) {
	ts := newTestServer()
	vendorToken := ts.token(t, apiVendor)
	adminToken := ts.token(t, apiAdmin)
	createViaAPI(t, ts, vendorToken, "prod-1", 10)

	rr := ts.do(t, http.MethodDelete, "/stock/prod-1", vendorToken, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.do(t, http.MethodPost, "/stock/prod-1/reserve", vendorToken, quantityRequest{Quantity: 2})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = ts.do(t, http.MethodDelete, "/stock/prod-1", adminToken, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = ts.do(t, http.MethodPost, "/stock/prod-1/release", vendorToken, quantityRequest{Quantity: 2})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = ts.do(t, http.MethodDelete, "/stock/prod-1", adminToken, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAPI_Reports(t *testing.T) {
	ts := newTestServer()
	vendorToken := ts.token(t, apiVendor)
	createViaAPI(t, ts, vendorToken, "prod-1", 3)
	createViaAPI(t, ts, vendorToken, "prod-2", 50)

	rr := ts.do(t, http.MethodGet, "/reports/low-stock", vendorToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var recs []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "prod-1", recs[0]["product_id"])

	// Low-stock reporting needs a vendor or admin token.
	rr = ts.do(t, http.MethodGet, "/reports/low-stock", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = ts.do(t, http.MethodGet, "/reports/status/in_stock", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = ts.do(t, http.MethodGet, "/reports/top-selling?limit=5", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = ts.do(t, http.MethodGet, "/reports/vendors/vendor-a/dashboard", vendorToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	dash := decodeView(t, rr)
	assert.Equal(t, float64(2), dash["total_records"])
	assert.Equal(t, float64(53), dash["total_stock"])

	rr = ts.do(t, http.MethodGet, "/reports/vendors/vendor-a/valuation", ts.token(t, apiAdmin), nil)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestAPI_Health(t *testing.T) {
	ts := newTestServer()

	rr := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}
