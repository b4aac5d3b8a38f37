package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lumapos/backend/internal/domain"
	"lumapos/backend/internal/service"
	"lumapos/backend/internal/store/memory"
)

type testAPI struct {
	handler http.Handler
	api     *API
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	repo := memory.NewSeeded()
	svc := service.New(repo, nil, nil, nil, "main-store", 0)
	auth := NewAuthManager(testSecret, time.Hour, repo)
	api := New(svc, auth, nil, "http://127.0.0.1:3000")
	return &testAPI{handler: api.Handler(), api: api}
}

func (ta *testAPI) login(t *testing.T, username, password string) string {
	t.Helper()
	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ta.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed with status %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func (ta *testAPI) do(t *testing.T, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if method == http.MethodPost || method == http.MethodPatch || method == http.MethodPut {
		req.Header.Set("X-CSRF-Token", ta.api.generateCSRFToken())
	}
	rec := httptest.NewRecorder()
	ta.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	ta := newTestAPI(t)
	rec := ta.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestProtectedRoutesRequireBearerToken(t *testing.T) {
	ta := newTestAPI(t)
	rec := ta.do(t, http.MethodGet, "/api/v1/variants", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCashierCannotReachAdminRoutes(t *testing.T) {
	ta := newTestAPI(t)
	token := ta.login(t, "cashier", "cashier123")

	rec := ta.do(t, http.MethodGet, "/api/v1/audit-logs", token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = ta.do(t, http.MethodGet, "/api/v1/goods-receipts", token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for goods receipts, got %d", rec.Code)
	}
}

func TestMutatingRequestsRequireCSRFToken(t *testing.T) {
	ta := newTestAPI(t)
	token := ta.login(t, "cashier", "cashier123")

	body, _ := json.Marshal(domain.ShiftStartRequest{OpeningCashCents: 1000})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/shifts/start", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	ta.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without CSRF token, got %d", rec.Code)
	}
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	ta := newTestAPI(t)
	token := ta.login(t, "cashier", "cashier123")

	rec := ta.do(t, http.MethodPost, "/api/v1/shifts/start", token, domain.ShiftStartRequest{OpeningCashCents: 25000})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start shift: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = ta.do(t, http.MethodPost, "/api/v1/orders", token, domain.OrderCreateRequest{
		Lines: []domain.OrderLineRequest{{SKU: "SKU-ESPRESSO", Qty: 1}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create order: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Order domain.Order `json:"order"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	orderID := created.Order.ID
	if orderID == "" || created.Order.Status != domain.OrderStatusDraft {
		t.Fatalf("unexpected created order: %+v", created.Order)
	}

	// Completing before payment is a payment failure, not a transition one.
	rec = ta.do(t, http.MethodPost, fmt.Sprintf("/api/v1/orders/%s/complete", orderID), token, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 before payment, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = ta.do(t, http.MethodPost, fmt.Sprintf("/api/v1/orders/%s/payments", orderID), token, map[string]any{
		"method_id":    "cash",
		"amount_cents": created.Order.TotalCents,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add payment: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = ta.do(t, http.MethodPost, fmt.Sprintf("/api/v1/orders/%s/complete", orderID), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// Completing twice conflicts with the order's state.
	rec = ta.do(t, http.MethodPost, fmt.Sprintf("/api/v1/orders/%s/complete", orderID), token, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on re-complete, got %d", rec.Code)
	}

	rec = ta.do(t, http.MethodGet, "/api/v1/orders/"+orderID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get order: expected 200, got %d", rec.Code)
	}
	var fetched struct {
		Order domain.Order `json:"order"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &fetched); err != nil {
		t.Fatalf("decode fetched order: %v", err)
	}
	if fetched.Order.Status != domain.OrderStatusCompleted {
		t.Fatalf("expected completed order, got %s", fetched.Order.Status)
	}

	rec = ta.do(t, http.MethodGet, "/api/v1/orders/number/"+fetched.Order.Number, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("lookup by number: expected 200, got %d", rec.Code)
	}
}

func TestStockLevelsAndAdjustOverHTTP(t *testing.T) {
	ta := newTestAPI(t)
	admin := ta.login(t, "admin", "admin123")

	rec := ta.do(t, http.MethodGet, "/api/v1/stock-levels?sku=SKU-TEA", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get stock level: expected 200, got %d", rec.Code)
	}

	rec = ta.do(t, http.MethodPost, "/api/v1/stock-levels/adjust", admin, domain.StockAdjustRequest{
		SKU:    "SKU-TEA",
		Delta:  -5,
		Reason: "spoilage",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("adjust: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var adjusted struct {
		StockLevel domain.StockLevel `json:"stock_level"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &adjusted); err != nil {
		t.Fatalf("decode level: %v", err)
	}
	if adjusted.StockLevel.Available != 95 {
		t.Fatalf("expected 95 available, got %d", adjusted.StockLevel.Available)
	}

	// Unknown SKU maps to 404.
	rec = ta.do(t, http.MethodPost, "/api/v1/stock-levels/adjust", admin, domain.StockAdjustRequest{
		SKU:    "SKU-NOPE",
		Delta:  1,
		Reason: "test",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestValidationErrorsMapToBadRequest(t *testing.T) {
	ta := newTestAPI(t)
	admin := ta.login(t, "admin", "admin123")

	rec := ta.do(t, http.MethodPost, "/api/v1/variants", admin, domain.VariantCreateRequest{
		SKU: "", Name: "", PriceCents: 0,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCSRFSecretsAreUniquePerInstance(t *testing.T) {
	a := newTestAPI(t)
	b := newTestAPI(t)
	if a.api.generateCSRFToken() == b.api.generateCSRFToken() {
		t.Fatalf("two instances must never share a CSRF secret")
	}
	if !a.api.validateCSRFToken(a.api.generateCSRFToken()) {
		t.Fatalf("instance must accept its own token")
	}
	if a.api.validateCSRFToken(b.api.generateCSRFToken()) {
		t.Fatalf("instance must reject another instance's token")
	}
}

func TestLoginRateLimiting(t *testing.T) {
	ta := newTestAPI(t)
	body, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "wrong"})

	var last int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "10.1.2.3:5000"
		rec := httptest.NewRecorder()
		ta.handler.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after repeated failures, got %d", last)
	}
}
