package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	"medshelf/backend/internal/alert"
	"medshelf/backend/internal/domain"
	"medshelf/backend/internal/service"
	"medshelf/backend/internal/store"
	"medshelf/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	logger := zaptest.NewLogger(t)
	repo := memory.New(logger)
	svc := service.New(repo,
		service.WithLogger(logger),
		service.WithClock(func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) }),
	)
	auth := NewAuthManager("test-secret-key-test-secret-key!", time.Hour)

	return New(svc, auth, "*", logger)
}

func doJSON(t *testing.T, api *API, method string, path string, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload == nil {
		body = bytes.NewReader(nil)
	} else {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("decode body: %v (raw: %s)", err, rec.Body.String())
	}
}

func registerAndLogin(t *testing.T, api *API, username string) string {
	t.Helper()

	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/register", "", domain.RegisterRequest{
		Name:          "Owner " + username,
		Email:         username + "@example.com",
		Phone:         "555-0100",
		Username:      username,
		Password:      "correct horse",
		PharmacyName:  "Pharmacy " + username,
		LicenseNumber: "LIC-" + username,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s failed, status %d (body: %s)", username, rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: username, Password: "correct horse"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s failed, status %d", username, rec.Code)
	}
	var payload domain.LoginResponse
	decodeBody(t, rec, &payload)
	if strings.TrimSpace(payload.AccessToken) == "" {
		t.Fatalf("expected access token in login response")
	}
	return payload.AccessToken
}

func addMedicine(t *testing.T, api *API, token string, name string, qty int, expiry string) domain.Medicine {
	t.Helper()

	rec := doJSON(t, api, http.MethodPost, "/api/v1/medicines", token, domain.AddStockRequest{
		Name:         name,
		Quantity:     qty,
		ExpiryDate:   expiry,
		CostPrice:    decimal.NewFromInt(6),
		SellingPrice: decimal.NewFromInt(10),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add medicine failed, status %d (body: %s)", rec.Code, rec.Body.String())
	}
	var med domain.Medicine
	decodeBody(t, rec, &med)
	return med
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodGet, "/healthz", "", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestRegisterConflictsAndValidation(t *testing.T) {
	api := newTestAPI(t)
	registerAndLogin(t, api, "alice")

	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/register", "", domain.RegisterRequest{
		Name: "Other", Email: "other@example.com", Phone: "1", Username: "alice",
		Password: "password1", PharmacyName: "P", LicenseNumber: "OTHER",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate username, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/auth/register", "", domain.RegisterRequest{
		Name: "Bob", Email: "bob@example.com", Phone: "1", Username: "bob",
		Password: "short", PharmacyName: "P", LicenseNumber: "BOB",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for short password, got %d", rec.Code)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["field"] != "password" {
		t.Fatalf("expected field=password, got %v", body["field"])
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	registerAndLogin(t, api, "alice")

	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "alice", Password: "wrong"})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{"/api/v1/medicines", "/api/v1/sales", "/api/v1/alerts", "/api/v1/me"} {
		rec := doJSON(t, api, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 without token, got %d", path, rec.Code)
		}
	}

	rec := doJSON(t, api, http.MethodGet, "/api/v1/medicines", "not-a-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rec.Code)
	}
}

func TestMeReturnsOwnerWithoutPassword(t *testing.T) {
	api := newTestAPI(t)
	token := registerAndLogin(t, api, "alice")

	rec := doJSON(t, api, http.MethodGet, "/api/v1/me", token, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "$2a$") {
		t.Fatalf("password hash leaked in profile response")
	}
}

func TestMedicineLifecycle(t *testing.T) {
	api := newTestAPI(t)
	token := registerAndLogin(t, api, "alice")
	med := addMedicine(t, api, token, "Paracetamol", 5, "2030-01-01")

	rec := doJSON(t, api, http.MethodPost, fmt.Sprintf("/api/v1/medicines/%d/restock", med.ID), token, domain.RestockRequest{Quantity: 7})
	if rec.Code != http.StatusOK {
		t.Fatalf("restock expected 200, got %d", rec.Code)
	}
	var restocked domain.Medicine
	decodeBody(t, rec, &restocked)
	if restocked.Quantity != 12 {
		t.Fatalf("expected quantity 12 after restock, got %d", restocked.Quantity)
	}

	rec = doJSON(t, api, http.MethodGet, fmt.Sprintf("/api/v1/medicines/%d", med.ID), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get medicine expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/medicines/abc", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/medicines", token, domain.AddStockRequest{Name: "Bad", Quantity: 1, ExpiryDate: "next week"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unreadable expiry, got %d", rec.Code)
	}
}

func TestRestockBeyondCapIsRejected(t *testing.T) {
	api := newTestAPI(t)
	token := registerAndLogin(t, api, "alice")
	med := addMedicine(t, api, token, "Paracetamol", 5, "2030-01-01")

	path := fmt.Sprintf("/api/v1/medicines/%d/restock", med.ID)
	rec := doJSON(t, api, http.MethodPost, path, token, map[string]any{"quantity": int64(9223372036854775807)})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized restock, got %d", rec.Code)
	}
	rec = doJSON(t, api, http.MethodPost, path, token, domain.RestockRequest{Quantity: store.MaxQuantity})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when restock would pass the cap, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodGet, fmt.Sprintf("/api/v1/medicines/%d", med.ID), token, nil)
	var current domain.Medicine
	decodeBody(t, rec, &current)
	if current.Quantity != 5 {
		t.Fatalf("expected quantity to stay 5, got %d", current.Quantity)
	}
}

func TestCommitSaleFlow(t *testing.T) {
	api := newTestAPI(t)
	token := registerAndLogin(t, api, "alice")
	med := addMedicine(t, api, token, "Paracetamol", 5, "2030-01-01")

	rec := doJSON(t, api, http.MethodPost, "/api/v1/sales", token, domain.CommitRequest{
		CustomerName: "Dana",
		Items:        []domain.LineItem{{MedicineID: med.ID, Quantity: 3}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("commit expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var result domain.CommitResult
	decodeBody(t, rec, &result)
	if !result.Sale.TotalRevenue.Equal(decimal.NewFromInt(30)) || !result.Sale.TotalCost.Equal(decimal.NewFromInt(18)) {
		t.Fatalf("unexpected totals revenue=%s cost=%s", result.Sale.TotalRevenue, result.Sale.TotalCost)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/sales", token, domain.CommitRequest{
		Items: []domain.LineItem{{MedicineID: med.ID, Quantity: 10}},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("oversell expected 409, got %d", rec.Code)
	}
	var conflict map[string]any
	decodeBody(t, rec, &conflict)
	if conflict["item"] != "Paracetamol" {
		t.Fatalf("expected offending item in body, got %v", conflict["item"])
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/sales", token, domain.CommitRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty cart expected 400, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/sales?limit=10", token, nil)
	var listing struct {
		Items []domain.SaleTransaction `json:"items"`
	}
	decodeBody(t, rec, &listing)
	if len(listing.Items) != 1 || listing.Items[0].ID != result.Sale.ID {
		t.Fatalf("expected one recorded sale, got %+v", listing.Items)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sales/"+result.Sale.ID+"/receipt", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	receiptRec := httptest.NewRecorder()
	api.Handler().ServeHTTP(receiptRec, req)
	if receiptRec.Code != http.StatusOK {
		t.Fatalf("receipt expected 200, got %d", receiptRec.Code)
	}
	if ct := receiptRec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("expected text/plain receipt, got %q", ct)
	}
	if !strings.Contains(receiptRec.Body.String(), "Pharmacy alice") || !strings.Contains(receiptRec.Body.String(), "30.00") {
		t.Fatalf("receipt missing header or total:\n%s", receiptRec.Body.String())
	}
}

func TestTenantsAreIsolated(t *testing.T) {
	api := newTestAPI(t)
	alice := registerAndLogin(t, api, "alice")
	bob := registerAndLogin(t, api, "bob")
	med := addMedicine(t, api, alice, "Paracetamol", 5, "2030-01-01")

	rec := doJSON(t, api, http.MethodGet, fmt.Sprintf("/api/v1/medicines/%d", med.ID), bob, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another owner's medicine, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/sales", bob, domain.CommitRequest{
		Items: []domain.LineItem{{MedicineID: med.ID, Quantity: 1}},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 selling another owner's stock, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/medicines", bob, nil)
	var listing struct {
		Items []domain.Medicine `json:"items"`
	}
	decodeBody(t, rec, &listing)
	if len(listing.Items) != 0 {
		t.Fatalf("expected empty stock for bob, got %d items", len(listing.Items))
	}
}

func TestAlertsDashboardAndPurge(t *testing.T) {
	api := newTestAPI(t)
	token := registerAndLogin(t, api, "alice")
	addMedicine(t, api, token, "Amoxicillin", 50, "2025-06-20")
	addMedicine(t, api, token, "Zinc", 3, "2028-01-01")

	rec := doJSON(t, api, http.MethodGet, "/api/v1/alerts?filter=expiry", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("alerts expected 200, got %d", rec.Code)
	}
	var summary alert.Summary
	decodeBody(t, rec, &summary)
	if len(summary.Items) != 1 || summary.LowStockCount != 1 {
		t.Fatalf("unexpected alert summary: %+v", summary)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/alerts?filter=sometime", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown filter expected 400, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/dashboard", token, nil)
	var board domain.Dashboard
	decodeBody(t, rec, &board)
	if board.MedicineCount != 2 || board.SalesCount != 0 {
		t.Fatalf("unexpected dashboard: %+v", board)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/medicines/purge", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("purge expected 200, got %d", rec.Code)
	}
	var purge domain.PurgeResult
	decodeBody(t, rec, &purge)
	if purge.Removed != 0 || purge.AsOf != "2025-06-01" {
		t.Fatalf("unexpected purge result: %+v", purge)
	}
}

func TestSuggestDispense(t *testing.T) {
	api := newTestAPI(t)
	token := registerAndLogin(t, api, "alice")
	addMedicine(t, api, token, "Paracetamol", 2, "2026-01-01")
	sooner := addMedicine(t, api, token, "Paracetamol", 2, "2025-09-01")

	rec := doJSON(t, api, http.MethodPost, "/api/v1/sales/suggest", token, domain.SuggestRequest{Name: "paracetamol", Quantity: 3})
	if rec.Code != http.StatusOK {
		t.Fatalf("suggest expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var plan struct {
		Covered int `json:"covered"`
		Picks   []struct {
			MedicineID int64 `json:"medicine_id"`
		} `json:"picks"`
	}
	decodeBody(t, rec, &plan)
	if plan.Covered != 3 || len(plan.Picks) != 2 || plan.Picks[0].MedicineID != sooner.ID {
		t.Fatalf("unexpected plan: %+v", plan)
	}
}
