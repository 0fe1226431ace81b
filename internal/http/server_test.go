package http

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"festa/internal/blob"
	"festa/internal/cache"
	"festa/internal/services"
	"festa/internal/storage"
)

const testSecret = "test-secret-test-secret-test-secret!"

type testEnv struct {
	srv   *Server
	token string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	repo, err := storage.NewSQLiteRepository(filepath.Join(dir, "festa.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	store := cache.NewLRUCache[any](100, time.Minute)
	blobs, err := blob.NewStore(filepath.Join(dir, "attachments"), "/attachments")
	if err != nil {
		t.Fatalf("blob.NewStore() error = %v", err)
	}
	budget := services.NewBudgetService(repo, store, nil).WithAttachmentRemover(blobs)
	recalc := services.NewRecalcService(repo, store)

	srv := NewServer(":0", testSecret, budget, recalc, repo, blobs, nil)
	t.Cleanup(func() { srv.rateLimiter.stop() })

	env := &testEnv{srv: srv}
	resp := env.do(t, http.MethodPost, "/api/auth/register", map[string]any{
		"email": "ada@example.com", "name": "Ada", "currency": "EUR",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", resp.Code, resp.Body.String())
	}
	var reg struct {
		Token string `json:"token"`
	}
	decodeBody(t, resp, &reg)
	env.token = reg.Token
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
}

func (e *testEnv) createEvent(t *testing.T) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/events", map[string]any{
		"name": "Wedding", "type": "wedding", "date": "2027-06-12", "currency": "EUR",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create event status = %d, body %s", resp.Code, resp.Body.String())
	}
	var ev struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &ev)
	return ev.ID
}

func (e *testEnv) createCategory(t *testing.T, eventID, name, budget string) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/events/"+eventID+"/categories", map[string]any{
		"name": name, "icon": "cake", "color": "#ff8800", "budget": budget,
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create category status = %d, body %s", resp.Code, resp.Body.String())
	}
	var cat struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &cat)
	return cat.ID
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := httptest.NewRecorder()
		env.srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Errorf("%s status = %d, want %d", path, rr.Code, http.StatusOK)
		}
	}
}

func TestAPIRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	rr := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestEventLifecycle(t *testing.T) {
	env := newTestEnv(t)
	eventID := env.createEvent(t)

	resp := env.do(t, http.MethodGet, "/api/events", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("list events status = %d", resp.Code)
	}
	var events []eventPayload
	decodeBody(t, resp, &events)
	if len(events) != 1 || events[0].Name != "Wedding" {
		t.Fatalf("list events = %+v, want one event named Wedding", events)
	}

	resp = env.do(t, http.MethodPut, "/api/events/"+eventID, map[string]any{
		"name": "Summer Wedding", "type": "wedding", "date": "2027-07-03", "currency": "EUR",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("update event status = %d, body %s", resp.Code, resp.Body.String())
	}
	var updated eventPayload
	decodeBody(t, resp, &updated)
	if updated.Name != "Summer Wedding" || updated.Date != "2027-07-03" {
		t.Fatalf("updated event = %+v", updated)
	}

	resp = env.do(t, http.MethodDelete, "/api/events/"+eventID, nil)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("delete event status = %d", resp.Code)
	}
	resp = env.do(t, http.MethodGet, "/api/events/"+eventID, nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("get deleted event status = %d, want 404", resp.Code)
	}
}

func TestCreateEventValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"missing name", map[string]any{"date": "2027-06-12"}, http.StatusUnprocessableEntity},
		{"bad date", map[string]any{"name": "Party", "date": "soon"}, http.StatusUnprocessableEntity},
		{"missing date", map[string]any{"name": "Party"}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/api/events", tt.body)
			if resp.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", resp.Code, tt.want, resp.Body.String())
			}
		})
	}
}

func TestExpenseFlowThroughAPI(t *testing.T) {
	env := newTestEnv(t)
	eventID := env.createEvent(t)
	categoryID := env.createCategory(t, eventID, "Catering", "5000.00")

	resp := env.do(t, http.MethodPost, "/api/expenses", map[string]any{
		"category_id": categoryID,
		"name":        "Tasting menu",
		"amount":      "1200.00",
		"vendor_name": "Osteria",
		"schedule": []map[string]any{
			{"name": "Deposit", "amount": "400.00", "due_date": "2027-01-15", "is_paid": true},
			{"name": "Balance", "amount": "800.00", "due_date": "2027-06-01"},
		},
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create expense status = %d, body %s", resp.Code, resp.Body.String())
	}
	var created expensePayload
	decodeBody(t, resp, &created)
	if created.CategoryName != "Catering" {
		t.Errorf("CategoryName = %q, want Catering", created.CategoryName)
	}
	if created.PaidTotal != 40000 {
		t.Errorf("PaidTotal = %d, want 40000", created.PaidTotal)
	}
	if len(created.Schedule) != 2 {
		t.Fatalf("Schedule length = %d, want 2", len(created.Schedule))
	}

	// The overview must reflect the new expense in the category rollup.
	resp = env.do(t, http.MethodGet, "/api/events/"+eventID+"/overview", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("overview status = %d", resp.Code)
	}
	var ov overviewPayload
	decodeBody(t, resp, &ov)
	if ov.Rollup.Scheduled != 120000 {
		t.Errorf("overview scheduled = %d, want 120000", ov.Rollup.Scheduled)
	}
	if ov.Rollup.Spent != 40000 {
		t.Errorf("overview spent = %d, want 40000", ov.Rollup.Spent)
	}
	if len(ov.Categories) != 1 {
		t.Fatalf("overview categories = %d, want 1", len(ov.Categories))
	}

	// Paying the balance moves it into spent.
	resp = env.do(t, http.MethodPost, "/api/payments/"+created.Schedule[1].ID+"/paid", map[string]any{"is_paid": true})
	if resp.Code != http.StatusNoContent {
		t.Fatalf("set paid status = %d, body %s", resp.Code, resp.Body.String())
	}
	resp = env.do(t, http.MethodGet, "/api/events/"+eventID+"/overview", nil)
	decodeBody(t, resp, &ov)
	if ov.Rollup.Spent != 120000 {
		t.Errorf("overview spent after payment = %d, want 120000", ov.Rollup.Spent)
	}

	resp = env.do(t, http.MethodDelete, "/api/expenses/"+created.ID, nil)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("delete expense status = %d", resp.Code)
	}
	resp = env.do(t, http.MethodGet, "/api/events/"+eventID+"/expenses", nil)
	var expenses []expensePayload
	decodeBody(t, resp, &expenses)
	if len(expenses) != 0 {
		t.Fatalf("expenses after delete = %d, want 0", len(expenses))
	}
}

func TestScheduleMustSumToAmount(t *testing.T) {
	env := newTestEnv(t)
	eventID := env.createEvent(t)
	categoryID := env.createCategory(t, eventID, "Venue", "10000.00")

	resp := env.do(t, http.MethodPost, "/api/expenses", map[string]any{
		"category_id": categoryID,
		"name":        "Hall rental",
		"amount":      "1000.00",
		"schedule": []map[string]any{
			{"name": "Deposit", "amount": "300.00", "due_date": "2027-01-15"},
		},
	})
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d (body %s)", resp.Code, http.StatusUnprocessableEntity, resp.Body.String())
	}
}

func TestDeleteCategoryWithExpensesConflicts(t *testing.T) {
	env := newTestEnv(t)
	eventID := env.createEvent(t)
	categoryID := env.createCategory(t, eventID, "Flowers", "800.00")

	resp := env.do(t, http.MethodPost, "/api/expenses", map[string]any{
		"category_id": categoryID, "name": "Bouquet", "amount": "150.00",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create expense status = %d, body %s", resp.Code, resp.Body.String())
	}

	resp = env.do(t, http.MethodDelete, "/api/events/"+eventID+"/categories/"+categoryID, nil)
	if resp.Code != http.StatusConflict {
		t.Fatalf("delete category status = %d, want %d", resp.Code, http.StatusConflict)
	}
}

func TestForeignEventIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	eventID := env.createEvent(t)

	// A second user must not see the first user's event.
	other := &testEnv{srv: env.srv}
	resp := other.do(t, http.MethodPost, "/api/auth/register", map[string]any{
		"email": "eve@example.com", "name": "Eve",
	})
	var reg struct {
		Token string `json:"token"`
	}
	decodeBody(t, resp, &reg)
	other.token = reg.Token

	for _, path := range []string{
		"/api/events/" + eventID,
		"/api/events/" + eventID + "/overview",
		"/api/events/" + eventID + "/categories",
		"/api/events/" + eventID + "/expenses",
	} {
		resp := other.do(t, http.MethodGet, path, nil)
		if resp.Code != http.StatusNotFound {
			t.Errorf("%s status = %d, want %d", path, resp.Code, http.StatusNotFound)
		}
	}
}

func TestForeignPaymentToggleIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	eventID := env.createEvent(t)
	categoryID := env.createCategory(t, eventID, "Catering", "5000.00")
	resp := env.do(t, http.MethodPost, "/api/expenses", map[string]any{
		"category_id": categoryID,
		"name":        "Caterer",
		"amount":      "1200.00",
		"schedule": []map[string]any{
			{"name": "Deposit", "amount": "400.00", "due_date": "2027-01-15", "is_paid": true},
			{"name": "Balance", "amount": "800.00", "due_date": "2027-06-01"},
		},
	})
	var created expensePayload
	decodeBody(t, resp, &created)
	balanceID := created.Schedule[1].ID

	other := &testEnv{srv: env.srv}
	resp = other.do(t, http.MethodPost, "/api/auth/register", map[string]any{
		"email": "eve@example.com", "name": "Eve",
	})
	var reg struct {
		Token string `json:"token"`
	}
	decodeBody(t, resp, &reg)
	other.token = reg.Token

	resp = other.do(t, http.MethodPost, "/api/payments/"+balanceID+"/paid", map[string]any{"is_paid": true})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("foreign payment toggle status = %d, want %d", resp.Code, http.StatusNotFound)
	}

	// The owner's aggregates must be untouched.
	resp = env.do(t, http.MethodGet, "/api/events/"+eventID+"/overview", nil)
	var ov overviewPayload
	decodeBody(t, resp, &ov)
	if ov.Rollup.Spent != 40000 {
		t.Errorf("owner spent after foreign toggle = %d, want 40000", ov.Rollup.Spent)
	}
}

func TestRecalculateEndpoint(t *testing.T) {
	env := newTestEnv(t)
	eventID := env.createEvent(t)
	env.createCategory(t, eventID, "Music", "2000.00")

	resp := env.do(t, http.MethodPost, "/api/events/"+eventID+"/recalculate", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("recalculate status = %d, body %s", resp.Code, resp.Body.String())
	}
	var result struct {
		EventID string `json:"eventId"`
		Applied bool   `json:"applied"`
	}
	decodeBody(t, resp, &result)
	if result.EventID != eventID {
		t.Errorf("EventID = %q, want %q", result.EventID, eventID)
	}
	if result.Applied {
		t.Errorf("Applied = true for a clean event, want false")
	}
}

func TestAttachmentUploadRejectsUnknownType(t *testing.T) {
	env := newTestEnv(t)
	eventID := env.createEvent(t)
	categoryID := env.createCategory(t, eventID, "Venue", "10000.00")
	resp := env.do(t, http.MethodPost, "/api/expenses", map[string]any{
		"category_id": categoryID, "name": "Hall", "amount": "100.00",
	})
	var created expensePayload
	decodeBody(t, resp, &created)

	body, contentType := multipartFile(t, "file", "contract.exe", []byte("MZ"))
	req := httptest.NewRequest(http.MethodPost, "/api/expenses/"+created.ID+"/attachments", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+env.token)
	rr := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("upload status = %d, want %d (body %s)", rr.Code, http.StatusUnprocessableEntity, rr.Body.String())
	}
}

func TestAttachmentUploadAndDelete(t *testing.T) {
	env := newTestEnv(t)
	eventID := env.createEvent(t)
	categoryID := env.createCategory(t, eventID, "Venue", "10000.00")
	resp := env.do(t, http.MethodPost, "/api/expenses", map[string]any{
		"category_id": categoryID, "name": "Hall", "amount": "100.00",
	})
	var created expensePayload
	decodeBody(t, resp, &created)

	body, contentType := multipartFile(t, "file", "contract.pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/api/expenses/"+created.ID+"/attachments", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+env.token)
	rr := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body %s", rr.Code, rr.Body.String())
	}
	var att attachmentPayload
	decodeBody(t, rr, &att)
	if !strings.HasPrefix(att.URL, "/attachments/") {
		t.Errorf("attachment URL = %q, want /attachments/ prefix", att.URL)
	}

	resp = env.do(t, http.MethodDelete, "/api/attachments/"+att.ID, nil)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("delete attachment status = %d, body %s", resp.Code, resp.Body.String())
	}
	resp = env.do(t, http.MethodDelete, "/api/attachments/"+att.ID, nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", resp.Code)
	}
}

func multipartFile(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}
