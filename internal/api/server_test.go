package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/kalambet/feedbackdesk/internal/storage"
)

type testServer struct {
	*httptest.Server
	store *storage.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("adminpass"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	srv := httptest.NewServer(NewServerHandler(ServerDeps{
		Store:             store,
		AdminUsername:     "admin",
		AdminPasswordHash: hash,
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
	}))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, store: store}
}

func (s *testServer) do(t *testing.T, method, path, body string, admin bool) (int, http.Header, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.URL+path, r)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin {
		req.SetBasicAuth("admin", "adminpass")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, resp.Header, string(b)
}

type validationBody struct {
	Message string       `json:"message"`
	Errors  []fieldError `json:"errors"`
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	status, _, body := s.do(t, http.MethodGet, "/health", "", false)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if !strings.Contains(body, `"ok"`) {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestCreateFeedbackIsPublic(t *testing.T) {
	s := newTestServer(t)

	status, _, body := s.do(t, http.MethodPost, "/api/feedback",
		`{"customerName":null,"email":null,"rating":4,"comments":"Lovely staff and quick service"}`, false)
	if status != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body: %s", status, body)
	}

	var got map[string]any
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if got["id"] == nil || got["id"].(float64) < 1 {
		t.Errorf("expected server-assigned id, got %v", got["id"])
	}
	if got["customerName"] != nil || got["email"] != nil {
		t.Errorf("expected null name and email, got %v / %v", got["customerName"], got["email"])
	}
	if got["submissionDate"] == nil {
		t.Error("expected submissionDate")
	}
	if got["status"] != storage.StatusPending {
		t.Errorf("status = %v, want PENDING", got["status"])
	}
}

func TestAdminRoutesRequireAuth(t *testing.T) {
	s := newTestServer(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/feedback"},
		{http.MethodGet, "/api/feedback/1"},
		{http.MethodPut, "/api/feedback/1"},
		{http.MethodDelete, "/api/feedback/1"},
	} {
		status, hdr, _ := s.do(t, tc.method, tc.path, "", false)
		if status != http.StatusUnauthorized {
			t.Errorf("%s %s: status = %d, want 401", tc.method, tc.path, status)
		}
		if hdr.Get("WWW-Authenticate") == "" {
			t.Errorf("%s %s: missing WWW-Authenticate", tc.method, tc.path)
		}
	}
}

func TestWrongPasswordRejected(t *testing.T) {
	s := newTestServer(t)
	req, _ := http.NewRequest(http.MethodGet, s.URL+"/api/feedback", nil)
	req.SetBasicAuth("admin", "nope")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestValidationErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		body   string
		fields []string
		msgs   []string
	}{
		{
			name:   "all invalid",
			body:   `{"email":"not-an-email","rating":7,"comments":"short"}`,
			fields: []string{"email", "rating", "comments"},
			msgs:   []string{"Email should be valid", "Rating cannot be more than 5", "Comments must be between 10 and 1000 characters"},
		},
		{
			name:   "missing rating",
			body:   `{"comments":"This is long enough"}`,
			fields: []string{"rating"},
			msgs:   []string{"Rating cannot be null"},
		},
		{
			name:   "rating too low",
			body:   `{"rating":0,"comments":"This is long enough"}`,
			fields: []string{"rating"},
			msgs:   []string{"Rating must be at least 1"},
		},
		{
			name:   "blank comments",
			body:   `{"rating":3,"comments":"            "}`,
			fields: []string{"comments"},
			msgs:   []string{"Comments cannot be empty"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, _, body := s.do(t, http.MethodPost, "/api/feedback", tc.body, false)
			if status != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400; body: %s", status, body)
			}
			var vb validationBody
			if err := json.Unmarshal([]byte(body), &vb); err != nil {
				t.Fatalf("decoding: %v", err)
			}
			if len(vb.Errors) != len(tc.fields) {
				t.Fatalf("errors = %+v, want fields %v", vb.Errors, tc.fields)
			}
			for i, fe := range vb.Errors {
				if fe.Field != tc.fields[i] || fe.DefaultMessage != tc.msgs[i] {
					t.Errorf("error %d = %+v, want {%s %s}", i, fe, tc.fields[i], tc.msgs[i])
				}
			}
			if vb.Message != strings.Join(tc.msgs, ", ") {
				t.Errorf("message = %q", vb.Message)
			}
		})
	}
}

func TestEmptyOptionalFieldsAccepted(t *testing.T) {
	s := newTestServer(t)
	status, _, body := s.do(t, http.MethodPost, "/api/feedback",
		`{"customerName":"","email":"","rating":2,"comments":"Could be better"}`, false)
	if status != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body: %s", status, body)
	}

	status, _, body = s.do(t, http.MethodPut, "/api/feedback/1",
		`{"email":"","rating":3,"comments":"A little better now"}`, true)
	if status != http.StatusOK {
		t.Errorf("update status = %d, want 200; body: %s", status, body)
	}

	rec, err := s.store.GetFeedback(1)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Email == nil || *rec.Email != "" {
		t.Errorf("email = %v, want empty string", rec.Email)
	}
}

func TestUpdateFeedbackStatus(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/feedback", `{"rating":4,"comments":"Good coffee, slow wifi"}`, false)

	status, _, body := s.do(t, http.MethodPut, "/api/feedback/1",
		`{"rating":4,"comments":"Good coffee, slow wifi","status":"REVIEWED"}`, true)
	if status != http.StatusOK {
		t.Fatalf("status = %d; body: %s", status, body)
	}
	var updated map[string]any
	json.Unmarshal([]byte(body), &updated)
	if updated["status"] != storage.StatusReviewed {
		t.Errorf("status = %v, want REVIEWED", updated["status"])
	}

	// Omitting status keeps the stored one.
	s.do(t, http.MethodPut, "/api/feedback/1", `{"rating":5,"comments":"Good coffee, fast wifi"}`, true)
	_, _, body = s.do(t, http.MethodGet, "/api/feedback", "", true)
	var list []map[string]any
	if err := json.Unmarshal([]byte(body), &list); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(list) != 1 || list[0]["status"] != storage.StatusReviewed {
		t.Errorf("list = %v, want one REVIEWED record", list)
	}

	status, _, body = s.do(t, http.MethodPut, "/api/feedback/1",
		`{"rating":5,"comments":"Good coffee, fast wifi","status":"DONE"}`, true)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
	var vb validationBody
	json.Unmarshal([]byte(body), &vb)
	if len(vb.Errors) != 1 || vb.Errors[0].Field != "status" {
		t.Errorf("errors = %+v", vb.Errors)
	}
	if got, _ := s.store.FeedbackStatus(1); got != storage.StatusReviewed {
		t.Errorf("stored status = %q, want REVIEWED", got)
	}
}

func TestMalformedBody(t *testing.T) {
	s := newTestServer(t)
	status, _, _ := s.do(t, http.MethodPost, "/api/feedback", `{"rating":`, false)
	if status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}
}

func TestGetFeedbackNotFound(t *testing.T) {
	s := newTestServer(t)
	status, _, body := s.do(t, http.MethodGet, "/api/feedback/99", "", true)
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
	if !strings.Contains(body, "Feedback not found with id 99") {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestInvalidID(t *testing.T) {
	s := newTestServer(t)
	status, _, _ := s.do(t, http.MethodGet, "/api/feedback/abc", "", true)
	if status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}
}

func TestListAndUpdateFeedback(t *testing.T) {
	s := newTestServer(t)

	s.do(t, http.MethodPost, "/api/feedback", `{"customerName":"Ann","email":"ann@example.com","rating":2,"comments":"Slow delivery this time"}`, false)

	status, _, body := s.do(t, http.MethodGet, "/api/feedback", "", true)
	if status != http.StatusOK {
		t.Fatalf("list status = %d", status)
	}
	var list []map[string]any
	if err := json.Unmarshal([]byte(body), &list); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("len = %d, want 1", len(list))
	}

	status, _, body = s.do(t, http.MethodPut, "/api/feedback/1",
		`{"customerName":null,"email":null,"rating":5,"comments":"Resolved quickly, thanks"}`, true)
	if status != http.StatusOK {
		t.Fatalf("update status = %d; body: %s", status, body)
	}
	var updated map[string]any
	json.Unmarshal([]byte(body), &updated)
	if updated["rating"].(float64) != 5 {
		t.Errorf("rating = %v, want 5", updated["rating"])
	}
	if updated["customerName"] != "Ann" || updated["email"] != "ann@example.com" {
		t.Errorf("null fields should keep stored values, got %v / %v", updated["customerName"], updated["email"])
	}

	status, _, _ = s.do(t, http.MethodPut, "/api/feedback/42", `{"rating":5,"comments":"Resolved quickly, thanks"}`, true)
	if status != http.StatusNotFound {
		t.Errorf("update missing status = %d, want 404", status)
	}
}

func TestDeleteFeedback(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/feedback", `{"rating":3,"comments":"Middle of the road"}`, false)

	status, _, body := s.do(t, http.MethodDelete, "/api/feedback/1", "", true)
	if status != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", status)
	}
	if body != "" {
		t.Errorf("expected empty body, got %q", body)
	}

	status, _, _ = s.do(t, http.MethodDelete, "/api/feedback/1", "", true)
	if status != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", status)
	}
}

func TestAverageRatingEndpoint(t *testing.T) {
	s := newTestServer(t)

	status, _, body := s.do(t, http.MethodGet, "/api/feedback/average-rating", "", false)
	if status != http.StatusOK || strings.TrimSpace(body) != "0" {
		t.Fatalf("empty average: status %d body %q", status, body)
	}

	s.do(t, http.MethodPost, "/api/feedback", `{"rating":4,"comments":"Pretty good overall"}`, false)
	s.do(t, http.MethodPost, "/api/feedback", `{"rating":5,"comments":"Excellent, will return"}`, false)

	_, _, body = s.do(t, http.MethodGet, "/api/feedback/average-rating", "", false)
	var avg float64
	if err := json.Unmarshal([]byte(body), &avg); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if avg != 4.5 {
		t.Errorf("average = %v, want 4.5", avg)
	}
}
