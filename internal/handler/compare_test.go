package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/HasnainAli-max/pixel-proof-2/internal/auth"
	"github.com/HasnainAli-max/pixel-proof-2/internal/compare"
	"github.com/HasnainAli-max/pixel-proof-2/internal/database"
	"github.com/HasnainAli-max/pixel-proof-2/internal/model"
	"github.com/HasnainAli-max/pixel-proof-2/internal/quota"
	"github.com/HasnainAli-max/pixel-proof-2/internal/store"
)

type fakeRunner struct {
	comparison *model.Comparison
	grant      *quota.Grant
	err        error
	before     []byte
	after      []byte
}

func (f *fakeRunner) Run(ctx context.Context, user *model.User, before, after compare.Upload) (*model.Comparison, *quota.Grant, error) {
	f.before = before.Data
	f.after = after.Data
	return f.comparison, f.grant, f.err
}

type compareFixture struct {
	handler     *CompareHandler
	comparisons *store.ComparisonStore
	users       *store.UserStore
}

func newCompareFixture(t *testing.T, runner *fakeRunner) (*CompareHandler, *compareFixture, *model.User) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	f := &compareFixture{
		comparisons: store.NewComparisonStore(db),
		users:       store.NewUserStore(db),
	}
	u, _ := f.users.Upsert("auth0|alice", "alice@example.com", "Alice")
	f.handler = NewCompareHandler(runner, f.comparisons, slog.Default())
	return f.handler, f, u
}

func multipartBody(t *testing.T, fields map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range fields {
		part, err := mw.CreateFormFile(name, name+".png")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		part.Write(data)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func postCompare(t *testing.T, h *CompareHandler, u *model.User, fields map[string][]byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, fields)
	req := httptest.NewRequest("POST", "/api/v1/compare", body)
	req.Header.Set("Content-Type", contentType)
	req = req.WithContext(auth.WithUser(req.Context(), u))
	rec := httptest.NewRecorder()
	h.Create(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return envelope.Error.Code
}

func TestCompareCreateSuccess(t *testing.T) {
	runner := &fakeRunner{
		comparison: &model.Comparison{ID: "cmp-1", Status: model.ComparisonComplete, Summary: "Header shifted"},
		grant:      &quota.Grant{Plan: "pro", Used: 3, Max: 50},
	}
	h, _, u := newCompareFixture(t, runner)

	rec := postCompare(t, h, u, map[string][]byte{
		"before": []byte("before-bytes"),
		"after":  []byte("after-bytes"),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp compareResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Comparison.ID != "cmp-1" || resp.Quota.Used != 3 {
		t.Errorf("response = %+v", resp)
	}
	if string(runner.before) != "before-bytes" || string(runner.after) != "after-bytes" {
		t.Error("uploads not passed through to runner")
	}
}

func TestCompareCreateMissingField(t *testing.T) {
	h, _, u := newCompareFixture(t, &fakeRunner{})

	rec := postCompare(t, h, u, map[string][]byte{"before": []byte("only-one")})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if code := errorCode(t, rec); code != CodeBadRequest {
		t.Errorf("code = %q", code)
	}
}

func TestCompareCreateErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"bad image", compare.ErrBadImage, http.StatusBadRequest, CodeBadImage},
		{"no plan", quota.ErrNoPlan, http.StatusPaymentRequired, CodeNoPlan},
		{"limit exceeded", quota.ErrLimitExceeded, http.StatusTooManyRequests, CodeLimitExceeded},
		{"vision failed", compare.ErrVisionFailed, http.StatusBadGateway, CodeVisionFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, _, u := newCompareFixture(t, &fakeRunner{err: tc.err})
			rec := postCompare(t, h, u, map[string][]byte{
				"before": []byte("b"),
				"after":  []byte("a"),
			})
			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if code := errorCode(t, rec); code != tc.wantCode {
				t.Errorf("code = %q, want %q", code, tc.wantCode)
			}
		})
	}
}

func TestCompareGetScopedToOwner(t *testing.T) {
	h, f, u := newCompareFixture(t, &fakeRunner{})
	bob, _ := f.users.Upsert("auth0|bob", "bob@example.com", "Bob")
	f.comparisons.Create("cmp-other", bob.ID, "b", "a")
	f.comparisons.Create("cmp-mine", u.ID, "b", "a")

	get := func(id string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/api/v1/comparisons/"+id, nil)
		req.SetPathValue("id", id)
		req = req.WithContext(auth.WithUser(req.Context(), u))
		rec := httptest.NewRecorder()
		h.Get(rec, req)
		return rec
	}

	if rec := get("cmp-mine"); rec.Code != http.StatusOK {
		t.Errorf("own comparison status = %d", rec.Code)
	}
	if rec := get("cmp-other"); rec.Code != http.StatusNotFound {
		t.Errorf("foreign comparison status = %d, want 404", rec.Code)
	}
	if rec := get("cmp-missing"); rec.Code != http.StatusNotFound {
		t.Errorf("missing comparison status = %d, want 404", rec.Code)
	}
}

func TestCompareListEmpty(t *testing.T) {
	h, _, u := newCompareFixture(t, &fakeRunner{})

	req := httptest.NewRequest("GET", "/api/v1/comparisons", nil)
	req = req.WithContext(auth.WithUser(req.Context(), u))
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Comparisons []*model.Comparison `json:"comparisons"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Comparisons == nil {
		t.Error("comparisons must serialize as [], not null")
	}
}
