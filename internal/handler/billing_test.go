package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/HasnainAli-max/pixel-proof-2/internal/auth"
	"github.com/HasnainAli-max/pixel-proof-2/internal/model"
	"github.com/HasnainAli-max/pixel-proof-2/internal/plan"
)

type fakeResolver struct {
	customerID string
	err        error
}

func (f *fakeResolver) Resolve(ctx context.Context, user *model.User) (string, error) {
	return f.customerID, f.err
}

type fakeSessions struct {
	checkoutPrice string
	checkoutRef   string
	portalReturn  string
}

func (f *fakeSessions) CreateCheckoutSession(ctx context.Context, customerID, priceID, clientReferenceID string) (string, error) {
	f.checkoutPrice = priceID
	f.checkoutRef = clientReferenceID
	return "https://checkout.stripe.com/c/session", nil
}

func (f *fakeSessions) CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	f.portalReturn = returnURL
	return "https://billing.stripe.com/p/session", nil
}

func newBillingFixture() (*BillingHandler, *fakeSessions) {
	sessions := &fakeSessions{}
	prices := plan.NewPriceMap("price_basic", "price_pro", "price_elite").
		WithAnnual("price_basic_yr", "price_pro_yr", "price_elite_yr")
	h := NewBillingHandler(&fakeResolver{customerID: "cus_1"}, sessions, prices, "https://pixelproof.app/account", slog.Default())
	return h, sessions
}

func postJSON(h http.HandlerFunc, user *model.User, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/api/v1/checkout", strings.NewReader(body))
	req = req.WithContext(auth.WithUser(req.Context(), user))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestCheckoutCreatesSession(t *testing.T) {
	h, sessions := newBillingFixture()
	user := &model.User{ID: 7, AuthSubject: "auth0|alice"}

	rec := postJSON(h.Checkout, user, `{"plan":"pro"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.URL == "" {
		t.Error("missing session url")
	}
	if sessions.checkoutPrice != "price_pro" {
		t.Errorf("price = %q, want price_pro", sessions.checkoutPrice)
	}
	if sessions.checkoutRef != "7" {
		t.Errorf("client reference = %q, want user id", sessions.checkoutRef)
	}
}

func TestCheckoutAnnualInterval(t *testing.T) {
	h, sessions := newBillingFixture()
	user := &model.User{ID: 7}

	rec := postJSON(h.Checkout, user, `{"plan":"elite","interval":"year"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if sessions.checkoutPrice != "price_elite_yr" {
		t.Errorf("price = %q, want price_elite_yr", sessions.checkoutPrice)
	}
}

func TestCheckoutUnknownPlan(t *testing.T) {
	h, _ := newBillingFixture()
	user := &model.User{ID: 7}

	rec := postJSON(h.Checkout, user, `{"plan":"enterprise"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestPortalUsesReturnURL(t *testing.T) {
	h, sessions := newBillingFixture()
	user := &model.User{ID: 7}

	rec := postJSON(h.Portal, user, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if sessions.portalReturn != "https://pixelproof.app/account" {
		t.Errorf("return url = %q", sessions.portalReturn)
	}
}
