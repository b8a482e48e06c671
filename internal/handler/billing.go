package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/HasnainAli-max/pixel-proof-2/internal/auth"
	"github.com/HasnainAli-max/pixel-proof-2/internal/model"
	"github.com/HasnainAli-max/pixel-proof-2/internal/plan"
)

// CustomerResolver maps a user to a Stripe customer ID.
type CustomerResolver interface {
	Resolve(ctx context.Context, user *model.User) (string, error)
}

// sessionAPI creates Stripe hosted sessions.
type sessionAPI interface {
	CreateCheckoutSession(ctx context.Context, customerID, priceID, clientReferenceID string) (string, error)
	CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

// BillingHandler serves checkout and billing portal session creation.
type BillingHandler struct {
	resolver        CustomerResolver
	sessions        sessionAPI
	prices          *plan.PriceMap
	portalReturnURL string
	logger          *slog.Logger
}

func NewBillingHandler(resolver CustomerResolver, sessions sessionAPI, prices *plan.PriceMap, portalReturnURL string, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		resolver:        resolver,
		sessions:        sessions,
		prices:          prices,
		portalReturnURL: portalReturnURL,
		logger:          logger,
	}
}

type checkoutRequest struct {
	Plan     string `json:"plan"`
	Interval string `json:"interval"` // "month" (default) or "year"
}

type sessionResponse struct {
	URL string `json:"url"`
}

// Checkout handles POST /api/v1/checkout.
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		WriteError(w, http.StatusUnauthorized, CodeUnauthorized, "authentication required")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
		return
	}
	tier, ok := plan.ParseTier(req.Plan)
	if !ok {
		WriteError(w, http.StatusBadRequest, CodeBadRequest, "unknown plan: "+req.Plan)
		return
	}
	interval, ok := plan.ParseInterval(req.Interval)
	if !ok {
		WriteError(w, http.StatusBadRequest, CodeBadRequest, "unknown interval: "+req.Interval)
		return
	}
	priceID := h.prices.PriceForTier(tier, interval)
	if priceID == "" {
		WriteError(w, http.StatusBadRequest, CodeBadRequest, "plan not purchasable: "+req.Plan)
		return
	}

	customerID, err := h.resolver.Resolve(r.Context(), user)
	if err != nil {
		h.logger.Error("resolve customer for checkout", "user_id", user.ID, "error", err)
		WriteError(w, http.StatusInternalServerError, CodeInternal, "could not start checkout")
		return
	}

	url, err := h.sessions.CreateCheckoutSession(r.Context(), customerID, priceID, strconv.FormatInt(user.ID, 10))
	if err != nil {
		h.logger.Error("create checkout session", "user_id", user.ID, "error", err)
		WriteError(w, http.StatusInternalServerError, CodeInternal, "could not start checkout")
		return
	}
	WriteJSON(w, http.StatusOK, sessionResponse{URL: url})
}

// Portal handles POST /api/v1/billing-portal.
func (h *BillingHandler) Portal(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		WriteError(w, http.StatusUnauthorized, CodeUnauthorized, "authentication required")
		return
	}

	customerID, err := h.resolver.Resolve(r.Context(), user)
	if err != nil {
		h.logger.Error("resolve customer for portal", "user_id", user.ID, "error", err)
		WriteError(w, http.StatusInternalServerError, CodeInternal, "could not open billing portal")
		return
	}

	url, err := h.sessions.CreateBillingPortalSession(r.Context(), customerID, h.portalReturnURL)
	if err != nil {
		h.logger.Error("create billing portal session", "user_id", user.ID, "error", err)
		WriteError(w, http.StatusInternalServerError, CodeInternal, "could not open billing portal")
		return
	}
	WriteJSON(w, http.StatusOK, sessionResponse{URL: url})
}
