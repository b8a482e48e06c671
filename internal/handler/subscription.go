package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/HasnainAli-max/pixel-proof-2/internal/auth"
	"github.com/HasnainAli-max/pixel-proof-2/internal/model"
	"github.com/HasnainAli-max/pixel-proof-2/internal/quota"
	"github.com/HasnainAli-max/pixel-proof-2/internal/store"
)

// QuotaReader reports live plan and usage without consuming.
type QuotaReader interface {
	Status(ctx context.Context, user *model.User) (*quota.Grant, error)
}

// SubscriptionHandler serves the current subscription and quota state.
type SubscriptionHandler struct {
	quota     QuotaReader
	snapshots *store.SubscriptionStore
	logger    *slog.Logger
}

func NewSubscriptionHandler(q QuotaReader, snapshots *store.SubscriptionStore, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{quota: q, snapshots: snapshots, logger: logger}
}

type subscriptionResponse struct {
	Active            bool         `json:"active"`
	Plan              string       `json:"plan,omitempty"`
	Status            string       `json:"status,omitempty"`
	CancelAtPeriodEnd bool         `json:"cancel_at_period_end,omitempty"`
	CurrentPeriodEnd  *time.Time   `json:"current_period_end,omitempty"`
	Quota             *quota.Grant `json:"quota,omitempty"`
}

// Get handles GET /api/v1/subscription. The plan and quota come from a live
// Stripe query; period details come from the snapshot that query refreshed.
func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		WriteError(w, http.StatusUnauthorized, CodeUnauthorized, "authentication required")
		return
	}

	grant, err := h.quota.Status(r.Context(), user)
	if errors.Is(err, quota.ErrNoPlan) {
		WriteJSON(w, http.StatusOK, subscriptionResponse{Active: false})
		return
	}
	if err != nil {
		h.logger.Error("subscription status", "user_id", user.ID, "error", err)
		WriteError(w, http.StatusInternalServerError, CodeInternal, "could not load subscription")
		return
	}

	resp := subscriptionResponse{
		Active: true,
		Plan:   string(grant.Plan),
		Quota:  grant,
	}
	if snap, err := h.snapshots.GetByUserID(user.ID); err != nil {
		h.logger.Error("load subscription snapshot", "user_id", user.ID, "error", err)
	} else if snap != nil {
		resp.Status = snap.Status
		resp.CancelAtPeriodEnd = snap.CancelAtPeriodEnd
		resp.CurrentPeriodEnd = snap.CurrentPeriodEnd
	}
	WriteJSON(w, http.StatusOK, resp)
}
