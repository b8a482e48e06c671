package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/HasnainAli-max/pixel-proof-2/internal/billing"
	"github.com/HasnainAli-max/pixel-proof-2/internal/model"
	"github.com/HasnainAli-max/pixel-proof-2/internal/plan"
	"github.com/HasnainAli-max/pixel-proof-2/internal/store"
)

// maxWebhookBytes caps webhook payloads, matching Stripe's own limit.
const maxWebhookBytes = 1 << 20

// eventVerifier checks the Stripe-Signature header and parses the event.
type eventVerifier interface {
	ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error)
}

// subscriptionFetcher returns the live usable subscription for a customer.
type subscriptionFetcher interface {
	ActiveSubscription(ctx context.Context, customerID string) (*billing.SubscriptionInfo, error)
}

// notifier sends billing lifecycle emails.
type notifier interface {
	Configured() bool
	SendSubscriptionConfirmed(toEmail, planName string) error
	SendPaymentFailed(toEmail string) error
}

// WebhookHandler processes Stripe webhook deliveries. Snapshot writes are
// keyed by subscription ID, so replayed deliveries are harmless.
type WebhookHandler struct {
	verifier  eventVerifier
	subs      subscriptionFetcher
	users     *store.UserStore
	snapshots *store.SubscriptionStore
	prices    *plan.PriceMap
	email     notifier
	logger    *slog.Logger
}

func NewWebhookHandler(
	verifier eventVerifier,
	subs subscriptionFetcher,
	users *store.UserStore,
	snapshots *store.SubscriptionStore,
	prices *plan.PriceMap,
	email notifier,
	logger *slog.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		verifier:  verifier,
		subs:      subs,
		users:     users,
		snapshots: snapshots,
		prices:    prices,
		email:     email,
		logger:    logger,
	}
}

// Handle serves POST /webhooks/stripe.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		WriteError(w, http.StatusBadRequest, CodeBadRequest, "could not read payload")
		return
	}

	event, err := h.verifier.ConstructWebhookEvent(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("webhook signature rejected", "error", err)
		WriteError(w, http.StatusBadRequest, CodeBadRequest, "invalid signature")
		return
	}

	if err := h.dispatch(r.Context(), event); err != nil {
		h.logger.Error("process webhook", "type", event.Type, "event_id", event.ID, "error", err)
		// Non-200 makes Stripe redeliver later.
		WriteError(w, http.StatusInternalServerError, CodeInternal, "event processing failed")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *WebhookHandler) dispatch(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		return h.checkoutCompleted(ctx, event)
	case stripe.EventTypeInvoicePaid:
		return h.invoiceOutcome(event, "active", false)
	case stripe.EventTypeInvoicePaymentFailed:
		return h.invoiceOutcome(event, "past_due", true)
	case stripe.EventTypeCustomerSubscriptionCreated, stripe.EventTypeCustomerSubscriptionUpdated:
		return h.subscriptionChanged(event)
	case stripe.EventTypeCustomerSubscriptionDeleted:
		return h.subscriptionDeleted(event)
	default:
		h.logger.Debug("ignoring webhook event", "type", event.Type)
		return nil
	}
}

// checkoutCompleted attaches the Stripe customer to the user who started
// checkout and snapshots the new subscription.
func (h *WebhookHandler) checkoutCompleted(ctx context.Context, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("decode checkout session: %w", err)
	}
	if sess.Customer == nil || sess.Customer.ID == "" {
		h.logger.Warn("checkout session without customer", "session_id", sess.ID)
		return nil
	}

	user, err := h.userForSession(&sess)
	if err != nil {
		return err
	}
	if user == nil {
		h.logger.Warn("checkout session for unknown user", "session_id", sess.ID, "customer_id", sess.Customer.ID)
		return nil
	}

	if err := h.users.UpdateStripeCustomerID(user.ID, sess.Customer.ID); err != nil {
		return fmt.Errorf("attach customer: %w", err)
	}

	sub, err := h.subs.ActiveSubscription(ctx, sess.Customer.ID)
	if err != nil {
		return fmt.Errorf("fetch new subscription: %w", err)
	}
	if sub == nil {
		h.logger.Warn("checkout completed but no usable subscription yet", "customer_id", sess.Customer.ID)
		return nil
	}

	tier, ok := h.prices.TierForPrice(sub.PriceID)
	if !ok {
		h.logger.Warn("checkout on unknown price", "price_id", sub.PriceID)
	}
	if err := h.snapshot(user, tier, sub); err != nil {
		return err
	}

	if h.email.Configured() && user.Email != "" {
		if err := h.email.SendSubscriptionConfirmed(user.Email, string(tier)); err != nil {
			h.logger.Error("send confirmation email", "user_id", user.ID, "error", err)
		}
	}
	return nil
}

func (h *WebhookHandler) userForSession(sess *stripe.CheckoutSession) (*model.User, error) {
	if sess.ClientReferenceID != "" {
		id, err := strconv.ParseInt(sess.ClientReferenceID, 10, 64)
		if err == nil {
			user, err := h.users.GetByID(id)
			if err != nil {
				return nil, err
			}
			if user != nil {
				return user, nil
			}
		}
	}
	return h.users.GetByStripeCustomerID(sess.Customer.ID)
}

// invoiceOutcome updates the cached status after a renewal charge settles
// or fails.
func (h *WebhookHandler) invoiceOutcome(event stripe.Event, status string, warn bool) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return fmt.Errorf("decode invoice: %w", err)
	}
	if inv.Customer == nil || inv.Customer.ID == "" {
		return nil
	}

	user, err := h.users.GetByStripeCustomerID(inv.Customer.ID)
	if err != nil {
		return err
	}
	if user == nil {
		h.logger.Warn("invoice for unknown customer", "customer_id", inv.Customer.ID)
		return nil
	}

	if err := h.users.UpdateBilling(user.ID, user.Plan, status); err != nil {
		return fmt.Errorf("update billing cache: %w", err)
	}
	snap, err := h.snapshots.GetByUserID(user.ID)
	if err != nil {
		h.logger.Error("load snapshot", "user_id", user.ID, "error", err)
	} else if snap != nil {
		if err := h.snapshots.UpdateStatus(snap.ID, status); err != nil {
			return fmt.Errorf("update snapshot status: %w", err)
		}
	}

	if warn && h.email.Configured() && user.Email != "" {
		if err := h.email.SendPaymentFailed(user.Email); err != nil {
			h.logger.Error("send payment failed email", "user_id", user.ID, "error", err)
		}
	}
	return nil
}

func (h *WebhookHandler) subscriptionChanged(event stripe.Event) error {
	sub, user, err := h.subscriptionEvent(event)
	if err != nil || sub == nil || user == nil {
		return err
	}

	info := billing.SubscriptionInfoFromEvent(sub)
	tier, ok := h.prices.TierForPrice(info.PriceID)
	if !ok {
		h.logger.Warn("subscription on unknown price", "price_id", info.PriceID)
	}
	return h.snapshot(user, tier, info)
}

func (h *WebhookHandler) subscriptionDeleted(event stripe.Event) error {
	sub, user, err := h.subscriptionEvent(event)
	if err != nil || sub == nil || user == nil {
		return err
	}

	info := billing.SubscriptionInfoFromEvent(sub)
	if info.Status == "" {
		info.Status = "canceled"
	}
	// Ended plans clear the cached tier.
	if err := h.users.UpdateBilling(user.ID, "", info.Status); err != nil {
		return fmt.Errorf("clear billing cache: %w", err)
	}
	if _, err := h.snapshots.Upsert(user.ID, snapshotFrom("", info)); err != nil {
		return fmt.Errorf("snapshot ended subscription: %w", err)
	}
	return nil
}

func (h *WebhookHandler) subscriptionEvent(event stripe.Event) (*stripe.Subscription, *model.User, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, nil, fmt.Errorf("decode subscription: %w", err)
	}
	if sub.Customer == nil || sub.Customer.ID == "" {
		return nil, nil, nil
	}
	user, err := h.users.GetByStripeCustomerID(sub.Customer.ID)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		h.logger.Warn("subscription event for unknown customer", "customer_id", sub.Customer.ID)
		return nil, nil, nil
	}
	return &sub, user, nil
}

func (h *WebhookHandler) snapshot(user *model.User, tier plan.Tier, sub *billing.SubscriptionInfo) error {
	if err := h.users.UpdateBilling(user.ID, string(tier), sub.Status); err != nil {
		return fmt.Errorf("update billing cache: %w", err)
	}
	if _, err := h.snapshots.Upsert(user.ID, snapshotFrom(string(tier), sub)); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

func snapshotFrom(planName string, sub *billing.SubscriptionInfo) store.Snapshot {
	snap := store.Snapshot{
		StripeSubscriptionID: sub.ID,
		PriceID:              sub.PriceID,
		Plan:                 planName,
		Status:               sub.Status,
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
	}
	if !sub.CurrentPeriodStart.IsZero() {
		t := sub.CurrentPeriodStart
		snap.CurrentPeriodStart = &t
	}
	if !sub.CurrentPeriodEnd.IsZero() {
		t := sub.CurrentPeriodEnd
		snap.CurrentPeriodEnd = &t
	}
	return snap
}
