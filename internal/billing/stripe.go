// Package billing wraps the Stripe SDK behind the small surface the rest of
// the app needs: customer resolution, live subscription lookup, checkout and
// portal sessions, and webhook verification.
package billing

import (
	"fmt"
	"time"

	"context"

	stripe "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/HasnainAli-max/pixel-proof-2/internal/plan"
)

// metadataSubjectKey is the customer metadata key holding the auth subject.
const metadataSubjectKey = "auth_subject"

type Config struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

type Client struct {
	cfg Config
}

func NewClient(cfg Config) *Client {
	stripe.Key = cfg.SecretKey
	return &Client{cfg: cfg}
}

// CustomerInfo is the slice of a Stripe customer the resolver cares about.
type CustomerInfo struct {
	ID      string
	Email   string
	Deleted bool
}

// SubscriptionInfo mirrors the fields of a live Stripe subscription used for
// gating and snapshotting.
type SubscriptionInfo struct {
	ID                 string
	PriceID            string
	Status             string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
}

// GetCustomer retrieves a customer by ID.
func (c *Client) GetCustomer(ctx context.Context, customerID string) (*CustomerInfo, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	cust, err := customer.Get(customerID, params)
	if err != nil {
		return nil, fmt.Errorf("get stripe customer: %w", err)
	}
	return &CustomerInfo{ID: cust.ID, Email: cust.Email, Deleted: cust.Deleted}, nil
}

// SearchBySubject finds a customer whose metadata carries the auth subject.
// Returns "" when no customer matches.
func (c *Client) SearchBySubject(ctx context.Context, subject string) (string, error) {
	params := &stripe.CustomerSearchParams{
		SearchParams: stripe.SearchParams{
			Query:   fmt.Sprintf("metadata['%s']:'%s'", metadataSubjectKey, subject),
			Context: ctx,
		},
	}
	iter := customer.Search(params)
	if iter.Next() {
		return iter.Customer().ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("search stripe customers: %w", err)
	}
	return "", nil
}

// FindByEmail returns the first customer with the given email, or "".
func (c *Client) FindByEmail(ctx context.Context, email string) (string, error) {
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)
	iter := customer.List(params)
	if iter.Next() {
		return iter.Customer().ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("list stripe customers: %w", err)
	}
	return "", nil
}

// CreateCustomer creates a customer tagged with the auth subject so later
// lookups can find it without a cached ID.
func (c *Client) CreateCustomer(ctx context.Context, email, subject string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Metadata: map[string]string{
			metadataSubjectKey: subject,
		},
	}
	params.Context = ctx
	cust, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	return cust.ID, nil
}

// ActiveSubscription returns the customer's first active-or-trialing
// subscription, or nil if they have none. This is the authoritative gating
// query; local snapshots are never consulted.
func (c *Client) ActiveSubscription(ctx context.Context, customerID string) (*SubscriptionInfo, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx
	iter := subscription.List(params)
	for iter.Next() {
		sub := iter.Subscription()
		if !plan.UsableStatuses[string(sub.Status)] {
			continue
		}
		return subscriptionInfo(sub), nil
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list stripe subscriptions: %w", err)
	}
	return nil, nil
}

// SubscriptionInfoFromEvent converts a subscription object delivered in a
// webhook payload.
func SubscriptionInfoFromEvent(sub *stripe.Subscription) *SubscriptionInfo {
	return subscriptionInfo(sub)
}

func subscriptionInfo(sub *stripe.Subscription) *SubscriptionInfo {
	info := &SubscriptionInfo{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			info.PriceID = item.Price.ID
		}
		if item.CurrentPeriodStart > 0 {
			info.CurrentPeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
		}
		if item.CurrentPeriodEnd > 0 {
			info.CurrentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
		}
	}
	return info
}

// CreateCheckoutSession creates a subscription checkout session and returns its URL.
// clientReferenceID carries the internal user ID back on the webhook.
func (c *Client) CreateCheckoutSession(ctx context.Context, customerID, priceID, clientReferenceID string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(customerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		AllowPromotionCodes: stripe.Bool(true),
		ClientReferenceID:   stripe.String(clientReferenceID),
		SuccessURL:          stripe.String(c.cfg.SuccessURL),
		CancelURL:           stripe.String(c.cfg.CancelURL),
	}
	params.Context = ctx
	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

// CreateBillingPortalSession creates a billing portal session and returns its URL.
func (c *Client) CreateBillingPortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	sess, err := portalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("create billing portal session: %w", err)
	}
	return sess.URL, nil
}

// ConstructWebhookEvent verifies the signature and returns the parsed event.
func (c *Client) ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, sigHeader, c.cfg.WebhookSecret)
}
