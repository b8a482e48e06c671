// Package quota gates paid operations. Every grant resolves the user's
// billing identity, re-queries Stripe for a live usable subscription, maps
// its price to a plan tier, and atomically consumes the daily counter.
package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/HasnainAli-max/pixel-proof-2/internal/billing"
	"github.com/HasnainAli-max/pixel-proof-2/internal/model"
	"github.com/HasnainAli-max/pixel-proof-2/internal/plan"
	"github.com/HasnainAli-max/pixel-proof-2/internal/store"
)

// ErrNoPlan means the user has no active-or-trialing subscription on a
// known price.
var ErrNoPlan = errors.New("no usable subscription")

// ErrLimitExceeded is re-exported so callers need not import the store.
var ErrLimitExceeded = store.ErrLimitExceeded

// CustomerResolver maps a user to a Stripe customer ID.
type CustomerResolver interface {
	Resolve(ctx context.Context, user *model.User) (string, error)
}

// SubscriptionFetcher returns the live usable subscription for a customer.
type SubscriptionFetcher interface {
	ActiveSubscription(ctx context.Context, customerID string) (*billing.SubscriptionInfo, error)
}

type Service struct {
	resolver  CustomerResolver
	subs      SubscriptionFetcher
	prices    *plan.PriceMap
	usage     *store.UsageStore
	users     *store.UserStore
	snapshots *store.SubscriptionStore
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(
	resolver CustomerResolver,
	subs SubscriptionFetcher,
	prices *plan.PriceMap,
	usage *store.UsageStore,
	users *store.UserStore,
	snapshots *store.SubscriptionStore,
	logger *slog.Logger,
) *Service {
	return &Service{
		resolver:  resolver,
		subs:      subs,
		prices:    prices,
		usage:     usage,
		users:     users,
		snapshots: snapshots,
		logger:    logger,
		now:       time.Now,
	}
}

// Grant reports the plan and counter state after a quota decision.
type Grant struct {
	Plan plan.Tier `json:"plan"`
	Used int       `json:"used"`
	Max  int       `json:"max"`
	Day  string    `json:"day"`
}

// Consume authorizes one paid operation, incrementing today's counter.
// Returns ErrNoPlan or ErrLimitExceeded on denial.
func (s *Service) Consume(ctx context.Context, user *model.User) (*Grant, error) {
	tier, sub, err := s.gate(ctx, user)
	if err != nil {
		return nil, err
	}

	limits := plan.LimitsFor(tier)
	day := s.day()
	counter, err := s.usage.Consume(user.ID, day, string(tier), limits.ComparisonsPerDay)
	if err != nil {
		if errors.Is(err, store.ErrLimitExceeded) {
			return nil, ErrLimitExceeded
		}
		return nil, fmt.Errorf("consume quota: %w", err)
	}

	s.cache(user, tier, sub)
	return &Grant{Plan: tier, Used: counter.Count, Max: counter.Max, Day: day}, nil
}

// Status reports the current plan and usage without consuming.
func (s *Service) Status(ctx context.Context, user *model.User) (*Grant, error) {
	tier, sub, err := s.gate(ctx, user)
	if err != nil {
		return nil, err
	}

	limits := plan.LimitsFor(tier)
	day := s.day()
	used, err := s.usage.UsedToday(user.ID, day)
	if err != nil {
		return nil, fmt.Errorf("read usage: %w", err)
	}

	s.cache(user, tier, sub)
	return &Grant{Plan: tier, Used: used, Max: limits.ComparisonsPerDay, Day: day}, nil
}

// gate resolves the billing identity and live subscription. Stripe is the
// source of truth here; the local snapshot and user cache are never read.
func (s *Service) gate(ctx context.Context, user *model.User) (plan.Tier, *billing.SubscriptionInfo, error) {
	customerID, err := s.resolver.Resolve(ctx, user)
	if err != nil {
		return "", nil, fmt.Errorf("resolve billing customer: %w", err)
	}

	sub, err := s.subs.ActiveSubscription(ctx, customerID)
	if err != nil {
		return "", nil, fmt.Errorf("fetch subscription: %w", err)
	}
	if sub == nil {
		return "", nil, ErrNoPlan
	}

	tier, ok := s.prices.TierForPrice(sub.PriceID)
	if !ok {
		s.logger.Warn("subscription on unknown price", "user_id", user.ID, "price_id", sub.PriceID)
		return "", nil, ErrNoPlan
	}
	return tier, sub, nil
}

// cache writes the live state back onto the user row and snapshot table.
// Best effort only; a failure never blocks the grant.
func (s *Service) cache(user *model.User, tier plan.Tier, sub *billing.SubscriptionInfo) {
	if err := s.users.UpdateBilling(user.ID, string(tier), sub.Status); err != nil {
		s.logger.Error("cache billing state", "user_id", user.ID, "error", err)
	}
	snap := store.Snapshot{
		StripeSubscriptionID: sub.ID,
		PriceID:              sub.PriceID,
		Plan:                 string(tier),
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
	if _, err := s.snapshots.Upsert(user.ID, snap); err != nil {
		s.logger.Error("cache subscription snapshot", "user_id", user.ID, "error", err)
	}
}

func (s *Service) day() string {
	return s.now().UTC().Format("2006-01-02")
}
