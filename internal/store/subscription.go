package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/HasnainAli-max/pixel-proof-2/internal/model"
)

type SubscriptionStore struct {
	db *sql.DB
}

func NewSubscriptionStore(db *sql.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

func scanSubscription(scanner interface{ Scan(...any) error }) (*model.Subscription, error) {
	var sub model.Subscription
	var stripeSubID sql.NullString
	var periodStart, periodEnd sql.NullTime
	var cancelAtPeriodEnd int
	err := scanner.Scan(
		&sub.ID, &sub.UserID, &stripeSubID, &sub.PriceID, &sub.Plan, &sub.Status,
		&periodStart, &periodEnd, &cancelAtPeriodEnd, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if stripeSubID.Valid {
		sub.StripeSubscriptionID = &stripeSubID.String
	}
	if periodStart.Valid {
		sub.CurrentPeriodStart = &periodStart.Time
	}
	if periodEnd.Valid {
		sub.CurrentPeriodEnd = &periodEnd.Time
	}
	sub.CancelAtPeriodEnd = cancelAtPeriodEnd != 0
	return &sub, nil
}

const subscriptionCols = `id, user_id, stripe_subscription_id, price_id, plan, status, current_period_start, current_period_end, cancel_at_period_end, created_at, updated_at`

// Snapshot holds the fields mirrored from a Stripe subscription object.
type Snapshot struct {
	StripeSubscriptionID string
	PriceID              string
	Plan                 string
	Status               string
	CurrentPeriodStart   *time.Time
	CurrentPeriodEnd     *time.Time
	CancelAtPeriodEnd    bool
}

// Upsert writes a subscription snapshot keyed by Stripe subscription ID,
// which makes webhook replays idempotent.
func (s *SubscriptionStore) Upsert(userID int64, snap Snapshot) (*model.Subscription, error) {
	var cancel int
	if snap.CancelAtPeriodEnd {
		cancel = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO subscriptions (user_id, stripe_subscription_id, price_id, plan, status, current_period_start, current_period_end, cancel_at_period_end)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(stripe_subscription_id) DO UPDATE SET
		     user_id = excluded.user_id,
		     price_id = excluded.price_id,
		     plan = excluded.plan,
		     status = excluded.status,
		     current_period_start = excluded.current_period_start,
		     current_period_end = excluded.current_period_end,
		     cancel_at_period_end = excluded.cancel_at_period_end,
		     updated_at = CURRENT_TIMESTAMP`,
		userID, snap.StripeSubscriptionID, snap.PriceID, snap.Plan, snap.Status,
		snap.CurrentPeriodStart, snap.CurrentPeriodEnd, cancel,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert subscription: %w", err)
	}
	return s.GetByStripeID(snap.StripeSubscriptionID)
}

func (s *SubscriptionStore) GetByID(id int64) (*model.Subscription, error) {
	row := s.db.QueryRow(`SELECT `+subscriptionCols+` FROM subscriptions WHERE id = ?`, id)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) GetByUserID(userID int64) (*model.Subscription, error) {
	row := s.db.QueryRow(
		`SELECT `+subscriptionCols+` FROM subscriptions WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		userID,
	)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription by user: %w", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) GetByStripeID(stripeSubID string) (*model.Subscription, error) {
	row := s.db.QueryRow(
		`SELECT `+subscriptionCols+` FROM subscriptions WHERE stripe_subscription_id = ?`,
		stripeSubID,
	)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription by stripe id: %w", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) UpdateStatus(id int64, status string) error {
	_, err := s.db.Exec(
		`UPDATE subscriptions SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("update subscription status: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) SetCancelAtPeriodEnd(id int64, cancel bool) error {
	var v int
	if cancel {
		v = 1
	}
	_, err := s.db.Exec(
		`UPDATE subscriptions SET cancel_at_period_end = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		v, id,
	)
	if err != nil {
		return fmt.Errorf("set cancel at period end: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM subscriptions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}
