package model

import "time"

type User struct {
	ID                 int64     `json:"id"`
	AuthSubject        string    `json:"auth_subject"`
	Email              string    `json:"email"`
	DisplayName        string    `json:"display_name"`
	AvatarURL          string    `json:"avatar_url"`
	StripeCustomerID   *string   `json:"stripe_customer_id"`
	Plan               string    `json:"plan"`
	SubscriptionStatus string    `json:"subscription_status"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Subscription is a local snapshot of a Stripe subscription. It is a cache
// only; quota decisions re-query Stripe live.
type Subscription struct {
	ID                   int64      `json:"id"`
	UserID               int64      `json:"user_id"`
	StripeSubscriptionID *string    `json:"stripe_subscription_id"`
	PriceID              string     `json:"price_id"`
	Plan                 string     `json:"plan"`
	Status               string     `json:"status"`
	CurrentPeriodStart   *time.Time `json:"current_period_start"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end"`
	CancelAtPeriodEnd    bool       `json:"cancel_at_period_end"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// UsageCounter tracks paid-operation usage for one user. Day holds a UTC
// date key (2006-01-02); a mismatch with today means the counter is stale
// and resets on the next consume.
type UsageCounter struct {
	UserID int64  `json:"user_id"`
	Day    string `json:"day"`
	Count  int    `json:"count"`
	Max    int    `json:"max"`
	Plan   string `json:"plan"`
}

// Comparison statuses.
const (
	ComparisonPending    = "pending"
	ComparisonProcessing = "processing"
	ComparisonComplete   = "complete"
	ComparisonFailed     = "failed"
)

type Comparison struct {
	ID          string     `json:"id"`
	UserID      int64      `json:"user_id"`
	BeforeKey   string     `json:"before_key"`
	AfterKey    string     `json:"after_key"`
	Status      string     `json:"status"`
	Summary     string     `json:"summary"`
	MatchScore  *float64   `json:"match_score"`
	Report      string     `json:"report"`
	ErrorCode   string     `json:"error_code"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`
}
