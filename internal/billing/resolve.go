package billing

import (
	"context"
	"errors"
	"log/slog"

	"github.com/HasnainAli-max/pixel-proof-2/internal/model"
	"github.com/HasnainAli-max/pixel-proof-2/internal/store"
)

// ErrNoCustomer means no strategy could produce a billing identity for the user.
var ErrNoCustomer = errors.New("no billing customer for user")

// customerAPI is the slice of the Stripe client the resolver uses.
type customerAPI interface {
	GetCustomer(ctx context.Context, customerID string) (*CustomerInfo, error)
	SearchBySubject(ctx context.Context, subject string) (string, error)
	FindByEmail(ctx context.Context, email string) (string, error)
	CreateCustomer(ctx context.Context, email, subject string) (string, error)
}

// Resolver maps an app user to a Stripe customer ID. Strategies run in
// order: cached ID, metadata search, email lookup, auto-create. Whatever
// wins is written back to the user row so the next request short-circuits.
type Resolver struct {
	api    customerAPI
	users  *store.UserStore
	logger *slog.Logger
}

func NewResolver(api customerAPI, users *store.UserStore, logger *slog.Logger) *Resolver {
	return &Resolver{api: api, users: users, logger: logger}
}

// Resolve returns the Stripe customer ID for the user.
func (r *Resolver) Resolve(ctx context.Context, user *model.User) (string, error) {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		cached := *user.StripeCustomerID
		info, err := r.api.GetCustomer(ctx, cached)
		if err == nil && !info.Deleted {
			return cached, nil
		}
		// Cached ID is stale (deleted customer, or a test-mode ID against a
		// live key). Fall through to the search strategies.
		r.logger.Warn("cached stripe customer unusable", "user_id", user.ID, "customer_id", cached, "error", err)
	}

	if id, err := r.api.SearchBySubject(ctx, user.AuthSubject); err != nil {
		return "", err
	} else if id != "" {
		r.logger.Debug("resolved customer by metadata", "user_id", user.ID, "customer_id", id)
		return id, r.persist(user, id)
	}

	if user.Email != "" {
		if id, err := r.api.FindByEmail(ctx, user.Email); err != nil {
			return "", err
		} else if id != "" {
			r.logger.Debug("resolved customer by email", "user_id", user.ID, "customer_id", id)
			return id, r.persist(user, id)
		}
	}

	id, err := r.api.CreateCustomer(ctx, user.Email, user.AuthSubject)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", ErrNoCustomer
	}
	r.logger.Info("created stripe customer", "user_id", user.ID, "customer_id", id)
	return id, r.persist(user, id)
}

func (r *Resolver) persist(user *model.User, customerID string) error {
	if err := r.users.UpdateStripeCustomerID(user.ID, customerID); err != nil {
		return err
	}
	user.StripeCustomerID = &customerID
	return nil
}
