package quota

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/HasnainAli-max/pixel-proof-2/internal/billing"
	"github.com/HasnainAli-max/pixel-proof-2/internal/database"
	"github.com/HasnainAli-max/pixel-proof-2/internal/model"
	"github.com/HasnainAli-max/pixel-proof-2/internal/plan"
	"github.com/HasnainAli-max/pixel-proof-2/internal/store"
)

type fakeResolver struct {
	id  string
	err error
}

func (f *fakeResolver) Resolve(ctx context.Context, user *model.User) (string, error) {
	return f.id, f.err
}

type fakeSubs struct {
	sub *billing.SubscriptionInfo
	err error
}

func (f *fakeSubs) ActiveSubscription(ctx context.Context, customerID string) (*billing.SubscriptionInfo, error) {
	return f.sub, f.err
}

func setupQuotaTest(t *testing.T, subs SubscriptionFetcher) (*Service, *model.User, *store.UserStore, *store.SubscriptionStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	users := store.NewUserStore(db)
	usage := store.NewUsageStore(db)
	snapshots := store.NewSubscriptionStore(db)
	prices := plan.NewPriceMap("price_basic", "price_pro", "price_elite")

	svc := NewService(&fakeResolver{id: "cus_1"}, subs, prices, usage, users, snapshots, slog.Default())
	svc.now = func() time.Time { return time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC) }

	u, _ := users.Upsert("auth0|alice", "alice@example.com", "Alice")
	return svc, u, users, snapshots
}

func TestConsumeNoSubscription(t *testing.T) {
	svc, u, _, _ := setupQuotaTest(t, &fakeSubs{sub: nil})

	_, err := svc.Consume(context.Background(), u)
	if !errors.Is(err, ErrNoPlan) {
		t.Fatalf("err = %v, want ErrNoPlan", err)
	}
}

func TestConsumeUnknownPrice(t *testing.T) {
	svc, u, _, _ := setupQuotaTest(t, &fakeSubs{sub: &billing.SubscriptionInfo{
		ID: "sub_1", PriceID: "price_retired", Status: "active",
	}})

	_, err := svc.Consume(context.Background(), u)
	if !errors.Is(err, ErrNoPlan) {
		t.Fatalf("err = %v, want ErrNoPlan for unmapped price", err)
	}
}

func TestConsumeGrants(t *testing.T) {
	end := time.Date(2026, 9, 29, 0, 0, 0, 0, time.UTC)
	svc, u, users, snapshots := setupQuotaTest(t, &fakeSubs{sub: &billing.SubscriptionInfo{
		ID: "sub_1", PriceID: "price_pro", Status: "active", CurrentPeriodEnd: end,
	}})

	g, err := svc.Consume(context.Background(), u)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if g.Plan != plan.TierPro {
		t.Errorf("plan = %q, want pro", g.Plan)
	}
	if g.Used != 1 || g.Max != 50 {
		t.Errorf("used/max = %d/%d, want 1/50", g.Used, g.Max)
	}
	if g.Day != "2026-08-29" {
		t.Errorf("day = %q, want 2026-08-29", g.Day)
	}

	// Live state is cached opportunistically.
	cached, _ := users.GetByID(u.ID)
	if cached.Plan != "pro" || cached.SubscriptionStatus != "active" {
		t.Errorf("cached plan/status = %q/%q, want pro/active", cached.Plan, cached.SubscriptionStatus)
	}
	snap, _ := snapshots.GetByStripeID("sub_1")
	if snap == nil {
		t.Fatal("expected subscription snapshot")
	}
	if snap.CurrentPeriodEnd == nil || !snap.CurrentPeriodEnd.Equal(end) {
		t.Errorf("snapshot period end = %v, want %v", snap.CurrentPeriodEnd, end)
	}
}

func TestConsumeLimitExceeded(t *testing.T) {
	svc, u, _, _ := setupQuotaTest(t, &fakeSubs{sub: &billing.SubscriptionInfo{
		ID: "sub_1", PriceID: "price_basic", Status: "trialing",
	}})

	for i := 0; i < 10; i++ {
		if _, err := svc.Consume(context.Background(), u); err != nil {
			t.Fatalf("consume %d: %v", i, err)
		}
	}
	_, err := svc.Consume(context.Background(), u)
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("err = %v, want ErrLimitExceeded", err)
	}
}

func TestConsumeResolverError(t *testing.T) {
	svc, u, _, _ := setupQuotaTest(t, &fakeSubs{sub: nil})
	svc.resolver = &fakeResolver{err: errors.New("stripe unreachable")}

	_, err := svc.Consume(context.Background(), u)
	if err == nil || errors.Is(err, ErrNoPlan) {
		t.Fatalf("err = %v, want a transport error, not ErrNoPlan", err)
	}
}

func TestStatusDoesNotConsume(t *testing.T) {
	svc, u, _, _ := setupQuotaTest(t, &fakeSubs{sub: &billing.SubscriptionInfo{
		ID: "sub_1", PriceID: "price_basic", Status: "active",
	}})

	for i := 0; i < 3; i++ {
		g, err := svc.Status(context.Background(), u)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if g.Used != 0 {
			t.Errorf("used = %d, status must not consume", g.Used)
		}
	}

	g, _ := svc.Consume(context.Background(), u)
	if g.Used != 1 {
		t.Errorf("used = %d after first consume, want 1", g.Used)
	}
	after, _ := svc.Status(context.Background(), u)
	if after.Used != 1 {
		t.Errorf("status used = %d, want 1", after.Used)
	}
}
