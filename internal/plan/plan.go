// Package plan maps Stripe prices to PixelProof subscription tiers and
// defines the daily comparison limits each tier grants.
package plan

// Tier identifies a subscription level.
type Tier string

const (
	TierBasic Tier = "basic"
	TierPro   Tier = "pro"
	TierElite Tier = "elite"
)

// Limits defines what a tier grants per day.
type Limits struct {
	ComparisonsPerDay int
}

// TierLimits maps tiers to their daily limits.
var TierLimits = map[Tier]Limits{
	TierBasic: {ComparisonsPerDay: 10},
	TierPro:   {ComparisonsPerDay: 50},
	TierElite: {ComparisonsPerDay: 200},
}

// LimitsFor returns the limits for a tier. Unknown tiers get zero limits,
// which the quota gate treats as no plan.
func LimitsFor(tier Tier) Limits {
	return TierLimits[tier]
}

// UsableStatuses are the Stripe subscription statuses that grant access.
var UsableStatuses = map[string]bool{
	"active":   true,
	"trialing": true,
}

// Interval is a billing cycle length.
type Interval string

const (
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

// ParseInterval validates a user-supplied interval. Empty defaults to monthly.
func ParseInterval(s string) (Interval, bool) {
	switch Interval(s) {
	case "":
		return IntervalMonth, true
	case IntervalMonth, IntervalYear:
		return Interval(s), true
	}
	return "", false
}

// PriceMap resolves Stripe price IDs to tiers. Populated from configuration
// at startup.
type PriceMap struct {
	prices  map[string]Tier
	monthly map[Tier]string
	annual  map[Tier]string
}

// NewPriceMap builds a PriceMap from monthly price-ID config values. Empty
// IDs are skipped so partially configured environments still resolve the rest.
func NewPriceMap(basicPriceID, proPriceID, elitePriceID string) *PriceMap {
	m := &PriceMap{
		prices:  make(map[string]Tier, 6),
		monthly: make(map[Tier]string, 3),
		annual:  make(map[Tier]string, 3),
	}
	m.register(m.monthly, basicPriceID, proPriceID, elitePriceID)
	return m
}

// WithAnnual registers the annual price IDs alongside the monthly ones.
func (m *PriceMap) WithAnnual(basicPriceID, proPriceID, elitePriceID string) *PriceMap {
	m.register(m.annual, basicPriceID, proPriceID, elitePriceID)
	return m
}

func (m *PriceMap) register(byTier map[Tier]string, basicPriceID, proPriceID, elitePriceID string) {
	for tier, id := range map[Tier]string{
		TierBasic: basicPriceID,
		TierPro:   proPriceID,
		TierElite: elitePriceID,
	} {
		if id == "" {
			continue
		}
		m.prices[id] = tier
		byTier[tier] = id
	}
}

// TierForPrice returns the tier for a Stripe price ID of either interval,
// or "" if the price does not belong to any known tier.
func (m *PriceMap) TierForPrice(priceID string) (Tier, bool) {
	t, ok := m.prices[priceID]
	return t, ok
}

// PriceForTier returns the configured Stripe price ID for a tier and
// interval, or "".
func (m *PriceMap) PriceForTier(tier Tier, interval Interval) string {
	if interval == IntervalYear {
		return m.annual[tier]
	}
	return m.monthly[tier]
}

// ParseTier validates a user-supplied tier name.
func ParseTier(s string) (Tier, bool) {
	switch Tier(s) {
	case TierBasic, TierPro, TierElite:
		return Tier(s), true
	}
	return "", false
}
