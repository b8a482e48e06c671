package plan

import "testing"

func TestTierForPrice(t *testing.T) {
	m := NewPriceMap("price_basic", "price_pro", "price_elite")

	tier, ok := m.TierForPrice("price_pro")
	if !ok {
		t.Fatal("expected price_pro to resolve")
	}
	if tier != TierPro {
		t.Errorf("tier = %q, want %q", tier, TierPro)
	}

	if _, ok := m.TierForPrice("price_unknown"); ok {
		t.Error("expected unknown price to not resolve")
	}
}

func TestTierForPriceSkipsEmptyConfig(t *testing.T) {
	m := NewPriceMap("price_basic", "", "")

	if _, ok := m.TierForPrice(""); ok {
		t.Error("empty price id must never resolve to a tier")
	}
	if _, ok := m.TierForPrice("price_basic"); !ok {
		t.Error("expected configured price to resolve")
	}
}

func TestPriceForTier(t *testing.T) {
	m := NewPriceMap("price_basic", "price_pro", "price_elite").
		WithAnnual("price_basic_yr", "price_pro_yr", "")

	if got := m.PriceForTier(TierElite, IntervalMonth); got != "price_elite" {
		t.Errorf("price = %q, want %q", got, "price_elite")
	}
	if got := m.PriceForTier(TierPro, IntervalYear); got != "price_pro_yr" {
		t.Errorf("annual price = %q, want %q", got, "price_pro_yr")
	}
	if got := m.PriceForTier(TierElite, IntervalYear); got != "" {
		t.Errorf("price = %q, want empty for unconfigured annual tier", got)
	}

	// Annual prices resolve back to their tier for gating.
	if tier, ok := m.TierForPrice("price_basic_yr"); !ok || tier != TierBasic {
		t.Errorf("tier = %q/%v, want basic", tier, ok)
	}

	m2 := NewPriceMap("price_basic", "", "")
	if got := m2.PriceForTier(TierPro, IntervalMonth); got != "" {
		t.Errorf("price = %q, want empty for unconfigured tier", got)
	}
}

func TestParseInterval(t *testing.T) {
	if iv, ok := ParseInterval(""); !ok || iv != IntervalMonth {
		t.Errorf("empty interval = %q/%v, want month default", iv, ok)
	}
	if _, ok := ParseInterval("year"); !ok {
		t.Error("expected year to parse")
	}
	if _, ok := ParseInterval("weekly"); ok {
		t.Error("expected weekly to fail")
	}
}

func TestLimitsFor(t *testing.T) {
	if got := LimitsFor(TierBasic).ComparisonsPerDay; got != 10 {
		t.Errorf("basic limit = %d, want 10", got)
	}
	if got := LimitsFor(TierElite).ComparisonsPerDay; got != 200 {
		t.Errorf("elite limit = %d, want 200", got)
	}
	if got := LimitsFor(Tier("bogus")).ComparisonsPerDay; got != 0 {
		t.Errorf("unknown tier limit = %d, want 0", got)
	}
}

func TestParseTier(t *testing.T) {
	if _, ok := ParseTier("pro"); !ok {
		t.Error("expected pro to parse")
	}
	if _, ok := ParseTier("platinum"); ok {
		t.Error("expected platinum to fail")
	}
}

func TestUsableStatuses(t *testing.T) {
	for _, s := range []string{"active", "trialing"} {
		if !UsableStatuses[s] {
			t.Errorf("status %q should be usable", s)
		}
	}
	for _, s := range []string{"past_due", "canceled", "incomplete", "unpaid", ""} {
		if UsableStatuses[s] {
			t.Errorf("status %q should not be usable", s)
		}
	}
}
