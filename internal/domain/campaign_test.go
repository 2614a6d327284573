package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// ============================================================================
// Target / Discount Type Validation Tests
// ============================================================================

func TestValidTargetTypes_ContainsAll(t *testing.T) {
	expected := []string{TargetTypeProduct, TargetTypeCategory, TargetTypeAll}
	assert.ElementsMatch(t, expected, ValidTargetTypes())
}

func TestIsValidTargetType_Valid(t *testing.T) {
	for _, tt := range ValidTargetTypes() {
		assert.True(t, IsValidTargetType(tt), "expected %q to be valid", tt)
	}
}

func TestIsValidTargetType_Invalid(t *testing.T) {
	assert.False(t, IsValidTargetType("unknown"))
	assert.False(t, IsValidTargetType(""))
	assert.False(t, IsValidTargetType("PRODUCT"))
}

func TestValidDiscountTypes_ExcludesLegacyFixedPrice(t *testing.T) {
	types := ValidDiscountTypes()
	assert.NotContains(t, types, DiscountTypeFixedPrice)
	assert.ElementsMatch(t, []string{
		DiscountTypePercent, DiscountTypeAmount,
		DiscountTypeFreeShipping, DiscountTypePoints,
	}, types)
}

func TestIsValidDiscountType_Invalid(t *testing.T) {
	assert.False(t, IsValidDiscountType("unknown"))
	assert.False(t, IsValidDiscountType(""))
	assert.False(t, IsValidDiscountType(DiscountTypeFixedPrice))
}

func TestIsValidStatus(t *testing.T) {
	assert.True(t, IsValidStatus(CampaignStatusActive))
	assert.True(t, IsValidStatus(CampaignStatusInactive))
	assert.False(t, IsValidStatus("paused"))
	assert.False(t, IsValidStatus(""))
}

// ============================================================================
// Date Window Tests
// ============================================================================

func TestWithinWindow_HalfOpen(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	c := Campaign{StartDate: start, EndDate: end}

	assert.False(t, c.WithinWindow(start.Add(-time.Second)))
	assert.True(t, c.WithinWindow(start), "start instant is inclusive")
	assert.True(t, c.WithinWindow(start.Add(24*time.Hour)))
	assert.True(t, c.WithinWindow(end.Add(-time.Second)))
	assert.False(t, c.WithinWindow(end), "end instant is exclusive")
	assert.False(t, c.WithinWindow(end.Add(time.Hour)))
}

// ============================================================================
// Effectiveness Tests
// ============================================================================

func effectiveCampaign(now time.Time) Campaign {
	return Campaign{
		Status:    CampaignStatusActive,
		IsActive:  true,
		StartDate: now.Add(-time.Hour),
		EndDate:   now.Add(time.Hour),
	}
}

func TestIsEffectiveAt_AllGatesPass(t *testing.T) {
	now := time.Now()
	c := effectiveCampaign(now)
	assert.True(t, c.IsEffectiveAt(now))
}

func TestIsEffectiveAt_InactiveStatus(t *testing.T) {
	now := time.Now()
	c := effectiveCampaign(now)
	c.Status = CampaignStatusInactive
	assert.False(t, c.IsEffectiveAt(now))
}

func TestIsEffectiveAt_KillSwitchOff(t *testing.T) {
	now := time.Now()
	c := effectiveCampaign(now)
	c.IsActive = false
	assert.False(t, c.IsEffectiveAt(now))
}

func TestIsEffectiveAt_StaleActiveStatusOutsideWindow(t *testing.T) {
	// Scheduler has not run yet: status still says active but the window
	// has ended. The predicate must not trust the flag.
	now := time.Now()
	c := effectiveCampaign(now)
	c.EndDate = now.Add(-time.Minute)
	assert.False(t, c.IsEffectiveAt(now))
}

func TestIsEffectiveAt_UsageExhausted(t *testing.T) {
	now := time.Now()
	limit := 100
	c := effectiveCampaign(now)
	c.UsageLimit = &limit
	c.CurrentUsage = 100
	assert.False(t, c.IsEffectiveAt(now))

	c.CurrentUsage = 99
	assert.True(t, c.IsEffectiveAt(now))
}

func TestIsEffectiveAt_NilUsageLimitIsUnlimited(t *testing.T) {
	now := time.Now()
	c := effectiveCampaign(now)
	c.CurrentUsage = 1_000_000
	assert.True(t, c.IsEffectiveAt(now))
}

func TestIsRunningAt_IgnoresUsageCeiling(t *testing.T) {
	now := time.Now()
	limit := 10
	c := effectiveCampaign(now)
	c.UsageLimit = &limit
	c.CurrentUsage = 10
	assert.True(t, c.IsRunningAt(now))
	assert.False(t, c.IsEffectiveAt(now))
}

// ============================================================================
// Target Matching Tests
// ============================================================================

func TestMatchesTarget_Product(t *testing.T) {
	c := Campaign{TargetType: TargetTypeProduct, ProductTargets: []string{"p1", "p2"}}
	assert.True(t, c.MatchesTarget("p1", nil, false))
	assert.False(t, c.MatchesTarget("p3", nil, false))
}

func TestMatchesTarget_ProductViaLegacyAssociation(t *testing.T) {
	c := Campaign{TargetType: TargetTypeProduct}
	assert.True(t, c.MatchesTarget("p9", nil, true))
	assert.False(t, c.MatchesTarget("p9", nil, false))
}

func TestMatchesTarget_Category(t *testing.T) {
	c := Campaign{TargetType: TargetTypeCategory, CategoryTargets: []string{"books", "toys"}}
	assert.True(t, c.MatchesTarget("p1", []string{"toys"}, false))
	assert.False(t, c.MatchesTarget("p1", []string{"food"}, false))
	assert.False(t, c.MatchesTarget("p1", nil, false))
}

func TestMatchesTarget_All(t *testing.T) {
	c := Campaign{TargetType: TargetTypeAll}
	assert.True(t, c.MatchesTarget("anything", nil, false))
}

func TestMatchesTarget_UnknownTargetType(t *testing.T) {
	c := Campaign{TargetType: "brand", ProductTargets: []string{"p1"}}
	assert.False(t, c.MatchesTarget("p1", nil, false))
}

func TestIsCartWide(t *testing.T) {
	assert.True(t, (&Campaign{TargetType: TargetTypeAll, MinimumPurchase: 5000}).IsCartWide())
	assert.False(t, (&Campaign{TargetType: TargetTypeAll}).IsCartWide())
	assert.False(t, (&Campaign{TargetType: TargetTypeProduct, MinimumPurchase: 5000}).IsCartWide())
}
