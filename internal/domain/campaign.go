package domain

import (
	"time"
)

// Campaign target type constants.
const (
	TargetTypeProduct  = "product"
	TargetTypeCategory = "category"
	TargetTypeAll      = "all"
)

// Discount type constants. DiscountTypeFixedPrice is a legacy variant that is
// still present in old rows; new campaigns use the other four.
const (
	DiscountTypePercent      = "percent"
	DiscountTypeAmount       = "amount"
	DiscountTypeFixedPrice   = "fixed_price"
	DiscountTypeFreeShipping = "free_shipping"
	DiscountTypePoints       = "points"
)

// Campaign status constants. Status is the lifecycle-managed flag flipped by
// the scheduler; IsActive is the separate administrative kill switch.
const (
	CampaignStatusActive   = "active"
	CampaignStatusInactive = "inactive"
)

// Campaign represents a promotional rule granting a discount or benefit to
// qualifying products or carts within a time window.
type Campaign struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Label       string `json:"label,omitempty"`
	Description string `json:"description"`

	TargetType string `json:"target_type"`

	DiscountType  string `json:"discount_type"`
	DiscountValue int64  `json:"discount_value"`
	// FixedPrice is the legacy target-price alias kept for rows written by
	// the old fixed_price discount variant.
	FixedPrice *int64 `json:"fixed_price,omitempty"`
	// LegacyType mirrors the old top-level "type" column; it is consulted
	// only while normalizing the discount spec at load time. Serialized so
	// cached copies renormalize to the same spec.
	LegacyType string `json:"legacy_type,omitempty"`

	MinimumPurchase int64 `json:"minimum_purchase"`
	UsageLimit      *int  `json:"usage_limit"` // nil = unlimited
	UserLimit       *int  `json:"user_limit"`  // nil = unlimited
	CurrentUsage    int   `json:"current_usage"`

	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"` // exclusive
	IsActive  bool      `json:"is_active"`
	Status    string    `json:"status"`

	// Target id sets loaded from campaign_targets.
	ProductTargets  []string `json:"product_targets"`
	CategoryTargets []string `json:"category_targets"`

	// Discount is the normalized discount spec, reconciled from the legacy
	// fields exactly once when the row is loaded. Call Normalize after
	// constructing a Campaign by hand.
	Discount DiscountSpec `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CampaignTarget is one row of the campaign_targets table: a single
// (target_id, target_type) pair a campaign applies to.
type CampaignTarget struct {
	CampaignID string `json:"campaign_id"`
	TargetID   string `json:"target_id"`
	TargetType string `json:"target_type"`
}

// CampaignUsage is the per-user consumption ledger, one row per
// (campaign, user) pair. UsageCount only ever increases.
type CampaignUsage struct {
	CampaignID string    `json:"campaign_id"`
	UserID     string    `json:"user_id"`
	UsageCount int       `json:"usage_count"`
	LastUsedAt time.Time `json:"last_used_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// Normalize reconciles the legacy discount fields into the Discount spec.
// Repositories call this after scanning a row; services call it after
// constructing a campaign.
func (c *Campaign) Normalize() {
	c.Discount = ResolveDiscountSpec(c.DiscountType, c.LegacyType, c.DiscountValue, c.FixedPrice)
}

// WithinWindow reports whether now falls inside the campaign's half-open
// [start_date, end_date) interval.
func (c *Campaign) WithinWindow(now time.Time) bool {
	return !now.Before(c.StartDate) && now.Before(c.EndDate)
}

// UsageExhausted reports whether the global usage ceiling has been reached.
// A nil UsageLimit means unlimited.
func (c *Campaign) UsageExhausted() bool {
	return c.UsageLimit != nil && c.CurrentUsage >= *c.UsageLimit
}

// IsRunningAt reports whether the campaign is administratively enabled and
// inside its date window. It deliberately ignores the usage ceiling: active
// listings historically include exhausted campaigns (see GetActiveCampaigns).
func (c *Campaign) IsRunningAt(now time.Time) bool {
	if c.Status != CampaignStatusActive || !c.IsActive {
		return false
	}
	return c.WithinWindow(now)
}

// IsEffectiveAt is the full applicability predicate: running and not
// exhausted. The stale Status/IsActive flags maintained by the scheduler are
// never trusted alone; the date window is always re-checked here.
func (c *Campaign) IsEffectiveAt(now time.Time) bool {
	return c.IsRunningAt(now) && !c.UsageExhausted()
}

// MatchesTarget reports whether the campaign applies to the given product.
// legacyMatch indicates the product is linked to this campaign through the
// read-only product_campaigns association table; a hit in either the target
// set or the legacy table is sufficient for product targeting.
func (c *Campaign) MatchesTarget(productID string, categoryIDs []string, legacyMatch bool) bool {
	switch c.TargetType {
	case TargetTypeAll:
		return true
	case TargetTypeProduct:
		if legacyMatch {
			return true
		}
		for _, id := range c.ProductTargets {
			if id == productID {
				return true
			}
		}
		return false
	case TargetTypeCategory:
		for _, cat := range categoryIDs {
			for _, id := range c.CategoryTargets {
				if id == cat {
					return true
				}
			}
		}
		return false
	default:
		return false
	}
}

// IsCartWide reports whether the campaign applies at cart level: it targets
// everything and gates on a minimum purchase amount.
func (c *Campaign) IsCartWide() bool {
	return c.TargetType == TargetTypeAll && c.MinimumPurchase > 0
}

// ValidTargetTypes returns the set of valid campaign target types.
func ValidTargetTypes() []string {
	return []string{TargetTypeProduct, TargetTypeCategory, TargetTypeAll}
}

// IsValidTargetType checks whether the given string is a valid target type.
func IsValidTargetType(t string) bool {
	for _, v := range ValidTargetTypes() {
		if v == t {
			return true
		}
	}
	return false
}

// ValidDiscountTypes returns the discount types accepted for new campaigns.
// The legacy fixed_price variant is read but no longer written.
func ValidDiscountTypes() []string {
	return []string{
		DiscountTypePercent,
		DiscountTypeAmount,
		DiscountTypeFreeShipping,
		DiscountTypePoints,
	}
}

// IsValidDiscountType checks whether the given string is an accepted discount type.
func IsValidDiscountType(t string) bool {
	for _, v := range ValidDiscountTypes() {
		if v == t {
			return true
		}
	}
	return false
}

// ValidStatuses returns the set of valid campaign statuses.
func ValidStatuses() []string {
	return []string{CampaignStatusActive, CampaignStatusInactive}
}

// IsValidStatus checks whether the given string is a valid campaign status.
func IsValidStatus(s string) bool {
	for _, v := range ValidStatuses() {
		if v == s {
			return true
		}
	}
	return false
}
