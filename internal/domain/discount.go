package domain

// Discount spec kinds. These are the normalized forms produced by
// ResolveDiscountSpec; KindNone is the zero value for malformed rows and
// always yields a zero discount.
const (
	KindNone         = ""
	KindPercent      = "percent"
	KindAmount       = "amount"
	KindFixedPrice   = "fixed_price"
	KindFreeShipping = "free_shipping"
	KindPoints       = "points"
)

// DiscountSpec is the normalized discount rule of a campaign, reconciled from
// the legacy discount_type / type / fixed_price column triple at load time so
// pricing code never has to look at raw rows.
type DiscountSpec struct {
	Kind string `json:"kind"`
	// Value is the percentage for percent kinds, the yen amount for amount
	// kinds, and the points granted for points kinds.
	Value int64 `json:"value,omitempty"`
	// TargetPrice is set only for fixed-price kinds. Nil means the legacy
	// row carried no usable price and the original price stands.
	TargetPrice *int64 `json:"target_price,omitempty"`
}

// ResolveDiscountSpec maps the raw persisted discount fields to a normalized
// spec. Rows written by the legacy schema may declare fixed pricing through
// either discount_type or the old top-level type column, and may store the
// target price in fixed_price or, older still, in discount_value.
func ResolveDiscountSpec(discountType, legacyType string, discountValue int64, fixedPrice *int64) DiscountSpec {
	if discountType == DiscountTypeFixedPrice || legacyType == DiscountTypeFixedPrice {
		tp := fixedPrice
		if tp == nil && discountValue > 0 {
			v := discountValue
			tp = &v
		}
		return DiscountSpec{Kind: KindFixedPrice, TargetPrice: tp}
	}

	kind := discountType
	if kind == "" {
		kind = legacyType
	}
	switch kind {
	case DiscountTypePercent:
		return DiscountSpec{Kind: KindPercent, Value: discountValue}
	case DiscountTypeAmount:
		return DiscountSpec{Kind: KindAmount, Value: discountValue}
	case DiscountTypeFreeShipping:
		return DiscountSpec{Kind: KindFreeShipping}
	case DiscountTypePoints:
		return DiscountSpec{Kind: KindPoints, Value: discountValue}
	default:
		return DiscountSpec{Kind: KindNone}
	}
}

// Apply computes the discounted price for a single unit. The result is always
// in [0, price]: percent discounts use integer yen arithmetic truncating
// toward zero, amount discounts clamp at a free item, and fixed pricing caps
// the target at the original price so a discount never raises it.
// Free-shipping and points kinds carry no price effect.
func (s DiscountSpec) Apply(price int64) (discounted, discount int64) {
	if price <= 0 {
		return 0, 0
	}
	switch s.Kind {
	case KindPercent:
		discount = price * s.Value / 100
		if discount < 0 {
			discount = 0
		}
		if discount > price {
			discount = price
		}
		return price - discount, discount
	case KindAmount:
		discount = s.Value
		if discount < 0 {
			discount = 0
		}
		if discount > price {
			discount = price
		}
		return price - discount, discount
	case KindFixedPrice:
		target := price
		if s.TargetPrice != nil {
			target = *s.TargetPrice
		}
		if target < 0 {
			target = 0
		}
		if target > price {
			target = price
		}
		return target, price - target
	default:
		return price, 0
	}
}

// CampaignRef is the compact campaign identity attached to pricing results.
type CampaignRef struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Label         string `json:"label,omitempty"`
	DiscountType  string `json:"discount_type"`
	DiscountValue int64  `json:"discount_value"`
}

// Ref returns the compact reference for this campaign.
func (c *Campaign) Ref() CampaignRef {
	return CampaignRef{
		ID:            c.ID,
		Name:          c.Name,
		Label:         c.Label,
		DiscountType:  c.DiscountType,
		DiscountValue: c.DiscountValue,
	}
}

// DiscountBreakdown is one line of the discount trace on a pricing result.
type DiscountBreakdown struct {
	Type   string `json:"type"`
	Value  int64  `json:"value"`
	Amount int64  `json:"amount"`
}

// DiscountResult is the outcome of pricing a single product against the
// applicable campaigns. Campaign is nil when no campaign applied.
type DiscountResult struct {
	ProductID       string              `json:"product_id"`
	OriginalPrice   int64               `json:"original_price"`
	DiscountedPrice int64               `json:"discounted_price"`
	Discount        int64               `json:"discount"`
	Campaign        *CampaignRef        `json:"campaign,omitempty"`
	Breakdown       []DiscountBreakdown `json:"breakdown,omitempty"`
}

// CartItem is one line of an incoming cart to be priced.
type CartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// DiscountedCartItem is a cart line after per-item campaign application.
// Prices are per unit; ItemDiscount is the per-unit discount multiplied by
// the line quantity.
type DiscountedCartItem struct {
	ProductID       string       `json:"product_id"`
	Quantity        int          `json:"quantity"`
	OriginalPrice   int64        `json:"original_price"`
	DiscountedPrice int64        `json:"discounted_price"`
	ItemDiscount    int64        `json:"item_discount"`
	Campaign        *CampaignRef `json:"campaign,omitempty"`
}

// Applied-campaign scopes on a cart summary.
const (
	ScopeItem = "item"
	ScopeCart = "cart"
)

// AppliedCampaign records one campaign that contributed to a cart summary,
// deduplicated by campaign id across all lines it touched.
type AppliedCampaign struct {
	CampaignRef
	Scope string `json:"scope"`
}

// CartDiscountSummary is the full result of pricing a cart: per-line results,
// aggregate totals, and the deduplicated set of campaigns that applied.
// Subtotal sums the discounted line totals (raw price for lines no campaign
// touched), TotalDiscount sums item and cart-level discounts, and Total is
// the payable amount, Subtotal less the cart-level discount.
type CartDiscountSummary struct {
	Items            []DiscountedCartItem `json:"items"`
	Subtotal         int64                `json:"subtotal"`
	TotalDiscount    int64                `json:"total_discount"`
	Total            int64                `json:"total"`
	FreeShipping     bool                 `json:"free_shipping"`
	AppliedCampaigns []AppliedCampaign    `json:"applied_campaigns"`
}
