package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/campaign-engine/internal/domain"
	"github.com/utafrali/campaign-engine/internal/repository"
)

// DiscountService implements campaign matching and price calculation for
// products and carts.
type DiscountService struct {
	campaigns repository.CampaignRepository
	products  repository.ProductRepository
	cache     repository.ActiveCampaignCache
	logger    *slog.Logger
}

// NewDiscountService creates a new discount service. cache may be nil.
func NewDiscountService(campaigns repository.CampaignRepository, products repository.ProductRepository, cache repository.ActiveCampaignCache, logger *slog.Logger) *DiscountService {
	return &DiscountService{
		campaigns: campaigns,
		products:  products,
		cache:     cache,
		logger:    logger,
	}
}

// activeCampaigns returns the running campaign set, cached when possible.
// The ordering from the repository (created_at, then id) is preserved: it is
// what makes first-applicable selection deterministic.
func (s *DiscountService) activeCampaigns(ctx context.Context, now time.Time) ([]domain.Campaign, error) {
	if s.cache != nil {
		if campaigns, ok := s.cache.Get(ctx); ok {
			return campaigns, nil
		}
	}

	campaigns, err := s.campaigns.ListActive(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list active campaigns: %w", err)
	}

	if s.cache != nil {
		s.cache.Set(ctx, campaigns)
	}
	return campaigns, nil
}

// legacyCampaignSet returns the ids of campaigns linked to the product via
// the old product_campaigns table. The table is auxiliary read-only data, so
// a lookup failure degrades to an empty set instead of failing the request.
func (s *DiscountService) legacyCampaignSet(ctx context.Context, productID string) map[string]bool {
	ids, err := s.campaigns.LegacyProductCampaignIDs(ctx, productID)
	if err != nil {
		s.logger.WarnContext(ctx, "legacy product campaign lookup failed",
			slog.String("product_id", productID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// GetCampaignsForProduct returns the campaigns currently applicable to the
// product: effective (usage ceiling included) and matching the product by
// target set, category membership, or legacy association.
func (s *DiscountService) GetCampaignsForProduct(ctx context.Context, productID string) ([]domain.Campaign, error) {
	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}

	now := time.Now().UTC()
	active, err := s.activeCampaigns(ctx, now)
	if err != nil {
		return nil, err
	}

	legacy := s.legacyCampaignSet(ctx, productID)

	var applicable []domain.Campaign
	for _, c := range active {
		if !c.IsEffectiveAt(now) {
			continue
		}
		if c.MatchesTarget(product.ID, product.CategoryIDs, legacy[c.ID]) {
			applicable = append(applicable, c)
		}
	}
	if applicable == nil {
		applicable = []domain.Campaign{}
	}
	return applicable, nil
}

// CalculateProductDiscount prices a single product. When several campaigns
// apply, the first one in the stable active ordering wins; campaigns never
// stack on one product.
func (s *DiscountService) CalculateProductDiscount(ctx context.Context, productID string) (*domain.DiscountResult, error) {
	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}

	now := time.Now().UTC()
	active, err := s.activeCampaigns(ctx, now)
	if err != nil {
		return nil, err
	}

	legacy := s.legacyCampaignSet(ctx, productID)

	result := &domain.DiscountResult{
		ProductID:       product.ID,
		OriginalPrice:   product.Price,
		DiscountedPrice: product.Price,
	}

	for i := range active {
		c := &active[i]
		if !c.IsEffectiveAt(now) {
			continue
		}
		if !c.MatchesTarget(product.ID, product.CategoryIDs, legacy[c.ID]) {
			continue
		}

		discounted, discount := c.Discount.Apply(product.Price)
		ref := c.Ref()
		result.DiscountedPrice = discounted
		result.Discount = discount
		result.Campaign = &ref
		result.Breakdown = []domain.DiscountBreakdown{{
			Type:   c.Discount.Kind,
			Value:  c.DiscountValue,
			Amount: discount,
		}}
		break
	}

	return result, nil
}

// ApplyCampaignsToCart prices a whole cart: per-item campaigns first, then a
// single cart-wide campaign gated on the minimum purchase amount. The path
// fails open end to end. A pricing problem on one line, or losing the
// campaign store entirely, must never block checkout, so degraded lines pass
// through at their original price.
// The userID identifies the cart's owner; pricing itself is user-independent
// (per-user ceilings are checkout-validation concerns), so it only travels
// into the degraded-path logs.
func (s *DiscountService) ApplyCampaignsToCart(ctx context.Context, items []domain.CartItem, userID string) (*domain.CartDiscountSummary, error) {
	summary := &domain.CartDiscountSummary{
		Items:            make([]domain.DiscountedCartItem, 0, len(items)),
		AppliedCampaigns: []domain.AppliedCampaign{},
	}

	now := time.Now().UTC()
	active, err := s.activeCampaigns(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "active campaign fetch failed, pricing cart without discounts",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		active = nil
	}

	productIDs := make([]string, 0, len(items))
	for _, item := range items {
		productIDs = append(productIDs, item.ProductID)
	}
	productsByID := make(map[string]domain.Product)
	if len(active) > 0 {
		products, err := s.products.GetByIDs(ctx, productIDs)
		if err != nil {
			s.logger.WarnContext(ctx, "product lookup failed, pricing cart without category matching",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
		for _, p := range products {
			productsByID[p.ID] = p
		}
	}

	applied := make(map[string]bool)

	for _, item := range items {
		line := domain.DiscountedCartItem{
			ProductID:       item.ProductID,
			Quantity:        item.Quantity,
			OriginalPrice:   item.UnitPrice,
			DiscountedPrice: item.UnitPrice,
		}

		var categoryIDs []string
		if p, ok := productsByID[item.ProductID]; ok {
			categoryIDs = p.CategoryIDs
		}
		var legacy map[string]bool
		if len(active) > 0 {
			legacy = s.legacyCampaignSet(ctx, item.ProductID)
		}

		for i := range active {
			c := &active[i]
			if c.IsCartWide() {
				// Minimum-purchase campaigns apply once at cart level,
				// never per line.
				continue
			}
			if !c.IsEffectiveAt(now) {
				continue
			}
			if !c.MatchesTarget(item.ProductID, categoryIDs, legacy[c.ID]) {
				continue
			}

			discounted, discount := c.Discount.Apply(item.UnitPrice)
			ref := c.Ref()
			line.DiscountedPrice = discounted
			line.ItemDiscount = discount * int64(item.Quantity)
			line.Campaign = &ref

			if c.Discount.Kind == domain.KindFreeShipping {
				summary.FreeShipping = true
			}
			if !applied[c.ID] {
				applied[c.ID] = true
				summary.AppliedCampaigns = append(summary.AppliedCampaigns, domain.AppliedCampaign{CampaignRef: ref, Scope: domain.ScopeItem})
			}
			break
		}

		summary.Items = append(summary.Items, line)
		// Subtotal is the sum of annotated line totals. Undiscounted lines
		// carry their raw price in DiscountedPrice, which covers the
		// unresolvable-product fallback.
		summary.Subtotal += line.DiscountedPrice * int64(line.Quantity)
		summary.TotalDiscount += line.ItemDiscount
	}

	// Cart-wide pass: the minimum purchase gate and the percent base are the
	// discounted subtotal, and the first qualifying campaign wins.
	var cartDiscount int64
	for i := range active {
		c := &active[i]
		if !c.IsCartWide() || !c.IsEffectiveAt(now) {
			continue
		}
		if summary.Subtotal < c.MinimumPurchase {
			continue
		}

		_, discount := c.Discount.Apply(summary.Subtotal)
		cartDiscount = discount
		summary.TotalDiscount += discount
		if c.Discount.Kind == domain.KindFreeShipping {
			summary.FreeShipping = true
		}
		ref := c.Ref()
		if !applied[c.ID] {
			applied[c.ID] = true
			summary.AppliedCampaigns = append(summary.AppliedCampaigns, domain.AppliedCampaign{CampaignRef: ref, Scope: domain.ScopeCart})
		}
		break
	}

	summary.Total = summary.Subtotal - cartDiscount
	return summary, nil
}
