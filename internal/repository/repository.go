package repository

import (
	"context"
	"time"

	"github.com/utafrali/campaign-engine/internal/domain"
)

// CampaignFilter defines filter criteria for listing campaigns.
type CampaignFilter struct {
	Status     *string
	TargetType *string
	Page       int
	PerPage    int
}

// CampaignRepository defines the interface for campaign persistence operations.
type CampaignRepository interface {
	// Create inserts a new campaign and its target rows in one transaction.
	Create(ctx context.Context, campaign *domain.Campaign) error

	// GetByID retrieves a campaign by its unique identifier, targets included.
	GetByID(ctx context.Context, id string) (*domain.Campaign, error)

	// List returns campaigns matching the given filter along with the total count.
	List(ctx context.Context, filter CampaignFilter) ([]domain.Campaign, int, error)

	// ListActive returns campaigns that are status-active, enabled, and inside
	// their date window at the given instant, ordered oldest-created first with
	// id as the tiebreaker. Callers rely on this ordering when picking the
	// first applicable campaign.
	ListActive(ctx context.Context, now time.Time) ([]domain.Campaign, error)

	// Update modifies an existing campaign and replaces its target rows.
	Update(ctx context.Context, campaign *domain.Campaign) error

	// Delete removes a campaign. Target and usage rows go with it via cascade.
	Delete(ctx context.Context, id string) error

	// HasUsage reports whether any usage ledger rows reference the campaign.
	HasUsage(ctx context.Context, campaignID string) (bool, error)

	// LegacyProductCampaignIDs returns ids of campaigns linked to the product
	// through the read-only product_campaigns association table.
	LegacyProductCampaignIDs(ctx context.Context, productID string) ([]string, error)

	// GetUsage returns the usage ledger row for a (campaign, user) pair, or
	// nil when the user has never used the campaign.
	GetUsage(ctx context.Context, campaignID, userID string) (*domain.CampaignUsage, error)

	// RecordUsage increments the campaign's global usage counter and upserts
	// the per-user ledger row, both inside a single transaction.
	RecordUsage(ctx context.Context, campaignID, userID string) error

	// ActivatePending flips status to active for enabled campaigns whose
	// window has opened. Returns the number of campaigns transitioned.
	ActivatePending(ctx context.Context, now time.Time) (int64, error)

	// DeactivateExpired flips status to inactive for campaigns whose window
	// has closed. Returns the number of campaigns transitioned.
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

// ProductRepository defines the catalog reads the pricing paths need.
type ProductRepository interface {
	// GetByID retrieves a product with its category memberships.
	GetByID(ctx context.Context, id string) (*domain.Product, error)

	// GetByIDs retrieves the products for the given ids. Missing ids are
	// simply absent from the result.
	GetByIDs(ctx context.Context, ids []string) ([]domain.Product, error)
}

// ActiveCampaignCache is a read-through cache in front of
// CampaignRepository.ListActive. Implementations must fail open: a cache
// error is never surfaced past a log line.
type ActiveCampaignCache interface {
	// Get returns the cached active set, or ok=false on miss or error.
	Get(ctx context.Context) ([]domain.Campaign, bool)

	// Set stores the active set with the cache's TTL.
	Set(ctx context.Context, campaigns []domain.Campaign)

	// Invalidate drops the cached set after a campaign write.
	Invalidate(ctx context.Context)
}
