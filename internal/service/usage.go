package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/campaign-engine/internal/domain"
	"github.com/utafrali/campaign-engine/internal/event"
	"github.com/utafrali/campaign-engine/internal/repository"
	apperrors "github.com/utafrali/campaign-engine/pkg/errors"
)

// campaignResolver yields the campaigns currently applicable to a product.
// Satisfied by DiscountService.
type campaignResolver interface {
	GetCampaignsForProduct(ctx context.Context, productID string) ([]domain.Campaign, error)
}

// UsageService enforces usage ceilings and records campaign consumption.
type UsageService struct {
	repo     repository.CampaignRepository
	resolver campaignResolver
	cache    repository.ActiveCampaignCache
	producer *event.Producer
	logger   *slog.Logger
}

// NewUsageService creates a new usage service. cache may be nil.
func NewUsageService(repo repository.CampaignRepository, resolver campaignResolver, cache repository.ActiveCampaignCache, producer *event.Producer, logger *slog.Logger) *UsageService {
	return &UsageService{
		repo:     repo,
		resolver: resolver,
		cache:    cache,
		producer: producer,
		logger:   logger,
	}
}

// CheckoutValidation is the per-campaign outcome of a checkout validation.
type CheckoutValidation struct {
	CampaignID string `json:"campaign_id"`
	Valid      bool   `json:"valid"`
	Message    string `json:"message,omitempty"`
}

// CheckoutResult aggregates per-campaign validations for a whole cart.
// Valid is true iff every validated campaign passed.
type CheckoutResult struct {
	Valid   bool                 `json:"valid"`
	Results []CheckoutValidation `json:"results"`
	Errors  []string             `json:"errors"`
}

// ValidateUsage checks that the campaign is currently effective and that the
// user has headroom under the per-user limit. A user whose usage count equals
// the limit is already blocked.
func (s *UsageService) ValidateUsage(ctx context.Context, campaignID, userID string) error {
	campaign, err := s.repo.GetByID(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("get campaign for usage validation: %w", err)
	}

	if !campaign.IsEffectiveAt(time.Now().UTC()) {
		return apperrors.NotEffective("campaign is not currently effective")
	}

	if campaign.UserLimit != nil {
		usage, err := s.repo.GetUsage(ctx, campaignID, userID)
		if err != nil {
			return fmt.Errorf("get campaign usage: %w", err)
		}
		if usage != nil && usage.UsageCount >= *campaign.UserLimit {
			return apperrors.LimitExceeded("user has reached the usage limit for this campaign")
		}
	}

	return nil
}

// RecordUsage validates and then consumes one use of the campaign for the
// user. The counter increments run atomically in the repository; the cached
// active set is dropped because effectiveness may have flipped.
func (s *UsageService) RecordUsage(ctx context.Context, campaignID, userID string) error {
	if err := s.ValidateUsage(ctx, campaignID, userID); err != nil {
		return err
	}

	if err := s.repo.RecordUsage(ctx, campaignID, userID); err != nil {
		return fmt.Errorf("record campaign usage: %w", err)
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}

	if err := s.producer.PublishUsageRecorded(ctx, campaignID, userID); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish campaign.usage_recorded event",
			slog.String("campaign_id", campaignID),
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "campaign usage recorded",
		slog.String("campaign_id", campaignID),
		slog.String("user_id", userID),
	)

	return nil
}

// ValidateCheckout resolves the applicable campaigns of every resolvable
// cart line and validates each one, collecting per-campaign outcomes instead
// of failing on the first problem. A line whose product cannot be resolved is
// skipped; infrastructure failures still abort. The aggregate is valid iff
// every validated campaign passed.
func (s *UsageService) ValidateCheckout(ctx context.Context, userID string, items []domain.CartItem) (*CheckoutResult, error) {
	result := &CheckoutResult{
		Valid:   true,
		Results: []CheckoutValidation{},
		Errors:  []string{},
	}

	seen := make(map[string]bool)

	for _, item := range items {
		campaigns, err := s.resolver.GetCampaignsForProduct(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				s.logger.WarnContext(ctx, "skipping unresolvable cart line in checkout validation",
					slog.String("product_id", item.ProductID),
				)
				continue
			}
			return nil, err
		}

		for _, c := range campaigns {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true

			err := s.ValidateUsage(ctx, c.ID, userID)
			if err == nil {
				result.Results = append(result.Results, CheckoutValidation{CampaignID: c.ID, Valid: true})
				continue
			}

			var message string
			var appErr *apperrors.AppError
			switch {
			case errors.As(err, &appErr):
				message = appErr.Message
			case errors.Is(err, apperrors.ErrNotFound):
				// The campaign vanished between resolution and validation.
				message = "campaign not found"
			default:
				return nil, err
			}

			result.Valid = false
			result.Results = append(result.Results, CheckoutValidation{CampaignID: c.ID, Valid: false, Message: message})
			result.Errors = append(result.Errors, message)
		}
	}

	return result, nil
}
