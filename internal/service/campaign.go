package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/campaign-engine/internal/domain"
	"github.com/utafrali/campaign-engine/internal/event"
	"github.com/utafrali/campaign-engine/internal/repository"
	apperrors "github.com/utafrali/campaign-engine/pkg/errors"
)

// CampaignService implements the business logic for campaign management.
type CampaignService struct {
	repo     repository.CampaignRepository
	cache    repository.ActiveCampaignCache
	producer *event.Producer
	logger   *slog.Logger
}

// NewCampaignService creates a new campaign service. cache may be nil when
// Redis is not configured; all paths degrade to direct database reads.
func NewCampaignService(repo repository.CampaignRepository, cache repository.ActiveCampaignCache, producer *event.Producer, logger *slog.Logger) *CampaignService {
	return &CampaignService{
		repo:     repo,
		cache:    cache,
		producer: producer,
		logger:   logger,
	}
}

// CreateCampaignInput holds the parameters for creating a campaign.
type CreateCampaignInput struct {
	Name            string
	Label           string
	Description     string
	TargetType      string
	DiscountType    string
	DiscountValue   int64
	MinimumPurchase int64
	UsageLimit      *int
	UserLimit       *int
	StartDate       time.Time
	EndDate         time.Time
	IsActive        *bool
	ProductTargets  []string
	CategoryTargets []string
}

// UpdateCampaignInput holds the parameters for updating a campaign. Nil
// fields are left unchanged; non-nil target slices replace the target set.
type UpdateCampaignInput struct {
	Name            *string
	Label           *string
	Description     *string
	TargetType      *string
	DiscountType    *string
	DiscountValue   *int64
	MinimumPurchase *int64
	UsageLimit      *int
	UserLimit       *int
	StartDate       *time.Time
	EndDate         *time.Time
	IsActive        *bool
	ProductTargets  []string
	CategoryTargets []string
}

func validateDiscount(discountType string, value int64) error {
	if !domain.IsValidDiscountType(discountType) {
		return apperrors.InvalidInput(fmt.Sprintf("invalid discount type %q, must be one of: %s", discountType, strings.Join(domain.ValidDiscountTypes(), ", ")))
	}
	switch discountType {
	case domain.DiscountTypePercent:
		if value <= 0 || value > 100 {
			return apperrors.InvalidInput("percent discount value must be between 1 and 100")
		}
	case domain.DiscountTypeAmount, domain.DiscountTypePoints:
		if value <= 0 {
			return apperrors.InvalidInput("discount value must be positive")
		}
	}
	return nil
}

// CreateCampaign creates a new campaign with the given input. The lifecycle
// status is derived from the date window at creation time; the scheduler
// keeps it current afterwards.
func (s *CampaignService) CreateCampaign(ctx context.Context, input *CreateCampaignInput) (*domain.Campaign, error) {
	if input.Name == "" {
		return nil, apperrors.InvalidInput("campaign name is required")
	}
	if !domain.IsValidTargetType(input.TargetType) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid target type %q, must be one of: %s", input.TargetType, strings.Join(domain.ValidTargetTypes(), ", ")))
	}
	if err := validateDiscount(input.DiscountType, input.DiscountValue); err != nil {
		return nil, err
	}
	if input.MinimumPurchase < 0 {
		return nil, apperrors.InvalidInput("minimum purchase must not be negative")
	}
	if input.UsageLimit != nil && *input.UsageLimit <= 0 {
		return nil, apperrors.InvalidInput("usage limit must be positive when set")
	}
	if input.UserLimit != nil && *input.UserLimit <= 0 {
		return nil, apperrors.InvalidInput("user limit must be positive when set")
	}
	if !input.EndDate.After(input.StartDate) {
		return nil, apperrors.InvalidInput("end date must be after start date")
	}
	switch input.TargetType {
	case domain.TargetTypeProduct:
		if len(input.ProductTargets) == 0 {
			return nil, apperrors.InvalidInput("product-targeted campaign requires at least one product target")
		}
	case domain.TargetTypeCategory:
		if len(input.CategoryTargets) == 0 {
			return nil, apperrors.InvalidInput("category-targeted campaign requires at least one category target")
		}
	}

	isActive := true
	if input.IsActive != nil {
		isActive = *input.IsActive
	}

	now := time.Now().UTC()
	campaign := &domain.Campaign{
		ID:              uuid.New().String(),
		Name:            input.Name,
		Label:           input.Label,
		Description:     input.Description,
		TargetType:      input.TargetType,
		DiscountType:    input.DiscountType,
		DiscountValue:   input.DiscountValue,
		MinimumPurchase: input.MinimumPurchase,
		UsageLimit:      input.UsageLimit,
		UserLimit:       input.UserLimit,
		CurrentUsage:    0,
		StartDate:       input.StartDate,
		EndDate:         input.EndDate,
		IsActive:        isActive,
		Status:          domain.CampaignStatusInactive,
		ProductTargets:  input.ProductTargets,
		CategoryTargets: input.CategoryTargets,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if isActive && campaign.WithinWindow(now) {
		campaign.Status = domain.CampaignStatusActive
	}
	if campaign.ProductTargets == nil {
		campaign.ProductTargets = []string{}
	}
	if campaign.CategoryTargets == nil {
		campaign.CategoryTargets = []string{}
	}
	campaign.Normalize()

	if err := s.repo.Create(ctx, campaign); err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}

	s.invalidateActiveSet(ctx)

	if err := s.producer.PublishCampaignCreated(ctx, campaign); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish campaign.created event",
			slog.String("campaign_id", campaign.ID),
			slog.String("error", err.Error()),
		)
		// Do not fail the operation if event publishing fails.
	}

	s.logger.InfoContext(ctx, "campaign created",
		slog.String("campaign_id", campaign.ID),
		slog.String("target_type", campaign.TargetType),
	)

	return campaign, nil
}

// GetCampaign retrieves a campaign by its ID.
func (s *CampaignService) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	campaign, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get campaign by id: %w", err)
	}
	return campaign, nil
}

// ListCampaigns returns a filtered, paginated list of campaigns.
func (s *CampaignService) ListCampaigns(ctx context.Context, filter repository.CampaignFilter) ([]domain.Campaign, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PerPage <= 0 {
		filter.PerPage = 20
	}
	if filter.PerPage > 100 {
		filter.PerPage = 100
	}

	campaigns, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}

	return campaigns, total, nil
}

// GetActiveCampaigns returns campaigns that are enabled and inside their date
// window right now. Exhausted campaigns stay in this listing: storefronts
// show running promotions even when the usage ceiling is spent, and only the
// discount application paths enforce it.
func (s *CampaignService) GetActiveCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	if s.cache != nil {
		if campaigns, ok := s.cache.Get(ctx); ok {
			return campaigns, nil
		}
	}

	campaigns, err := s.repo.ListActive(ctx, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("list active campaigns: %w", err)
	}

	if s.cache != nil {
		s.cache.Set(ctx, campaigns)
	}
	return campaigns, nil
}

// UpdateCampaign applies partial updates to an existing campaign.
func (s *CampaignService) UpdateCampaign(ctx context.Context, id string, input *UpdateCampaignInput) (*domain.Campaign, error) {
	campaign, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get campaign for update: %w", err)
	}

	if input.Name != nil {
		if *input.Name == "" {
			return nil, apperrors.InvalidInput("campaign name must not be empty")
		}
		campaign.Name = *input.Name
	}
	if input.Label != nil {
		campaign.Label = *input.Label
	}
	if input.Description != nil {
		campaign.Description = *input.Description
	}
	if input.TargetType != nil {
		if !domain.IsValidTargetType(*input.TargetType) {
			return nil, apperrors.InvalidInput(fmt.Sprintf("invalid target type %q, must be one of: %s", *input.TargetType, strings.Join(domain.ValidTargetTypes(), ", ")))
		}
		campaign.TargetType = *input.TargetType
	}
	if input.DiscountType != nil {
		value := campaign.DiscountValue
		if input.DiscountValue != nil {
			value = *input.DiscountValue
		}
		if err := validateDiscount(*input.DiscountType, value); err != nil {
			return nil, err
		}
		campaign.DiscountType = *input.DiscountType
		campaign.DiscountValue = value
		// Updating the discount clears the legacy fixed-price fields.
		campaign.LegacyType = ""
		campaign.FixedPrice = nil
	} else if input.DiscountValue != nil {
		if err := validateDiscount(campaign.DiscountType, *input.DiscountValue); err != nil {
			return nil, err
		}
		campaign.DiscountValue = *input.DiscountValue
	}
	if input.MinimumPurchase != nil {
		if *input.MinimumPurchase < 0 {
			return nil, apperrors.InvalidInput("minimum purchase must not be negative")
		}
		campaign.MinimumPurchase = *input.MinimumPurchase
	}
	if input.UsageLimit != nil {
		if *input.UsageLimit <= 0 {
			return nil, apperrors.InvalidInput("usage limit must be positive when set")
		}
		campaign.UsageLimit = input.UsageLimit
	}
	if input.UserLimit != nil {
		if *input.UserLimit <= 0 {
			return nil, apperrors.InvalidInput("user limit must be positive when set")
		}
		campaign.UserLimit = input.UserLimit
	}
	if input.StartDate != nil {
		campaign.StartDate = *input.StartDate
	}
	if input.EndDate != nil {
		campaign.EndDate = *input.EndDate
	}
	if !campaign.EndDate.After(campaign.StartDate) {
		return nil, apperrors.InvalidInput("end date must be after start date")
	}
	if input.IsActive != nil {
		campaign.IsActive = *input.IsActive
	}
	if input.ProductTargets != nil {
		campaign.ProductTargets = input.ProductTargets
	}
	if input.CategoryTargets != nil {
		campaign.CategoryTargets = input.CategoryTargets
	}

	// Re-derive the lifecycle status from the possibly changed window so the
	// campaign does not have to wait for the next scheduler pass.
	now := time.Now().UTC()
	if campaign.IsActive && campaign.WithinWindow(now) {
		campaign.Status = domain.CampaignStatusActive
	} else {
		campaign.Status = domain.CampaignStatusInactive
	}
	campaign.Normalize()

	if err := s.repo.Update(ctx, campaign); err != nil {
		return nil, fmt.Errorf("update campaign: %w", err)
	}

	s.invalidateActiveSet(ctx)

	if err := s.producer.PublishCampaignUpdated(ctx, campaign); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish campaign.updated event",
			slog.String("campaign_id", campaign.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "campaign updated",
		slog.String("campaign_id", campaign.ID),
		slog.String("status", campaign.Status),
	)

	return campaign, nil
}

// DeactivateCampaign is the administrative kill switch: it disables the
// campaign immediately regardless of its window. Only is_active is lowered;
// status belongs to the lifecycle scheduler, and a running campaign that
// keeps status=active never matches the scheduler's activation predicate,
// so a killed campaign stays killed.
func (s *CampaignService) DeactivateCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	campaign, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get campaign for deactivation: %w", err)
	}

	campaign.IsActive = false
	if err := s.repo.Update(ctx, campaign); err != nil {
		return nil, fmt.Errorf("deactivate campaign: %w", err)
	}

	s.invalidateActiveSet(ctx)

	if err := s.producer.PublishCampaignUpdated(ctx, campaign); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish campaign.updated event",
			slog.String("campaign_id", campaign.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "campaign deactivated", slog.String("campaign_id", campaign.ID))
	return campaign, nil
}

// DeleteCampaign removes a campaign. A campaign referenced by usage records
// is never physically deleted; it is disabled instead so the ledger keeps a
// valid reference.
func (s *CampaignService) DeleteCampaign(ctx context.Context, id string) error {
	used, err := s.repo.HasUsage(ctx, id)
	if err != nil {
		return fmt.Errorf("check campaign usage before delete: %w", err)
	}
	if used {
		s.logger.InfoContext(ctx, "campaign has usage records, disabling instead of deleting",
			slog.String("campaign_id", id),
		)
		_, err := s.DeactivateCampaign(ctx, id)
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}

	s.invalidateActiveSet(ctx)

	if err := s.producer.PublishCampaignDeleted(ctx, id); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish campaign.deleted event",
			slog.String("campaign_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "campaign deleted", slog.String("campaign_id", id))
	return nil
}

func (s *CampaignService) invalidateActiveSet(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}
