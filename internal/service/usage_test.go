package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/campaign-engine/internal/domain"
	apperrors "github.com/utafrali/campaign-engine/pkg/errors"
)

// stubResolver hands out fixed applicable-campaign sets per product.
type stubResolver struct {
	byProduct map[string][]domain.Campaign
	errs      map[string]error
}

func (s *stubResolver) GetCampaignsForProduct(ctx context.Context, productID string) ([]domain.Campaign, error) {
	if err, ok := s.errs[productID]; ok {
		return nil, err
	}
	return s.byProduct[productID], nil
}

func newTestUsageService(repo *mockCampaignRepository, cache *fakeCache) *UsageService {
	return newTestUsageServiceWithResolver(repo, nil, cache)
}

func newTestUsageServiceWithResolver(repo *mockCampaignRepository, resolver campaignResolver, cache *fakeCache) *UsageService {
	if cache == nil {
		return NewUsageService(repo, resolver, nil, newTestProducer(), newTestLogger())
	}
	return NewUsageService(repo, resolver, cache, newTestProducer(), newTestLogger())
}

func limitedCampaign(userLimit int) *domain.Campaign {
	c := runningCampaign("camp-1", time.Now())
	c.UserLimit = &userLimit
	return &c
}

// --- ValidateUsage ---

func TestValidateUsage_EffectiveNoLimits(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestUsageService(repo, nil)

	c := runningCampaign("camp-1", time.Now())
	repo.On("GetByID", mock.Anything, "camp-1").Return(&c, nil)

	err := svc.ValidateUsage(context.Background(), "camp-1", "user-1")
	assert.NoError(t, err)
	repo.AssertNotCalled(t, "GetUsage", mock.Anything, mock.Anything, mock.Anything)
}

func TestValidateUsage_ExpiredWindow(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestUsageService(repo, nil)

	c := runningCampaign("camp-1", time.Now())
	c.EndDate = time.Now().UTC().Add(-time.Minute)
	repo.On("GetByID", mock.Anything, "camp-1").Return(&c, nil)

	err := svc.ValidateUsage(context.Background(), "camp-1", "user-1")
	assert.ErrorIs(t, err, apperrors.ErrNotEffective)
}

func TestValidateUsage_GlobalCeilingReached(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestUsageService(repo, nil)

	c := runningCampaign("camp-1", time.Now())
	limit := 100
	c.UsageLimit = &limit
	c.CurrentUsage = 100
	repo.On("GetByID", mock.Anything, "camp-1").Return(&c, nil)

	err := svc.ValidateUsage(context.Background(), "camp-1", "user-1")
	assert.ErrorIs(t, err, apperrors.ErrNotEffective)
}

func TestValidateUsage_UserAtLimitBlocked(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestUsageService(repo, nil)

	repo.On("GetByID", mock.Anything, "camp-1").Return(limitedCampaign(3), nil)
	repo.On("GetUsage", mock.Anything, "camp-1", "user-1").
		Return(&domain.CampaignUsage{CampaignID: "camp-1", UserID: "user-1", UsageCount: 3}, nil)

	err := svc.ValidateUsage(context.Background(), "camp-1", "user-1")
	assert.ErrorIs(t, err, apperrors.ErrLimitExceeded, "count equal to the limit already blocks")
}

func TestValidateUsage_UserUnderLimit(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestUsageService(repo, nil)

	repo.On("GetByID", mock.Anything, "camp-1").Return(limitedCampaign(3), nil)
	repo.On("GetUsage", mock.Anything, "camp-1", "user-1").
		Return(&domain.CampaignUsage{CampaignID: "camp-1", UserID: "user-1", UsageCount: 2}, nil)

	err := svc.ValidateUsage(context.Background(), "camp-1", "user-1")
	assert.NoError(t, err)
}

func TestValidateUsage_FirstUse(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestUsageService(repo, nil)

	repo.On("GetByID", mock.Anything, "camp-1").Return(limitedCampaign(1), nil)
	repo.On("GetUsage", mock.Anything, "camp-1", "user-new").Return(nil, nil)

	err := svc.ValidateUsage(context.Background(), "camp-1", "user-new")
	assert.NoError(t, err)
}

func TestValidateUsage_CampaignNotFound(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestUsageService(repo, nil)

	repo.On("GetByID", mock.Anything, "missing").Return(nil, apperrors.ErrNotFound)

	err := svc.ValidateUsage(context.Background(), "missing", "user-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

// --- RecordUsage ---

func TestRecordUsage_Success(t *testing.T) {
	repo := new(mockCampaignRepository)
	cache := &fakeCache{}
	svc := newTestUsageService(repo, cache)

	c := runningCampaign("camp-1", time.Now())
	repo.On("GetByID", mock.Anything, "camp-1").Return(&c, nil)
	repo.On("RecordUsage", mock.Anything, "camp-1", "user-1").Return(nil)

	err := svc.RecordUsage(context.Background(), "camp-1", "user-1")
	assert.NoError(t, err)
	assert.Equal(t, 1, cache.invalidated)
	repo.AssertExpectations(t)
}

func TestRecordUsage_BlockedWhenNotEffective(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestUsageService(repo, nil)

	c := runningCampaign("camp-1", time.Now())
	c.IsActive = false
	repo.On("GetByID", mock.Anything, "camp-1").Return(&c, nil)

	err := svc.RecordUsage(context.Background(), "camp-1", "user-1")
	assert.ErrorIs(t, err, apperrors.ErrNotEffective)
	repo.AssertNotCalled(t, "RecordUsage", mock.Anything, mock.Anything, mock.Anything)
}

func TestRecordUsage_BlockedAtUserLimit(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestUsageService(repo, nil)

	repo.On("GetByID", mock.Anything, "camp-1").Return(limitedCampaign(1), nil)
	repo.On("GetUsage", mock.Anything, "camp-1", "user-1").
		Return(&domain.CampaignUsage{CampaignID: "camp-1", UserID: "user-1", UsageCount: 1}, nil)

	err := svc.RecordUsage(context.Background(), "camp-1", "user-1")
	assert.ErrorIs(t, err, apperrors.ErrLimitExceeded)
	repo.AssertNotCalled(t, "RecordUsage", mock.Anything, mock.Anything, mock.Anything)
}

func TestRecordUsage_RepositoryError(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestUsageService(repo, nil)

	c := runningCampaign("camp-1", time.Now())
	repo.On("GetByID", mock.Anything, "camp-1").Return(&c, nil)
	repo.On("RecordUsage", mock.Anything, "camp-1", "user-1").Return(assert.AnError)

	err := svc.RecordUsage(context.Background(), "camp-1", "user-1")
	assert.ErrorIs(t, err, assert.AnError)
}

// --- ValidateCheckout ---

func TestValidateCheckout_CollectsMixedResults(t *testing.T) {
	repo := new(mockCampaignRepository)

	good := runningCampaign("camp-good", time.Now())
	limited := runningCampaign("camp-limited", time.Now())
	userLimit := 1
	limited.UserLimit = &userLimit

	resolver := &stubResolver{byProduct: map[string][]domain.Campaign{
		"prod-1": {good},
		"prod-2": {limited},
	}}
	svc := newTestUsageServiceWithResolver(repo, resolver, nil)

	repo.On("GetByID", mock.Anything, "camp-good").Return(&good, nil)
	repo.On("GetByID", mock.Anything, "camp-limited").Return(&limited, nil)
	repo.On("GetUsage", mock.Anything, "camp-limited", "user-1").
		Return(&domain.CampaignUsage{CampaignID: "camp-limited", UserID: "user-1", UsageCount: 1}, nil)

	result, err := svc.ValidateCheckout(context.Background(), "user-1", []domain.CartItem{
		{ProductID: "prod-1", Quantity: 1, UnitPrice: 1000},
		{ProductID: "prod-2", Quantity: 2, UnitPrice: 500},
	})
	require.NoError(t, err)
	require.Len(t, result.Results, 2)

	assert.False(t, result.Valid)
	assert.True(t, result.Results[0].Valid)
	assert.Empty(t, result.Results[0].Message)
	assert.False(t, result.Results[1].Valid)
	assert.Contains(t, result.Results[1].Message, "usage limit")
	require.Len(t, result.Errors, 1)
}

func TestValidateCheckout_DuplicateCampaignValidatedOnce(t *testing.T) {
	repo := new(mockCampaignRepository)

	shared := runningCampaign("camp-shared", time.Now())
	resolver := &stubResolver{byProduct: map[string][]domain.Campaign{
		"prod-1": {shared},
		"prod-2": {shared},
	}}
	svc := newTestUsageServiceWithResolver(repo, resolver, nil)

	repo.On("GetByID", mock.Anything, "camp-shared").Return(&shared, nil).Once()

	result, err := svc.ValidateCheckout(context.Background(), "user-1", []domain.CartItem{
		{ProductID: "prod-1", Quantity: 1, UnitPrice: 1000},
		{ProductID: "prod-2", Quantity: 1, UnitPrice: 2000},
	})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	require.Len(t, result.Results, 1)
	repo.AssertExpectations(t)
}

func TestValidateCheckout_UnresolvableLineSkipped(t *testing.T) {
	repo := new(mockCampaignRepository)

	good := runningCampaign("camp-good", time.Now())
	resolver := &stubResolver{
		byProduct: map[string][]domain.Campaign{"prod-1": {good}},
		errs:      map[string]error{"prod-gone": apperrors.NotFound("product", "prod-gone")},
	}
	svc := newTestUsageServiceWithResolver(repo, resolver, nil)

	repo.On("GetByID", mock.Anything, "camp-good").Return(&good, nil)

	result, err := svc.ValidateCheckout(context.Background(), "user-1", []domain.CartItem{
		{ProductID: "prod-gone", Quantity: 1, UnitPrice: 1000},
		{ProductID: "prod-1", Quantity: 1, UnitPrice: 1000},
	})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "camp-good", result.Results[0].CampaignID)
}

func TestValidateCheckout_InfrastructureErrorAborts(t *testing.T) {
	repo := new(mockCampaignRepository)

	resolver := &stubResolver{errs: map[string]error{"prod-1": assert.AnError}}
	svc := newTestUsageServiceWithResolver(repo, resolver, nil)

	result, err := svc.ValidateCheckout(context.Background(), "user-1", []domain.CartItem{
		{ProductID: "prod-1", Quantity: 1, UnitPrice: 1000},
	})
	assert.Nil(t, result)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestValidateCheckout_Empty(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestUsageServiceWithResolver(repo, &stubResolver{}, nil)

	result, err := svc.ValidateCheckout(context.Background(), "user-1", nil)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Results)
	assert.Empty(t, result.Errors)
}
