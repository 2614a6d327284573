package service

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/campaign-engine/internal/domain"
	"github.com/utafrali/campaign-engine/internal/event"
	"github.com/utafrali/campaign-engine/internal/repository"
	apperrors "github.com/utafrali/campaign-engine/pkg/errors"
	pkgkafka "github.com/utafrali/campaign-engine/pkg/kafka"
)

// --- Mock Campaign Repository ---

type mockCampaignRepository struct {
	mock.Mock
}

func (m *mockCampaignRepository) Create(ctx context.Context, campaign *domain.Campaign) error {
	args := m.Called(ctx, campaign)
	return args.Error(0)
}

func (m *mockCampaignRepository) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Campaign), args.Error(1)
}

func (m *mockCampaignRepository) List(ctx context.Context, filter repository.CampaignFilter) ([]domain.Campaign, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.Campaign), args.Int(1), args.Error(2)
}

func (m *mockCampaignRepository) ListActive(ctx context.Context, now time.Time) ([]domain.Campaign, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Campaign), args.Error(1)
}

func (m *mockCampaignRepository) Update(ctx context.Context, campaign *domain.Campaign) error {
	args := m.Called(ctx, campaign)
	return args.Error(0)
}

func (m *mockCampaignRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockCampaignRepository) HasUsage(ctx context.Context, campaignID string) (bool, error) {
	args := m.Called(ctx, campaignID)
	return args.Bool(0), args.Error(1)
}

func (m *mockCampaignRepository) LegacyProductCampaignIDs(ctx context.Context, productID string) ([]string, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockCampaignRepository) GetUsage(ctx context.Context, campaignID, userID string) (*domain.CampaignUsage, error) {
	args := m.Called(ctx, campaignID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CampaignUsage), args.Error(1)
}

func (m *mockCampaignRepository) RecordUsage(ctx context.Context, campaignID, userID string) error {
	args := m.Called(ctx, campaignID, userID)
	return args.Error(0)
}

func (m *mockCampaignRepository) ActivatePending(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockCampaignRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

// --- Mock Product Repository ---

type mockProductRepository struct {
	mock.Mock
}

func (m *mockProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *mockProductRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Product), args.Error(1)
}

// --- Fake Cache ---

// fakeCache is an in-memory stand-in for the Redis active-set cache.
type fakeCache struct {
	campaigns   []domain.Campaign
	hit         bool
	sets        int
	invalidated int
}

func (c *fakeCache) Get(ctx context.Context) ([]domain.Campaign, bool) {
	return c.campaigns, c.hit
}

func (c *fakeCache) Set(ctx context.Context, campaigns []domain.Campaign) {
	c.campaigns = campaigns
	c.hit = true
	c.sets++
}

func (c *fakeCache) Invalidate(ctx context.Context) {
	c.campaigns = nil
	c.hit = false
	c.invalidated++
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestProducer() *event.Producer {
	logger := newTestLogger()
	// A Kafka producer with no reachable broker; publishes fail and the
	// services log and continue.
	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:9092"})
	return event.NewProducer(pkgkafka.NewProducer(kafkaCfg, logger), logger)
}

func newTestService(repo *mockCampaignRepository, cache repository.ActiveCampaignCache) *CampaignService {
	return NewCampaignService(repo, cache, newTestProducer(), newTestLogger())
}

func strPtr(s string) *string        { return &s }
func intPtr(i int) *int              { return &i }
func i64Ptr(v int64) *int64          { return &v }
func boolPtr(b bool) *bool           { return &b }
func timePtr(t time.Time) *time.Time { return &t }

func validCreateInput() *CreateCampaignInput {
	now := time.Now().UTC()
	return &CreateCampaignInput{
		Name:           "Summer Sale",
		Label:          "SUMMER",
		Description:    "10% off summer items",
		TargetType:     domain.TargetTypeProduct,
		DiscountType:   domain.DiscountTypePercent,
		DiscountValue:  10,
		StartDate:      now.Add(-time.Hour),
		EndDate:        now.Add(24 * time.Hour),
		ProductTargets: []string{"prod-100"},
	}
}

func runningCampaign(id string, createdAt time.Time) domain.Campaign {
	now := time.Now().UTC()
	c := domain.Campaign{
		ID:              id,
		Name:            "Campaign " + id,
		TargetType:      domain.TargetTypeProduct,
		DiscountType:    domain.DiscountTypePercent,
		DiscountValue:   10,
		StartDate:       now.Add(-time.Hour),
		EndDate:         now.Add(time.Hour),
		IsActive:        true,
		Status:          domain.CampaignStatusActive,
		ProductTargets:  []string{},
		CategoryTargets: []string{},
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
	c.Normalize()
	return c
}

// --- CreateCampaign ---

func TestCreateCampaign_Success(t *testing.T) {
	repo := new(mockCampaignRepository)
	cache := &fakeCache{}
	svc := newTestService(repo, cache)

	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Campaign")).Return(nil)

	campaign, err := svc.CreateCampaign(context.Background(), validCreateInput())
	require.NoError(t, err)
	assert.NotEmpty(t, campaign.ID)
	assert.Equal(t, domain.CampaignStatusActive, campaign.Status, "window contains now, status derives to active")
	assert.True(t, campaign.IsActive)
	assert.Equal(t, domain.KindPercent, campaign.Discount.Kind)
	assert.Equal(t, 1, cache.invalidated)
	repo.AssertExpectations(t)
}

func TestCreateCampaign_FutureWindowStaysInactive(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestService(repo, nil)

	input := validCreateInput()
	input.StartDate = time.Now().UTC().Add(24 * time.Hour)
	input.EndDate = time.Now().UTC().Add(48 * time.Hour)

	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Campaign")).Return(nil)

	campaign, err := svc.CreateCampaign(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignStatusInactive, campaign.Status)
	repo.AssertExpectations(t)
}

func TestCreateCampaign_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateCampaignInput)
	}{
		{"empty name", func(in *CreateCampaignInput) { in.Name = "" }},
		{"bad target type", func(in *CreateCampaignInput) { in.TargetType = "brand" }},
		{"legacy discount type rejected", func(in *CreateCampaignInput) { in.DiscountType = domain.DiscountTypeFixedPrice }},
		{"percent over 100", func(in *CreateCampaignInput) { in.DiscountValue = 150 }},
		{"zero percent", func(in *CreateCampaignInput) { in.DiscountValue = 0 }},
		{"negative minimum purchase", func(in *CreateCampaignInput) { in.MinimumPurchase = -1 }},
		{"zero usage limit", func(in *CreateCampaignInput) { in.UsageLimit = intPtr(0) }},
		{"end before start", func(in *CreateCampaignInput) {
			in.StartDate = time.Now().UTC()
			in.EndDate = in.StartDate.Add(-time.Hour)
		}},
		{"product type without targets", func(in *CreateCampaignInput) { in.ProductTargets = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mockCampaignRepository)
			svc := newTestService(repo, nil)

			input := validCreateInput()
			tt.mutate(input)

			campaign, err := svc.CreateCampaign(context.Background(), input)
			assert.Nil(t, campaign)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
			repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateCampaign_CategoryTargetsRequired(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestService(repo, nil)

	input := validCreateInput()
	input.TargetType = domain.TargetTypeCategory
	input.ProductTargets = nil

	_, err := svc.CreateCampaign(context.Background(), input)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestCreateCampaign_RepoError(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestService(repo, nil)

	repo.On("Create", mock.Anything, mock.Anything).Return(assert.AnError)

	campaign, err := svc.CreateCampaign(context.Background(), validCreateInput())
	assert.Nil(t, campaign)
	assert.ErrorIs(t, err, assert.AnError)
}

// --- GetCampaign / ListCampaigns ---

func TestGetCampaign_NotFound(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestService(repo, nil)

	repo.On("GetByID", mock.Anything, "missing").Return(nil, apperrors.ErrNotFound)

	campaign, err := svc.GetCampaign(context.Background(), "missing")
	assert.Nil(t, campaign)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestListCampaigns_ClampsPagination(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestService(repo, nil)

	expected := repository.CampaignFilter{Page: 1, PerPage: 100}
	repo.On("List", mock.Anything, expected).Return([]domain.Campaign{}, 0, nil)

	_, _, err := svc.ListCampaigns(context.Background(), repository.CampaignFilter{Page: -1, PerPage: 500})
	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

// --- GetActiveCampaigns ---

func TestGetActiveCampaigns_CacheHit(t *testing.T) {
	repo := new(mockCampaignRepository)
	cache := &fakeCache{
		campaigns: []domain.Campaign{runningCampaign("camp-1", time.Now())},
		hit:       true,
	}
	svc := newTestService(repo, cache)

	campaigns, err := svc.GetActiveCampaigns(context.Background())
	require.NoError(t, err)
	assert.Len(t, campaigns, 1)
	repo.AssertNotCalled(t, "ListActive", mock.Anything, mock.Anything)
}

func TestGetActiveCampaigns_CacheMissPopulates(t *testing.T) {
	repo := new(mockCampaignRepository)
	cache := &fakeCache{}
	svc := newTestService(repo, cache)

	active := []domain.Campaign{runningCampaign("camp-1", time.Now())}
	repo.On("ListActive", mock.Anything, mock.AnythingOfType("time.Time")).Return(active, nil)

	campaigns, err := svc.GetActiveCampaigns(context.Background())
	require.NoError(t, err)
	assert.Len(t, campaigns, 1)
	assert.Equal(t, 1, cache.sets)
	repo.AssertExpectations(t)
}

func TestGetActiveCampaigns_IncludesExhaustedCampaigns(t *testing.T) {
	// The active listing keeps campaigns whose usage ceiling is spent; only
	// the application paths enforce the ceiling.
	repo := new(mockCampaignRepository)
	svc := newTestService(repo, nil)

	exhausted := runningCampaign("camp-spent", time.Now())
	limit := 5
	exhausted.UsageLimit = &limit
	exhausted.CurrentUsage = 5

	repo.On("ListActive", mock.Anything, mock.AnythingOfType("time.Time")).
		Return([]domain.Campaign{exhausted}, nil)

	campaigns, err := svc.GetActiveCampaigns(context.Background())
	require.NoError(t, err)
	require.Len(t, campaigns, 1)
	assert.Equal(t, "camp-spent", campaigns[0].ID)
}

// --- UpdateCampaign ---

func TestUpdateCampaign_PartialUpdate(t *testing.T) {
	repo := new(mockCampaignRepository)
	cache := &fakeCache{}
	svc := newTestService(repo, cache)

	existing := runningCampaign("camp-1", time.Now().Add(-48*time.Hour))
	repo.On("GetByID", mock.Anything, "camp-1").Return(&existing, nil)
	repo.On("Update", mock.Anything, mock.AnythingOfType("*domain.Campaign")).Return(nil)

	updated, err := svc.UpdateCampaign(context.Background(), "camp-1", &UpdateCampaignInput{
		Name:          strPtr("New Name"),
		DiscountValue: i64Ptr(25),
	})
	require.NoError(t, err)
	assert.Equal(t, "New Name", updated.Name)
	assert.Equal(t, int64(25), updated.DiscountValue)
	assert.Equal(t, domain.CampaignStatusActive, updated.Status)
	assert.Equal(t, 1, cache.invalidated)
	repo.AssertExpectations(t)
}

func TestUpdateCampaign_DisablingDeactivates(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestService(repo, nil)

	existing := runningCampaign("camp-1", time.Now())
	repo.On("GetByID", mock.Anything, "camp-1").Return(&existing, nil)
	repo.On("Update", mock.Anything, mock.AnythingOfType("*domain.Campaign")).Return(nil)

	updated, err := svc.UpdateCampaign(context.Background(), "camp-1", &UpdateCampaignInput{
		IsActive: boolPtr(false),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignStatusInactive, updated.Status)
}

func TestUpdateCampaign_MovingWindowRederivesStatus(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestService(repo, nil)

	existing := runningCampaign("camp-1", time.Now())
	repo.On("GetByID", mock.Anything, "camp-1").Return(&existing, nil)
	repo.On("Update", mock.Anything, mock.AnythingOfType("*domain.Campaign")).Return(nil)

	future := time.Now().UTC().Add(24 * time.Hour)
	updated, err := svc.UpdateCampaign(context.Background(), "camp-1", &UpdateCampaignInput{
		StartDate: timePtr(future),
		EndDate:   timePtr(future.Add(24 * time.Hour)),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignStatusInactive, updated.Status)
}

func TestUpdateCampaign_InvalidWindow(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestService(repo, nil)

	existing := runningCampaign("camp-1", time.Now())
	repo.On("GetByID", mock.Anything, "camp-1").Return(&existing, nil)

	_, err := svc.UpdateCampaign(context.Background(), "camp-1", &UpdateCampaignInput{
		EndDate: timePtr(existing.StartDate.Add(-time.Hour)),
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestUpdateCampaign_ChangingDiscountClearsLegacyFields(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestService(repo, nil)

	existing := runningCampaign("camp-1", time.Now())
	existing.DiscountType = domain.DiscountTypeFixedPrice
	existing.LegacyType = domain.DiscountTypeFixedPrice
	existing.FixedPrice = i64Ptr(500)
	existing.Normalize()

	repo.On("GetByID", mock.Anything, "camp-1").Return(&existing, nil)
	// The cleared legacy fields must reach the repository, or the stale
	// type column would win renormalization on the next load.
	repo.On("Update", mock.Anything, mock.MatchedBy(func(c *domain.Campaign) bool {
		return c.LegacyType == "" && c.FixedPrice == nil
	})).Return(nil)

	updated, err := svc.UpdateCampaign(context.Background(), "camp-1", &UpdateCampaignInput{
		DiscountType:  strPtr(domain.DiscountTypeAmount),
		DiscountValue: i64Ptr(200),
	})
	require.NoError(t, err)
	assert.Nil(t, updated.FixedPrice)
	assert.Empty(t, updated.LegacyType)
	assert.Equal(t, domain.KindAmount, updated.Discount.Kind)
	repo.AssertExpectations(t)
}

// --- DeactivateCampaign ---

func TestDeactivateCampaign_KillsRunningCampaign(t *testing.T) {
	repo := new(mockCampaignRepository)
	cache := &fakeCache{}
	svc := newTestService(repo, cache)

	c := runningCampaign("camp-1", time.Now())
	repo.On("GetByID", mock.Anything, "camp-1").Return(&c, nil)
	// Only the admin flag drops. Status stays with the scheduler, which
	// activates nothing that still reads status=active, so the kill sticks.
	repo.On("Update", mock.Anything, mock.MatchedBy(func(c *domain.Campaign) bool {
		return !c.IsActive && c.Status == domain.CampaignStatusActive
	})).Return(nil)

	deactivated, err := svc.DeactivateCampaign(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.False(t, deactivated.IsActive)
	assert.Equal(t, domain.CampaignStatusActive, deactivated.Status)
	assert.Equal(t, 1, cache.invalidated)
	repo.AssertExpectations(t)
}

// --- DeleteCampaign ---

func TestDeleteCampaign_UnusedIsRemoved(t *testing.T) {
	repo := new(mockCampaignRepository)
	cache := &fakeCache{}
	svc := newTestService(repo, cache)

	repo.On("HasUsage", mock.Anything, "camp-1").Return(false, nil)
	repo.On("Delete", mock.Anything, "camp-1").Return(nil)

	err := svc.DeleteCampaign(context.Background(), "camp-1")
	assert.NoError(t, err)
	assert.Equal(t, 1, cache.invalidated)
	repo.AssertExpectations(t)
}

func TestDeleteCampaign_ReferencedIsDisabledInstead(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestService(repo, nil)

	c := runningCampaign("camp-1", time.Now())
	repo.On("HasUsage", mock.Anything, "camp-1").Return(true, nil)
	repo.On("GetByID", mock.Anything, "camp-1").Return(&c, nil)
	repo.On("Update", mock.Anything, mock.MatchedBy(func(c *domain.Campaign) bool {
		return !c.IsActive
	})).Return(nil)

	err := svc.DeleteCampaign(context.Background(), "camp-1")
	assert.NoError(t, err)
	repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestDeleteCampaign_NotFound(t *testing.T) {
	repo := new(mockCampaignRepository)
	svc := newTestService(repo, nil)

	repo.On("HasUsage", mock.Anything, "missing").Return(false, nil)
	repo.On("Delete", mock.Anything, "missing").Return(apperrors.NotFound("campaign", "missing"))

	err := svc.DeleteCampaign(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
