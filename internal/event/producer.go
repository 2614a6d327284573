package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/campaign-engine/internal/domain"
	pkgkafka "github.com/utafrali/campaign-engine/pkg/kafka"
)

// Kafka topic constants for campaign domain events.
const (
	TopicCampaignCreated       = "ecommerce.campaign.created"
	TopicCampaignUpdated       = "ecommerce.campaign.updated"
	TopicCampaignDeleted       = "ecommerce.campaign.deleted"
	TopicCampaignUsageRecorded = "ecommerce.campaign.usage_recorded"
)

// Aggregate type constant.
const AggregateTypeCampaign = "campaign"

// Source identifier for events originating from the campaign engine.
const SourceCampaignEngine = "campaign-engine"

// CampaignCreatedData is the payload for a campaign.created event.
type CampaignCreatedData struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	TargetType    string `json:"target_type"`
	DiscountType  string `json:"discount_type"`
	DiscountValue int64  `json:"discount_value"`
	Status        string `json:"status"`
}

// CampaignUpdatedData is the payload for a campaign.updated event.
type CampaignUpdatedData struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	TargetType string `json:"target_type"`
	Status     string `json:"status"`
	IsActive   bool   `json:"is_active"`
}

// CampaignDeletedData is the payload for a campaign.deleted event.
type CampaignDeletedData struct {
	ID string `json:"id"`
}

// UsageRecordedData is the payload for a campaign.usage_recorded event.
type UsageRecordedData struct {
	CampaignID string `json:"campaign_id"`
	UserID     string `json:"user_id"`
}

// Producer publishes campaign domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the campaign engine.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCampaignCreated publishes a campaign.created event.
func (p *Producer) PublishCampaignCreated(ctx context.Context, campaign *domain.Campaign) error {
	data := CampaignCreatedData{
		ID:            campaign.ID,
		Name:          campaign.Name,
		TargetType:    campaign.TargetType,
		DiscountType:  campaign.DiscountType,
		DiscountValue: campaign.DiscountValue,
		Status:        campaign.Status,
	}

	event, err := pkgkafka.NewEvent(TopicCampaignCreated, campaign.ID, AggregateTypeCampaign, SourceCampaignEngine, data)
	if err != nil {
		return fmt.Errorf("create campaign.created event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCampaignCreated, event); err != nil {
		return fmt.Errorf("publish campaign.created event: %w", err)
	}

	p.logger.DebugContext(ctx, "published campaign.created event",
		slog.String("campaign_id", campaign.ID),
	)

	return nil
}

// PublishCampaignUpdated publishes a campaign.updated event.
func (p *Producer) PublishCampaignUpdated(ctx context.Context, campaign *domain.Campaign) error {
	data := CampaignUpdatedData{
		ID:         campaign.ID,
		Name:       campaign.Name,
		TargetType: campaign.TargetType,
		Status:     campaign.Status,
		IsActive:   campaign.IsActive,
	}

	event, err := pkgkafka.NewEvent(TopicCampaignUpdated, campaign.ID, AggregateTypeCampaign, SourceCampaignEngine, data)
	if err != nil {
		return fmt.Errorf("create campaign.updated event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCampaignUpdated, event); err != nil {
		return fmt.Errorf("publish campaign.updated event: %w", err)
	}

	p.logger.DebugContext(ctx, "published campaign.updated event",
		slog.String("campaign_id", campaign.ID),
	)

	return nil
}

// PublishCampaignDeleted publishes a campaign.deleted event.
func (p *Producer) PublishCampaignDeleted(ctx context.Context, id string) error {
	event, err := pkgkafka.NewEvent(TopicCampaignDeleted, id, AggregateTypeCampaign, SourceCampaignEngine, CampaignDeletedData{ID: id})
	if err != nil {
		return fmt.Errorf("create campaign.deleted event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCampaignDeleted, event); err != nil {
		return fmt.Errorf("publish campaign.deleted event: %w", err)
	}

	p.logger.DebugContext(ctx, "published campaign.deleted event",
		slog.String("campaign_id", id),
	)

	return nil
}

// PublishUsageRecorded publishes a campaign.usage_recorded event.
func (p *Producer) PublishUsageRecorded(ctx context.Context, campaignID, userID string) error {
	data := UsageRecordedData{
		CampaignID: campaignID,
		UserID:     userID,
	}

	event, err := pkgkafka.NewEvent(TopicCampaignUsageRecorded, campaignID, AggregateTypeCampaign, SourceCampaignEngine, data)
	if err != nil {
		return fmt.Errorf("create campaign.usage_recorded event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCampaignUsageRecorded, event); err != nil {
		return fmt.Errorf("publish campaign.usage_recorded event: %w", err)
	}

	p.logger.DebugContext(ctx, "published campaign.usage_recorded event",
		slog.String("campaign_id", campaignID),
		slog.String("user_id", userID),
	)

	return nil
}
