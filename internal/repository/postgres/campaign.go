package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/campaign-engine/internal/domain"
	"github.com/utafrali/campaign-engine/internal/repository"
	"github.com/utafrali/campaign-engine/pkg/database"
	apperrors "github.com/utafrali/campaign-engine/pkg/errors"
)

// campaignColumns lists the selected columns of every campaign read. The two
// trailing array columns aggregate the campaign_targets rows so a single scan
// produces a fully loaded campaign.
const campaignColumns = `
	c.id, c.name, c.label, c.description, c.target_type,
	c.discount_type, c.type, c.discount_value, c.fixed_price,
	c.minimum_purchase, c.usage_limit, c.user_limit, c.current_usage,
	c.start_date, c.end_date, c.is_active, c.status,
	COALESCE((SELECT array_agg(ct.target_id) FROM campaign_targets ct
		WHERE ct.campaign_id = c.id AND ct.target_type = 'product'), '{}') AS product_targets,
	COALESCE((SELECT array_agg(ct.target_id) FROM campaign_targets ct
		WHERE ct.campaign_id = c.id AND ct.target_type = 'category'), '{}') AS category_targets,
	c.created_at, c.updated_at`

// CampaignRepository implements repository.CampaignRepository using PostgreSQL.
type CampaignRepository struct {
	db database.DBTX
}

// NewCampaignRepository creates a new PostgreSQL-backed campaign repository.
func NewCampaignRepository(db database.DBTX) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create inserts a new campaign and its target rows in one transaction.
func (r *CampaignRepository) Create(ctx context.Context, c *domain.Campaign) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin create campaign tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO campaigns (
			id, name, label, description, target_type, discount_type,
			discount_value, fixed_price, minimum_purchase, usage_limit,
			user_limit, current_usage, start_date, end_date, is_active,
			status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	_, err = tx.Exec(ctx, query,
		c.ID,
		c.Name,
		c.Label,
		c.Description,
		c.TargetType,
		c.DiscountType,
		c.DiscountValue,
		c.FixedPrice,
		c.MinimumPurchase,
		c.UsageLimit,
		c.UserLimit,
		c.CurrentUsage,
		c.StartDate,
		c.EndDate,
		c.IsActive,
		c.Status,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("campaign", "id", c.ID)
		}
		return fmt.Errorf("insert campaign: %w", err)
	}

	if err := insertTargets(ctx, tx, c); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create campaign tx: %w", err)
	}
	return nil
}

// GetByID retrieves a campaign by its ID, targets included.
func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	query := fmt.Sprintf(`SELECT %s FROM campaigns c WHERE c.id = $1`, campaignColumns)

	c, err := scanCampaign(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

// List returns campaigns matching the given filter with the total count.
func (r *CampaignRepository) List(ctx context.Context, filter repository.CampaignFilter) ([]domain.Campaign, int, error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("c.status = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}

	if filter.TargetType != nil {
		conditions = append(conditions, fmt.Sprintf("c.target_type = $%d", argIndex))
		args = append(args, *filter.TargetType)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM campaigns c
		%s
		ORDER BY c.created_at DESC
		LIMIT $%d OFFSET $%d`,
		campaignColumns, whereClause, argIndex, argIndex+1,
	)

	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}

	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var (
		campaigns  []domain.Campaign
		totalCount int
	)

	for rows.Next() {
		c, err := scanCampaignRow(rows, &totalCount)
		if err != nil {
			return nil, 0, fmt.Errorf("scan campaign row: %w", err)
		}
		campaigns = append(campaigns, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate campaign rows: %w", err)
	}

	if campaigns == nil {
		campaigns = []domain.Campaign{}
	}

	return campaigns, totalCount, nil
}

// ListActive returns running campaigns at the given instant. The ordering is
// pinned to created_at with id as tiebreaker: first-applicable selection
// depends on it being stable across calls.
func (r *CampaignRepository) ListActive(ctx context.Context, now time.Time) ([]domain.Campaign, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM campaigns c
		WHERE c.status = 'active'
		  AND c.is_active
		  AND c.start_date <= $1
		  AND c.end_date > $1
		ORDER BY c.created_at ASC, c.id ASC`,
		campaignColumns,
	)

	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("list active campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []domain.Campaign
	for rows.Next() {
		c, err := scanCampaignRow(rows, nil)
		if err != nil {
			return nil, fmt.Errorf("scan active campaign row: %w", err)
		}
		campaigns = append(campaigns, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active campaign rows: %w", err)
	}

	if campaigns == nil {
		campaigns = []domain.Campaign{}
	}
	return campaigns, nil
}

// Update modifies an existing campaign and replaces its target rows.
func (r *CampaignRepository) Update(ctx context.Context, c *domain.Campaign) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin update campaign tx: %w", err)
	}
	defer tx.Rollback(ctx)

	c.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE campaigns
		SET name = $1, label = $2, description = $3, target_type = $4,
		    discount_type = $5, discount_value = $6, fixed_price = $7,
		    minimum_purchase = $8, usage_limit = $9, user_limit = $10,
		    start_date = $11, end_date = $12, is_active = $13, status = $14,
		    type = NULLIF($15, ''), updated_at = $16
		WHERE id = $17`

	ct, err := tx.Exec(ctx, query,
		c.Name,
		c.Label,
		c.Description,
		c.TargetType,
		c.DiscountType,
		c.DiscountValue,
		c.FixedPrice,
		c.MinimumPurchase,
		c.UsageLimit,
		c.UserLimit,
		c.StartDate,
		c.EndDate,
		c.IsActive,
		c.Status,
		c.LegacyType,
		c.UpdatedAt,
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("campaign", c.ID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM campaign_targets WHERE campaign_id = $1`, c.ID); err != nil {
		return fmt.Errorf("clear campaign targets: %w", err)
	}
	if err := insertTargets(ctx, tx, c); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit update campaign tx: %w", err)
	}
	return nil
}

// Delete removes a campaign; campaign_targets and campaign_usage rows cascade.
func (r *CampaignRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.db.Exec(ctx, `DELETE FROM campaigns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("campaign", id)
	}
	return nil
}

// HasUsage reports whether any usage ledger rows reference the campaign.
func (r *CampaignRepository) HasUsage(ctx context.Context, campaignID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM campaign_usage WHERE campaign_id = $1)`, campaignID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check campaign usage: %w", err)
	}
	return exists, nil
}

// LegacyProductCampaignIDs returns campaign ids linked to the product through
// the old product_campaigns association table.
func (r *CampaignRepository) LegacyProductCampaignIDs(ctx context.Context, productID string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT campaign_id FROM product_campaigns WHERE product_id = $1`, productID)
	if err != nil {
		return nil, fmt.Errorf("list legacy product campaigns: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan legacy campaign id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate legacy campaign ids: %w", err)
	}
	return ids, nil
}

// GetUsage returns the usage ledger row for a (campaign, user) pair. A user
// who has never used the campaign yields (nil, nil).
func (r *CampaignRepository) GetUsage(ctx context.Context, campaignID, userID string) (*domain.CampaignUsage, error) {
	query := `
		SELECT campaign_id, user_id, usage_count, last_used_at, created_at
		FROM campaign_usage
		WHERE campaign_id = $1 AND user_id = $2`

	var u domain.CampaignUsage
	err := r.db.QueryRow(ctx, query, campaignID, userID).Scan(
		&u.CampaignID,
		&u.UserID,
		&u.UsageCount,
		&u.LastUsedAt,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get campaign usage: %w", err)
	}
	return &u, nil
}

// RecordUsage bumps the campaign counter and the per-user ledger atomically.
// Both increments run DB-side so concurrent checkouts never lose updates.
func (r *CampaignRepository) RecordUsage(ctx context.Context, campaignID, userID string) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin record usage tx: %w", err)
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, `
		UPDATE campaigns
		SET current_usage = current_usage + 1, updated_at = NOW()
		WHERE id = $1`, campaignID)
	if err != nil {
		return fmt.Errorf("increment campaign usage: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("campaign", campaignID)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO campaign_usage (campaign_id, user_id, usage_count, last_used_at, created_at)
		VALUES ($1, $2, 1, NOW(), NOW())
		ON CONFLICT (campaign_id, user_id)
		DO UPDATE SET usage_count = campaign_usage.usage_count + 1, last_used_at = NOW()`,
		campaignID, userID)
	if err != nil {
		return fmt.Errorf("upsert campaign usage: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit record usage tx: %w", err)
	}
	return nil
}

// ActivatePending transitions dormant campaigns whose window has opened and
// not yet closed, raising both the lifecycle status and the enabled flag.
func (r *CampaignRepository) ActivatePending(ctx context.Context, now time.Time) (int64, error) {
	ct, err := r.db.Exec(ctx, `
		UPDATE campaigns
		SET status = 'active', is_active = TRUE, updated_at = $1
		WHERE status = 'inactive'
		  AND NOT is_active
		  AND start_date <= $1
		  AND end_date > $1`, now)
	if err != nil {
		return 0, fmt.Errorf("activate pending campaigns: %w", err)
	}
	return ct.RowsAffected(), nil
}

// DeactivateExpired transitions campaigns whose window has closed, lowering
// both the lifecycle status and the enabled flag.
func (r *CampaignRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	ct, err := r.db.Exec(ctx, `
		UPDATE campaigns
		SET status = 'inactive', is_active = FALSE, updated_at = $1
		WHERE status = 'active'
		  AND end_date <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("deactivate expired campaigns: %w", err)
	}
	return ct.RowsAffected(), nil
}

// insertTargets writes the campaign_targets rows for the campaign's product
// and category target sets.
func insertTargets(ctx context.Context, tx pgx.Tx, c *domain.Campaign) error {
	const query = `
		INSERT INTO campaign_targets (campaign_id, target_id, target_type)
		VALUES ($1, $2, $3)`

	for _, id := range c.ProductTargets {
		if _, err := tx.Exec(ctx, query, c.ID, id, domain.TargetTypeProduct); err != nil {
			return fmt.Errorf("insert product target: %w", err)
		}
	}
	for _, id := range c.CategoryTargets {
		if _, err := tx.Exec(ctx, query, c.ID, id, domain.TargetTypeCategory); err != nil {
			return fmt.Errorf("insert category target: %w", err)
		}
	}
	return nil
}

// scanCampaign scans a single-row query result into a normalized campaign.
func scanCampaign(row pgx.Row) (*domain.Campaign, error) {
	var (
		c          domain.Campaign
		legacyType *string
	)
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Label,
		&c.Description,
		&c.TargetType,
		&c.DiscountType,
		&legacyType,
		&c.DiscountValue,
		&c.FixedPrice,
		&c.MinimumPurchase,
		&c.UsageLimit,
		&c.UserLimit,
		&c.CurrentUsage,
		&c.StartDate,
		&c.EndDate,
		&c.IsActive,
		&c.Status,
		&c.ProductTargets,
		&c.CategoryTargets,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	finishCampaign(&c, legacyType)
	return &c, nil
}

// scanCampaignRow scans one row of a multi-row result. totalCount, when
// non-nil, receives the trailing window-count column.
func scanCampaignRow(rows pgx.Rows, totalCount *int) (*domain.Campaign, error) {
	var (
		c          domain.Campaign
		legacyType *string
	)
	dest := []any{
		&c.ID,
		&c.Name,
		&c.Label,
		&c.Description,
		&c.TargetType,
		&c.DiscountType,
		&legacyType,
		&c.DiscountValue,
		&c.FixedPrice,
		&c.MinimumPurchase,
		&c.UsageLimit,
		&c.UserLimit,
		&c.CurrentUsage,
		&c.StartDate,
		&c.EndDate,
		&c.IsActive,
		&c.Status,
		&c.ProductTargets,
		&c.CategoryTargets,
		&c.CreatedAt,
		&c.UpdatedAt,
	}
	if totalCount != nil {
		dest = append(dest, totalCount)
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}
	finishCampaign(&c, legacyType)
	return &c, nil
}

// finishCampaign applies post-scan fixups: legacy type carry-over, nil-safe
// target slices, and one-time discount spec normalization.
func finishCampaign(c *domain.Campaign, legacyType *string) {
	if legacyType != nil {
		c.LegacyType = *legacyType
	}
	if c.ProductTargets == nil {
		c.ProductTargets = []string{}
	}
	if c.CategoryTargets == nil {
		c.CategoryTargets = []string{}
	}
	c.Normalize()
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
