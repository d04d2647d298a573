package services

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/clearlane/rewards/internal/database"
	"github.com/clearlane/rewards/internal/models"
	"github.com/lib/pq"
)

// Eligibility reasons shown next to catalog items.
const (
	IneligibleExpired      = "expired"
	IneligibleOutOfStock   = "out_of_stock"
	IneligibleUserLimit    = "user_limit_reached"
	IneligibleInsufficient = "insufficient_balance"
)

const rewardColumns = `id, name, description, point_cost, category, value_description, active,
	expires_at, total_available, redeemed_count, max_per_user, created_at, updated_at`

// limitStatuses are the redemption statuses that occupy a per-user slot.
var limitStatuses = func() []string {
	var statuses []string
	for _, s := range models.RedemptionStatuses {
		if s.CountsTowardLimit() {
			statuses = append(statuses, string(s))
		}
	}
	return statuses
}()

type CatalogItem struct {
	RewardID         string     `json:"rewardId"`
	Name             string     `json:"name"`
	Description      string     `json:"description"`
	Cost             int64      `json:"cost"`
	Category         string     `json:"category"`
	ValueDescription string     `json:"valueDescription"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty"`
	Available        bool       `json:"available"`
	UserCanRedeem    bool       `json:"userCanRedeem"`
	RemainingStock   *int64     `json:"remainingStock,omitempty"`
	Reason           string     `json:"reason,omitempty"`
}

// Eligibility is an advisory answer; Redeem re-checks everything under lock.
type Eligibility struct {
	RewardID string `json:"rewardId"`
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
	Balance  int64  `json:"balance"`
	Cost     int64  `json:"cost"`
}

type CatalogService struct {
	db        *sql.DB
	validator *ValidationHelper
	now       func() time.Time
}

func NewCatalogService(db *sql.DB) *CatalogService {
	return &CatalogService{
		db:        db,
		validator: NewValidationHelper(),
		now:       time.Now,
	}
}

// GetCatalog lists active rewards with availability for userID.
func (s *CatalogService) GetCatalog(ctx context.Context, userID string) ([]CatalogItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+rewardColumns+`
		FROM reward_definitions
		WHERE active = true
		ORDER BY point_cost, name`)
	if err != nil {
		return nil, storageErr("query catalog", err)
	}
	defer rows.Close()

	var rewards []models.RewardDefinition
	for rows.Next() {
		reward, err := scanReward(rows)
		if err != nil {
			return nil, err
		}
		rewards = append(rewards, *reward)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate catalog", err)
	}

	balance, err := balanceOf(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	counts, err := s.userRedemptionCounts(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	items := make([]CatalogItem, 0, len(rewards))
	for i := range rewards {
		reward := &rewards[i]
		item := CatalogItem{
			RewardID:         reward.ID,
			Name:             reward.Name,
			Description:      reward.Description,
			Cost:             reward.PointCost,
			Category:         reward.Category,
			ValueDescription: reward.ValueDescription,
			ExpiresAt:        reward.ExpiresAt,
			RemainingStock:   reward.RemainingStock(),
		}
		item.Reason = ineligibleReason(reward, counts[reward.ID], balance, now)
		item.Available = reward.Active && !reward.IsExpired(now) && reward.InStock()
		item.UserCanRedeem = item.Reason == ""
		items = append(items, item)
	}
	return items, nil
}

func (s *CatalogService) GetReward(ctx context.Context, rewardID string) (*models.RewardDefinition, error) {
	reward, err := scanReward(s.db.QueryRowContext(ctx, `
		SELECT `+rewardColumns+` FROM reward_definitions WHERE id = $1`, rewardID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Resource: "reward", ID: rewardID}
	}
	return reward, err
}

// CanRedeem evaluates eligibility without taking locks. Display only. Inactive
// rewards are reported as not found, the same as Redeem does.
func (s *CatalogService) CanRedeem(ctx context.Context, userID, rewardID string) (*Eligibility, error) {
	reward, err := s.GetReward(ctx, rewardID)
	if err != nil {
		return nil, err
	}
	if !reward.Active {
		return nil, &NotFoundError{Resource: "reward", ID: rewardID}
	}
	balance, err := balanceOf(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	count, err := countUserRedemptions(ctx, s.db, userID, rewardID)
	if err != nil {
		return nil, err
	}

	reason := ineligibleReason(reward, count, balance, s.now())
	return &Eligibility{
		RewardID: rewardID,
		Eligible: reason == "",
		Reason:   reason,
		Balance:  balance,
		Cost:     reward.PointCost,
	}, nil
}

// UpsertReward creates or edits a catalog item. The running redeemed count is never
// overwritten, and existing redemptions keep their snapshots.
func (s *CatalogService) UpsertReward(ctx context.Context, reward *models.RewardDefinition) error {
	if err := s.validator.Check(reward); err != nil {
		return err
	}

	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reward_definitions
		(id, name, description, point_cost, category, value_description, active,
		 expires_at, total_available, redeemed_count, max_per_user, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10, $11, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, description = EXCLUDED.description, point_cost = EXCLUDED.point_cost,
			category = EXCLUDED.category, value_description = EXCLUDED.value_description,
			active = EXCLUDED.active, expires_at = EXCLUDED.expires_at,
			total_available = EXCLUDED.total_available, max_per_user = EXCLUDED.max_per_user,
			updated_at = EXCLUDED.updated_at`,
		reward.ID, reward.Name, reward.Description, reward.PointCost, reward.Category,
		reward.ValueDescription, reward.Active, reward.ExpiresAt, reward.TotalAvailable,
		reward.MaxPerUser, now)
	if err != nil {
		if database.IsCheckViolation(err) {
			return &ValidationError{Field: "totalAvailable", Reason: "below redeemed count"}
		}
		return storageErr("upsert reward", err)
	}

	log.Printf("[CATALOG] Upserted reward %s (cost=%d)", reward.ID, reward.PointCost)
	return nil
}

func (s *CatalogService) userRedemptionCounts(ctx context.Context, userID string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT reward_id, COUNT(*)
		FROM redemptions
		WHERE user_id = $1 AND status = ANY($2)
		GROUP BY reward_id`, userID, pq.Array(limitStatuses))
	if err != nil {
		return nil, storageErr("count user redemptions", err)
	}
	defer rows.Close()

	counts := map[string]int64{}
	for rows.Next() {
		var rewardID string
		var count int64
		if err := rows.Scan(&rewardID, &count); err != nil {
			return nil, storageErr("scan redemption count", err)
		}
		counts[rewardID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate redemption counts", err)
	}
	return counts, nil
}

func countUserRedemptions(ctx context.Context, q querier, userID, rewardID string) (int64, error) {
	var count int64
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM redemptions
		WHERE user_id = $1 AND reward_id = $2 AND status = ANY($3)`,
		userID, rewardID, pq.Array(limitStatuses)).Scan(&count)
	if err != nil {
		return 0, storageErr("count user redemptions", err)
	}
	return count, nil
}

// checkRewardEligibility applies every rule except the balance, which the
// conditional debit enforces.
func checkRewardEligibility(reward *models.RewardDefinition, userCount int64, now time.Time) error {
	if !reward.Active {
		return &NotFoundError{Resource: "reward", ID: reward.ID}
	}
	if reward.IsExpired(now) {
		return &ExpiredError{Resource: "reward", ID: reward.ID}
	}
	if !reward.InStock() {
		return &OutOfStockError{RewardID: reward.ID}
	}
	if reward.MaxPerUser != nil && userCount >= *reward.MaxPerUser {
		return &UserLimitExceededError{RewardID: reward.ID, Limit: *reward.MaxPerUser}
	}
	return nil
}

func ineligibleReason(reward *models.RewardDefinition, userCount, balance int64, now time.Time) string {
	err := checkRewardEligibility(reward, userCount, now)
	switch {
	case errors.Is(err, ErrExpired):
		return IneligibleExpired
	case errors.Is(err, ErrOutOfStock):
		return IneligibleOutOfStock
	case errors.Is(err, ErrUserLimitReached):
		return IneligibleUserLimit
	}
	if balance < reward.PointCost {
		return IneligibleInsufficient
	}
	return ""
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReward(row rowScanner) (*models.RewardDefinition, error) {
	var r models.RewardDefinition
	var expiresAt sql.NullTime
	var totalAvailable, maxPerUser sql.NullInt64
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.PointCost, &r.Category, &r.ValueDescription,
		&r.Active, &expiresAt, &totalAvailable, &r.RedeemedCount, &maxPerUser, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, storageErr("scan reward", err)
	}
	if expiresAt.Valid {
		r.ExpiresAt = &expiresAt.Time
	}
	if totalAvailable.Valid {
		r.TotalAvailable = &totalAvailable.Int64
	}
	if maxPerUser.Valid {
		r.MaxPerUser = &maxPerUser.Int64
	}
	return &r, nil
}
