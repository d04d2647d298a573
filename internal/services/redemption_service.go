package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/clearlane/rewards/internal/audit"
	"github.com/clearlane/rewards/internal/config"
	"github.com/clearlane/rewards/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const redemptionColumns = `id, user_id, reward_id, reward_name, reward_value, reward_category, points_spent,
	code, status, created_at, expires_at, fulfilled_at, fulfillment_notes, cancelled_at`

// transitionReturning is redemptionColumns qualified for UPDATE ... FROM.
const transitionReturning = `r.id, r.user_id, r.reward_id, r.reward_name, r.reward_value, r.reward_category,
	r.points_spent, r.code, r.status, r.created_at, r.expires_at, r.fulfilled_at, r.fulfillment_notes, r.cancelled_at`

type RedeemResult struct {
	RedemptionID   string                  `json:"redemptionId"`
	RedemptionCode string                  `json:"redemptionCode"`
	Status         models.RedemptionStatus `json:"status"`
	PointsSpent    int64                   `json:"pointsSpent"`
	ExpiresAt      time.Time               `json:"expiresAt"`
	Instructions   string                  `json:"instructions"`
}

type CodeValidation struct {
	Valid      bool               `json:"valid"`
	Reason     string             `json:"reason,omitempty"`
	Redemption *models.Redemption `json:"redemption,omitempty"`
}

// RedemptionService spends points on catalog rewards and drives the
// redemption lifecycle.
type RedemptionService struct {
	db     *sql.DB
	redis  *redis.Client
	ledger *LedgerService
	events *EventPublisher
	config *config.RewardsConfig
	audit  *audit.Logger
	now    func() time.Time
}

func NewRedemptionService(db *sql.DB, redisClient *redis.Client, ledger *LedgerService, events *EventPublisher, cfg *config.RewardsConfig) *RedemptionService {
	return &RedemptionService{
		db:     db,
		redis:  redisClient,
		ledger: ledger,
		events: events,
		config: cfg,
		audit:  audit.NewLogger(),
		now:    time.Now,
	}
}

// Redeem re-checks eligibility with the reward row locked, debits the balance,
// mints a code, stores the redemption and bumps the stock counter, all in one
// transaction.
func (s *RedemptionService) Redeem(ctx context.Context, userID, rewardID string) (*RedeemResult, error) {
	if userID == "" {
		return nil, &ValidationError{Field: "userId", Reason: "required"}
	}
	if rewardID == "" {
		return nil, &ValidationError{Field: "rewardId", Reason: "required"}
	}

	if err := s.consumeRateLimit(ctx, userID); err != nil {
		log.Printf("[REDEMPTION] Redeem - Rate limit for user %s: %v", userID, err)
		return nil, err
	}

	result, err := s.redeem(ctx, userID, rewardID)
	if err != nil {
		s.audit.LogError("reward:"+rewardID, userID, err)
		return nil, err
	}
	return result, nil
}

func (s *RedemptionService) redeem(ctx context.Context, userID, rewardID string) (*RedeemResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin redeem", err)
	}
	defer tx.Rollback()

	reward, err := scanReward(tx.QueryRowContext(ctx, `
		SELECT `+rewardColumns+` FROM reward_definitions WHERE id = $1 FOR UPDATE`, rewardID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Resource: "reward", ID: rewardID}
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	userCount, err := countUserRedemptions(ctx, tx, userID, rewardID)
	if err != nil {
		return nil, err
	}
	if err := checkRewardEligibility(reward, userCount, now); err != nil {
		log.Printf("[REDEMPTION] Redeem - User %s not eligible for %s: %v", userID, rewardID, err)
		return nil, err
	}

	if err := s.ledger.DebitTx(ctx, tx, userID, reward.PointCost); err != nil {
		return nil, err
	}

	redemption := &models.Redemption{
		ID:             uuid.NewString(),
		UserID:         userID,
		RewardID:       reward.ID,
		RewardName:     reward.Name,
		RewardValue:    reward.ValueDescription,
		RewardCategory: reward.Category,
		PointsSpent:    reward.PointCost,
		Status:         models.RedemptionPending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.config.RedemptionExpiry),
	}
	if err := s.insertWithUniqueCode(ctx, tx, redemption); err != nil {
		return nil, err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE reward_definitions
		SET redeemed_count = redeemed_count + 1, updated_at = $2
		WHERE id = $1 AND (total_available IS NULL OR redeemed_count < total_available)`,
		reward.ID, now)
	if err != nil {
		return nil, storageErr("increment redeemed count", err)
	}
	if rows, err := result.RowsAffected(); err != nil {
		return nil, storageErr("increment redeemed count", err)
	} else if rows == 0 {
		return nil, &OutOfStockError{RewardID: reward.ID}
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("commit redeem", err)
	}

	s.audit.LogDebit(redemption.ID, userID, redemption.PointsSpent, "SUCCESS")
	log.Printf("[REDEMPTION] Redeem - User %s redeemed %s for %d points, code %s",
		userID, reward.ID, reward.PointCost, redemption.Code)
	s.events.publishBestEffort(ctx, Event{
		Type:   EventRewardRedeemed,
		UserID: userID,
		Payload: map[string]any{
			"redemptionId": redemption.ID,
			"rewardId":     reward.ID,
			"pointsSpent":  redemption.PointsSpent,
		},
		OccurredAt: now,
	})

	return &RedeemResult{
		RedemptionID:   redemption.ID,
		RedemptionCode: redemption.Code,
		Status:         redemption.Status,
		PointsSpent:    redemption.PointsSpent,
		ExpiresAt:      redemption.ExpiresAt,
		Instructions:   instructionsFor(redemption),
	}, nil
}

// insertWithUniqueCode mints codes until one inserts without colliding.
func (s *RedemptionService) insertWithUniqueCode(ctx context.Context, tx *sql.Tx, r *models.Redemption) error {
	for attempt := 1; attempt <= s.config.CodeAttempts; attempt++ {
		code, err := generateRedemptionCode(s.config.CodePrefix, s.config.CodeLength)
		if err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO redemptions
			(id, user_id, reward_id, reward_name, reward_value, reward_category, points_spent,
			 code, status, created_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT ON CONSTRAINT uq_redemption_code DO NOTHING`,
			r.ID, r.UserID, r.RewardID, r.RewardName, r.RewardValue, r.RewardCategory, r.PointsSpent,
			code, string(r.Status), r.CreatedAt, r.ExpiresAt)
		if err != nil {
			return storageErr("insert redemption", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return storageErr("insert redemption", err)
		}
		if rows == 1 {
			r.Code = code
			return nil
		}
		log.Printf("[REDEMPTION] Code collision on attempt %d, retrying", attempt)
	}
	return ErrCodeExhausted
}

// ValidateCode succeeds only for open, unexpired redemptions.
func (s *RedemptionService) ValidateCode(ctx context.Context, code string) (*CodeValidation, error) {
	redemption, err := s.GetByCode(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return &CodeValidation{Valid: false, Reason: "not_found"}, nil
	}
	if err != nil {
		return nil, err
	}

	switch {
	case !redemption.Status.IsOpen():
		return &CodeValidation{Valid: false, Reason: strings.ToLower(string(redemption.Status))}, nil
	case redemption.IsExpired(s.now()):
		return &CodeValidation{Valid: false, Reason: "expired"}, nil
	}
	return &CodeValidation{Valid: true, Redemption: redemption}, nil
}

func (s *RedemptionService) GetByCode(ctx context.Context, code string) (*models.Redemption, error) {
	redemption, err := scanRedemption(s.db.QueryRowContext(ctx, `
		SELECT `+redemptionColumns+` FROM redemptions WHERE code = $1`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Resource: "redemption", ID: code}
	}
	return redemption, err
}

// Approve moves a PENDING redemption to APPROVED.
func (s *RedemptionService) Approve(ctx context.Context, code string) (*models.Redemption, error) {
	return s.transition(ctx, code, models.RedemptionApproved, `
		UPDATE redemptions r SET status = 'APPROVED'
		FROM (SELECT id, status FROM redemptions WHERE code = $1 FOR UPDATE) prev
		WHERE r.id = prev.id AND prev.status = 'PENDING' AND r.expires_at >= $2
		RETURNING prev.status, `+transitionReturning, nil)
}

// Fulfill closes an open, unexpired redemption as FULFILLED.
func (s *RedemptionService) Fulfill(ctx context.Context, code string, notes *string) (*models.Redemption, error) {
	return s.transition(ctx, code, models.RedemptionFulfilled, `
		UPDATE redemptions r SET status = 'FULFILLED', fulfilled_at = $2, fulfillment_notes = $3
		FROM (SELECT id, status FROM redemptions WHERE code = $1 FOR UPDATE) prev
		WHERE r.id = prev.id AND prev.status IN ('PENDING', 'APPROVED') AND r.expires_at >= $2
		RETURNING prev.status, `+transitionReturning, notes)
}

// Cancel closes an open redemption. Spent points are not refunded.
func (s *RedemptionService) Cancel(ctx context.Context, code string) (*models.Redemption, error) {
	return s.transition(ctx, code, models.RedemptionCancelled, `
		UPDATE redemptions r SET status = 'CANCELLED', cancelled_at = $2
		FROM (SELECT id, status FROM redemptions WHERE code = $1 FOR UPDATE) prev
		WHERE r.id = prev.id AND prev.status IN ('PENDING', 'APPROVED')
		RETURNING prev.status, `+transitionReturning, nil)
}

// transition applies a guarded status update and returns the locked
// pre-update status with the row. When no row matches it reloads the
// redemption to report why.
func (s *RedemptionService) transition(ctx context.Context, code string, to models.RedemptionStatus, query string, notes *string) (*models.Redemption, error) {
	now := s.now()
	args := []any{code, now}
	if to == models.RedemptionFulfilled {
		args = append(args, notes)
	}

	var from string
	redemption, err := scanRedemption(prefixedRow{
		row:    s.db.QueryRowContext(ctx, query, args...),
		prefix: []any{&from},
	})
	if errors.Is(err, sql.ErrNoRows) {
		current, err := s.GetByCode(ctx, code)
		if err != nil {
			return nil, err
		}
		if current.Status.CanTransition(to) && current.IsExpired(now) {
			return nil, &ExpiredError{Resource: "redemption", ID: code}
		}
		return nil, &TransitionError{Code: code, From: string(current.Status), To: string(to)}
	}
	if err != nil {
		return nil, err
	}

	s.audit.LogTransition(redemption.ID, redemption.UserID, from, string(to))
	s.events.publishBestEffort(ctx, Event{
		Type:   EventRedemptionUpdated,
		UserID: redemption.UserID,
		Payload: map[string]any{
			"redemptionId": redemption.ID,
			"code":         redemption.Code,
			"status":       string(to),
		},
		OccurredAt: now,
	})
	return redemption, nil
}

// ExpireDue moves every open redemption past its expiry to EXPIRED.
func (s *RedemptionService) ExpireDue(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE redemptions SET status = 'EXPIRED'
		WHERE status IN ('PENDING', 'APPROVED') AND expires_at < $1`, s.now())
	if err != nil {
		return 0, storageErr("expire redemptions", err)
	}
	expired, err := result.RowsAffected()
	if err != nil {
		return 0, storageErr("expire redemptions", err)
	}
	if expired > 0 {
		log.Printf("[REDEMPTION] ExpireDue - Expired %d redemptions", expired)
	}
	return expired, nil
}

// GetRedemptionHistory returns the user's redemptions, newest first.
func (s *RedemptionService) GetRedemptionHistory(ctx context.Context, userID string, limit int) ([]models.Redemption, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+redemptionColumns+`
		FROM redemptions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, clampLimit(limit))
	if err != nil {
		return nil, storageErr("query redemption history", err)
	}
	defer rows.Close()

	history := []models.Redemption{}
	for rows.Next() {
		redemption, err := scanRedemption(rows)
		if err != nil {
			return nil, err
		}
		history = append(history, *redemption)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate redemption history", err)
	}
	return history, nil
}

// RedemptionQR renders the code of an open redemption owned by userID as a PNG.
func (s *RedemptionService) RedemptionQR(ctx context.Context, userID, code string) ([]byte, error) {
	redemption, err := s.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if redemption.UserID != userID {
		return nil, &NotFoundError{Resource: "redemption", ID: code}
	}
	if !redemption.Status.IsOpen() {
		return nil, &TransitionError{Code: code, From: string(redemption.Status), To: "SCAN"}
	}
	if redemption.IsExpired(s.now()) {
		return nil, &ExpiredError{Resource: "redemption", ID: code}
	}
	return renderCodeQR(redemption.Code)
}

// consumeRateLimit counts this attempt and rejects it once the window holds
// more than MaxRedeemsPerWindow. Redis failures let the request through.
func (s *RedemptionService) consumeRateLimit(ctx context.Context, userID string) error {
	if s.redis == nil || s.config.MaxRedeemsPerWindow <= 0 {
		return nil
	}
	key := fmt.Sprintf("redeem:ratelimit:%s", userID)
	pipe := s.redis.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.config.RedeemRateLimitWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[REDEMPTION] Rate limit update failed: %v", err)
		return nil
	}
	if incr.Val() > int64(s.config.MaxRedeemsPerWindow) {
		return ErrRateLimited
	}
	return nil
}

func instructionsFor(r *models.Redemption) string {
	return fmt.Sprintf("Present code %s to claim %s. Valid until %s.",
		r.Code, r.RewardName, r.ExpiresAt.UTC().Format("2006-01-02"))
}

// prefixedRow scans leading columns into prefix before handing the rest to dest.
type prefixedRow struct {
	row    rowScanner
	prefix []any
}

func (p prefixedRow) Scan(dest ...any) error {
	return p.row.Scan(append(p.prefix, dest...)...)
}

func scanRedemption(row rowScanner) (*models.Redemption, error) {
	var r models.Redemption
	var status string
	var fulfilledAt, cancelledAt sql.NullTime
	var notes sql.NullString
	err := row.Scan(&r.ID, &r.UserID, &r.RewardID, &r.RewardName, &r.RewardValue, &r.RewardCategory,
		&r.PointsSpent, &r.Code, &status, &r.CreatedAt, &r.ExpiresAt, &fulfilledAt, &notes, &cancelledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, storageErr("scan redemption", err)
	}
	r.Status = models.RedemptionStatus(status)
	if fulfilledAt.Valid {
		r.FulfilledAt = &fulfilledAt.Time
	}
	if notes.Valid {
		r.FulfillmentNotes = &notes.String
	}
	if cancelledAt.Valid {
		r.CancelledAt = &cancelledAt.Time
	}
	return &r, nil
}
