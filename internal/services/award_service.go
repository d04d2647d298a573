package services

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/clearlane/rewards/internal/audit"
	"github.com/clearlane/rewards/internal/config"
	"github.com/clearlane/rewards/internal/models"
	"github.com/google/uuid"
)

// Award outcome reasons reported to callers.
const (
	ReasonAwarded    = "awarded"
	ReasonDuplicate  = "duplicate"
	ReasonZeroPoints = "zero_points"
)

type Location struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

type EmergencyAssistRequest struct {
	UserID           string    `json:"userId" validate:"required,max=64"`
	DriverID         string    `json:"driverId" validate:"omitempty,max=64"`
	RideID           string    `json:"rideId" validate:"omitempty,max=64"`
	EmergencyType    string    `json:"emergencyType" validate:"required,oneof=ambulance fire police"`
	TimeSavedSeconds int       `json:"timeSavedSeconds" validate:"gte=0"`
	Location         *Location `json:"location,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

type RideCompletionRequest struct {
	UserID          string    `json:"userId" validate:"required,max=64"`
	RideID          string    `json:"rideId" validate:"required,max=64"`
	DistanceKm      float64   `json:"distanceKm" validate:"gte=0"`
	DurationMinutes float64   `json:"durationMinutes" validate:"gte=0"`
	VehicleType     string    `json:"vehicleType" validate:"omitempty,oneof=standard emergency"`
	CompletedAt     time.Time `json:"completedAt"`
}

// AwardResult distinguishes a duplicate (Reason "duplicate") from a calculation
// that legitimately produced zero points (Reason "zero_points").
type AwardResult struct {
	PointsAwarded int64                    `json:"pointsAwarded"`
	Reason        string                   `json:"reason"`
	Breakdown     *models.Breakdown        `json:"breakdown,omitempty"`
	EntryID       string                   `json:"entryId,omitempty"`
	Unlocked      []models.UserAchievement `json:"unlockedAchievements,omitempty"`
}

// AwardService is the activity-event intake: duplicate guard, calculator,
// ledger credit, then achievement evaluation.
type AwardService struct {
	db           *sql.DB
	ledger       *LedgerService
	guard        *DuplicateGuard
	achievements *AchievementService
	events       *EventPublisher
	validator    *ValidationHelper
	audit        *audit.Logger
	now          func() time.Time
}

func NewAwardService(db *sql.DB, ledger *LedgerService, achievements *AchievementService, events *EventPublisher, cfg *config.RewardsConfig) *AwardService {
	return &AwardService{
		db:           db,
		ledger:       ledger,
		guard:        NewDuplicateGuard(db, cfg.DuplicateWindow),
		achievements: achievements,
		events:       events,
		validator:    NewValidationHelper(),
		audit:        audit.NewLogger(),
		now:          time.Now,
	}
}

// AwardEmergencyAssist credits a user for yielding to an emergency vehicle.
func (s *AwardService) AwardEmergencyAssist(ctx context.Context, req EmergencyAssistRequest) (*AwardResult, error) {
	if err := s.validator.Check(req); err != nil {
		return nil, err
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = s.now()
	}

	var sourceID, driverID *string
	if req.RideID != "" {
		id := string(models.CategoryEmergencyAssist) + ":" + req.RideID
		sourceID = &id
	}
	if req.DriverID != "" {
		driverID = &req.DriverID
	}

	dup, err := s.isDuplicate(ctx, req.UserID, models.CategoryEmergencyAssist, sourceID, driverID, req.Timestamp)
	if err != nil {
		return nil, err
	}
	if dup {
		return s.suppress(ctx, req.UserID, models.CategoryEmergencyAssist, sourceID)
	}

	points, breakdown, err := CalculateEmergencyAssist(EmergencyType(req.EmergencyType), req.TimeSavedSeconds)
	if err != nil {
		return nil, err
	}
	if points == 0 {
		return s.zero(ctx, req.UserID, models.CategoryEmergencyAssist, sourceID, breakdown)
	}

	emergencyType := req.EmergencyType
	timeSaved := req.TimeSavedSeconds
	entry := &models.LedgerEntry{
		UserID:           req.UserID,
		DriverID:         driverID,
		SourceEventID:    sourceID,
		Amount:           points,
		Category:         models.CategoryEmergencyAssist,
		Breakdown:        breakdown,
		EmergencyType:    &emergencyType,
		TimeSavedSeconds: &timeSaved,
		OccurredAt:       req.Timestamp,
	}

	payload := map[string]any{
		"emergencyType":    req.EmergencyType,
		"timeSavedSeconds": req.TimeSavedSeconds,
	}
	if req.Location != nil {
		payload["location"] = req.Location
	}

	return s.award(ctx, entry, payload,
		models.ActionEmergencyAssist, req.EmergencyType+"_assist",
		models.ActionTimeSaved, models.ActionPointsEarned, models.ActionBalance)
}

// AwardRideCompletion credits a completed ride. The ride id is the idempotency key.
func (s *AwardService) AwardRideCompletion(ctx context.Context, req RideCompletionRequest) (*AwardResult, error) {
	if err := s.validator.Check(req); err != nil {
		return nil, err
	}
	if req.CompletedAt.IsZero() {
		req.CompletedAt = s.now()
	}
	vehicle := VehicleType(req.VehicleType)
	if vehicle == "" {
		vehicle = VehicleStandard
	}

	sourceID := string(models.CategoryRideCompletion) + ":" + req.RideID
	dup, err := s.isDuplicate(ctx, req.UserID, models.CategoryRideCompletion, &sourceID, nil, req.CompletedAt)
	if err != nil {
		return nil, err
	}
	if dup {
		return s.suppress(ctx, req.UserID, models.CategoryRideCompletion, &sourceID)
	}

	points, breakdown := CalculateRideCompletion(req.DistanceKm, vehicle)
	distance := req.DistanceKm
	entry := &models.LedgerEntry{
		UserID:        req.UserID,
		SourceEventID: &sourceID,
		Amount:        points,
		Category:      models.CategoryRideCompletion,
		Breakdown:     breakdown,
		DistanceKm:    &distance,
		OccurredAt:    req.CompletedAt,
	}

	return s.award(ctx, entry, map[string]any{
		"distanceKm":      req.DistanceKm,
		"durationMinutes": req.DurationMinutes,
		"vehicleType":     string(vehicle),
	}, models.ActionRideCompletion, models.ActionPointsEarned, models.ActionBalance)
}

func (s *AwardService) isDuplicate(ctx context.Context, userID string, category models.LedgerCategory, sourceID, driverID *string, at time.Time) (bool, error) {
	if sourceID != nil {
		return s.guard.IsDuplicate(ctx, userID, *sourceID, at)
	}
	return s.guard.IsRecentUnsourced(ctx, userID, category, driverID, at)
}

// award credits entry and logs the attempt in one transaction, then runs the
// post-commit side effects. Losing the unique-constraint race is a duplicate.
func (s *AwardService) award(ctx context.Context, entry *models.LedgerEntry, payload map[string]any, actionKeys ...string) (*AwardResult, error) {
	fail := func(err error) (*AwardResult, error) {
		s.audit.LogError(derefString(entry.SourceEventID), entry.UserID, err)
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fail(storageErr("begin award", err))
	}
	defer tx.Rollback()

	credited, err := s.ledger.CreditTx(ctx, tx, entry)
	if err != nil {
		return fail(err)
	}

	attempt := &models.AwardAttempt{
		UserID:        entry.UserID,
		SourceEventID: entry.SourceEventID,
		Category:      entry.Category,
	}
	if credited {
		attempt.PointsAwarded = entry.Amount
		attempt.Outcome = models.OutcomeCredited
		attempt.LedgerEntryID = &entry.ID
	} else {
		attempt.Outcome = models.OutcomeDuplicate
	}
	if err := s.recordAttempt(ctx, tx, attempt); err != nil {
		return fail(err)
	}

	if err := tx.Commit(); err != nil {
		return fail(storageErr("commit award", err))
	}

	if !credited {
		s.audit.LogDuplicate(derefString(entry.SourceEventID), entry.UserID)
		return &AwardResult{Reason: ReasonDuplicate}, nil
	}

	log.Printf("[AWARDS] Credited %d points to user %s (%s)", entry.Amount, entry.UserID, entry.Category)

	payload["points"] = entry.Amount
	payload["category"] = string(entry.Category)
	payload["entryId"] = entry.ID
	s.events.publishBestEffort(ctx, Event{
		Type:       EventPointsAwarded,
		UserID:     entry.UserID,
		Payload:    payload,
		OccurredAt: entry.CreatedAt,
	})

	breakdown := entry.Breakdown
	result := &AwardResult{
		PointsAwarded: entry.Amount,
		Reason:        ReasonAwarded,
		Breakdown:     &breakdown,
		EntryID:       entry.ID,
	}

	if s.achievements != nil {
		unlocked, err := s.achievements.CheckAndUnlock(ctx, entry.UserID, actionKeys...)
		if err != nil {
			log.Printf("[AWARDS] Achievement check failed for user %s: %v", entry.UserID, err)
		}
		result.Unlocked = unlocked
	}
	return result, nil
}

// suppress records a zero-point attempt for an event the guard already saw.
func (s *AwardService) suppress(ctx context.Context, userID string, category models.LedgerCategory, sourceID *string) (*AwardResult, error) {
	if err := s.recordAttempt(ctx, s.db, &models.AwardAttempt{
		UserID:        userID,
		SourceEventID: sourceID,
		Category:      category,
		Outcome:       models.OutcomeDuplicate,
	}); err != nil {
		return nil, err
	}
	s.audit.LogDuplicate(derefString(sourceID), userID)
	return &AwardResult{Reason: ReasonDuplicate}, nil
}

func (s *AwardService) zero(ctx context.Context, userID string, category models.LedgerCategory, sourceID *string, breakdown models.Breakdown) (*AwardResult, error) {
	if err := s.recordAttempt(ctx, s.db, &models.AwardAttempt{
		UserID:        userID,
		SourceEventID: sourceID,
		Category:      category,
		Outcome:       models.OutcomeZeroPoints,
	}); err != nil {
		return nil, err
	}
	return &AwardResult{Reason: ReasonZeroPoints, Breakdown: &breakdown}, nil
}

func (s *AwardService) recordAttempt(ctx context.Context, q querier, attempt *models.AwardAttempt) error {
	attempt.ID = uuid.NewString()
	attempt.CreatedAt = s.now()
	_, err := q.ExecContext(ctx, `
		INSERT INTO award_attempts
		(id, user_id, source_event_id, category, points_awarded, outcome, ledger_entry_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		attempt.ID, attempt.UserID, attempt.SourceEventID, string(attempt.Category),
		attempt.PointsAwarded, string(attempt.Outcome), attempt.LedgerEntryID, attempt.CreatedAt)
	return storageErr("record award attempt", err)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
