package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"time"

	"github.com/clearlane/rewards/internal/audit"
	"github.com/clearlane/rewards/internal/models"
	"github.com/go-redis/redis/v8"
)

const achievementCatalogKey = "achievements:catalog"

// DefaultAchievements is the built-in catalog installed by SeedDefaultAchievements.
var DefaultAchievements = []models.AchievementDefinition{
	{ID: "first_assist", Name: "First Responder Ally", Description: "Clear the way for an emergency vehicle",
		Category: "emergency", Requirement: models.Requirement{Type: models.RequirementCount, Target: 1, ActionKey: models.ActionEmergencyAssist}, Points: 25, Active: true},
	{ID: "ambulance_hero", Name: "Ambulance Hero", Description: "Assist 10 ambulances",
		Category: "emergency", Requirement: models.Requirement{Type: models.RequirementCount, Target: 10, ActionKey: models.ActionAmbulanceAssist}, Points: 100, Active: true},
	{ID: "fire_guardian", Name: "Fire Guardian", Description: "Assist 10 fire engines",
		Category: "emergency", Requirement: models.Requirement{Type: models.RequirementCount, Target: 10, ActionKey: models.ActionFireAssist}, Points: 100, Active: true},
	{ID: "police_partner", Name: "Police Partner", Description: "Assist 10 police vehicles",
		Category: "emergency", Requirement: models.Requirement{Type: models.RequirementCount, Target: 10, ActionKey: models.ActionPoliceAssist}, Points: 100, Active: true},
	{ID: "road_regular", Name: "Road Regular", Description: "Complete 25 rides",
		Category: "rides", Requirement: models.Requirement{Type: models.RequirementCount, Target: 25, ActionKey: models.ActionRideCompletion}, Points: 50, Active: true},
	{ID: "week_of_help", Name: "Week of Help", Description: "Assist emergency vehicles 7 days in a row",
		Category: "streak", Requirement: models.Requirement{Type: models.RequirementStreak, Target: 7, ActionKey: models.ActionEmergencyAssist}, Points: 75, Active: true},
	{ID: "points_1000", Name: "Thousand Club", Description: "Earn 1,000 points",
		Category: "milestone", Requirement: models.Requirement{Type: models.RequirementMilestone, Target: 1000, ActionKey: models.ActionPointsEarned}, Points: 150, Active: true},
	{ID: "hour_saved", Name: "Golden Hour", Description: "Save emergency vehicles a combined hour",
		Category: "milestone", Requirement: models.Requirement{Type: models.RequirementMilestone, Target: 3600, ActionKey: models.ActionTimeSaved}, Points: 100, Active: true},
}

// AchievementService evaluates requirement specs against ledger activity and
// unlocks achievements at most once per user.
type AchievementService struct {
	db        *sql.DB
	ledger    *LedgerService
	redis     *redis.Client
	events    *EventPublisher
	validator *ValidationHelper
	audit     *audit.Logger
	cacheTTL  time.Duration
	now       func() time.Time
}

func NewAchievementService(db *sql.DB, ledger *LedgerService, redisClient *redis.Client, events *EventPublisher, cacheTTL time.Duration) *AchievementService {
	return &AchievementService{
		db:        db,
		ledger:    ledger,
		redis:     redisClient,
		events:    events,
		validator: NewValidationHelper(),
		audit:     audit.NewLogger(),
		cacheTTL:  cacheTTL,
		now:       time.Now,
	}
}

// GetAllAchievements returns the active catalog, served from Redis when cached.
func (s *AchievementService) GetAllAchievements(ctx context.Context) ([]models.AchievementDefinition, error) {
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, achievementCatalogKey).Bytes()
		if err == nil {
			var defs []models.AchievementDefinition
			if json.Unmarshal(cached, &defs) == nil {
				return defs, nil
			}
		} else if err != redis.Nil {
			log.Printf("[ACHIEVEMENTS] Cache read failed: %v", err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, category, requirement_type, target, action_key, points, active
		FROM achievement_definitions
		WHERE active = true
		ORDER BY category, target, id`)
	if err != nil {
		return nil, storageErr("query achievements", err)
	}
	defer rows.Close()

	defs := []models.AchievementDefinition{}
	for rows.Next() {
		var def models.AchievementDefinition
		var reqType string
		if err := rows.Scan(&def.ID, &def.Name, &def.Description, &def.Category, &reqType,
			&def.Requirement.Target, &def.Requirement.ActionKey, &def.Points, &def.Active); err != nil {
			return nil, storageErr("scan achievement", err)
		}
		def.Requirement.Type = models.RequirementType(reqType)
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate achievements", err)
	}

	if s.redis != nil {
		if data, err := json.Marshal(defs); err == nil {
			if err := s.redis.Set(ctx, achievementCatalogKey, data, s.cacheTTL).Err(); err != nil {
				log.Printf("[ACHIEVEMENTS] Cache write failed: %v", err)
			}
		}
	}
	return defs, nil
}

// UpsertAchievement creates or replaces a definition and drops the cached catalog.
func (s *AchievementService) UpsertAchievement(ctx context.Context, def *models.AchievementDefinition) error {
	if err := s.validator.Check(def); err != nil {
		return err
	}
	if !def.Requirement.Evaluable() {
		return &ValidationError{Field: "requirement",
			Reason: string(def.Requirement.Type) + " is not supported for " + def.Requirement.ActionKey}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO achievement_definitions
		(id, name, description, category, requirement_type, target, action_key, points, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, description = EXCLUDED.description, category = EXCLUDED.category,
			requirement_type = EXCLUDED.requirement_type, target = EXCLUDED.target,
			action_key = EXCLUDED.action_key, points = EXCLUDED.points, active = EXCLUDED.active`,
		def.ID, def.Name, def.Description, def.Category, string(def.Requirement.Type),
		def.Requirement.Target, def.Requirement.ActionKey, def.Points, def.Active)
	if err != nil {
		return storageErr("upsert achievement", err)
	}

	s.invalidateCatalog(ctx)
	log.Printf("[ACHIEVEMENTS] Upserted achievement %s", def.ID)
	return nil
}

// SeedDefaultAchievements installs DefaultAchievements without overwriting edits.
func (s *AchievementService) SeedDefaultAchievements(ctx context.Context) error {
	for _, def := range DefaultAchievements {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO achievement_definitions
			(id, name, description, category, requirement_type, target, action_key, points, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO NOTHING`,
			def.ID, def.Name, def.Description, def.Category, string(def.Requirement.Type),
			def.Requirement.Target, def.Requirement.ActionKey, def.Points, def.Active)
		if err != nil {
			return storageErr("seed achievement "+def.ID, err)
		}
	}
	s.invalidateCatalog(ctx)
	return nil
}

// GetUserAchievements lists every active achievement with the user's progress.
// Achievements never evaluated for the user report zero progress.
func (s *AchievementService) GetUserAchievements(ctx context.Context, userID string) ([]models.UserAchievement, error) {
	if userID == "" {
		return nil, &ValidationError{Field: "userId", Reason: "required"}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.name, d.description, d.category, d.requirement_type, d.target, d.action_key, d.points,
		       COALESCE(p.progress, 0), COALESCE(p.unlocked, false), p.unlocked_at, COALESCE(p.metadata, '{}'::jsonb)
		FROM achievement_definitions d
		LEFT JOIN achievement_progress p ON p.achievement_id = d.id AND p.user_id = $1
		WHERE d.active = true
		ORDER BY d.category, d.target, d.id`, userID)
	if err != nil {
		return nil, storageErr("query user achievements", err)
	}
	defer rows.Close()

	result := []models.UserAchievement{}
	for rows.Next() {
		var ua models.UserAchievement
		var reqType string
		var metadata []byte
		if err := rows.Scan(&ua.ID, &ua.Name, &ua.Description, &ua.Category, &reqType,
			&ua.Requirement.Target, &ua.Requirement.ActionKey, &ua.Points,
			&ua.Progress, &ua.Unlocked, &ua.UnlockedAt, &metadata); err != nil {
			return nil, storageErr("scan user achievement", err)
		}
		ua.Requirement.Type = models.RequirementType(reqType)
		ua.Metadata = json.RawMessage(metadata)
		result = append(result, ua)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate user achievements", err)
	}
	return result, nil
}

// CheckAndUnlock recomputes progress for achievements matching actionKeys (all
// active achievements when none are given) and unlocks those whose target is
// reached. Bonus credits can complete point milestones, so evaluation repeats
// until a pass unlocks nothing. It returns the achievements unlocked by this call.
func (s *AchievementService) CheckAndUnlock(ctx context.Context, userID string, actionKeys ...string) ([]models.UserAchievement, error) {
	if userID == "" {
		return nil, &ValidationError{Field: "userId", Reason: "required"}
	}

	defs, err := s.GetAllAchievements(ctx)
	if err != nil {
		return nil, err
	}

	unlocked := []models.UserAchievement{}
	keys := actionKeys
	for pass := 0; pass <= len(defs); pass++ {
		candidates := matchingAchievements(defs, keys)
		if len(candidates) == 0 {
			break
		}

		newly, err := s.evaluate(ctx, userID, candidates)
		if err != nil {
			return unlocked, err
		}
		if len(newly) == 0 {
			break
		}
		unlocked = append(unlocked, newly...)
		keys = []string{models.ActionPointsEarned, models.ActionBalance}
	}
	return unlocked, nil
}

func (s *AchievementService) evaluate(ctx context.Context, userID string, defs []models.AchievementDefinition) ([]models.UserAchievement, error) {
	now := s.now()
	stats, err := loadActivityStats(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	for _, def := range defs {
		if def.Requirement.Type == models.RequirementStreak {
			if err := loadStreaks(ctx, s.db, userID, now, stats); err != nil {
				return nil, err
			}
			break
		}
	}

	var newly []models.UserAchievement
	for _, def := range defs {
		current := stats.value(def.Requirement)
		progress := models.AchievementProgress{
			UserID:        userID,
			AchievementID: def.ID,
			Progress:      ProgressPercent(current, def.Requirement.Target),
			CurrentValue:  current,
			Metadata:      progressMetadata(def, current),
			UpdatedAt:     now,
		}

		open, err := s.saveProgress(ctx, progress)
		if err != nil {
			return newly, err
		}
		// Progress rounds, so 995 of 1000 reads as 100%; only the raw value unlocks.
		if !open || current < def.Requirement.Target {
			continue
		}

		ok, err := s.unlock(ctx, userID, def, now)
		if err != nil {
			s.audit.LogError("achievement:"+def.ID, userID, err)
			return newly, err
		}
		if ok {
			unlockedAt := now
			newly = append(newly, models.UserAchievement{
				ID:          def.ID,
				Name:        def.Name,
				Description: def.Description,
				Category:    def.Category,
				Points:      def.Points,
				Requirement: def.Requirement,
				Progress:    100,
				Unlocked:    true,
				UnlockedAt:  &unlockedAt,
			})
		}
	}
	return newly, nil
}

// saveProgress upserts the progress row. It reports false when the row is
// already unlocked, in which case nothing was written.
func (s *AchievementService) saveProgress(ctx context.Context, p models.AchievementProgress) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO achievement_progress
		(user_id, achievement_id, progress, current_value, unlocked, metadata, updated_at)
		VALUES ($1, $2, $3, $4, false, $5, $6)
		ON CONFLICT (user_id, achievement_id) DO UPDATE SET
			progress = EXCLUDED.progress, current_value = EXCLUDED.current_value,
			metadata = EXCLUDED.metadata, updated_at = EXCLUDED.updated_at
		WHERE achievement_progress.unlocked = false`,
		p.UserID, p.AchievementID, p.Progress, p.CurrentValue, []byte(p.Metadata), p.UpdatedAt)
	if err != nil {
		return false, storageErr("save achievement progress", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, storageErr("save achievement progress", err)
	}
	return rows > 0, nil
}

// unlock flips the unlocked flag and credits the bonus in one transaction. The
// flag update is a compare-and-set, so only one caller can win it.
func (s *AchievementService) unlock(ctx context.Context, userID string, def models.AchievementDefinition, now time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, storageErr("begin unlock", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE achievement_progress
		SET unlocked = true, unlocked_at = $1, progress = 100, updated_at = $1
		WHERE user_id = $2 AND achievement_id = $3 AND unlocked = false`,
		now, userID, def.ID)
	if err != nil {
		return false, storageErr("unlock achievement", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, storageErr("unlock achievement", err)
	}
	if rows == 0 {
		return false, nil
	}

	if def.Points > 0 {
		source := "achievement:" + def.ID
		if _, err := s.ledger.CreditTx(ctx, tx, &models.LedgerEntry{
			UserID:        userID,
			SourceEventID: &source,
			Amount:        def.Points,
			Category:      models.CategoryAchievementBonus,
			Breakdown:     models.Breakdown{BasePoints: def.Points},
			OccurredAt:    now,
		}); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, storageErr("commit unlock", err)
	}

	s.audit.LogUnlock(def.ID, userID, def.Points)
	s.events.publishBestEffort(ctx, Event{
		Type:   EventAchievementUnlocked,
		UserID: userID,
		Payload: map[string]any{
			"achievementId": def.ID,
			"name":          def.Name,
			"points":        def.Points,
		},
		OccurredAt: now,
	})
	return true, nil
}

func (s *AchievementService) invalidateCatalog(ctx context.Context) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, achievementCatalogKey).Err(); err != nil {
		log.Printf("[ACHIEVEMENTS] Cache invalidation failed: %v", err)
	}
}

func matchingAchievements(defs []models.AchievementDefinition, actionKeys []string) []models.AchievementDefinition {
	if len(actionKeys) == 0 {
		return defs
	}
	wanted := make(map[string]bool, len(actionKeys))
	for _, k := range actionKeys {
		wanted[k] = true
	}
	var matched []models.AchievementDefinition
	for _, def := range defs {
		if wanted[def.Requirement.ActionKey] {
			matched = append(matched, def)
		}
	}
	return matched
}
