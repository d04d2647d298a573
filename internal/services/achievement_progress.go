package services

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/clearlane/rewards/internal/models"
)

// streakLookback bounds how far back day-level activity is scanned for streaks.
const streakLookback = 366 * 24 * time.Hour

// ProgressPercent is min(100, round(100 * current / target)).
func ProgressPercent(current, target int64) int {
	if target <= 0 || current <= 0 {
		return 0
	}
	pct := math.Round(100 * float64(current) / float64(target))
	if pct > 100 {
		return 100
	}
	return int(pct)
}

// activityStats holds everything requirement evaluation needs for one user.
type activityStats struct {
	counts       map[string]int64
	pointsEarned int64
	timeSaved    int64
	balance      int64
	streaks      map[string]int64
}

func (a *activityStats) value(req models.Requirement) int64 {
	switch req.Type {
	case models.RequirementStreak:
		return a.streaks[req.ActionKey]
	case models.RequirementMilestone:
		switch req.ActionKey {
		case models.ActionPointsEarned:
			return a.pointsEarned
		case models.ActionBalance:
			return a.balance
		case models.ActionTimeSaved:
			return a.timeSaved
		}
		return a.counts[req.ActionKey]
	default:
		return a.counts[req.ActionKey]
	}
}

func loadActivityStats(ctx context.Context, q querier, userID string) (*activityStats, error) {
	var emergency, ambulance, fire, police, rides int64
	stats := &activityStats{}
	err := q.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE category = 'emergency_assist'),
			COUNT(*) FILTER (WHERE category = 'emergency_assist' AND emergency_type = 'ambulance'),
			COUNT(*) FILTER (WHERE category = 'emergency_assist' AND emergency_type = 'fire'),
			COUNT(*) FILTER (WHERE category = 'emergency_assist' AND emergency_type = 'police'),
			COUNT(*) FILTER (WHERE category = 'ride_completion'),
			COALESCE(SUM(amount), 0),
			COALESCE(SUM(time_saved_seconds), 0),
			COALESCE((SELECT balance FROM accounts WHERE user_id = $1), 0)
		FROM ledger_entries
		WHERE user_id = $1`, userID).Scan(
		&emergency, &ambulance, &fire, &police, &rides,
		&stats.pointsEarned, &stats.timeSaved, &stats.balance)
	if err != nil {
		return nil, storageErr("load activity stats", err)
	}

	stats.counts = map[string]int64{
		models.ActionEmergencyAssist: emergency,
		models.ActionAmbulanceAssist: ambulance,
		models.ActionFireAssist:      fire,
		models.ActionPoliceAssist:    police,
		models.ActionRideCompletion:  rides,
	}
	return stats, nil
}

// loadStreaks fills stats.streaks with the current run of consecutive UTC days
// per activity key: the category itself and, for emergency assists, the
// <type>_assist key of each emergency type.
func loadStreaks(ctx context.Context, q querier, userID string, now time.Time, stats *activityStats) error {
	rows, err := q.QueryContext(ctx, `
		SELECT DISTINCT category, COALESCE(emergency_type, '') AS emergency_type,
			(occurred_at AT TIME ZONE 'UTC')::date AS day
		FROM ledger_entries
		WHERE user_id = $1
		  AND category IN ('emergency_assist', 'ride_completion')
		  AND occurred_at >= $2
		ORDER BY day DESC`, userID, now.Add(-streakLookback))
	if err != nil {
		return storageErr("load activity days", err)
	}
	defer rows.Close()

	byKey := map[string][]time.Time{}
	for rows.Next() {
		var category, emergencyType string
		var day time.Time
		if err := rows.Scan(&category, &emergencyType, &day); err != nil {
			return storageErr("scan activity day", err)
		}
		byKey[category] = append(byKey[category], day)
		if category == models.ActionEmergencyAssist && emergencyType != "" {
			key := emergencyType + "_assist"
			byKey[key] = append(byKey[key], day)
		}
	}
	if err := rows.Err(); err != nil {
		return storageErr("iterate activity days", err)
	}

	stats.streaks = make(map[string]int64, len(byKey))
	for key, days := range byKey {
		stats.streaks[key] = currentStreak(days, now)
	}
	return nil
}

// currentStreak counts consecutive days ending today or yesterday. days must be
// sorted newest first; repeated days are ignored.
func currentStreak(days []time.Time, now time.Time) int64 {
	if len(days) == 0 {
		return 0
	}
	today := truncateDay(now)
	expected := truncateDay(days[0])
	if gap := today.Sub(expected); gap < 0 || gap > 24*time.Hour {
		return 0
	}

	var streak int64
	for _, d := range days {
		d = truncateDay(d)
		if d.Equal(expected) {
			streak++
			expected = expected.AddDate(0, 0, -1)
			continue
		}
		if d.After(expected) {
			continue
		}
		break
	}
	return streak
}

func truncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func progressMetadata(def models.AchievementDefinition, current int64) json.RawMessage {
	data, _ := json.Marshal(map[string]any{
		"requirementType": def.Requirement.Type,
		"actionKey":       def.Requirement.ActionKey,
		"target":          def.Requirement.Target,
		"currentValue":    current,
	})
	return data
}
