package models

import (
	"encoding/json"
	"time"
)

type RequirementType string

const (
	RequirementCount     RequirementType = "count"
	RequirementStreak    RequirementType = "streak"
	RequirementMilestone RequirementType = "milestone"
)

// Action keys observed by the achievement engine.
const (
	ActionEmergencyAssist = "emergency_assist"
	ActionAmbulanceAssist = "ambulance_assist"
	ActionFireAssist      = "fire_assist"
	ActionPoliceAssist    = "police_assist"
	ActionRideCompletion  = "ride_completion"
	ActionPointsEarned    = "points_earned"
	ActionBalance         = "balance"
	ActionTimeSaved       = "time_saved"
)

type Requirement struct {
	Type      RequirementType `json:"type" validate:"required,oneof=count streak milestone"`
	Target    int64           `json:"target" validate:"gt=0"`
	ActionKey string          `json:"actionKey" validate:"required,oneof=emergency_assist ambulance_assist fire_assist police_assist ride_completion points_earned balance time_saved"`
}

// Evaluable reports whether the engine can compute a value for this type and
// action key. Counts and streaks only exist for activity keys; totals such as
// points_earned are milestone-only.
func (r Requirement) Evaluable() bool {
	switch r.ActionKey {
	case ActionEmergencyAssist, ActionAmbulanceAssist, ActionFireAssist, ActionPoliceAssist, ActionRideCompletion:
		return r.Type == RequirementCount || r.Type == RequirementStreak || r.Type == RequirementMilestone
	case ActionPointsEarned, ActionBalance, ActionTimeSaved:
		return r.Type == RequirementMilestone
	}
	return false
}

type AchievementDefinition struct {
	ID          string      `json:"id" db:"id" validate:"required,max=64"`
	Name        string      `json:"name" db:"name" validate:"required,max=120"`
	Description string      `json:"description" db:"description"`
	Category    string      `json:"category" db:"category" validate:"required"`
	Requirement Requirement `json:"requirement" validate:"required"`
	Points      int64       `json:"points" db:"points" validate:"gte=0"`
	Active      bool        `json:"active" db:"active"`
}

// AchievementProgress is per (user, achievement). Unlocked only ever moves false -> true.
type AchievementProgress struct {
	UserID        string          `json:"userId" db:"user_id"`
	AchievementID string          `json:"achievementId" db:"achievement_id"`
	Progress      int             `json:"progress" db:"progress"`
	CurrentValue  int64           `json:"currentValue" db:"current_value"`
	Unlocked      bool            `json:"unlocked" db:"unlocked"`
	UnlockedAt    *time.Time      `json:"unlockedAt,omitempty" db:"unlocked_at"`
	Metadata      json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	UpdatedAt     time.Time       `json:"updatedAt" db:"updated_at"`
}

// UserAchievement joins a definition with the user's progress for display.
type UserAchievement struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Points      int64           `json:"points"`
	Requirement Requirement     `json:"requirement"`
	Progress    int             `json:"progress"`
	Unlocked    bool            `json:"unlocked"`
	UnlockedAt  *time.Time      `json:"unlockedAt,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}
