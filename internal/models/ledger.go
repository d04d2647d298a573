package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type LedgerCategory string

const (
	CategoryEmergencyAssist  LedgerCategory = "emergency_assist"
	CategoryRideCompletion   LedgerCategory = "ride_completion"
	CategoryAchievementBonus LedgerCategory = "achievement_bonus"
)

// Breakdown decomposes an award into its base value and contributing factors.
type Breakdown struct {
	BasePoints         int64           `json:"basePoints"`
	CategoryMultiplier decimal.Decimal `json:"categoryMultiplier"`
	TimeMultiplier     decimal.Decimal `json:"timeMultiplier"`
	VehicleBonus       int64           `json:"vehicleBonus"`
	DistanceBonus      int64           `json:"distanceBonus"`
}

// LedgerEntry is an immutable point-earning record. Entries are never updated or deleted.
type LedgerEntry struct {
	ID               string         `json:"id" db:"id"`
	UserID           string         `json:"userId" db:"user_id"`
	DriverID         *string        `json:"driverId,omitempty" db:"driver_id"`
	SourceEventID    *string        `json:"sourceEventId,omitempty" db:"source_event_id"`
	Amount           int64          `json:"amount" db:"amount"`
	Category         LedgerCategory `json:"category" db:"category"`
	Breakdown        Breakdown      `json:"breakdown"`
	EmergencyType    *string        `json:"emergencyType,omitempty" db:"emergency_type"`
	TimeSavedSeconds *int           `json:"timeSavedSeconds,omitempty" db:"time_saved_seconds"`
	DistanceKm       *float64       `json:"distanceKm,omitempty" db:"distance_km"`
	OccurredAt       time.Time      `json:"occurredAt" db:"occurred_at"`
	CreatedAt        time.Time      `json:"createdAt" db:"created_at"`
}

type AttemptOutcome string

const (
	OutcomeCredited   AttemptOutcome = "credited"
	OutcomeDuplicate  AttemptOutcome = "duplicate"
	OutcomeZeroPoints AttemptOutcome = "zero_points"
)

// AwardAttempt records every intake call, including suppressed duplicates.
type AwardAttempt struct {
	ID            string         `json:"id" db:"id"`
	UserID        string         `json:"userId" db:"user_id"`
	SourceEventID *string        `json:"sourceEventId,omitempty" db:"source_event_id"`
	Category      LedgerCategory `json:"category" db:"category"`
	PointsAwarded int64          `json:"pointsAwarded" db:"points_awarded"`
	Outcome       AttemptOutcome `json:"outcome" db:"outcome"`
	LedgerEntryID *string        `json:"ledgerEntryId,omitempty" db:"ledger_entry_id"`
	CreatedAt     time.Time      `json:"createdAt" db:"created_at"`
}

// Reconciliation compares the stored balance with the net effect of the ledger and redemptions.
type Reconciliation struct {
	UserID  string `json:"userId"`
	Balance int64  `json:"balance"`
	Credits int64  `json:"credits"`
	Debits  int64  `json:"debits"`
	Drift   int64  `json:"drift"`
}
