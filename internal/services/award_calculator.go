package services

import (
	"math"

	"github.com/clearlane/rewards/internal/models"
	"github.com/shopspring/decimal"
)

type EmergencyType string

const (
	EmergencyAmbulance EmergencyType = "ambulance"
	EmergencyFire      EmergencyType = "fire"
	EmergencyPolice    EmergencyType = "police"
)

type VehicleType string

const (
	VehicleStandard  VehicleType = "standard"
	VehicleEmergency VehicleType = "emergency"
)

const (
	emergencyBasePoints   = 5
	rideBasePoints        = 10
	emergencyVehicleBonus = 15
	maxDistanceBonus      = 20
)

var categoryMultipliers = map[EmergencyType]decimal.Decimal{
	EmergencyAmbulance: decimal.RequireFromString("3.0"),
	EmergencyFire:      decimal.RequireFromString("2.5"),
	EmergencyPolice:    decimal.RequireFromString("2.0"),
}

// timeBands are inclusive upper bounds on seconds saved.
var timeBands = []struct {
	maxSeconds int
	multiplier decimal.Decimal
}{
	{30, decimal.RequireFromString("2.0")},
	{60, decimal.RequireFromString("1.5")},
	{120, decimal.RequireFromString("1.2")},
	{300, decimal.RequireFromString("1.0")},
}

var slowResponseMultiplier = decimal.RequireFromString("0.8")

func (t EmergencyType) Valid() bool {
	_, ok := categoryMultipliers[t]
	return ok
}

// CategoryMultiplier returns the weight for an emergency type.
func CategoryMultiplier(t EmergencyType) (decimal.Decimal, bool) {
	m, ok := categoryMultipliers[t]
	return m, ok
}

// TimeMultiplier is a step function of the seconds an emergency vehicle saved.
func TimeMultiplier(timeSavedSeconds int) decimal.Decimal {
	if timeSavedSeconds < 0 {
		return slowResponseMultiplier
	}
	for _, band := range timeBands {
		if timeSavedSeconds <= band.maxSeconds {
			return band.multiplier
		}
	}
	return slowResponseMultiplier
}

// CalculateEmergencyAssist computes round(5 x category x time), rounding half away from zero.
func CalculateEmergencyAssist(emergencyType EmergencyType, timeSavedSeconds int) (int64, models.Breakdown, error) {
	category, ok := CategoryMultiplier(emergencyType)
	if !ok {
		return 0, models.Breakdown{}, &ValidationError{Field: "emergencyType", Reason: "must be ambulance, fire or police"}
	}
	timeFactor := TimeMultiplier(timeSavedSeconds)

	points := decimal.NewFromInt(emergencyBasePoints).Mul(category).Mul(timeFactor).Round(0).IntPart()
	if points < 0 {
		points = 0
	}

	return points, models.Breakdown{
		BasePoints:         emergencyBasePoints,
		CategoryMultiplier: category,
		TimeMultiplier:     timeFactor,
	}, nil
}

// CalculateRideCompletion computes 10 + emergency vehicle bonus + min(floor(km), 20).
func CalculateRideCompletion(distanceKm float64, vehicle VehicleType) (int64, models.Breakdown) {
	var vehicleBonus int64
	if vehicle == VehicleEmergency {
		vehicleBonus = emergencyVehicleBonus
	}

	var distanceBonus int64
	if distanceKm > 0 && !math.IsInf(distanceKm, 1) {
		distanceBonus = int64(math.Min(math.Floor(distanceKm), maxDistanceBonus))
	}

	return rideBasePoints + vehicleBonus + distanceBonus, models.Breakdown{
		BasePoints:         rideBasePoints,
		CategoryMultiplier: decimal.NewFromInt(1),
		TimeMultiplier:     decimal.NewFromInt(1),
		VehicleBonus:       vehicleBonus,
		DistanceBonus:      distanceBonus,
	}
}
