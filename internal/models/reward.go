package models

import "time"

// RewardDefinition is a catalog item. Catalog edits never touch historical redemptions.
type RewardDefinition struct {
	ID               string     `json:"id" db:"id" validate:"required,max=64"`
	Name             string     `json:"name" db:"name" validate:"required,max=120"`
	Description      string     `json:"description" db:"description" validate:"max=500"`
	PointCost        int64      `json:"pointCost" db:"point_cost" validate:"gt=0"`
	Category         string     `json:"category" db:"category" validate:"required,max=40"`
	ValueDescription string     `json:"valueDescription" db:"value_description" validate:"max=200"`
	Active           bool       `json:"active" db:"active"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty" db:"expires_at"`
	TotalAvailable   *int64     `json:"totalAvailable,omitempty" db:"total_available" validate:"omitempty,gte=0"`
	RedeemedCount    int64      `json:"redeemedCount" db:"redeemed_count"`
	MaxPerUser       *int64     `json:"maxPerUser,omitempty" db:"max_per_user" validate:"omitempty,gt=0"`
	CreatedAt        time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time  `json:"updatedAt" db:"updated_at"`
}

// RemainingStock returns nil for uncapped rewards.
func (r *RewardDefinition) RemainingStock() *int64 {
	if r.TotalAvailable == nil {
		return nil
	}
	remaining := *r.TotalAvailable - r.RedeemedCount
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

func (r *RewardDefinition) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

func (r *RewardDefinition) InStock() bool {
	return r.TotalAvailable == nil || r.RedeemedCount < *r.TotalAvailable
}

type RedemptionStatus string

const (
	RedemptionPending   RedemptionStatus = "PENDING"
	RedemptionApproved  RedemptionStatus = "APPROVED"
	RedemptionFulfilled RedemptionStatus = "FULFILLED"
	RedemptionCancelled RedemptionStatus = "CANCELLED"
	RedemptionExpired   RedemptionStatus = "EXPIRED"
)

// IsTerminal reports whether no further transition is allowed.
func (s RedemptionStatus) IsTerminal() bool {
	switch s {
	case RedemptionFulfilled, RedemptionCancelled, RedemptionExpired:
		return true
	}
	return false
}

// IsOpen reports whether the redemption can still be validated or fulfilled.
func (s RedemptionStatus) IsOpen() bool {
	return s == RedemptionPending || s == RedemptionApproved
}

// RedemptionStatuses lists every lifecycle status.
var RedemptionStatuses = []RedemptionStatus{
	RedemptionPending, RedemptionApproved, RedemptionFulfilled, RedemptionCancelled, RedemptionExpired,
}

// CountsTowardLimit reports whether the redemption occupies a per-user slot.
func (s RedemptionStatus) CountsTowardLimit() bool {
	return s == RedemptionPending || s == RedemptionApproved || s == RedemptionFulfilled
}

// CanTransition encodes the redemption lifecycle.
func (s RedemptionStatus) CanTransition(to RedemptionStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case RedemptionPending:
		return to == RedemptionApproved || to == RedemptionFulfilled || to == RedemptionCancelled || to == RedemptionExpired
	case RedemptionApproved:
		return to == RedemptionFulfilled || to == RedemptionCancelled || to == RedemptionExpired
	}
	return false
}

// Redemption is one successful spend. RewardName, RewardValue and RewardCategory are
// snapshots taken at redemption time.
type Redemption struct {
	ID               string           `json:"id" db:"id"`
	UserID           string           `json:"userId" db:"user_id"`
	RewardID         string           `json:"rewardId" db:"reward_id"`
	RewardName       string           `json:"rewardName" db:"reward_name"`
	RewardValue      string           `json:"rewardValue" db:"reward_value"`
	RewardCategory   string           `json:"rewardCategory" db:"reward_category"`
	PointsSpent      int64            `json:"pointsSpent" db:"points_spent"`
	Code             string           `json:"code" db:"code"`
	Status           RedemptionStatus `json:"status" db:"status"`
	CreatedAt        time.Time        `json:"createdAt" db:"created_at"`
	ExpiresAt        time.Time        `json:"expiresAt" db:"expires_at"`
	FulfilledAt      *time.Time       `json:"fulfilledAt,omitempty" db:"fulfilled_at"`
	FulfillmentNotes *string          `json:"fulfillmentNotes,omitempty" db:"fulfillment_notes"`
	CancelledAt      *time.Time       `json:"cancelledAt,omitempty" db:"cancelled_at"`
}

func (r *Redemption) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
