package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequirement_Evaluable(t *testing.T) {
	tests := []struct {
		req  Requirement
		want bool
	}{
		{Requirement{Type: RequirementCount, ActionKey: ActionAmbulanceAssist}, true},
		{Requirement{Type: RequirementStreak, ActionKey: ActionPoliceAssist}, true},
		{Requirement{Type: RequirementStreak, ActionKey: ActionRideCompletion}, true},
		{Requirement{Type: RequirementMilestone, ActionKey: ActionPointsEarned}, true},
		{Requirement{Type: RequirementMilestone, ActionKey: ActionEmergencyAssist}, true},
		{Requirement{Type: RequirementCount, ActionKey: ActionBalance}, false},
		{Requirement{Type: RequirementStreak, ActionKey: ActionTimeSaved}, false},
		{Requirement{Type: RequirementCount, ActionKey: "no_such_action"}, false},
		{Requirement{Type: "ratio", ActionKey: ActionFireAssist}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.req.Evaluable(), "%s on %s", tt.req.Type, tt.req.ActionKey)
	}
}
