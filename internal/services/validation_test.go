package services

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationHelper_ValidateStruct(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("valid emergency assist", func(t *testing.T) {
		valid := EmergencyAssistRequest{
			UserID:           "user-1",
			RideID:           "ride-1",
			EmergencyType:    "ambulance",
			TimeSavedSeconds: 20,
		}

		err := vh.ValidateStruct(&valid)
		assert.NoError(t, err)
	})

	t.Run("missing required fields use json names", func(t *testing.T) {
		invalid := RideCompletionRequest{DistanceKm: -1}

		err := vh.ValidateStruct(&invalid)
		assert.Error(t, err)

		validationErrors, ok := err.(validator.ValidationErrors)
		require.True(t, ok)
		assert.Len(t, validationErrors, 3)

		fields := map[string]string{}
		for _, fe := range validationErrors {
			fields[fe.Field()] = fe.Tag()
		}
		assert.Equal(t, "required", fields["userId"])
		assert.Equal(t, "required", fields["rideId"])
		assert.Equal(t, "gte", fields["distanceKm"])
	})

	t.Run("unknown emergency type", func(t *testing.T) {
		invalid := EmergencyAssistRequest{UserID: "user-1", EmergencyType: "tow_truck"}

		err := vh.ValidateStruct(&invalid)
		validationErrors, ok := err.(validator.ValidationErrors)
		require.True(t, ok)
		assert.Len(t, validationErrors, 1)
		assert.Equal(t, "emergencyType", validationErrors[0].Field())
		assert.Equal(t, "oneof", validationErrors[0].Tag())
	})
}

func TestValidationHelper_Check(t *testing.T) {
	vh := NewValidationHelper()

	err := vh.Check(EmergencyAssistRequest{EmergencyType: "fire"})
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "userId", ve.Field)
	assert.True(t, errors.Is(err, ErrValidation))

	assert.NoError(t, vh.Check(EmergencyAssistRequest{UserID: "u", EmergencyType: "police"}))
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("error response without validation errors", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendErrorResponse(w, "Something went wrong", http.StatusInternalServerError, nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response ErrorResponse
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Equal(t, "Something went wrong", response.Error)
		assert.Nil(t, response.Details)
	})

	t.Run("error response with validation errors", func(t *testing.T) {
		vh := NewValidationHelper()
		validationErr := vh.ValidateStruct(&RideCompletionRequest{VehicleType: "bus"})
		assert.Error(t, validationErr)

		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, validationErr)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response ErrorResponse
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Equal(t, "Validation failed", response.Error)
		assert.Equal(t, "validation_error", response.Code)
		assert.Contains(t, response.Details, "userId")
		assert.Contains(t, response.Details, "rideId")
		assert.Contains(t, response.Details, "vehicleType")
	})
}

func TestSendDomainError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
		logged bool
	}{
		{"validation", &ValidationError{Field: "rewardId", Reason: "required"}, http.StatusBadRequest, "validation_error", false},
		{"not found", &NotFoundError{Resource: "reward", ID: "r1"}, http.StatusNotFound, "not_found", false},
		{"insufficient balance", &InsufficientBalanceError{Available: 10, Requested: 60}, http.StatusUnprocessableEntity, "insufficient_balance", false},
		{"out of stock", &OutOfStockError{RewardID: "r1"}, http.StatusConflict, "out_of_stock", false},
		{"expired", &ExpiredError{Resource: "redemption", ID: "CL-ABC"}, http.StatusGone, "expired", false},
		{"user limit", &UserLimitExceededError{RewardID: "r1", Limit: 1}, http.StatusConflict, "user_limit_reached", false},
		{"transition", &TransitionError{Code: "CL-ABC", From: "FULFILLED", To: "CANCELLED"}, http.StatusConflict, "invalid_transition", false},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests, "rate_limited", false},
		{"storage", storageErr("debit balance", errors.New("connection reset")), http.StatusServiceUnavailable, "temporarily_unavailable", true},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := captureLog(t)
			w := httptest.NewRecorder()
			SendDomainError(w, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var response ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, tt.code, response.Code)
			assert.NotContains(t, response.Error, "connection reset")
			assert.Equal(t, tt.logged, logs.Len() > 0, "server log: %q", logs.String())
		})
	}
}

func TestNewValidationHelper(t *testing.T) {
	vh := NewValidationHelper()
	assert.NotNil(t, vh)
	assert.NotNil(t, vh.validator)
}
