package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Code    string            `json:"code,omitempty"`    // Stable machine-readable code
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper
func NewValidationHelper() *ValidationHelper {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return &ValidationHelper{
		validator: v,
	}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// Check validates s and converts the first failure into a *ValidationError.
func (vh *ValidationHelper) Check(s any) error {
	err := vh.validator.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return &ValidationError{
			Field:  verrs[0].Field(),
			Reason: fmt.Sprintf("failed '%s' rule", verrs[0].Tag()),
		}
	}
	return &ValidationError{Field: "request", Reason: err.Error()}
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := ErrorResponse{Error: message}
	var verrs validator.ValidationErrors
	if validationErr != nil && errors.As(validationErr, &verrs) {
		errorResp.Code = "validation_error"
		errorResp.Details = make(map[string]string)
		for _, err := range verrs {
			errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	}

	json.NewEncoder(w).Encode(errorResp)
}

// SendDomainError maps a service error onto a status code and a stable error code.
// Storage failures are reported without internal detail.
func SendDomainError(w http.ResponseWriter, err error) {
	status, code, message := http.StatusInternalServerError, "internal_error", "An internal error occurred"
	if !IsClientError(err) && !IsNotFound(err) {
		log.Printf("[HTTP] Request failed: %v", err)
	}

	var ve *ValidationError
	var ib *InsufficientBalanceError
	switch {
	case errors.As(err, &ve):
		status, code, message = http.StatusBadRequest, "validation_error", ve.Error()
	case errors.Is(err, ErrNotFound):
		status, code, message = http.StatusNotFound, "not_found", err.Error()
	case errors.As(err, &ib):
		status, code, message = http.StatusUnprocessableEntity, "insufficient_balance",
			fmt.Sprintf("Insufficient balance: %d points required", ib.Requested)
	case errors.Is(err, ErrOutOfStock):
		status, code, message = http.StatusConflict, "out_of_stock", "Reward is out of stock"
	case errors.Is(err, ErrExpired):
		status, code, message = http.StatusGone, "expired", err.Error()
	case errors.Is(err, ErrUserLimitReached):
		status, code, message = http.StatusConflict, "user_limit_reached", "Redemption limit reached for this reward"
	case errors.Is(err, ErrInvalidTransition):
		status, code, message = http.StatusConflict, "invalid_transition", err.Error()
	case errors.Is(err, ErrRateLimited):
		status, code, message = http.StatusTooManyRequests, "rate_limited", "Too many requests, try again later"
	case errors.Is(err, ErrStorage), errors.Is(err, ErrCodeExhausted):
		status, code, message = http.StatusServiceUnavailable, "temporarily_unavailable", "Service temporarily unavailable, retry later"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message, Code: code})
}
