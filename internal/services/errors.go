package services

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is against these; the structured types below unwrap to them.
var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOutOfStock          = errors.New("reward out of stock")
	ErrExpired             = errors.New("expired")
	ErrUserLimitReached    = errors.New("user redemption limit reached")
	ErrInvalidTransition   = errors.New("invalid redemption status transition")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrStorage             = errors.New("storage failure")

	// ErrCodeExhausted means no unique redemption code could be minted.
	ErrCodeExhausted = errors.New("could not allocate unique redemption code")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

type InsufficientBalanceError struct {
	UserID    string
	Available int64
	Requested int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %d, requested %d", e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

type OutOfStockError struct {
	RewardID string
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("reward %q is out of stock", e.RewardID)
}

func (e *OutOfStockError) Unwrap() error { return ErrOutOfStock }

type ExpiredError struct {
	Resource string
	ID       string
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("%s %q has expired", e.Resource, e.ID)
}

func (e *ExpiredError) Unwrap() error { return ErrExpired }

type UserLimitExceededError struct {
	RewardID string
	Limit    int64
}

func (e *UserLimitExceededError) Error() string {
	return fmt.Sprintf("redemption limit of %d reached for reward %q", e.Limit, e.RewardID)
}

func (e *UserLimitExceededError) Unwrap() error { return ErrUserLimitReached }

type TransitionError struct {
	Code string
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("redemption %s cannot move from %s to %s", e.Code, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// StorageError wraps a database or cache failure. It is the only retryable class.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsRetryable returns true if the caller may retry with the same idempotency keys.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorage)
}

// IsClientError returns true for typed domain rejections.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrOutOfStock) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrUserLimitReached) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrRateLimited)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
