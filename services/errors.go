package services

import (
	"errors"
	"fmt"

	"lex_dossier_app_go/models"
)

var (
	ErrNotFound           = errors.New("resource not found")
	ErrForbidden          = errors.New("access denied")
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("conflict")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidAssignee    = errors.New("assignee must be an active admin or superadmin")
	ErrSlotClosed         = errors.New("this time slot is closed")
	ErrSlotUnavailable    = errors.New("this time slot is already booked")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("invalid token")
)

// ValidationError reports a problem with a single input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError builds a field-level validation error.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// ErrInvalidTransition is re-exported so handlers only depend on services.
var ErrInvalidTransition = models.ErrInvalidTransition
