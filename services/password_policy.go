package services

import (
	"unicode"
)

// Password requirements
const (
	MinPasswordLength = 8
	MaxPasswordLength = 72 // bcrypt limit
)

// ValidatePassword checks the password complexity rules:
// at least 8 characters with one letter and one digit.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return NewValidationError("password", "password must be at least 8 characters long")
	}
	if len(password) > MaxPasswordLength {
		return NewValidationError("password", "password must be at most 72 characters long")
	}

	var hasLetter, hasNumber bool
	for _, char := range password {
		switch {
		case unicode.IsLetter(char):
			hasLetter = true
		case unicode.IsNumber(char):
			hasNumber = true
		}
	}

	if !hasLetter {
		return NewValidationError("password", "password must contain at least one letter")
	}
	if !hasNumber {
		return NewValidationError("password", "password must contain at least one number")
	}

	return nil
}

// IsWeakPassword is a helper to check if a password is weak without returning specific error
func IsWeakPassword(password string) bool {
	return ValidatePassword(password) != nil
}
