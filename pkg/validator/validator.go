// Package validator checks registration and credential-change input before
// it reaches the credential store. Failures wrap common.ErrValidation with a
// field-level message, which is safe to show to the user.
package validator

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/censusconnect/authserver/internal/common"
)

var (
	// Username: 3-20 letters, digits, underscores and hyphens.
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,20}$`)

	// Email: basic shape check, the real verification is the activation mail.
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// ValidateUsername checks the username format.
func (v *Validator) ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("%w: username must be 3-20 characters and contain only letters, numbers, underscores, and hyphens", common.ErrValidation)
	}
	return nil
}

// ValidateEmail checks the email address format.
func (v *Validator) ValidateEmail(email string) error {
	if len(email) == 0 || len(email) > 255 || !emailRegex.MatchString(email) {
		return fmt.Errorf("%w: invalid email address", common.ErrValidation)
	}
	return nil
}

// ValidatePassword checks password strength: at least 8 characters with
// upper- and lowercase letters, a digit, and a special character.
func (v *Validator) ValidatePassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters long", common.ErrValidation)
	}
	if len(password) > 128 {
		return fmt.Errorf("%w: password too long (max 128 characters)", common.ErrValidation)
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	switch {
	case !hasUpper:
		return fmt.Errorf("%w: password must contain uppercase letters", common.ErrValidation)
	case !hasLower:
		return fmt.Errorf("%w: password must contain lowercase letters", common.ErrValidation)
	case !hasNumber:
		return fmt.Errorf("%w: password must contain numbers", common.ErrValidation)
	case !hasSpecial:
		return fmt.Errorf("%w: password must contain special characters", common.ErrValidation)
	}
	return nil
}

// SanitizeString removes null bytes and trims surrounding whitespace.
func (v *Validator) SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(input)
}
