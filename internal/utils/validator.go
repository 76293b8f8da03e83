package utils

import (
	"regexp"
	"strings"

	"github.com/prperemyshlev/session-gateway/internal/domain"
)

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidateEmail validates an email address
func ValidateEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// ValidatePassword validates a password
// Minimum 8 characters, at least one uppercase letter, one lowercase letter, one number
func ValidatePassword(password string) bool {
	if len(password) < 8 {
		return false
	}

	hasUpper := false
	hasLower := false
	hasNumber := false

	for _, char := range password {
		switch {
		case 'A' <= char && char <= 'Z':
			hasUpper = true
		case 'a' <= char && char <= 'z':
			hasLower = true
		case '0' <= char && char <= '9':
			hasNumber = true
		}
	}

	return hasUpper && hasLower && hasNumber
}

// SanitizeEmail sanitizes an email address
func SanitizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RegistrationForm is the raw create-account form
type RegistrationForm struct {
	FirstName       string
	LastName        string
	Email           string
	Password        string
	ConfirmPassword string
}

// FullName joins first and last name the way the identity backend expects it
func (f RegistrationForm) FullName() string {
	return strings.TrimSpace(f.FirstName) + " " + strings.TrimSpace(f.LastName)
}

// ValidateRegistration checks every field and reports all failures at once
func ValidateRegistration(f RegistrationForm) error {
	fields := make(map[string]string)

	if strings.TrimSpace(f.FirstName) == "" {
		fields["first_name"] = "First name is required"
	}
	if strings.TrimSpace(f.LastName) == "" {
		fields["last_name"] = "Last name is required"
	}

	email := strings.TrimSpace(f.Email)
	switch {
	case email == "":
		fields["email"] = "Email is required"
	case !ValidateEmail(email):
		fields["email"] = "Please enter a valid email address"
	}

	password := strings.TrimSpace(f.Password)
	switch {
	case password == "":
		fields["password"] = "Password is required"
	case !ValidatePassword(password):
		fields["password"] = "Password must be at least 8 characters with uppercase, lowercase, and number"
	}

	if password != strings.TrimSpace(f.ConfirmPassword) {
		fields["confirm_password"] = "Passwords don't match"
	}

	if len(fields) > 0 {
		return &domain.ValidationError{Fields: fields}
	}
	return nil
}
