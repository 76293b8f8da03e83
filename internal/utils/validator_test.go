package utils

import (
	"errors"
	"testing"

	"github.com/prperemyshlev/session-gateway/internal/domain"
)

func TestValidatePassword(t *testing.T) {
	cases := map[string]bool{
		"Password123": true,
		"password123": false,
		"PASSWORD123": false,
		"Password":    false,
		"Pa1":         false,
	}

	for password, want := range cases {
		if got := ValidatePassword(password); got != want {
			t.Errorf("ValidatePassword(%q) = %v, want %v", password, got, want)
		}
	}
}

func TestValidateRegistration_Valid(t *testing.T) {
	form := RegistrationForm{
		FirstName:       "Ada",
		LastName:        "Lovelace",
		Email:           "ada@example.com",
		Password:        "Password123",
		ConfirmPassword: "Password123",
	}

	if err := ValidateRegistration(form); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if form.FullName() != "Ada Lovelace" {
		t.Errorf("Expected full name 'Ada Lovelace', got '%s'", form.FullName())
	}
}

func TestValidateRegistration_CollectsAllFields(t *testing.T) {
	err := ValidateRegistration(RegistrationForm{
		Email:           "not-an-email",
		Password:        "weak",
		ConfirmPassword: "other",
	})

	var validationErr *domain.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}

	for _, field := range []string{"first_name", "last_name", "email", "password", "confirm_password"} {
		if _, ok := validationErr.Fields[field]; !ok {
			t.Errorf("Expected error for field %s", field)
		}
	}
}

func TestSanitizeEmail(t *testing.T) {
	if got := SanitizeEmail("  Ada@Example.COM "); got != "ada@example.com" {
		t.Errorf("Expected 'ada@example.com', got '%s'", got)
	}
}
