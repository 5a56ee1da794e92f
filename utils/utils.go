package utils

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"
)

// DefaultBcryptCost matches the cost the account records were created with.
const DefaultBcryptCost = 12

func HashPassword(password string, cost int) (string, error) {
	if cost <= 0 {
		cost = DefaultBcryptCost
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(bytes), err
}

func CheckPassword(hash string, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// NormalizeEmail is the canonical at-rest form: trimmed and lowercased.
// The email column carries a unique index on this form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeName trims and NFC-normalizes a display name so visually
// identical names compare equal regardless of input composition.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

const passwordSpecials = "@$!%*?&"

var ErrPasswordPolicy = errors.New("password must be at least 8 characters and contain an uppercase letter, a lowercase letter, a number and a special character")

// ValidatePassword enforces the account password policy: minimum eight
// characters with at least one lowercase, one uppercase, one digit and one
// of @$!%*?&.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrPasswordPolicy
	}
	var lower, upper, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		}
	}
	if !lower || !upper || !digit || !special {
		return ErrPasswordPolicy
	}
	return nil
}
