package password

import (
	"fmt"
	"unicode"

	"github.com/smallbiznis/ifs-auth/internal/domain"
)

// MinLength is the shortest password accepted for new credentials.
const MinLength = 8

// ValidatePolicy enforces the password rules for new or changed passwords:
// at least MinLength characters with one letter and one digit.
func ValidatePolicy(password string) error {
	if len([]rune(password)) < MinLength {
		return fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidInput, MinLength)
	}

	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return fmt.Errorf("%w: password must contain at least one letter and one digit", domain.ErrInvalidInput)
	}
	return nil
}
