// Package utils holds small input validators shared across layers.
package utils

import (
	"fmt"
	"regexp"
)

// ValidateEmail validates an email address
func ValidateEmail(email string) error {
	emailRegex := regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

// ValidateCurrency validates a lowercase 3-letter ISO 4217 code
func ValidateCurrency(currency string) error {
	currencyRegex := regexp.MustCompile(`^[a-z]{3}$`)
	if !currencyRegex.MatchString(currency) {
		return fmt.Errorf("currency must be a 3-letter code: %s", currency)
	}
	return nil
}
