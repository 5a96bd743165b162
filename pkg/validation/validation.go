package validation

import (
	"fmt"
	"regexp"
)

const (
	MinConcurrency = 1
	MaxConcurrency = 8
)

var serviceNameRe = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// ValidateConcurrency bounds the sweep worker count. Concurrent browser
// sessions increase anti-automation detection risk, so the ceiling is small.
func ValidateConcurrency(n int) error {
	if n < MinConcurrency || n > MaxConcurrency {
		return fmt.Errorf("concurrency must be between %d and %d, got %d", MinConcurrency, MaxConcurrency, n)
	}
	return nil
}

// ValidateServiceName checks that a service key is usable as a directory
// name and an environment variable fragment.
func ValidateServiceName(name string) error {
	if !serviceNameRe.MatchString(name) {
		return fmt.Errorf("invalid service name: %q (must be lowercase alphanumeric, starting with a letter)", name)
	}
	return nil
}

// ValidateExpirationWindow checks the expiration/warning/critical day
// thresholds for a service.
func ValidateExpirationWindow(expirationDays, warningDays, criticalDays int) error {
	if expirationDays <= 0 {
		return fmt.Errorf("expiration_days must be positive, got %d", expirationDays)
	}
	if warningDays < 0 || criticalDays < 0 {
		return fmt.Errorf("warning_days and critical_days must not be negative, got %d and %d", warningDays, criticalDays)
	}
	if criticalDays > warningDays {
		return fmt.Errorf("critical_days (%d) must not exceed warning_days (%d)", criticalDays, warningDays)
	}
	if warningDays >= expirationDays {
		return fmt.Errorf("warning_days (%d) must be less than expiration_days (%d)", warningDays, expirationDays)
	}
	return nil
}

// ValidateNonEmptyString checks that a required field has a value.
func ValidateNonEmptyString(fieldName, value string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	return nil
}
