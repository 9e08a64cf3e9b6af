// Package budget enforces the daily hour cap on work reports.
package budget

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// DailyCap is the maximum number of hours a user may log for one date.
	DailyCap = 24
	// MinHours is the smallest accepted hour value of a single record.
	MinHours = 1
	// MaxHours is the largest accepted hour value of a single record.
	MaxHours = 24
)

// ErrInvalidHours reports hours that are not a whole number in [MinHours, MaxHours].
var ErrInvalidHours = errors.New("hours must be a whole number from 1 to 24")

// ParseHours validates a proposed hour value. This check runs before, and
// independently of, the budget arithmetic.
func ParseHours(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidHours, s)
	}
	if err := ValidateHours(n); err != nil {
		return 0, err
	}
	return n, nil
}

// ValidateHours checks an already-parsed hour value.
func ValidateHours(n int) error {
	if n < MinHours || n > MaxHours {
		return fmt.Errorf("%w: %d", ErrInvalidHours, n)
	}
	return nil
}
