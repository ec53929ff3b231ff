package ratelimit

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrMissingIP indicates the caller could not supply a usable client address.
	// Enforcement fails closed on it before any database work.
	ErrMissingIP = errors.New("ratelimit: missing client ip")
	// ErrDailyLimitExceeded indicates the address reached its daily cap across all companies.
	ErrDailyLimitExceeded = errors.New("ratelimit: daily report limit exceeded")
	// ErrCompanyLimitExceeded indicates the address reached its cap for one company.
	ErrCompanyLimitExceeded = errors.New("ratelimit: company report limit exceeded")
	// ErrDuplicatePosition indicates this (ip, company, position) triple was already recorded.
	ErrDuplicatePosition = errors.New("ratelimit: position already reported for this company")
)

// IsLimitError reports whether err belongs to the closed rejection taxonomy.
// Store and driver failures are outside the set and propagate unchanged, so
// callers can keep infrastructure errors distinct from abuse rejections.
func IsLimitError(err error) bool {
	return errors.Is(err, ErrMissingIP) ||
		errors.Is(err, ErrDailyLimitExceeded) ||
		errors.Is(err, ErrCompanyLimitExceeded) ||
		errors.Is(err, ErrDuplicatePosition)
}

// isUniqueViolation classifies a rejected insert on the unique triple
// constraint. GORM translates it to ErrDuplicatedKey when the dialector
// supports error translation; the message probe covers drivers that surface
// the raw SQLite error instead.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
