package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// IPDailyLimit counts enforcement attempts per hashed address and UTC day.
// Rows are created on the first attempt of a day and advanced by an atomic
// upsert-increment; nothing deletes them here.
type IPDailyLimit struct {
	IPHash           string `gorm:"column:ip_hash;primaryKey;size:64;not null"`
	Day              string `gorm:"column:day;primaryKey;size:10;not null;index:idx_ip_daily_day"`
	Count            int64  `gorm:"column:count;not null;default:0"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (IPDailyLimit) TableName() string {
	return "ip_daily_limits"
}

// IPCompanyLimit records one accepted (ip, company, position) combination.
// The primary key enforces triple uniqueness in the store; the row count per
// (ip_hash, company_id) prefix is the per-company usage count.
type IPCompanyLimit struct {
	IPHash           string `gorm:"column:ip_hash;primaryKey;size:64;not null;index:idx_ip_company_pair,priority:1"`
	CompanyID        string `gorm:"column:company_id;primaryKey;size:36;not null;index:idx_ip_company_pair,priority:2"`
	PositionKey      string `gorm:"column:position_key;primaryKey;size:255;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (IPCompanyLimit) TableName() string {
	return "ip_company_limits"
}

// PairLock is the sentinel row written to serialize enforcement calls that
// share one (ip, company) pair. The table never grows past one row per pair.
type PairLock struct {
	LockKey           string `gorm:"column:lock_key;primaryKey;size:64;not null"`
	AcquiredAtSeconds int64  `gorm:"column:acquired_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (PairLock) TableName() string {
	return "report_limit_locks"
}

// DayKey buckets an instant into its UTC calendar date. Requests a millisecond
// apart across midnight UTC land in different buckets.
func DayKey(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}

// PositionKey derives the slot identifier for one position at one company.
// Free-text details that differ only by case or surrounding whitespace
// collapse to the same key.
func PositionKey(category, detail string) string {
	return category + ":" + strings.ToLower(strings.TrimSpace(detail))
}

// pairLockKey hashes the (ipHash, companyID) pair into the lock key space.
func pairLockKey(ipHash, companyID string) string {
	digest := sha256.Sum256([]byte(ipHash + ":" + companyID))
	return hex.EncodeToString(digest[:])
}
