package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func newTestLimiter(t *testing.T, maxPerDay, maxPerCompany int, clock *testClock) (*Limiter, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:ratelimit_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&IPDailyLimit{}, &IPCompanyLimit{}, &PairLock{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	hasher, err := NewHasher(testSalt)
	if err != nil {
		t.Fatalf("failed to construct hasher: %v", err)
	}

	limiter, err := NewLimiter(LimiterConfig{
		Database:      db,
		Hasher:        hasher,
		MaxPerDay:     maxPerDay,
		MaxPerCompany: maxPerCompany,
		Clock:         clock.Now,
	})
	if err != nil {
		t.Fatalf("failed to construct limiter: %v", err)
	}

	return limiter, db
}

func mustHash(t *testing.T, ip string) string {
	t.Helper()
	hasher, err := NewHasher(testSalt)
	if err != nil {
		t.Fatalf("failed to construct hasher: %v", err)
	}
	digest, err := hasher.HashIP(ip)
	if err != nil {
		t.Fatalf("failed to hash ip: %v", err)
	}
	return digest
}

func dailyCount(t *testing.T, db *gorm.DB, ipHash, day string) int64 {
	t.Helper()
	var record IPDailyLimit
	err := db.Where("ip_hash = ? AND day = ?", ipHash, day).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0
	}
	if err != nil {
		t.Fatalf("failed to read daily counter: %v", err)
	}
	return record.Count
}

func pairRows(t *testing.T, db *gorm.DB, ipHash, companyID string) int64 {
	t.Helper()
	var count int64
	err := db.Model(&IPCompanyLimit{}).
		Where("ip_hash = ? AND company_id = ?", ipHash, companyID).
		Count(&count).Error
	if err != nil {
		t.Fatalf("failed to count company ledger rows: %v", err)
	}
	return count
}

func TestEnforceAllowsDistinctPositionsUpToCompanyCap(t *testing.T) {
	clock := &testClock{now: time.Date(2025, time.January, 5, 12, 0, 0, 0, time.UTC)}
	limiter, db := newTestLimiter(t, 10, 3, clock)
	ctx := context.Background()

	positions := []string{"Backend Developer", "Frontend Developer", "SRE"}
	for _, position := range positions {
		if err := limiter.EnforceReportLimit(ctx, "203.0.113.42", "company-1", "engineering", position); err != nil {
			t.Fatalf("expected %q to be accepted: %v", position, err)
		}
	}

	err := limiter.EnforceReportLimit(ctx, "203.0.113.42", "company-1", "engineering", "Data Engineer")
	if !errors.Is(err, ErrCompanyLimitExceeded) {
		t.Fatalf("expected ErrCompanyLimitExceeded, got %v", err)
	}

	ipHash := mustHash(t, "203.0.113.42")
	if rows := pairRows(t, db, ipHash, "company-1"); rows != 3 {
		t.Fatalf("expected 3 ledger rows, got %d", rows)
	}
	// The rejected attempt's daily increment must have rolled back with its transaction.
	if count := dailyCount(t, db, ipHash, "2025-01-05"); count != 3 {
		t.Fatalf("expected daily counter 3 after rollback, got %d", count)
	}
}

func TestEnforceDailyCapAcrossCompanies(t *testing.T) {
	clock := &testClock{now: time.Date(2025, time.January, 5, 12, 0, 0, 0, time.UTC)}
	limiter, db := newTestLimiter(t, 3, 3, clock)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		companyID := fmt.Sprintf("company-%d", i)
		if err := limiter.EnforceReportLimit(ctx, "203.0.113.42", companyID, "engineering", "Backend Developer"); err != nil {
			t.Fatalf("expected submission %d to be accepted: %v", i, err)
		}
	}

	err := limiter.EnforceReportLimit(ctx, "203.0.113.42", "company-4", "engineering", "Backend Developer")
	if !errors.Is(err, ErrDailyLimitExceeded) {
		t.Fatalf("expected ErrDailyLimitExceeded, got %v", err)
	}

	ipHash := mustHash(t, "203.0.113.42")
	if rows := pairRows(t, db, ipHash, "company-4"); rows != 0 {
		t.Fatalf("rejected attempt must not add a company ledger row, got %d", rows)
	}
	if count := dailyCount(t, db, ipHash, "2025-01-05"); count != 3 {
		t.Fatalf("expected daily counter 3 after rollback, got %d", count)
	}

	// A different address is unaffected by this address's cap.
	if err := limiter.EnforceReportLimit(ctx, "203.0.113.43", "company-4", "engineering", "Backend Developer"); err != nil {
		t.Fatalf("expected other address to be accepted: %v", err)
	}
}

func TestEnforceRejectsDuplicatePosition(t *testing.T) {
	clock := &testClock{now: time.Date(2025, time.January, 5, 12, 0, 0, 0, time.UTC)}
	limiter, db := newTestLimiter(t, 10, 3, clock)
	ctx := context.Background()

	if err := limiter.EnforceReportLimit(ctx, "203.0.113.42", "company-1", "engineering", "Backend Developer"); err != nil {
		t.Fatalf("expected first submission to be accepted: %v", err)
	}

	err := limiter.EnforceReportLimit(ctx, "203.0.113.42", "company-1", "engineering", "  backend developer ")
	if !errors.Is(err, ErrDuplicatePosition) {
		t.Fatalf("expected ErrDuplicatePosition for case/whitespace variant, got %v", err)
	}

	ipHash := mustHash(t, "203.0.113.42")
	if rows := pairRows(t, db, ipHash, "company-1"); rows != 1 {
		t.Fatalf("expected a single ledger row, got %d", rows)
	}
	if count := dailyCount(t, db, ipHash, "2025-01-05"); count != 1 {
		t.Fatalf("expected daily counter 1 after rollback, got %d", count)
	}
}

func TestEnforceSplitsDailyBucketsAtUTCMidnight(t *testing.T) {
	clock := &testClock{now: time.Date(2025, time.January, 5, 23, 59, 59, 999000000, time.UTC)}
	limiter, db := newTestLimiter(t, 1, 3, clock)
	ctx := context.Background()

	if err := limiter.EnforceReportLimit(ctx, "203.0.113.42", "company-1", "engineering", "Backend Developer"); err != nil {
		t.Fatalf("expected submission before midnight to be accepted: %v", err)
	}

	clock.Set(clock.Now().Add(time.Millisecond))
	if err := limiter.EnforceReportLimit(ctx, "203.0.113.42", "company-1", "engineering", "Frontend Developer"); err != nil {
		t.Fatalf("expected submission after midnight to land in a fresh bucket: %v", err)
	}

	ipHash := mustHash(t, "203.0.113.42")
	if count := dailyCount(t, db, ipHash, "2025-01-05"); count != 1 {
		t.Fatalf("unexpected count in first bucket: %d", count)
	}
	if count := dailyCount(t, db, ipHash, "2025-01-06"); count != 1 {
		t.Fatalf("unexpected count in second bucket: %d", count)
	}
}

func TestEnforceFailsClosedWithoutClientIP(t *testing.T) {
	clock := &testClock{now: time.Date(2025, time.January, 5, 12, 0, 0, 0, time.UTC)}
	limiter, db := newTestLimiter(t, 10, 3, clock)
	ctx := context.Background()

	for _, raw := range []string{"", "   ", "unknown"} {
		if err := limiter.EnforceReportLimit(ctx, raw, "company-1", "engineering", "Backend Developer"); !errors.Is(err, ErrMissingIP) {
			t.Fatalf("expected ErrMissingIP for %q, got %v", raw, err)
		}
	}

	var counters int64
	if err := db.Model(&IPDailyLimit{}).Count(&counters).Error; err != nil {
		t.Fatalf("failed to count daily rows: %v", err)
	}
	if counters != 0 {
		t.Fatalf("missing-ip rejections must not touch the store, found %d rows", counters)
	}
}

func TestEnforceConcurrentDistinctPositionsBothCommit(t *testing.T) {
	clock := &testClock{now: time.Date(2025, time.January, 5, 12, 0, 0, 0, time.UTC)}
	limiter, db := newTestLimiter(t, 10, 3, clock)

	var wg sync.WaitGroup
	results := make([]error, 2)
	positions := []string{"Backend Developer", "Frontend Developer"}
	for i := range positions {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			results[index] = limiter.EnforceReportLimit(context.Background(), "203.0.113.42", "company-1", "engineering", positions[index])
		}(i)
	}
	wg.Wait()

	for i, err := range results {
		if err != nil {
			t.Fatalf("expected concurrent submission %d to succeed: %v", i, err)
		}
	}

	ipHash := mustHash(t, "203.0.113.42")
	if rows := pairRows(t, db, ipHash, "company-1"); rows != 2 {
		t.Fatalf("expected exactly 2 ledger rows, got %d", rows)
	}
	if count := dailyCount(t, db, ipHash, "2025-01-05"); count != 2 {
		t.Fatalf("expected daily counter 2, got %d", count)
	}
}

func TestEnforceConcurrentIdenticalTripleExactlyOneWins(t *testing.T) {
	clock := &testClock{now: time.Date(2025, time.January, 5, 12, 0, 0, 0, time.UTC)}
	limiter, db := newTestLimiter(t, 10, 3, clock)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			results[index] = limiter.EnforceReportLimit(context.Background(), "203.0.113.42", "company-1", "engineering", "Backend Developer")
		}(i)
	}
	wg.Wait()

	var accepted, duplicates int
	for _, err := range results {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, ErrDuplicatePosition):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if accepted != 1 || duplicates != 1 {
		t.Fatalf("expected exactly one winner and one duplicate, got %d accepted and %d duplicates", accepted, duplicates)
	}

	ipHash := mustHash(t, "203.0.113.42")
	if rows := pairRows(t, db, ipHash, "company-1"); rows != 1 {
		t.Fatalf("expected a single ledger row, got %d", rows)
	}
	if count := dailyCount(t, db, ipHash, "2025-01-05"); count != 1 {
		t.Fatalf("expected daily counter 1 after the duplicate rolled back, got %d", count)
	}
}
