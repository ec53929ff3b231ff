package ratelimit

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("ratelimit: database handle is required")
	errMissingHasher   = errors.New("ratelimit: ip hasher is required")
	errInvalidCaps     = errors.New("ratelimit: limits must be positive")
	noOpLogger         = zap.NewNop()
)

// LimiterConfig describes the dependencies and caps for report enforcement.
type LimiterConfig struct {
	Database      *gorm.DB
	Hasher        *Hasher
	MaxPerDay     int
	MaxPerCompany int
	Clock         func() time.Time
	Logger        *zap.Logger
}

// Limiter enforces the per-IP daily cap, the per-(IP, company) cap and the
// per-(IP, company, position) uniqueness rule in one atomic unit of work
// against the shared store. It holds no in-process limiting state, so any
// number of server instances can share one database.
type Limiter struct {
	db            *gorm.DB
	hasher        *Hasher
	maxPerDay     int64
	maxPerCompany int64
	clock         func() time.Time
	logger        *zap.Logger
}

// NewLimiter validates the configuration and constructs a Limiter.
func NewLimiter(cfg LimiterConfig) (*Limiter, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Hasher == nil {
		return nil, errMissingHasher
	}
	if cfg.MaxPerDay <= 0 || cfg.MaxPerCompany <= 0 {
		return nil, errInvalidCaps
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Limiter{
		db:            cfg.Database,
		hasher:        cfg.Hasher,
		maxPerDay:     int64(cfg.MaxPerDay),
		maxPerCompany: int64(cfg.MaxPerCompany),
		clock:         clock,
		logger:        logger,
	}, nil
}

// EnforceReportLimit decides whether one report submission may proceed.
//
// All checks run inside a single transaction: the daily upsert-increment, the
// pair lock write, the per-company count and the triple insert commit or roll
// back together. A rejected attempt therefore leaves no durable trace — the
// daily increment that already happened inside the call is discarded with the
// rollback. Only the closed taxonomy in errors.go is returned for rejections;
// store failures propagate unchanged.
func (l *Limiter) EnforceReportLimit(ctx context.Context, ip, companyID, positionCategory, positionDetail string) error {
	// Fail closed before touching the store.
	ipHash, err := l.hasher.HashIP(ip)
	if err != nil {
		return err
	}

	day := DayKey(l.clock())
	positionKey := PositionKey(positionCategory, positionDetail)

	txErr := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := l.enforceDaily(tx, ipHash, day); err != nil {
			return err
		}
		if err := l.acquirePairLock(tx, ipHash, companyID); err != nil {
			return err
		}
		return l.enforceCompany(tx, ipHash, companyID, positionKey)
	})
	if txErr != nil {
		if IsLimitError(txErr) {
			l.logger.Info("report submission rejected",
				zap.String("ip_hash", ipHash),
				zap.String("company_id", companyID),
				zap.String("reason", txErr.Error()))
		} else {
			l.logger.Error("report limit enforcement failed",
				zap.String("ip_hash", ipHash),
				zap.String("company_id", companyID),
				zap.Error(txErr))
		}
		return txErr
	}

	return nil
}

// enforceDaily advances the (ipHash, day) counter with a single indivisible
// upsert-increment and validates the post-increment value. Two concurrent
// increments can never observe the same pre-increment count because the read
// and the write are one statement. The counter is deliberately not covered by
// the pair lock: it is keyed only by address and day, and serializing every
// company a single address touches would add contention for nothing.
func (l *Limiter) enforceDaily(tx *gorm.DB, ipHash, day string) error {
	now := l.clock().UTC().Unix()
	var count int64
	err := tx.Raw(`
		INSERT INTO ip_daily_limits (ip_hash, day, count, created_at_s, updated_at_s)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT (ip_hash, day) DO UPDATE SET
			count = count + 1,
			updated_at_s = excluded.updated_at_s
		RETURNING count`,
		ipHash, day, now, now).Scan(&count).Error
	if err != nil {
		return err
	}
	if count > l.maxPerDay {
		return ErrDailyLimitExceeded
	}
	return nil
}

// acquirePairLock serializes enforcement calls that share one (ip, company)
// pair. The sentinel upsert forces this transaction onto the store's write
// path before the count-then-insert below, so a concurrent call for the same
// pair cannot interleave between the count and the insert. The lock is scoped
// to the transaction and keyed per pair; on a store with native advisory
// locks the same key feeds the advisory primitive instead.
func (l *Limiter) acquirePairLock(tx *gorm.DB, ipHash, companyID string) error {
	now := l.clock().UTC().Unix()
	return tx.Exec(`
		INSERT INTO report_limit_locks (lock_key, acquired_at_s)
		VALUES (?, ?)
		ON CONFLICT (lock_key) DO UPDATE SET acquired_at_s = excluded.acquired_at_s`,
		pairLockKey(ipHash, companyID), now).Error
}

// enforceCompany applies the per-company cap and the triple uniqueness rule.
// The count check is the fast path; the primary-key constraint on the insert
// is the authoritative duplicate check and always wins under races.
func (l *Limiter) enforceCompany(tx *gorm.DB, ipHash, companyID, positionKey string) error {
	var existing int64
	err := tx.Model(&IPCompanyLimit{}).
		Where("ip_hash = ? AND company_id = ?", ipHash, companyID).
		Count(&existing).Error
	if err != nil {
		return err
	}
	if existing >= l.maxPerCompany {
		return ErrCompanyLimitExceeded
	}

	record := IPCompanyLimit{
		IPHash:           ipHash,
		CompanyID:        companyID,
		PositionKey:      positionKey,
		CreatedAtSeconds: l.clock().UTC().Unix(),
	}
	if err := tx.Create(&record).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicatePosition
		}
		return err
	}
	return nil
}
