package reports

import (
	"context"
	"errors"
	"time"

	"github.com/necdetsanli/do-not-ghost-me-sub002/internal/companies"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("reports: database handle is required")
	errMissingLimiter    = errors.New("reports: report limiter is required")
	errMissingCompanies  = errors.New("reports: company resolver is required")
	errMissingIDProvider = errors.New("reports: id provider is required")
	noOpLogger           = zap.NewNop()
)

// IDProvider issues identifiers for newly created reports.
type IDProvider interface {
	NewID() (string, error)
}

// ReportLimiter guards report creation against abuse. Implemented by the
// rate-limit core; rejections surface as its typed errors.
type ReportLimiter interface {
	EnforceReportLimit(ctx context.Context, ip, companyID, positionCategory, positionDetail string) error
}

// CompanyResolver maps submitted company names to canonical records.
type CompanyResolver interface {
	ResolveOrCreate(ctx context.Context, rawName string) (companies.Company, error)
}

// ServiceConfig describes the dependencies for the report service.
type ServiceConfig struct {
	Database   *gorm.DB
	Limiter    ReportLimiter
	Companies  CompanyResolver
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service owns the report lifecycle: anonymous submission behind the rate
// limiter, public reads of approved reports, and admin moderation.
type Service struct {
	db         *gorm.DB
	limiter    ReportLimiter
	companies  CompanyResolver
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService validates the configuration and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Limiter == nil {
		return nil, errMissingLimiter
	}
	if cfg.Companies == nil {
		return nil, errMissingCompanies
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		limiter:    cfg.Limiter,
		companies:  cfg.Companies,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// SubmitInput carries one anonymous submission.
type SubmitInput struct {
	CompanyName      string
	PositionCategory string
	PositionDetail   string
	Details          string
}

// SubmitReport validates the submission, resolves the company, enforces the
// rate limits and records the pending report. Rate-limit rejections propagate
// typed and leave no report row behind.
func (s *Service) SubmitReport(ctx context.Context, clientIP string, input SubmitInput) (Report, error) {
	category, err := ParsePositionCategory(input.PositionCategory)
	if err != nil {
		return Report{}, err
	}
	detail, err := ValidatePositionDetail(input.PositionDetail)
	if err != nil {
		return Report{}, err
	}

	company, err := s.companies.ResolveOrCreate(ctx, input.CompanyName)
	if err != nil {
		return Report{}, err
	}

	if err := s.limiter.EnforceReportLimit(ctx, clientIP, company.CompanyID, string(category), detail); err != nil {
		return Report{}, err
	}

	reportID, err := s.idProvider.NewID()
	if err != nil {
		return Report{}, err
	}
	report := Report{
		ReportID:         reportID,
		CompanyID:        company.CompanyID,
		PositionCategory: category,
		PositionDetail:   detail,
		Details:          input.Details,
		Status:           ReportStatusPending,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&report).Error; err != nil {
		s.logger.Error("report insert failed",
			zap.String("company_id", company.CompanyID),
			zap.Error(err))
		return Report{}, err
	}

	s.logger.Info("report submitted",
		zap.String("report_id", report.ReportID),
		zap.String("company_id", company.CompanyID),
		zap.String("position_category", string(category)))
	return report, nil
}

// ListApproved returns the approved reports for one company, newest first.
func (s *Service) ListApproved(ctx context.Context, companyID string) ([]Report, error) {
	return s.listByStatus(ctx, companyID, ReportStatusApproved)
}

// ListPending returns reports awaiting moderation across all companies, oldest first.
func (s *Service) ListPending(ctx context.Context) ([]Report, error) {
	var pending []Report
	err := s.db.WithContext(ctx).
		Where("status = ?", ReportStatusPending).
		Order("created_at_s ASC").
		Find(&pending).Error
	if err != nil {
		return nil, err
	}
	return pending, nil
}

// Moderate records a terminal verdict for one pending report.
func (s *Service) Moderate(ctx context.Context, reportID string, verdict ReportStatus) (Report, error) {
	if verdict != ReportStatusApproved && verdict != ReportStatusRejected {
		return Report{}, ErrInvalidVerdict
	}

	var moderated Report
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var report Report
		err := tx.Where("report_id = ?", reportID).Take(&report).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrReportNotFound
		}
		if err != nil {
			return err
		}
		if report.Status != ReportStatusPending {
			return ErrAlreadyModerated
		}

		reviewedAt := s.clock().UTC().Unix()
		report.Status = verdict
		report.ReviewedAtSeconds = &reviewedAt
		if err := tx.Model(&Report{}).
			Where("report_id = ?", reportID).
			Updates(map[string]interface{}{
				"status":        verdict,
				"reviewed_at_s": reviewedAt,
			}).Error; err != nil {
			return err
		}
		moderated = report
		return nil
	})
	if txErr != nil {
		return Report{}, txErr
	}

	s.logger.Info("report moderated",
		zap.String("report_id", moderated.ReportID),
		zap.String("verdict", string(verdict)))
	return moderated, nil
}

func (s *Service) listByStatus(ctx context.Context, companyID string, status ReportStatus) ([]Report, error) {
	var found []Report
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND status = ?", companyID, status).
		Order("created_at_s DESC").
		Find(&found).Error
	if err != nil {
		return nil, err
	}
	return found, nil
}
