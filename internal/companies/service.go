package companies

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("companies: database handle is required")
	errMissingIDProvider = errors.New("companies: id provider is required")
	noOpLogger           = zap.NewNop()
)

// ErrCompanyNotFound indicates no company exists for the given identifier.
var ErrCompanyNotFound = errors.New("companies: company not found")

// IDProvider issues identifiers for newly created companies.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies for company resolution.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service resolves submitted company names to canonical records.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService validates the configuration and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
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
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// ResolveOrCreate returns the canonical company for the submitted name,
// creating it on first sight. Two concurrent first sights of the same name
// race on the unique normalized-name index; the loser re-reads the winner's
// row instead of failing.
func (s *Service) ResolveOrCreate(ctx context.Context, rawName string) (Company, error) {
	normalized, err := NormalizeName(rawName)
	if err != nil {
		return Company{}, err
	}

	var company Company
	err = s.db.WithContext(ctx).
		Where("normalized_name = ?", normalized).
		Take(&company).Error
	if err == nil {
		return company, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Company{}, err
	}

	companyID, err := s.idProvider.NewID()
	if err != nil {
		return Company{}, err
	}
	company = Company{
		CompanyID:        companyID,
		Name:             strings.Join(strings.Fields(rawName), " "),
		NormalizedName:   normalized,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	createErr := s.db.WithContext(ctx).Create(&company).Error
	if createErr == nil {
		s.logger.Info("company created",
			zap.String("company_id", company.CompanyID),
			zap.String("normalized_name", normalized))
		return company, nil
	}
	if isUniqueViolation(createErr) {
		var existing Company
		if err := s.db.WithContext(ctx).
			Where("normalized_name = ?", normalized).
			Take(&existing).Error; err != nil {
			return Company{}, err
		}
		return existing, nil
	}
	return Company{}, createErr
}

// GetByID loads one company by its identifier.
func (s *Service) GetByID(ctx context.Context, companyID string) (Company, error) {
	trimmed := strings.TrimSpace(companyID)
	if trimmed == "" {
		return Company{}, ErrCompanyNotFound
	}

	var company Company
	err := s.db.WithContext(ctx).
		Where("company_id = ?", trimmed).
		Take(&company).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Company{}, ErrCompanyNotFound
	}
	if err != nil {
		return Company{}, err
	}
	return company, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
