package reports

import (
	"errors"
	"fmt"
	"strings"
)

const maxDetailLength = 255

// PositionCategory is the closed set of role families a report can target.
type PositionCategory string

const (
	PositionCategoryEngineering PositionCategory = "engineering"
	PositionCategoryDesign      PositionCategory = "design"
	PositionCategoryProduct     PositionCategory = "product"
	PositionCategoryData        PositionCategory = "data"
	PositionCategoryMarketing   PositionCategory = "marketing"
	PositionCategorySales       PositionCategory = "sales"
	PositionCategoryOperations  PositionCategory = "operations"
	PositionCategorySupport     PositionCategory = "support"
	PositionCategoryOther       PositionCategory = "other"
)

// ReportStatus tracks a report through moderation.
type ReportStatus string

const (
	ReportStatusPending  ReportStatus = "pending"
	ReportStatusApproved ReportStatus = "approved"
	ReportStatusRejected ReportStatus = "rejected"
)

var (
	// ErrInvalidPositionCategory indicates the submitted category is not in the closed set.
	ErrInvalidPositionCategory = errors.New("reports: invalid position category")
	// ErrInvalidPositionDetail indicates the free-text position is empty or exceeds storage bounds.
	ErrInvalidPositionDetail = errors.New("reports: invalid position detail")
	// ErrReportNotFound indicates no report exists for the given identifier.
	ErrReportNotFound = errors.New("reports: report not found")
	// ErrAlreadyModerated indicates a verdict was already recorded for the report.
	ErrAlreadyModerated = errors.New("reports: report already moderated")
	// ErrInvalidVerdict indicates a moderation verdict outside approved/rejected.
	ErrInvalidVerdict = errors.New("reports: invalid moderation verdict")
)

var positionCategories = map[PositionCategory]struct{}{
	PositionCategoryEngineering: {},
	PositionCategoryDesign:      {},
	PositionCategoryProduct:     {},
	PositionCategoryData:        {},
	PositionCategoryMarketing:   {},
	PositionCategorySales:       {},
	PositionCategoryOperations:  {},
	PositionCategorySupport:     {},
	PositionCategoryOther:       {},
}

// ParsePositionCategory validates raw input against the closed category set.
func ParsePositionCategory(raw string) (PositionCategory, error) {
	category := PositionCategory(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := positionCategories[category]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidPositionCategory, raw)
	}
	return category, nil
}

// ValidatePositionDetail checks the free-text position description bounds.
// Normalization for dedupe happens downstream in the rate limiter.
func ValidatePositionDetail(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPositionDetail)
	}
	if len(trimmed) > maxDetailLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidPositionDetail, maxDetailLength)
	}
	return trimmed, nil
}

// ParseVerdict maps raw moderation input to a terminal status.
func ParseVerdict(raw string) (ReportStatus, error) {
	switch ReportStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case ReportStatusApproved:
		return ReportStatusApproved, nil
	case ReportStatusRejected:
		return ReportStatusRejected, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidVerdict, raw)
	}
}

// Report is one anonymous ghosting report. No submitter identity is stored on
// it; abuse control happens entirely in the rate-limit ledgers.
type Report struct {
	ReportID          string           `gorm:"column:report_id;primaryKey;size:36;not null"`
	CompanyID         string           `gorm:"column:company_id;size:36;not null;index:idx_reports_company_status,priority:1"`
	PositionCategory  PositionCategory `gorm:"column:position_category;size:32;not null"`
	PositionDetail    string           `gorm:"column:position_detail;size:255;not null"`
	Details           string           `gorm:"column:details;type:text;not null;default:''"`
	Status            ReportStatus     `gorm:"column:status;size:16;not null;default:'pending';index:idx_reports_company_status,priority:2"`
	CreatedAtSeconds  int64            `gorm:"column:created_at_s;not null"`
	ReviewedAtSeconds *int64           `gorm:"column:reviewed_at_s"`
}

// TableName provides the explicit table binding for GORM.
func (Report) TableName() string {
	return "reports"
}
