package companies

import (
	"errors"
	"fmt"
	"strings"
)

const maxNameLength = 190

// ErrInvalidCompanyName indicates the submitted name is empty or exceeds storage bounds.
var ErrInvalidCompanyName = errors.New("companies: invalid company name")

// Company is a reported employer, deduplicated by its normalized name.
type Company struct {
	CompanyID        string `gorm:"column:company_id;primaryKey;size:36;not null"`
	Name             string `gorm:"column:name;size:190;not null"`
	NormalizedName   string `gorm:"column:normalized_name;size:190;not null;uniqueIndex:idx_companies_normalized"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Company) TableName() string {
	return "companies"
}

// NormalizeName derives the dedupe key for a company name: inner whitespace
// runs collapse to single spaces and the result is lowercased. The submitted
// casing is preserved separately on the record.
func NormalizeName(raw string) (string, error) {
	collapsed := strings.Join(strings.Fields(raw), " ")
	if collapsed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidCompanyName)
	}
	if len(collapsed) > maxNameLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidCompanyName, maxNameLength)
	}
	return strings.ToLower(collapsed), nil
}
