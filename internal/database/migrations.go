package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationFoldPositionKeyCase = "2026-05-12_fold_position_key_case"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationFoldPositionKeyCase, apply: foldPositionKeyCase},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// foldPositionKeyCase repairs uniqueness rows written before position keys
// were case-folded. Rows whose folded key already exists are dropped rather
// than folded so the update cannot trip the unique constraint.
func foldPositionKeyCase(db *gorm.DB) error {
	dropShadowed := `
		DELETE FROM ip_company_limits
		WHERE position_key <> lower(position_key)
		  AND EXISTS (
			SELECT 1 FROM ip_company_limits AS canonical
			WHERE canonical.ip_hash = ip_company_limits.ip_hash
			  AND canonical.company_id = ip_company_limits.company_id
			  AND canonical.position_key = lower(ip_company_limits.position_key)
		  );`
	if err := db.Exec(dropShadowed).Error; err != nil {
		return err
	}
	fold := `
		UPDATE ip_company_limits
		SET position_key = lower(position_key)
		WHERE position_key <> lower(position_key);`
	return db.Exec(fold).Error
}
