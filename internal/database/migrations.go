package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/lectern/backend/internal/catalog"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillEmptyJSONLists = "2026-03-01_backfill_empty_json_lists"
	migrationLowercaseContentTypes  = "2026-03-08_lowercase_content_types"
)

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
		{name: migrationBackfillEmptyJSONLists, apply: backfillEmptyJSONLists},
		{name: migrationLowercaseContentTypes, apply: lowercaseContentTypes},
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

// backfillEmptyJSONLists replaces NULL list columns with empty JSON arrays so
// readers never see a null tag or formation list.
func backfillEmptyJSONLists(db *gorm.DB) error {
	if err := db.Model(&catalog.Content{}).Where("tags IS NULL").Update("tags", "[]").Error; err != nil {
		return err
	}
	if err := db.Model(&catalog.Profile{}).Where("formations IS NULL").Update("formations", "[]").Error; err != nil {
		return err
	}
	return db.Model(&catalog.Profile{}).Where("motivations IS NULL").Update("motivations", "[]").Error
}

func lowercaseContentTypes(db *gorm.DB) error {
	return db.Model(&catalog.Content{}).
		Where("type <> LOWER(type)").
		Update("type", gorm.Expr("LOWER(type)")).Error
}
