package catalog

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opListCategories = "catalog.list_categories"
	opGetCategory    = "catalog.get_category"
	opCreateCategory = "catalog.create_category"
	opUpdateCategory = "catalog.update_category"
	opDeleteCategory = "catalog.delete_category"
	opSaveCategory   = "catalog.save_category"
)

// ListCategories returns every category ordered by label.
func (s *Store) ListCategories(ctx context.Context) ([]Category, error) {
	db, err := s.session(ctx, opListCategories)
	if err != nil {
		return nil, err
	}
	var categories []Category
	if err := db.Order("label ASC, id ASC").Find(&categories).Error; err != nil {
		return nil, s.fail(opListCategories, reasonQueryFailed, err)
	}
	return categories, nil
}

// GetCategory returns the category with the given slug.
func (s *Store) GetCategory(ctx context.Context, id string) (Category, error) {
	db, err := s.session(ctx, opGetCategory)
	if err != nil {
		return Category{}, err
	}
	var category Category
	err = db.Where("id = ?", id).Take(&category).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Category{}, s.fail(opGetCategory, reasonNotFound, ErrNotFound, zap.String("category_id", id))
	}
	if err != nil {
		return Category{}, s.fail(opGetCategory, reasonQueryFailed, err, zap.String("category_id", id))
	}
	return category, nil
}

// CreateCategory inserts a new category. The slug must not exist yet.
func (s *Store) CreateCategory(ctx context.Context, category Category) (Category, error) {
	db, err := s.session(ctx, opCreateCategory)
	if err != nil {
		return Category{}, err
	}
	if category.ID, err = NormalizeIdentifier(category.ID); err != nil {
		return Category{}, s.fail(opCreateCategory, reasonInvalidInput, err)
	}

	txErr := db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Category{}).Where("id = ?", category.ID).Count(&count).Error; err != nil {
			return s.fail(opCreateCategory, "category_lookup_failed", err, zap.String("category_id", category.ID))
		}
		if count > 0 {
			return s.fail(opCreateCategory, "duplicate_id", ErrConflict, zap.String("category_id", category.ID))
		}
		category.CreatedAtMillis = s.nowMillis()
		if err := tx.Create(&category).Error; err != nil {
			return s.fail(opCreateCategory, "category_insert_failed", err, zap.String("category_id", category.ID))
		}
		return nil
	})
	if txErr != nil {
		return Category{}, txErr
	}
	return category, nil
}

// UpdateCategory applies the non-nil fields of patch to an existing category.
func (s *Store) UpdateCategory(ctx context.Context, id string, patch CategoryPatch) (Category, error) {
	db, err := s.session(ctx, opUpdateCategory)
	if err != nil {
		return Category{}, err
	}

	var updated Category
	txErr := db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ?", id).Take(&updated).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.fail(opUpdateCategory, reasonNotFound, ErrNotFound, zap.String("category_id", id))
		}
		if err != nil {
			return s.fail(opUpdateCategory, "category_select_failed", err, zap.String("category_id", id))
		}

		updates := map[string]any{}
		if patch.Label != nil {
			updates["label"] = *patch.Label
		}
		if patch.Description != nil {
			updates["description"] = *patch.Description
		}
		if patch.Icon != nil {
			updates["icon"] = *patch.Icon
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&Category{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return s.fail(opUpdateCategory, "category_update_failed", err, zap.String("category_id", id))
		}
		if err := tx.Where("id = ?", id).Take(&updated).Error; err != nil {
			return s.fail(opUpdateCategory, "category_reload_failed", err, zap.String("category_id", id))
		}
		return nil
	})
	if txErr != nil {
		return Category{}, txErr
	}
	return updated, nil
}

// DeleteCategory removes a category that no content references. It reports
// whether a row was removed; ErrConstraintViolation is returned while any
// content still points at the category.
func (s *Store) DeleteCategory(ctx context.Context, id string) (bool, error) {
	db, err := s.session(ctx, opDeleteCategory)
	if err != nil {
		return false, err
	}

	removed := false
	txErr := db.Transaction(func(tx *gorm.DB) error {
		var referencing int64
		if err := tx.Model(&Content{}).Where("category = ?", id).Limit(1).Count(&referencing).Error; err != nil {
			return s.fail(opDeleteCategory, "reference_check_failed", err, zap.String("category_id", id))
		}
		if referencing > 0 {
			return s.fail(opDeleteCategory, "still_referenced", ErrConstraintViolation, zap.String("category_id", id))
		}
		result := tx.Where("id = ?", id).Delete(&Category{})
		if result.Error != nil {
			return s.fail(opDeleteCategory, "category_delete_failed", result.Error, zap.String("category_id", id))
		}
		removed = result.RowsAffected > 0
		return nil
	})
	if txErr != nil {
		return false, txErr
	}
	return removed, nil
}

// SaveCategory inserts or replaces a category; used by seeding.
func (s *Store) SaveCategory(ctx context.Context, category Category) (Category, error) {
	db, err := s.session(ctx, opSaveCategory)
	if err != nil {
		return Category{}, err
	}
	if category.ID, err = NormalizeIdentifier(category.ID); err != nil {
		return Category{}, s.fail(opSaveCategory, reasonInvalidInput, err)
	}
	if category.CreatedAtMillis == 0 {
		category.CreatedAtMillis = s.nowMillis()
	}
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"label", "description", "icon"}),
	}).Create(&category).Error
	if err != nil {
		return Category{}, s.fail(opSaveCategory, "category_upsert_failed", err, zap.String("category_id", category.ID))
	}
	return category, nil
}
