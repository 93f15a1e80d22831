package publishing

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/MarcoPoloResearchLab/lectern/backend/internal/catalog"
	"go.uber.org/zap"
)

const (
	opCreateCategory = "publishing.create_category"
	opUpdateCategory = "publishing.update_category"
	opDeleteCategory = "publishing.delete_category"
)

var categorySlugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// CategoryStore persists categories.
type CategoryStore interface {
	CreateCategory(ctx context.Context, category catalog.Category) (catalog.Category, error)
	UpdateCategory(ctx context.Context, id string, patch catalog.CategoryPatch) (catalog.Category, error)
	DeleteCategory(ctx context.Context, id string) (bool, error)
}

// CategoryCoordinatorConfig configures a CategoryCoordinator.
type CategoryCoordinatorConfig struct {
	Categories CategoryStore
	Logger     *zap.Logger
}

// CategoryCoordinator validates and applies category mutations.
type CategoryCoordinator struct {
	categories CategoryStore
	logger     *zap.Logger
}

// NewCategoryCoordinator constructs a CategoryCoordinator.
func NewCategoryCoordinator(cfg CategoryCoordinatorConfig) (*CategoryCoordinator, error) {
	if cfg.Categories == nil {
		return nil, errMissingCategoryStore
	}
	return &CategoryCoordinator{categories: cfg.Categories, logger: loggerOrDefault(cfg.Logger)}, nil
}

// Create inserts a category. The id is a lowercase slug and never changes.
func (c *CategoryCoordinator) Create(ctx context.Context, form CategoryForm) (catalog.Category, error) {
	id := strings.TrimSpace(valueOf(form.ID))
	if !categorySlugPattern.MatchString(id) {
		return catalog.Category{}, validationError(opCreateCategory, "id %q must be a lowercase slug", id)
	}
	if blank(form.Label) {
		return catalog.Category{}, validationError(opCreateCategory, "label is required")
	}

	created, err := c.categories.CreateCategory(ctx, catalog.Category{
		ID:          id,
		Label:       strings.TrimSpace(*form.Label),
		Description: valueOf(form.Description),
		Icon:        strings.TrimSpace(valueOf(form.Icon)),
	})
	if err != nil {
		return catalog.Category{}, c.storeError(opCreateCategory, id, err)
	}
	c.logger.Info("category created", zap.String("category_id", id))
	return created, nil
}

// Update changes the label, description or icon of a category.
func (c *CategoryCoordinator) Update(ctx context.Context, id string, form CategoryForm) (catalog.Category, error) {
	if presentButBlank(form.Label) {
		return catalog.Category{}, validationError(opUpdateCategory, "label must not be empty")
	}
	if form.ID != nil && strings.TrimSpace(*form.ID) != id {
		return catalog.Category{}, validationError(opUpdateCategory, "id is immutable")
	}
	patch := catalog.CategoryPatch{Description: form.Description}
	if form.Label != nil {
		patch.Label = trimmedPointer(*form.Label)
	}
	if form.Icon != nil {
		patch.Icon = trimmedPointer(*form.Icon)
	}

	updated, err := c.categories.UpdateCategory(ctx, id, patch)
	if err != nil {
		return catalog.Category{}, c.storeError(opUpdateCategory, id, err)
	}
	c.logger.Info("category updated", zap.String("category_id", id))
	return updated, nil
}

// Delete removes a category no content references. A missing category is
// reported as not found.
func (c *CategoryCoordinator) Delete(ctx context.Context, id string) error {
	removed, err := c.categories.DeleteCategory(ctx, id)
	if err != nil {
		return c.storeError(opDeleteCategory, id, err)
	}
	if !removed {
		return newServiceError(opDeleteCategory, reasonNotFound, fmt.Errorf("%w: category %s", catalog.ErrNotFound, id))
	}
	c.logger.Info("category deleted", zap.String("category_id", id))
	return nil
}

func (c *CategoryCoordinator) storeError(operation, id string, err error) error {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return newServiceError(operation, reasonNotFound, err)
	case errors.Is(err, catalog.ErrConstraintViolation):
		return newServiceError(operation, "still_referenced", err)
	case errors.Is(err, catalog.ErrConflict):
		return newServiceError(operation, "duplicate_id", err)
	case errors.Is(err, catalog.ErrInvalidInput):
		return newServiceError(operation, reasonValidation, fmt.Errorf("%w: %w", ErrValidationFailed, err))
	}
	logError(c.logger, operation, reasonPersist, err, zap.String("category_id", id))
	return newServiceError(operation, reasonPersist, err)
}
