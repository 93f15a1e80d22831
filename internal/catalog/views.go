package catalog

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opContentViews          = "catalog.content_views"
	opAllContentViews       = "catalog.all_content_views"
	opIncrementContentViews = "catalog.increment_content_views"
	opSetContentViews       = "catalog.set_content_views"
	opContentsWithViews     = "catalog.contents_with_views"
	opTopViewedContents     = "catalog.top_viewed_contents"
	opTotalViews            = "catalog.total_views"

	defaultTopViewedLimit = 10
)

// ContentViews returns the view counter of a content, zero when never viewed.
func (s *Store) ContentViews(ctx context.Context, contentID string) (int64, error) {
	db, err := s.session(ctx, opContentViews)
	if err != nil {
		return 0, err
	}
	var view ContentView
	err = db.Where("content_id = ?", contentID).Take(&view).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, s.fail(opContentViews, reasonQueryFailed, err, zap.String("content_id", contentID))
	}
	return view.Views, nil
}

// AllContentViews returns every recorded counter keyed by content id.
func (s *Store) AllContentViews(ctx context.Context) (map[string]int64, error) {
	db, err := s.session(ctx, opAllContentViews)
	if err != nil {
		return nil, err
	}
	var views []ContentView
	if err := db.Find(&views).Error; err != nil {
		return nil, s.fail(opAllContentViews, reasonQueryFailed, err)
	}
	result := make(map[string]int64, len(views))
	for _, view := range views {
		result[view.ContentID] = view.Views
	}
	return result, nil
}

// IncrementContentViews adds one view and returns the new counter value.
func (s *Store) IncrementContentViews(ctx context.Context, contentID string) (int64, error) {
	db, err := s.session(ctx, opIncrementContentViews)
	if err != nil {
		return 0, err
	}
	if contentID, err = NormalizeIdentifier(contentID); err != nil {
		return 0, s.fail(opIncrementContentViews, reasonInvalidInput, err)
	}

	var views int64
	txErr := db.Transaction(func(tx *gorm.DB) error {
		now := s.nowMillis()
		row := ContentView{ContentID: contentID, Views: 1, CreatedAtMillis: now, UpdatedAtMillis: now}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "content_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"views":         gorm.Expr("content_views.views + 1"),
				"updated_at_ms": now,
			}),
		}).Create(&row).Error
		if err != nil {
			return s.fail(opIncrementContentViews, "views_upsert_failed", err, zap.String("content_id", contentID))
		}
		var stored ContentView
		if err := tx.Where("content_id = ?", contentID).Take(&stored).Error; err != nil {
			return s.fail(opIncrementContentViews, "views_reload_failed", err, zap.String("content_id", contentID))
		}
		views = stored.Views
		return nil
	})
	if txErr != nil {
		return 0, txErr
	}
	return views, nil
}

// SetContentViews overwrites the counter of a content.
func (s *Store) SetContentViews(ctx context.Context, contentID string, views int64) (int64, error) {
	db, err := s.session(ctx, opSetContentViews)
	if err != nil {
		return 0, err
	}
	if contentID, err = NormalizeIdentifier(contentID); err != nil {
		return 0, s.fail(opSetContentViews, reasonInvalidInput, err)
	}
	if views < 0 {
		return 0, s.fail(opSetContentViews, reasonInvalidInput, ErrInvalidInput, zap.Int64("views", views))
	}
	now := s.nowMillis()
	row := ContentView{ContentID: contentID, Views: views, CreatedAtMillis: now, UpdatedAtMillis: now}
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "content_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"views", "updated_at_ms"}),
	}).Create(&row).Error
	if err != nil {
		return 0, s.fail(opSetContentViews, "views_upsert_failed", err, zap.String("content_id", contentID))
	}
	return views, nil
}

// ListContentsWithViews returns every content with its counter, newest first.
func (s *Store) ListContentsWithViews(ctx context.Context) ([]ContentWithViews, error) {
	contents, err := s.ListContents(ctx)
	if err != nil {
		return nil, err
	}
	views, err := s.AllContentViews(ctx)
	if err != nil {
		return nil, s.fail(opContentsWithViews, reasonQueryFailed, err)
	}
	return attachViews(contents, views), nil
}

// TopViewedContents returns the most viewed contents, highest first.
func (s *Store) TopViewedContents(ctx context.Context, limit int) ([]ContentWithViews, error) {
	db, err := s.session(ctx, opTopViewedContents)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultTopViewedLimit
	}

	var rows []ContentWithViews
	err = db.Table("contents").
		Select("contents.*, COALESCE(content_views.views, 0) AS views").
		Joins("LEFT JOIN content_views ON content_views.content_id = contents.id").
		Order("views DESC, contents.created_at_ms DESC, contents.id DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, s.fail(opTopViewedContents, reasonQueryFailed, err)
	}
	return rows, nil
}

// TotalViews sums every counter.
func (s *Store) TotalViews(ctx context.Context) (int64, error) {
	db, err := s.session(ctx, opTotalViews)
	if err != nil {
		return 0, err
	}
	var total int64
	if err := db.Model(&ContentView{}).Select("COALESCE(SUM(views), 0)").Scan(&total).Error; err != nil {
		return 0, s.fail(opTotalViews, reasonQueryFailed, err)
	}
	return total, nil
}

func attachViews(contents []Content, views map[string]int64) []ContentWithViews {
	result := make([]ContentWithViews, 0, len(contents))
	for _, content := range contents {
		result = append(result, ContentWithViews{Content: content, Views: views[content.ID]})
	}
	return result
}
