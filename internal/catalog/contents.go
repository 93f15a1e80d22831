package catalog

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opListContents           = "catalog.list_contents"
	opGetContent             = "catalog.get_content"
	opListContentsByCategory = "catalog.list_contents_by_category"
	opCreateContent          = "catalog.create_content"
	opUpdateContent          = "catalog.update_content"
	opDeleteContent          = "catalog.delete_content"
	opSaveContent            = "catalog.save_content"

	orderContentsNewestFirst = "created_at_ms DESC, id DESC"
)

// ListContents returns every content, newest first.
func (s *Store) ListContents(ctx context.Context) ([]Content, error) {
	db, err := s.session(ctx, opListContents)
	if err != nil {
		return nil, err
	}
	var contents []Content
	if err := db.Order(orderContentsNewestFirst).Find(&contents).Error; err != nil {
		return nil, s.fail(opListContents, reasonQueryFailed, err)
	}
	return contents, nil
}

// GetContent returns the content with the given id or ErrNotFound.
func (s *Store) GetContent(ctx context.Context, id string) (Content, error) {
	db, err := s.session(ctx, opGetContent)
	if err != nil {
		return Content{}, err
	}
	var content Content
	err = db.Where("id = ?", id).Take(&content).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Content{}, s.fail(opGetContent, reasonNotFound, ErrNotFound, zap.String("content_id", id))
	}
	if err != nil {
		return Content{}, s.fail(opGetContent, reasonQueryFailed, err, zap.String("content_id", id))
	}
	return content, nil
}

// ListContentsByCategory returns the contents of one category, newest first.
func (s *Store) ListContentsByCategory(ctx context.Context, category string) ([]Content, error) {
	db, err := s.session(ctx, opListContentsByCategory)
	if err != nil {
		return nil, err
	}
	var contents []Content
	if err := db.Where("category = ?", category).Order(orderContentsNewestFirst).Find(&contents).Error; err != nil {
		return nil, s.fail(opListContentsByCategory, reasonQueryFailed, err, zap.String("category_id", category))
	}
	return contents, nil
}

// SearchContents matches the query case-insensitively against titles,
// descriptions and individual tag values. Case folding happens in Go, not in
// SQL, so non-ASCII letters fold on every driver.
func (s *Store) SearchContents(ctx context.Context, query string) ([]Content, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return s.ListContents(ctx)
	}
	contents, err := s.ListContents(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(trimmed)
	matches := make([]Content, 0, len(contents))
	for _, content := range contents {
		if contentMatches(content, needle) {
			matches = append(matches, content)
		}
	}
	return matches, nil
}

func contentMatches(content Content, needle string) bool {
	if strings.Contains(strings.ToLower(content.Title), needle) ||
		strings.Contains(strings.ToLower(content.Description), needle) {
		return true
	}
	for _, tag := range content.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

// CreateContent inserts a new content row with a server-generated id.
func (s *Store) CreateContent(ctx context.Context, input NewContent) (Content, error) {
	db, err := s.session(ctx, opCreateContent)
	if err != nil {
		return Content{}, err
	}
	if s.idProvider == nil {
		return Content{}, s.fail(opCreateContent, "missing_id_provider", errMissingIDProvider)
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		return Content{}, s.fail(opCreateContent, "id_generation_failed", err)
	}

	now := s.nowMillis()
	content := Content{
		ID:              id,
		Title:           input.Title,
		Description:     input.Description,
		Type:            input.Type,
		Category:        input.Category,
		MediaURL:        input.MediaURL,
		ThumbnailURL:    input.ThumbnailURL,
		Transcription:   input.Transcription,
		TextContent:     input.TextContent,
		Duration:        input.Duration,
		PublishedAt:     input.PublishedAt,
		Tags:            datatypes.NewJSONSlice(nonNil(input.Tags)),
		CreatedAtMillis: now,
		UpdatedAtMillis: now,
	}
	if err := db.Create(&content).Error; err != nil {
		return Content{}, s.fail(opCreateContent, "content_insert_failed", err, zap.String("content_id", id))
	}
	return content, nil
}

// UpdateContent applies the non-nil fields of patch to an existing content.
func (s *Store) UpdateContent(ctx context.Context, id string, patch ContentPatch) (Content, error) {
	db, err := s.session(ctx, opUpdateContent)
	if err != nil {
		return Content{}, err
	}

	var updated Content
	txErr := db.Transaction(func(tx *gorm.DB) error {
		var existing Content
		err := tx.Where("id = ?", id).Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.fail(opUpdateContent, reasonNotFound, ErrNotFound, zap.String("content_id", id))
		}
		if err != nil {
			return s.fail(opUpdateContent, "content_select_failed", err, zap.String("content_id", id))
		}

		updates := contentUpdates(patch)
		updates["updated_at_ms"] = s.nowMillis()
		if err := tx.Model(&Content{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return s.fail(opUpdateContent, "content_update_failed", err, zap.String("content_id", id))
		}
		if err := tx.Where("id = ?", id).Take(&updated).Error; err != nil {
			return s.fail(opUpdateContent, "content_reload_failed", err, zap.String("content_id", id))
		}
		return nil
	})
	if txErr != nil {
		return Content{}, txErr
	}
	return updated, nil
}

// DeleteContent removes a content row and its view counter, reporting
// whether a content row was removed.
func (s *Store) DeleteContent(ctx context.Context, id string) (bool, error) {
	db, err := s.session(ctx, opDeleteContent)
	if err != nil {
		return false, err
	}

	removed := false
	txErr := db.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ?", id).Delete(&Content{})
		if result.Error != nil {
			return s.fail(opDeleteContent, "content_delete_failed", result.Error, zap.String("content_id", id))
		}
		removed = result.RowsAffected > 0
		if err := tx.Where("content_id = ?", id).Delete(&ContentView{}).Error; err != nil {
			return s.fail(opDeleteContent, "views_delete_failed", err, zap.String("content_id", id))
		}
		return nil
	})
	if txErr != nil {
		return false, txErr
	}
	return removed, nil
}

// SaveContent inserts or replaces a content row keeping its id; used by seeding.
func (s *Store) SaveContent(ctx context.Context, content Content) (Content, error) {
	db, err := s.session(ctx, opSaveContent)
	if err != nil {
		return Content{}, err
	}
	if content.ID, err = NormalizeIdentifier(content.ID); err != nil {
		return Content{}, s.fail(opSaveContent, reasonInvalidInput, err)
	}
	now := s.nowMillis()
	if content.CreatedAtMillis == 0 {
		content.CreatedAtMillis = now
	}
	content.UpdatedAtMillis = now
	if content.Tags == nil {
		content.Tags = datatypes.NewJSONSlice([]string{})
	}
	err = db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "description", "type", "category", "media_url", "thumbnail_url",
			"transcription", "text_content", "duration", "published_at", "tags", "updated_at_ms",
		}),
	}).Create(&content).Error
	if err != nil {
		return Content{}, s.fail(opSaveContent, "content_upsert_failed", err, zap.String("content_id", content.ID))
	}
	return content, nil
}

func contentUpdates(patch ContentPatch) map[string]any {
	updates := map[string]any{}
	if patch.Title != nil {
		updates["title"] = *patch.Title
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	if patch.Type != nil {
		updates["type"] = string(*patch.Type)
	}
	if patch.Category != nil {
		updates["category"] = *patch.Category
	}
	if patch.MediaURL != nil {
		updates["media_url"] = *patch.MediaURL
	}
	if patch.ThumbnailURL != nil {
		updates["thumbnail_url"] = *patch.ThumbnailURL
	}
	if patch.Transcription != nil {
		updates["transcription"] = *patch.Transcription
	}
	if patch.TextContent != nil {
		updates["text_content"] = *patch.TextContent
	}
	if patch.Duration != nil {
		updates["duration"] = *patch.Duration
	}
	if patch.PublishedAt != nil {
		updates["published_at"] = *patch.PublishedAt
	}
	if patch.Tags != nil {
		updates["tags"] = datatypes.NewJSONSlice(nonNil(*patch.Tags))
	}
	return updates
}
