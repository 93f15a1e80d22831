package publishing

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MarcoPoloResearchLab/lectern/backend/internal/catalog"
	"go.uber.org/zap"
)

const (
	opCreateContent = "publishing.create_content"
	opUpdateContent = "publishing.update_content"
	opDeleteContent = "publishing.delete_content"
)

// ContentStore persists content rows.
type ContentStore interface {
	GetContent(ctx context.Context, id string) (catalog.Content, error)
	CreateContent(ctx context.Context, input catalog.NewContent) (catalog.Content, error)
	UpdateContent(ctx context.Context, id string, patch catalog.ContentPatch) (catalog.Content, error)
	DeleteContent(ctx context.Context, id string) (bool, error)
}

// ContentCoordinatorConfig configures a ContentCoordinator.
type ContentCoordinatorConfig struct {
	Blobs    BlobStore
	Contents ContentStore
	Clock    func() time.Time
	Logger   *zap.Logger
}

// ContentCoordinator keeps a content row and its media and thumbnail blobs
// consistent across create, update and delete.
type ContentCoordinator struct {
	blobs           BlobStore
	contents        ContentStore
	clock           func() time.Time
	logger          *zap.Logger
	cleanupFailures atomic.Int64
}

// NewContentCoordinator constructs a ContentCoordinator.
func NewContentCoordinator(cfg ContentCoordinatorConfig) (*ContentCoordinator, error) {
	if cfg.Blobs == nil {
		return nil, errMissingBlobStore
	}
	if cfg.Contents == nil {
		return nil, errMissingContentStore
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &ContentCoordinator{
		blobs:    cfg.Blobs,
		contents: cfg.Contents,
		clock:    clock,
		logger:   loggerOrDefault(cfg.Logger),
	}, nil
}

// CleanupFailures returns how many best-effort blob deletions have failed.
func (c *ContentCoordinator) CleanupFailures() int64 {
	return c.cleanupFailures.Load()
}

func (c *ContentCoordinator) janitor(operation string) *blobJanitor {
	return &blobJanitor{blobs: c.blobs, logger: c.logger, failures: &c.cleanupFailures, operation: operation}
}

// Create uploads the supplied files and inserts a new content row. Blobs
// uploaded before a failure are deleted again.
func (c *ContentCoordinator) Create(ctx context.Context, form ContentForm) (catalog.Content, error) {
	contentType, err := validateNewContent(form)
	if err != nil {
		return catalog.Content{}, err
	}

	janitor := c.janitor(opCreateContent)
	now := c.clock()
	input := catalog.NewContent{
		Title:         strings.TrimSpace(valueOf(form.Title)),
		Description:   valueOf(form.Description),
		Type:          contentType,
		Category:      strings.TrimSpace(valueOf(form.Category)),
		Duration:      valueOf(form.Duration),
		Transcription: valueOf(form.Transcription),
		TextContent:   valueOf(form.TextContent),
		PublishedAt:   strings.TrimSpace(valueOf(form.PublishedAt)),
		Tags:          []string{},
	}
	if form.Tags != nil {
		input.Tags = append([]string{}, (*form.Tags)...)
	}

	if form.Media.present() {
		reference, err := janitor.upload(ctx, prefixContents, now, form.Media)
		if err != nil {
			logError(c.logger, opCreateContent, reasonUploadFailed, err, zap.String("part", "media"))
			return catalog.Content{}, newServiceError(opCreateContent, reasonUploadFailed, err)
		}
		input.MediaURL = reference
	}
	if form.Thumbnail.present() {
		reference, err := janitor.upload(ctx, prefixThumbnails, now, form.Thumbnail)
		if err != nil {
			janitor.compensate(ctx)
			logError(c.logger, opCreateContent, reasonUploadFailed, err, zap.String("part", "thumbnail"))
			return catalog.Content{}, newServiceError(opCreateContent, reasonUploadFailed, err)
		}
		input.ThumbnailURL = reference
	}

	created, err := c.contents.CreateContent(ctx, input)
	if err != nil {
		janitor.compensate(ctx)
		logError(c.logger, opCreateContent, reasonPersist, err)
		return catalog.Content{}, newServiceError(opCreateContent, reasonPersist, err)
	}
	c.logger.Info("content created", zap.String("content_id", created.ID), zap.String("type", string(created.Type)))
	return created, nil
}

// Update replaces the supplied fields and files of an existing content.
// Replaced blobs are deleted once the row has been persisted.
func (c *ContentCoordinator) Update(ctx context.Context, id string, form ContentForm) (catalog.Content, error) {
	existing, err := c.contents.GetContent(ctx, id)
	if err != nil {
		return catalog.Content{}, c.loadError(opUpdateContent, id, err)
	}
	patch, err := contentPatch(form)
	if err != nil {
		return catalog.Content{}, err
	}

	janitor := c.janitor(opUpdateContent)
	now := c.clock()
	var stale []string
	if form.Media.present() {
		reference, err := janitor.upload(ctx, prefixContents, now, form.Media)
		if err != nil {
			logError(c.logger, opUpdateContent, reasonUploadFailed, err, zap.String("content_id", id), zap.String("part", "media"))
			return catalog.Content{}, newServiceError(opUpdateContent, reasonUploadFailed, err)
		}
		patch.MediaURL = &reference
		if existing.MediaURL != reference {
			stale = append(stale, existing.MediaURL)
		}
	}
	if form.Thumbnail.present() {
		reference, err := janitor.upload(ctx, prefixThumbnails, now, form.Thumbnail)
		if err != nil {
			janitor.compensate(ctx)
			logError(c.logger, opUpdateContent, reasonUploadFailed, err, zap.String("content_id", id), zap.String("part", "thumbnail"))
			return catalog.Content{}, newServiceError(opUpdateContent, reasonUploadFailed, err)
		}
		patch.ThumbnailURL = &reference
		if existing.ThumbnailURL != reference {
			stale = append(stale, existing.ThumbnailURL)
		}
	}

	updated, err := c.contents.UpdateContent(ctx, id, patch)
	if err != nil {
		janitor.compensate(ctx)
		if errors.Is(err, catalog.ErrNotFound) {
			return catalog.Content{}, newServiceError(opUpdateContent, reasonNotFound, err)
		}
		logError(c.logger, opUpdateContent, reasonPersist, err, zap.String("content_id", id))
		return catalog.Content{}, newServiceError(opUpdateContent, reasonPersist, err)
	}
	for _, reference := range stale {
		janitor.discard(ctx, reference, "replaced")
	}
	c.logger.Info("content updated", zap.String("content_id", id))
	return updated, nil
}

// Delete removes the blobs of a content and then its row. Blob failures are
// logged and do not prevent the row from being deleted.
func (c *ContentCoordinator) Delete(ctx context.Context, id string) (bool, error) {
	existing, err := c.contents.GetContent(ctx, id)
	if err != nil {
		return false, c.loadError(opDeleteContent, id, err)
	}

	janitor := c.janitor(opDeleteContent)
	janitor.discard(ctx, existing.MediaURL, "content_deleted")
	janitor.discard(ctx, existing.ThumbnailURL, "content_deleted")

	removed, err := c.contents.DeleteContent(ctx, id)
	if err != nil {
		logError(c.logger, opDeleteContent, reasonPersist, err, zap.String("content_id", id))
		return false, newServiceError(opDeleteContent, reasonPersist, err)
	}
	c.logger.Info("content deleted", zap.String("content_id", id), zap.Bool("removed", removed))
	return removed, nil
}

func (c *ContentCoordinator) loadError(operation, id string, err error) error {
	if errors.Is(err, catalog.ErrNotFound) {
		return newServiceError(operation, reasonNotFound, err)
	}
	logError(c.logger, operation, reasonLoadFailed, err, zap.String("content_id", id))
	return newServiceError(operation, reasonLoadFailed, err)
}

func validateNewContent(form ContentForm) (catalog.ContentType, error) {
	required := []struct {
		name  string
		value *string
	}{
		{name: "title", value: form.Title},
		{name: "description", value: form.Description},
		{name: "type", value: form.Type},
		{name: "category", value: form.Category},
		{name: "publishedAt", value: form.PublishedAt},
	}
	var missing []string
	for _, field := range required {
		if blank(field.value) {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return "", validationError(opCreateContent, "missing required fields: %s", strings.Join(missing, ", "))
	}
	contentType, err := catalog.ParseContentType(*form.Type)
	if err != nil {
		return "", validationError(opCreateContent, "%v", err)
	}
	return contentType, nil
}

func contentPatch(form ContentForm) (catalog.ContentPatch, error) {
	nonEmpty := []struct {
		name  string
		value *string
	}{
		{name: "title", value: form.Title},
		{name: "type", value: form.Type},
		{name: "category", value: form.Category},
		{name: "publishedAt", value: form.PublishedAt},
	}
	for _, field := range nonEmpty {
		if presentButBlank(field.value) {
			return catalog.ContentPatch{}, validationError(opUpdateContent, "%s must not be empty", field.name)
		}
	}

	patch := catalog.ContentPatch{
		Description:   form.Description,
		Duration:      form.Duration,
		Transcription: form.Transcription,
		TextContent:   form.TextContent,
	}
	if form.Title != nil {
		patch.Title = trimmedPointer(*form.Title)
	}
	if form.Category != nil {
		patch.Category = trimmedPointer(*form.Category)
	}
	if form.PublishedAt != nil {
		patch.PublishedAt = trimmedPointer(*form.PublishedAt)
	}
	if form.Type != nil {
		contentType, err := catalog.ParseContentType(*form.Type)
		if err != nil {
			return catalog.ContentPatch{}, validationError(opUpdateContent, "%v", err)
		}
		patch.Type = &contentType
	}
	if form.Tags != nil {
		tags := append([]string{}, (*form.Tags)...)
		patch.Tags = &tags
	}
	return patch, nil
}

func trimmedPointer(value string) *string {
	trimmed := strings.TrimSpace(value)
	return &trimmed
}
