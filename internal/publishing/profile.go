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

const opUpdateProfile = "publishing.update_profile"

// ProfileStore persists the singleton profile.
type ProfileStore interface {
	GetProfile(ctx context.Context) (catalog.Profile, error)
	UpdateProfile(ctx context.Context, patch catalog.ProfilePatch) (catalog.Profile, error)
}

// ProfileCoordinatorConfig configures a ProfileCoordinator.
type ProfileCoordinatorConfig struct {
	Blobs    BlobStore
	Profiles ProfileStore
	Clock    func() time.Time
	Logger   *zap.Logger
}

// ProfileCoordinator updates the profile and its image blob.
type ProfileCoordinator struct {
	blobs           BlobStore
	profiles        ProfileStore
	clock           func() time.Time
	logger          *zap.Logger
	cleanupFailures atomic.Int64
}

// NewProfileCoordinator constructs a ProfileCoordinator.
func NewProfileCoordinator(cfg ProfileCoordinatorConfig) (*ProfileCoordinator, error) {
	if cfg.Blobs == nil {
		return nil, errMissingBlobStore
	}
	if cfg.Profiles == nil {
		return nil, errMissingProfileStore
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &ProfileCoordinator{
		blobs:    cfg.Blobs,
		profiles: cfg.Profiles,
		clock:    clock,
		logger:   loggerOrDefault(cfg.Logger),
	}, nil
}

// CleanupFailures returns how many best-effort blob deletions have failed.
func (c *ProfileCoordinator) CleanupFailures() int64 {
	return c.cleanupFailures.Load()
}

// Update merges the supplied fields into the profile, replacing the image
// when a new one is uploaded.
func (c *ProfileCoordinator) Update(ctx context.Context, form ProfileForm) (catalog.Profile, error) {
	if presentButBlank(form.FirstName) {
		return catalog.Profile{}, validationError(opUpdateProfile, "firstName must not be empty")
	}
	if presentButBlank(form.LastName) {
		return catalog.Profile{}, validationError(opUpdateProfile, "lastName must not be empty")
	}

	existing, err := c.profiles.GetProfile(ctx)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return catalog.Profile{}, newServiceError(opUpdateProfile, reasonNotFound, err)
		}
		logError(c.logger, opUpdateProfile, reasonLoadFailed, err)
		return catalog.Profile{}, newServiceError(opUpdateProfile, reasonLoadFailed, err)
	}

	patch := catalog.ProfilePatch{
		Title: form.Title,
		Bio:   form.Bio,
	}
	if form.FirstName != nil {
		patch.FirstName = trimmedPointer(*form.FirstName)
	}
	if form.LastName != nil {
		patch.LastName = trimmedPointer(*form.LastName)
	}
	if form.Formations != nil {
		formations := compactLines(*form.Formations)
		patch.Formations = &formations
	}
	if form.Motivations != nil {
		motivations := compactLines(*form.Motivations)
		patch.Motivations = &motivations
	}
	if form.Twitter != nil || form.LinkedIn != nil || form.Email != nil {
		links := existing.SocialLinks.Data()
		if form.Twitter != nil {
			links.Twitter = strings.TrimSpace(*form.Twitter)
		}
		if form.LinkedIn != nil {
			links.LinkedIn = strings.TrimSpace(*form.LinkedIn)
		}
		if form.Email != nil {
			links.Email = strings.TrimSpace(*form.Email)
		}
		patch.SocialLinks = &links
	}

	janitor := &blobJanitor{blobs: c.blobs, logger: c.logger, failures: &c.cleanupFailures, operation: opUpdateProfile}
	if form.Image.present() {
		reference, err := janitor.upload(ctx, prefixProfiles, c.clock(), form.Image)
		if err != nil {
			logError(c.logger, opUpdateProfile, reasonUploadFailed, err)
			return catalog.Profile{}, newServiceError(opUpdateProfile, reasonUploadFailed, err)
		}
		patch.ImageURL = &reference
	}

	updated, err := c.profiles.UpdateProfile(ctx, patch)
	if err != nil {
		janitor.compensate(ctx)
		logError(c.logger, opUpdateProfile, reasonPersist, err)
		return catalog.Profile{}, newServiceError(opUpdateProfile, reasonPersist, err)
	}
	if patch.ImageURL != nil && existing.ImageURL != *patch.ImageURL {
		janitor.discard(ctx, existing.ImageURL, "replaced")
	}
	c.logger.Info("profile updated", zap.String("profile_id", updated.ID), zap.Bool("image_replaced", patch.ImageURL != nil))
	return updated, nil
}

// compactLines trims entries and drops empty ones, keeping order.
func compactLines(values []string) []string {
	result := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		result = append(result, trimmed)
	}
	return result
}
