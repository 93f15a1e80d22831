package catalog

import (
	"context"
	"errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opGetProfile    = "catalog.get_profile"
	opUpdateProfile = "catalog.update_profile"
	opSaveProfile   = "catalog.save_profile"
)

// GetProfile returns the singleton profile row.
func (s *Store) GetProfile(ctx context.Context) (Profile, error) {
	db, err := s.session(ctx, opGetProfile)
	if err != nil {
		return Profile{}, err
	}
	var profile Profile
	err = db.Order("created_at_ms ASC, id ASC").Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, s.fail(opGetProfile, reasonNotFound, ErrNotFound)
	}
	if err != nil {
		return Profile{}, s.fail(opGetProfile, reasonQueryFailed, err)
	}
	return profile, nil
}

// UpdateProfile applies the non-nil fields of patch to the singleton profile.
func (s *Store) UpdateProfile(ctx context.Context, patch ProfilePatch) (Profile, error) {
	db, err := s.session(ctx, opUpdateProfile)
	if err != nil {
		return Profile{}, err
	}

	var updated Profile
	txErr := db.Transaction(func(tx *gorm.DB) error {
		var existing Profile
		err := tx.Order("created_at_ms ASC, id ASC").Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.fail(opUpdateProfile, reasonNotFound, ErrNotFound)
		}
		if err != nil {
			return s.fail(opUpdateProfile, "profile_select_failed", err)
		}

		updates := profileUpdates(patch)
		updates["updated_at_ms"] = s.nowMillis()
		if err := tx.Model(&Profile{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
			return s.fail(opUpdateProfile, "profile_update_failed", err)
		}
		if err := tx.Where("id = ?", existing.ID).Take(&updated).Error; err != nil {
			return s.fail(opUpdateProfile, "profile_reload_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return Profile{}, txErr
	}
	return updated, nil
}

// SaveProfile inserts or fully replaces a profile row.
func (s *Store) SaveProfile(ctx context.Context, profile Profile) (Profile, error) {
	db, err := s.session(ctx, opSaveProfile)
	if err != nil {
		return Profile{}, err
	}
	if profile.ID, err = NormalizeIdentifier(profile.ID); err != nil {
		return Profile{}, s.fail(opSaveProfile, reasonInvalidInput, err)
	}
	now := s.nowMillis()
	if profile.CreatedAtMillis == 0 {
		profile.CreatedAtMillis = now
	}
	profile.UpdatedAtMillis = now
	if profile.Formations == nil {
		profile.Formations = datatypes.NewJSONSlice([]string{})
	}
	if profile.Motivations == nil {
		profile.Motivations = datatypes.NewJSONSlice([]string{})
	}

	err = db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"first_name", "last_name", "title", "bio", "image_url",
			"formations", "motivations", "social_links", "updated_at_ms",
		}),
	}).Create(&profile).Error
	if err != nil {
		return Profile{}, s.fail(opSaveProfile, "profile_upsert_failed", err)
	}
	return profile, nil
}

func profileUpdates(patch ProfilePatch) map[string]any {
	updates := map[string]any{}
	if patch.FirstName != nil {
		updates["first_name"] = *patch.FirstName
	}
	if patch.LastName != nil {
		updates["last_name"] = *patch.LastName
	}
	if patch.Title != nil {
		updates["title"] = *patch.Title
	}
	if patch.Bio != nil {
		updates["bio"] = *patch.Bio
	}
	if patch.ImageURL != nil {
		updates["image_url"] = *patch.ImageURL
	}
	if patch.Formations != nil {
		updates["formations"] = datatypes.NewJSONSlice(nonNil(*patch.Formations))
	}
	if patch.Motivations != nil {
		updates["motivations"] = datatypes.NewJSONSlice(nonNil(*patch.Motivations))
	}
	if patch.SocialLinks != nil {
		updates["social_links"] = datatypes.NewJSONType(*patch.SocialLinks)
	}
	return updates
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return append([]string(nil), values...)
}
