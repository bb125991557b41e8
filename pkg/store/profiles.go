package store

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/vibevault/vibevault/pkg/types"
)

// DefaultProfileName is the profile created on first login.
const DefaultProfileName = "Personal"

// CreateProfile inserts a new profile. Names must be unique and non-empty.
func (s *Store) CreateProfile(name string) (*types.Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &types.ValidationError{Field: "name", Reason: "profile name cannot be empty"}
	}

	var created *types.Profile
	err := s.write("create_profile", func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&profileRecord{}).Where("name = ?", name).Count(&count).Error; err != nil {
			return fmt.Errorf("check name: %w", err)
		}
		if count > 0 {
			return types.ErrConflict
		}

		rec := &profileRecord{Name: name, CreatedAt: timestampNow()}
		if err := tx.Create(rec).Error; err != nil {
			return err
		}
		created = rec.toProfile()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// EnsureDefaultProfile guarantees the invariant that at least one profile
// exists, returning the first profile by id.
func (s *Store) EnsureDefaultProfile() (*types.Profile, error) {
	var rec profileRecord
	err := s.db.Order("id asc").First(&rec).Error
	if err == nil {
		return rec.toProfile(), nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, &types.StoreError{Op: "ensure_default_profile", Err: err}
	}
	return s.CreateProfile(DefaultProfileName)
}

// GetProfiles lists all profiles ordered by id.
func (s *Store) GetProfiles() ([]*types.Profile, error) {
	var recs []profileRecord
	if err := s.db.Order("id asc").Find(&recs).Error; err != nil {
		return nil, &types.StoreError{Op: "get_profiles", Err: err}
	}
	profiles := make([]*types.Profile, 0, len(recs))
	for i := range recs {
		profiles = append(profiles, recs[i].toProfile())
	}
	return profiles, nil
}

// GetProfile fetches one profile by id.
func (s *Store) GetProfile(id int64) (*types.Profile, error) {
	var rec profileRecord
	if err := s.db.Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, notFoundOr("get_profile", err)
	}
	return rec.toProfile(), nil
}

// RenameProfile updates a profile's name, keeping the uniqueness guard.
func (s *Store) RenameProfile(id int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &types.ValidationError{Field: "name", Reason: "profile name cannot be empty"}
	}

	return s.write("rename_profile", func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&profileRecord{}).
			Where("name = ? AND id <> ?", name, id).Count(&count).Error; err != nil {
			return fmt.Errorf("check name: %w", err)
		}
		if count > 0 {
			return types.ErrConflict
		}

		res := tx.Model(&profileRecord{}).Where("id = ?", id).Update("name", name)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return types.ErrNotFound
		}
		return nil
	})
}

// DeleteProfile destroys a profile. A profile holding non-deleted entries
// cannot be destroyed, and neither can the last remaining profile.
func (s *Store) DeleteProfile(id int64) error {
	return s.write("delete_profile", func(tx *gorm.DB) error {
		var total int64
		if err := tx.Model(&profileRecord{}).Count(&total).Error; err != nil {
			return fmt.Errorf("count profiles: %w", err)
		}
		if total <= 1 {
			return types.ErrConflict
		}

		var live int64
		if err := tx.Model(&entryRecord{}).
			Where("profile_id = ? AND deleted_at = ''", id).Count(&live).Error; err != nil {
			return fmt.Errorf("count entries: %w", err)
		}
		if live > 0 {
			return types.ErrConflict
		}

		res := tx.Where("id = ?", id).Delete(&profileRecord{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return types.ErrNotFound
		}
		return nil
	})
}
