package store

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/vibevault/vibevault/pkg/types"
)

// Register stores the device's single user. Fails with ErrAlreadyRegistered
// if any user row exists.
func (s *Store) Register(user *types.User) error {
	return s.write("register", func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&userRecord{}).Count(&count).Error; err != nil {
			return fmt.Errorf("count users: %w", err)
		}
		if count > 0 {
			return types.ErrAlreadyRegistered
		}

		rec := &userRecord{
			Username:       user.Username,
			PasswordHash:   user.PasswordHash,
			AuthSalt:       user.AuthSalt,
			EncryptionSalt: user.EncryptionSalt,
			CreatedAt:      timestampNow(),
		}
		return tx.Create(rec).Error
	})
}

// GetUser fetches the user row for username.
func (s *Store) GetUser(username string) (*types.User, error) {
	var rec userRecord
	if err := s.db.Where("username = ?", username).First(&rec).Error; err != nil {
		return nil, notFoundOr("get_user", err)
	}
	return &types.User{
		Username:       rec.Username,
		PasswordHash:   rec.PasswordHash,
		AuthSalt:       rec.AuthSalt,
		EncryptionSalt: rec.EncryptionSalt,
		CreatedAt:      parseTimestamp(rec.CreatedAt),
	}, nil
}

// IsRegistered reports whether a user row exists.
func (s *Store) IsRegistered() (bool, error) {
	var count int64
	if err := s.db.Model(&userRecord{}).Count(&count).Error; err != nil {
		return false, &types.StoreError{Op: "is_registered", Err: err}
	}
	return count > 0, nil
}
