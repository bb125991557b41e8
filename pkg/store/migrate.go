package store

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Migrate creates missing tables and columns and backfills sync metadata on
// rows written by pre-sync schema versions. It is additive and idempotent;
// it runs at every open.
func (s *Store) Migrate() error {
	err := s.db.AutoMigrate(
		&userRecord{},
		&profileRecord{},
		&entryRecord{},
		&pairedDeviceRecord{},
		&syncLogRecord{},
	)
	if err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		// Backfill entry_uuid on rows from before the sync schema. Each row
		// gets a fresh UUID, one by one, so the unique index holds.
		var ids []int64
		if err := tx.Model(&entryRecord{}).
			Where("entry_uuid IS NULL OR entry_uuid = ''").
			Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("scan for missing entry_uuid: %w", err)
		}
		for _, id := range ids {
			if err := tx.Model(&entryRecord{}).
				Where("id = ?", id).
				Update("entry_uuid", uuid.New().String()).Error; err != nil {
				return fmt.Errorf("backfill entry_uuid: %w", err)
			}
		}
		if len(ids) > 0 {
			s.logger.Info().Int("rows", len(ids)).Msg("backfilled entry_uuid")
		}

		if err := tx.Model(&entryRecord{}).
			Where("sync_version IS NULL OR sync_version = 0").
			Update("sync_version", 1).Error; err != nil {
			return fmt.Errorf("backfill sync_version: %w", err)
		}

		if err := tx.Model(&entryRecord{}).
			Where("deleted_at IS NULL").
			Update("deleted_at", "").Error; err != nil {
			return fmt.Errorf("normalize deleted_at: %w", err)
		}
		return nil
	})
}
