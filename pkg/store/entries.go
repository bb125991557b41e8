package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vibevault/vibevault/pkg/types"
)

// SaveEntry inserts a new encrypted entry with sync_version 1.
func (s *Store) SaveEntry(ciphertext, nonce []byte, label string, profileID int64, entryUUID uuid.UUID) (*types.VaultEntry, error) {
	var saved *types.VaultEntry
	err := s.write("save_entry", func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&profileRecord{}).Where("id = ?", profileID).Count(&count).Error; err != nil {
			return fmt.Errorf("check profile: %w", err)
		}
		if count == 0 {
			return types.ErrNotFound
		}

		now := timestampNow()
		rec := &entryRecord{
			EntryUUID:   entryUUID.String(),
			Label:       label,
			DataBlob:    ciphertext,
			Nonce:       nonce,
			ProfileID:   profileID,
			CreatedAt:   now,
			UpdatedAt:   now,
			SyncVersion: 1,
		}
		if err := tx.Create(rec).Error; err != nil {
			return err
		}

		entry, err := rec.toEntry()
		if err != nil {
			return err
		}
		saved = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// GetEntry fetches one entry row by local id, tombstones included.
func (s *Store) GetEntry(id int64) (*types.VaultEntry, error) {
	var rec entryRecord
	if err := s.db.Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, notFoundOr("get_entry", err)
	}
	return rec.toEntry()
}

// GetEntryByUUID fetches one entry row by its sync identity.
func (s *Store) GetEntryByUUID(entryUUID uuid.UUID) (*types.VaultEntry, error) {
	var rec entryRecord
	if err := s.db.Where("entry_uuid = ?", entryUUID.String()).First(&rec).Error; err != nil {
		return nil, notFoundOr("get_entry_by_uuid", err)
	}
	return rec.toEntry()
}

// UpdateEntry re-writes the ciphertext of a live entry, incrementing
// sync_version and refreshing updated_at.
func (s *Store) UpdateEntry(id int64, ciphertext, nonce []byte, label string) error {
	return s.write("update_entry", func(tx *gorm.DB) error {
		var rec entryRecord
		if err := tx.Where("id = ?", id).First(&rec).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return types.ErrNotFound
			}
			return err
		}
		if rec.DeletedAt != "" {
			return types.ErrNotFound
		}

		return tx.Model(&entryRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
			"data_blob":    ciphertext,
			"nonce":        nonce,
			"label":        label,
			"updated_at":   timestampNow(),
			"sync_version": rec.SyncVersion + 1,
		}).Error
	})
}

// SoftDeleteEntry tombstones an entry: deleted_at is set, sync_version is
// incremented, and the payload is dropped. The row is kept until
// PruneTombstones removes it, so the deletion propagates on sync.
func (s *Store) SoftDeleteEntry(id int64) error {
	return s.write("soft_delete_entry", func(tx *gorm.DB) error {
		var rec entryRecord
		if err := tx.Where("id = ?", id).First(&rec).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return types.ErrNotFound
			}
			return err
		}
		if rec.DeletedAt != "" {
			return types.ErrNotFound
		}

		now := timestampNow()
		return tx.Model(&entryRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
			"data_blob":    []byte(nil),
			"nonce":        []byte(nil),
			"deleted_at":   now,
			"updated_at":   now,
			"sync_version": rec.SyncVersion + 1,
		}).Error
	})
}

// GetActiveEntries lists the non-deleted entries of a profile.
func (s *Store) GetActiveEntries(profileID int64) ([]*types.VaultEntry, error) {
	var recs []entryRecord
	err := s.db.Where("profile_id = ? AND deleted_at = ''", profileID).
		Order("id asc").Find(&recs).Error
	if err != nil {
		return nil, &types.StoreError{Op: "get_active_entries", Err: err}
	}
	return toEntries(recs)
}

// GetAllEntriesSince lists every entry, tombstones included, whose
// sync_version is greater than version. GetAllEntriesSince(0) is the full
// vault and is what a first sync bundles.
func (s *Store) GetAllEntriesSince(version uint64) ([]*types.VaultEntry, error) {
	var recs []entryRecord
	err := s.db.Where("sync_version > ?", version).Order("id asc").Find(&recs).Error
	if err != nil {
		return nil, &types.StoreError{Op: "get_all_entries_since", Err: err}
	}
	return toEntries(recs)
}

// UpsertByUUID writes a merged row keyed by entry_uuid, taking the incoming
// sync_version and updated_at verbatim. The merge layer decides whether the
// write happens at all.
func (s *Store) UpsertByUUID(entry *types.VaultEntry) error {
	return s.write("upsert_by_uuid", func(tx *gorm.DB) error {
		deletedAt := ""
		if entry.DeletedAt != nil {
			deletedAt = formatTimestamp(*entry.DeletedAt)
		}

		var rec entryRecord
		err := tx.Where("entry_uuid = ?", entry.EntryUUID.String()).First(&rec).Error
		if err == gorm.ErrRecordNotFound {
			return tx.Create(&entryRecord{
				EntryUUID:   entry.EntryUUID.String(),
				Label:       entry.Label,
				DataBlob:    entry.DataBlob,
				Nonce:       entry.Nonce,
				ProfileID:   entry.ProfileID,
				CreatedAt:   formatTimestamp(entry.UpdatedAt),
				UpdatedAt:   formatTimestamp(entry.UpdatedAt),
				DeletedAt:   deletedAt,
				SyncVersion: entry.SyncVersion,
			}).Error
		}
		if err != nil {
			return err
		}

		return tx.Model(&entryRecord{}).Where("id = ?", rec.ID).Updates(map[string]interface{}{
			"label":        entry.Label,
			"data_blob":    entry.DataBlob,
			"nonce":        entry.Nonce,
			"updated_at":   formatTimestamp(entry.UpdatedAt),
			"deleted_at":   deletedAt,
			"sync_version": entry.SyncVersion,
		}).Error
	})
}

// PruneTombstones hard-deletes tombstones older than the cutoff. Store-level
// maintenance only; not exposed through the core API.
func (s *Store) PruneTombstones(olderThan time.Time) (int64, error) {
	var pruned int64
	err := s.write("prune_tombstones", func(tx *gorm.DB) error {
		res := tx.Where("deleted_at <> '' AND deleted_at < ?", formatTimestamp(olderThan)).
			Delete(&entryRecord{})
		if res.Error != nil {
			return res.Error
		}
		pruned = res.RowsAffected
		return nil
	})
	return pruned, err
}

func toEntries(recs []entryRecord) ([]*types.VaultEntry, error) {
	entries := make([]*types.VaultEntry, 0, len(recs))
	for i := range recs {
		entry, err := recs[i].toEntry()
		if err != nil {
			return nil, fmt.Errorf("corrupt entry row %d: %w", recs[i].ID, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
