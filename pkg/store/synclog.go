package store

import (
	"gorm.io/gorm"

	"github.com/vibevault/vibevault/pkg/types"
)

// AppendSyncLog records the outcome of one sync session.
func (s *Store) AppendSyncLog(entry *types.SyncLogEntry) error {
	return s.write("append_sync_log", func(tx *gorm.DB) error {
		completedAt := ""
		if entry.CompletedAt != nil {
			completedAt = formatTimestamp(*entry.CompletedAt)
		}
		return tx.Create(&syncLogRecord{
			DeviceID:        entry.DeviceID,
			Direction:       string(entry.Direction),
			EntriesSent:     entry.EntriesSent,
			EntriesReceived: entry.EntriesReceived,
			Status:          string(entry.Status),
			StartedAt:       formatTimestamp(entry.StartedAt),
			CompletedAt:     completedAt,
			ErrorMessage:    entry.ErrorMessage,
		}).Error
	})
}

// GetSyncHistory lists sync log rows, most recent first.
func (s *Store) GetSyncHistory() ([]*types.SyncLogEntry, error) {
	var recs []syncLogRecord
	if err := s.db.Order("id desc").Find(&recs).Error; err != nil {
		return nil, &types.StoreError{Op: "get_sync_history", Err: err}
	}
	entries := make([]*types.SyncLogEntry, 0, len(recs))
	for i := range recs {
		entries = append(entries, recs[i].toLogEntry())
	}
	return entries, nil
}
