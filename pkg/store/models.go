package store

import (
	"time"

	"github.com/dromara/carbon/v2"
	"github.com/google/uuid"

	"github.com/vibevault/vibevault/pkg/types"
)

// Internal GORM models. Timestamps are stored as ISO-8601 UTC strings;
// binary fields as BLOB columns.

type userRecord struct {
	ID             int64  `gorm:"primaryKey;column:id"`
	Username       string `gorm:"uniqueIndex;size:255;column:username"`
	PasswordHash   string `gorm:"size:255;column:password_hash"`
	AuthSalt       []byte `gorm:"type:blob;column:auth_salt"`
	EncryptionSalt []byte `gorm:"type:blob;column:encryption_salt"`
	CreatedAt      string `gorm:"size:40;column:created_at"`
}

func (userRecord) TableName() string { return "users" }

type profileRecord struct {
	ID        int64  `gorm:"primaryKey;column:id"`
	Name      string `gorm:"uniqueIndex;size:255;column:name"`
	CreatedAt string `gorm:"size:40;column:created_at"`
}

func (profileRecord) TableName() string { return "profiles" }

type entryRecord struct {
	ID          int64  `gorm:"primaryKey;column:id"`
	EntryUUID   string `gorm:"uniqueIndex;size:36;column:entry_uuid"`
	Label       string `gorm:"size:255;column:label"`
	DataBlob    []byte `gorm:"type:blob;column:data_blob"`
	Nonce       []byte `gorm:"type:blob;column:nonce"`
	ProfileID   int64  `gorm:"index;column:profile_id"`
	CreatedAt   string `gorm:"size:40;column:created_at"`
	UpdatedAt   string `gorm:"size:40;column:updated_at"`
	DeletedAt   string `gorm:"size:40;column:deleted_at"` // empty = live row
	SyncVersion uint64 `gorm:"column:sync_version"`
}

func (entryRecord) TableName() string { return "entries" }

type pairedDeviceRecord struct {
	ID           int64  `gorm:"primaryKey;column:id"`
	DeviceID     string `gorm:"uniqueIndex;size:255;column:device_id"`
	DeviceName   string `gorm:"size:255;column:device_name"`
	PublicKey    []byte `gorm:"type:blob;column:public_key"`
	SharedSecret []byte `gorm:"type:blob;column:shared_secret"`
	PairedAt     string `gorm:"size:40;column:paired_at"`
	LastSyncAt   string `gorm:"size:40;column:last_sync_at"`
}

func (pairedDeviceRecord) TableName() string { return "paired_devices" }

type syncLogRecord struct {
	ID              int64  `gorm:"primaryKey;column:id"`
	DeviceID        string `gorm:"index;size:255;column:device_id"`
	Direction       string `gorm:"size:10;column:direction"`
	EntriesSent     int    `gorm:"column:entries_sent"`
	EntriesReceived int    `gorm:"column:entries_received"`
	Status          string `gorm:"size:10;column:status"`
	StartedAt       string `gorm:"size:40;column:started_at"`
	CompletedAt     string `gorm:"size:40;column:completed_at"`
	ErrorMessage    string `gorm:"type:text;column:error_message"`
}

func (syncLogRecord) TableName() string { return "sync_log" }

// timestampNow returns the current UTC time in the stored string form.
func timestampNow() string {
	return carbon.Now(carbon.UTC).ToIso8601String(carbon.UTC)
}

func formatTimestamp(t time.Time) string {
	return carbon.CreateFromStdTime(t).SetTimezone(carbon.UTC).ToIso8601String(carbon.UTC)
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	return carbon.Parse(s, carbon.UTC).StdTime()
}

func parseTimestampPtr(s string) *time.Time {
	if s == "" {
		return nil
	}
	t := parseTimestamp(s)
	return &t
}

func (r *entryRecord) toEntry() (*types.VaultEntry, error) {
	id, err := uuid.Parse(r.EntryUUID)
	if err != nil {
		return nil, err
	}
	return &types.VaultEntry{
		ID:          r.ID,
		EntryUUID:   id,
		Label:       r.Label,
		DataBlob:    r.DataBlob,
		Nonce:       r.Nonce,
		ProfileID:   r.ProfileID,
		CreatedAt:   parseTimestamp(r.CreatedAt),
		UpdatedAt:   parseTimestamp(r.UpdatedAt),
		DeletedAt:   parseTimestampPtr(r.DeletedAt),
		SyncVersion: r.SyncVersion,
	}, nil
}

func (r *profileRecord) toProfile() *types.Profile {
	return &types.Profile{
		ID:        r.ID,
		Name:      r.Name,
		CreatedAt: parseTimestamp(r.CreatedAt),
	}
}

func (r *pairedDeviceRecord) toDevice() *types.PairedDevice {
	return &types.PairedDevice{
		DeviceID:     r.DeviceID,
		DeviceName:   r.DeviceName,
		PublicKey:    r.PublicKey,
		SharedSecret: r.SharedSecret,
		PairedAt:     parseTimestamp(r.PairedAt),
		LastSyncAt:   parseTimestampPtr(r.LastSyncAt),
	}
}

func (r *syncLogRecord) toLogEntry() *types.SyncLogEntry {
	return &types.SyncLogEntry{
		ID:              r.ID,
		DeviceID:        r.DeviceID,
		Direction:       types.SyncDirection(r.Direction),
		EntriesSent:     r.EntriesSent,
		EntriesReceived: r.EntriesReceived,
		Status:          types.SyncStatus(r.Status),
		StartedAt:       parseTimestamp(r.StartedAt),
		CompletedAt:     parseTimestampPtr(r.CompletedAt),
		ErrorMessage:    r.ErrorMessage,
	}
}
