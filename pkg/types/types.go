package types

import (
	"time"

	"github.com/google/uuid"
)

// User is the single account registered on this device. The master password
// is never stored; AuthSalt and EncryptionSalt are independent so the
// authentication hash cannot be used to derive the data key.
type User struct {
	Username       string
	PasswordHash   string // Argon2id PHC string over AuthSalt
	AuthSalt       []byte // 16 bytes
	EncryptionSalt []byte // 32 bytes
	CreatedAt      time.Time
}

// Profile groups vault entries. At least one profile exists after first
// login; a profile with non-deleted entries cannot be destroyed.
type Profile struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// VaultEntry is a stored credential row. DataBlob is AES-256-GCM ciphertext
// with the 16-byte tag appended; Nonce is stored separately and regenerated
// on every write.
type VaultEntry struct {
	ID          int64
	EntryUUID   uuid.UUID // sync identity, immutable after creation
	Label       string
	DataBlob    []byte
	Nonce       []byte
	ProfileID   int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time // non-nil = tombstone
	SyncVersion uint64     // increases on every local mutation; merge writes the incoming version verbatim
}

// IsTombstone reports whether the entry has been soft-deleted.
func (e *VaultEntry) IsTombstone() bool {
	return e.DeletedAt != nil
}

// EntryPayload is the plaintext carried inside VaultEntry.DataBlob,
// serialized as canonical JSON before encryption. All fields are nullable.
type EntryPayload struct {
	Username   *string `json:"username"`
	Password   *string `json:"password"`
	TOTPSecret *string `json:"totpSecret"`
	Notes      *string `json:"notes"`
}

// PairedDevice records a peer this device has completed pairing with.
// PublicKey is the compressed ECDH public key the peer presented in its most
// recent pairing (a fresh ephemeral key per pairing); it is stored but not
// read back by the sync flow. SharedSecret is reserved for a future
// persistent-session extension.
type PairedDevice struct {
	DeviceID     string
	DeviceName   string
	PublicKey    []byte // 33 bytes, compressed P-256 point
	SharedSecret []byte
	PairedAt     time.Time
	LastSyncAt   *time.Time
}

// SyncDirection orients a sync session relative to this device.
type SyncDirection string

const (
	SyncDirectionPush SyncDirection = "push"
	SyncDirectionPull SyncDirection = "pull"
)

// SyncStatus is the terminal outcome of a sync session.
type SyncStatus string

const (
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusPartial SyncStatus = "partial"
	SyncStatusFailed  SyncStatus = "failed"
)

// SyncLogEntry is one row of sync history.
type SyncLogEntry struct {
	ID              int64
	DeviceID        string
	Direction       SyncDirection
	EntriesSent     int
	EntriesReceived int
	Status          SyncStatus
	StartedAt       time.Time
	CompletedAt     *time.Time
	ErrorMessage    string
}

// EntryView is the decrypted representation returned to the UI.
type EntryView struct {
	ID        int64
	EntryUUID uuid.UUID
	Label     string
	ProfileID int64
	Payload   EntryPayload
	UpdatedAt time.Time
}

// TOTPToken is a generated one-time code with its remaining validity.
type TOTPToken struct {
	Code             string
	SecondsRemaining int
}
