package api

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vibevault/vibevault/pkg/auth"
	"github.com/vibevault/vibevault/pkg/ble"
	"github.com/vibevault/vibevault/pkg/events"
	"github.com/vibevault/vibevault/pkg/log"
	"github.com/vibevault/vibevault/pkg/store"
	syncpkg "github.com/vibevault/vibevault/pkg/sync"
	"github.com/vibevault/vibevault/pkg/totp"
	"github.com/vibevault/vibevault/pkg/types"
	"github.com/vibevault/vibevault/pkg/vault"
)

// Core is the API surface consumed by UI shells. Every operation except
// Subscribe, Unsubscribe, CheckRegistration, RegisterUser and UnlockVault
// requires a valid session token; LockVault with an unknown token does
// nothing. Results and failures use the shared error taxonomy.
type Core struct {
	store    *store.Store
	sessions *auth.Manager
	vault    *vault.Service
	sync     *syncpkg.Manager
	broker   *events.Broker
	logger   zerolog.Logger

	now func() time.Time // test hook for TOTP generation
}

// Config wires a Core instance.
type Config struct {
	Store    *store.Store
	Sessions *auth.Manager
	Vault    *vault.Service
	Sync     *syncpkg.Manager
	Broker   *events.Broker
	Now      func() time.Time
}

// New assembles the core façade.
func New(cfg Config) *Core {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Core{
		store:    cfg.Store,
		sessions: cfg.Sessions,
		vault:    cfg.Vault,
		sync:     cfg.Sync,
		broker:   cfg.Broker,
		logger:   log.WithComponent("api"),
		now:      cfg.Now,
	}
}

// Subscribe returns a channel of core lifecycle events for UI rendering.
func (c *Core) Subscribe() events.Subscriber {
	return c.broker.Subscribe()
}

// Unsubscribe releases a subscription.
func (c *Core) Unsubscribe(sub events.Subscriber) {
	c.broker.Unsubscribe(sub)
}

// CheckRegistration reports whether a user exists on this device.
func (c *Core) CheckRegistration() (bool, error) {
	return c.store.IsRegistered()
}

// RegisterUser creates the device's user.
func (c *Core) RegisterUser(username, password string) error {
	return c.sessions.Register(username, password)
}

// UnlockVault opens a session and returns its token.
func (c *Core) UnlockVault(username, password string) (string, error) {
	token, err := c.sessions.Unlock(username, password)
	if err != nil {
		return "", err
	}
	if c.broker != nil {
		c.broker.Publish(&events.Event{Type: events.EventSessionCreated})
	}
	return token, nil
}

// LockVault destroys the session.
func (c *Core) LockVault(token string) {
	c.sessions.Lock(token)
	if c.broker != nil {
		c.broker.Publish(&events.Event{Type: events.EventSessionExpired})
	}
}

// TouchActivity extends the session's idle window.
func (c *Core) TouchActivity(token string) error {
	return c.sessions.TouchActivity(token)
}

// SaveEntry encrypts and stores a new entry, returning its sync identity.
func (c *Core) SaveEntry(token, label string, payload types.EntryPayload, profileID *int64) (uuid.UUID, error) {
	id, err := c.vault.Save(token, label, payload, profileID)
	if err != nil {
		return uuid.Nil, err
	}
	if c.broker != nil {
		c.broker.Publish(&events.Event{Type: events.EventEntrySaved})
	}
	return id, nil
}

// UpdateEntry re-encrypts an entry with new content.
func (c *Core) UpdateEntry(token string, id int64, label string, payload types.EntryPayload) error {
	if err := c.vault.Update(token, id, label, payload); err != nil {
		return err
	}
	if c.broker != nil {
		c.broker.Publish(&events.Event{Type: events.EventEntryUpdated})
	}
	return nil
}

// DeleteEntry tombstones an entry.
func (c *Core) DeleteEntry(token string, id int64) error {
	if err := c.vault.Delete(token, id); err != nil {
		return err
	}
	if c.broker != nil {
		c.broker.Publish(&events.Event{Type: events.EventEntryDeleted})
	}
	return nil
}

// GetAllEntries lists and decrypts the active profile's entries.
func (c *Core) GetAllEntries(token string) ([]*types.EntryView, error) {
	return c.vault.List(token)
}

// GetTOTPToken generates the current one-time code for a secret.
func (c *Core) GetTOTPToken(token, secret string) (types.TOTPToken, error) {
	if err := c.sessions.TouchActivity(token); err != nil {
		return types.TOTPToken{}, err
	}
	return totp.Generate(secret, c.now())
}

// Profile operations.

func (c *Core) CreateProfile(token, name string) (*types.Profile, error) {
	return c.vault.CreateProfile(token, name)
}

func (c *Core) GetAllProfiles(token string) ([]*types.Profile, error) {
	return c.vault.Profiles(token)
}

func (c *Core) RenameProfile(token string, id int64, name string) error {
	return c.vault.RenameProfile(token, id, name)
}

func (c *Core) DeleteProfile(token string, id int64) error {
	return c.vault.DeleteProfile(token, id)
}

func (c *Core) GetActiveProfile(token string) (*types.Profile, error) {
	return c.vault.ActiveProfile(token)
}

func (c *Core) SetActiveProfile(token string, id int64) error {
	return c.vault.SetActiveProfile(token, id)
}

// Sync operations.

func (c *Core) StartPush(token string) error {
	return c.sync.StartPush(token)
}

func (c *Core) StartPull(token string) error {
	return c.sync.StartPull(token)
}

func (c *Core) ScanForDevices(ctx context.Context, token string) ([]ble.DeviceInfo, error) {
	return c.sync.Scan(ctx, token)
}

func (c *Core) ConnectToDevice(token string, device ble.DeviceInfo) error {
	return c.sync.Connect(token, device)
}

func (c *Core) SubmitPairingCode(token, code string) error {
	return c.sync.SubmitPairingCode(token, code)
}

func (c *Core) CancelSync(token string) error {
	return c.sync.Cancel(token)
}

func (c *Core) SyncState(token string) (syncpkg.Snapshot, error) {
	return c.sync.State(token)
}

// Device operations.

func (c *Core) GetPairedDevices(token string) ([]*types.PairedDevice, error) {
	if err := c.sessions.TouchActivity(token); err != nil {
		return nil, err
	}
	return c.store.GetPairedDevices()
}

func (c *Core) ForgetDevice(token, deviceID string) error {
	if err := c.sessions.TouchActivity(token); err != nil {
		return err
	}
	if err := c.store.ForgetDevice(deviceID); err != nil {
		return err
	}
	if c.broker != nil {
		c.broker.Publish(&events.Event{Type: events.EventDeviceForgot})
	}
	return nil
}

// GetSyncHistory lists past sync sessions, most recent first.
func (c *Core) GetSyncHistory(token string) ([]*types.SyncLogEntry, error) {
	if err := c.sessions.TouchActivity(token); err != nil {
		return nil, err
	}
	return c.store.GetSyncHistory()
}
