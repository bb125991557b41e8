package sync

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vibevault/vibevault/pkg/auth"
	"github.com/vibevault/vibevault/pkg/ble"
	"github.com/vibevault/vibevault/pkg/events"
	"github.com/vibevault/vibevault/pkg/log"
	"github.com/vibevault/vibevault/pkg/store"
	"github.com/vibevault/vibevault/pkg/types"
)

// Manager owns the sync state machine. One sync runs at a time; starting
// another while one is active fails with Busy. The manager holds the BLE
// role objects exclusively while a session is non-idle.
type Manager struct {
	store      *store.Store
	sessions   *auth.Manager
	advertiser ble.Advertiser
	scanner    ble.Scanner
	deviceName string
	timeouts   Timeouts
	broker     *events.Broker
	logger     zerolog.Logger

	mu      sync.Mutex
	current *engine
}

// Config wires a Manager.
type Config struct {
	Store      *store.Store
	Sessions   *auth.Manager
	Advertiser ble.Advertiser
	Scanner    ble.Scanner
	DeviceName string
	Timeouts   Timeouts
	Broker     *events.Broker
}

// NewManager builds the sync manager.
func NewManager(cfg Config) *Manager {
	if cfg.Timeouts == (Timeouts{}) {
		cfg.Timeouts = DefaultTimeouts()
	}
	return &Manager{
		store:      cfg.Store,
		sessions:   cfg.Sessions,
		advertiser: cfg.Advertiser,
		scanner:    cfg.Scanner,
		deviceName: cfg.DeviceName,
		timeouts:   cfg.Timeouts,
		broker:     cfg.Broker,
		logger:     log.WithComponent("sync"),
	}
}

// StartPush advertises in push mode: this device will send its bundle to
// the connecting central.
func (m *Manager) StartPush(token string) error {
	return m.startPeripheral(token, ble.ModePush)
}

// StartPull advertises in pull mode: this device will receive the
// central's bundle.
func (m *Manager) StartPull(token string) error {
	return m.startPeripheral(token, ble.ModePull)
}

func (m *Manager) startPeripheral(token string, mode byte) error {
	if err := m.sessions.TouchActivity(token); err != nil {
		return err
	}
	if m.advertiser == nil {
		return types.NewSyncError(types.SyncBusy, errors.New("no BLE advertiser available"))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && !m.current.finished() {
		return types.NewSyncError(types.SyncBusy, errors.New("a sync is already in progress"))
	}

	endpoint, err := m.advertiser.Advertise(context.Background(), m.deviceName, mode)
	if err != nil {
		return types.NewSyncError(types.SyncPeerAbort, err)
	}

	eng := newEngine(m.store, m.sessions, token, RolePeripheral, mode, m.timeouts, endpoint, m.broker)
	m.current = eng
	m.publishStarted()
	go eng.run()
	return nil
}

// Scan discovers peripherals advertising the sync service for the duration
// of the scan window.
func (m *Manager) Scan(ctx context.Context, token string) ([]ble.DeviceInfo, error) {
	if err := m.sessions.TouchActivity(token); err != nil {
		return nil, err
	}
	if m.scanner == nil {
		return nil, types.NewSyncError(types.SyncBusy, errors.New("no BLE scanner available"))
	}

	scanCtx, cancel := context.WithTimeout(ctx, m.timeouts.Scan)
	defer cancel()

	var (
		seen    = make(map[string]bool)
		devices []ble.DeviceInfo
	)
	err := m.scanner.Scan(scanCtx, func(device ble.DeviceInfo) bool {
		if !seen[device.ID] {
			seen[device.ID] = true
			devices = append(devices, device)
		}
		return true
	})
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return nil, types.NewSyncError(types.SyncTimeout, err)
	}
	return devices, nil
}

// Connect joins a discovered peripheral as the central and runs the sync;
// the direction is read from the peripheral's Mode characteristic.
func (m *Manager) Connect(token string, device ble.DeviceInfo) error {
	if err := m.sessions.TouchActivity(token); err != nil {
		return err
	}
	if m.scanner == nil {
		return types.NewSyncError(types.SyncBusy, errors.New("no BLE scanner available"))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && !m.current.finished() {
		return types.NewSyncError(types.SyncBusy, errors.New("a sync is already in progress"))
	}

	endpoint, err := m.scanner.Connect(context.Background(), device)
	if err != nil {
		return types.NewSyncError(types.SyncPeerAbort, err)
	}

	eng := newEngine(m.store, m.sessions, token, RoleCentral, 0, m.timeouts, endpoint, m.broker)
	eng.setPeer(device)
	m.current = eng
	m.publishStarted()
	go eng.run()
	return nil
}

// startWithEndpoint runs an engine over an already-connected endpoint.
// Tests use it to drive the full protocol over the loopback transport.
func (m *Manager) startWithEndpoint(token string, role Role, mode byte, endpoint ble.Endpoint) (*engine, error) {
	if err := m.sessions.TouchActivity(token); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && !m.current.finished() {
		return nil, types.NewSyncError(types.SyncBusy, errors.New("a sync is already in progress"))
	}

	eng := newEngine(m.store, m.sessions, token, role, mode, m.timeouts, endpoint, m.broker)
	m.current = eng
	go eng.run()
	return eng, nil
}

// SubmitPairingCode feeds the user-entered short authentication string to
// the waiting central engine.
func (m *Manager) SubmitPairingCode(token, code string) error {
	if err := m.sessions.TouchActivity(token); err != nil {
		return err
	}
	if len(code) != 6 {
		return &types.ValidationError{Field: "code", Reason: "pairing code must be 6 digits"}
	}

	eng := m.activeEngine()
	if eng == nil {
		return &types.ValidationError{Field: "code", Reason: "no sync is in progress"}
	}
	return eng.submitCode(code)
}

// Cancel aborts the running sync, if any. Both sides transition to Error
// and disconnect.
func (m *Manager) Cancel(token string) error {
	if err := m.sessions.TouchActivity(token); err != nil {
		return err
	}

	eng := m.activeEngine()
	if eng == nil {
		return nil
	}
	eng.cancel()
	return nil
}

// State returns the current (or last finished) sync snapshot.
func (m *Manager) State(token string) (Snapshot, error) {
	if err := m.sessions.TouchActivity(token); err != nil {
		return Snapshot{}, err
	}

	m.mu.Lock()
	eng := m.current
	m.mu.Unlock()

	if eng == nil {
		return Snapshot{State: StateIdle}, nil
	}
	return eng.Snapshot(), nil
}

func (m *Manager) activeEngine() *engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.finished() {
		return nil
	}
	return m.current
}

func (m *Manager) publishStarted() {
	if m.broker != nil {
		m.broker.Publish(&events.Event{Type: events.EventSyncStarted})
	}
}
