package ble

import "context"

// EventKind classifies transport events delivered to the sync state
// machine. All BLE callbacks, regardless of role, are converted into Event
// values on a single channel so transitions stay pure functions of
// (state, event).
type EventKind int

const (
	// EventConnected fires when the peer link is established.
	EventConnected EventKind = iota

	// EventWrite fires on the peripheral when the central writes a
	// characteristic; Data carries the written value.
	EventWrite

	// EventNotify fires on the central when the peripheral notifies a
	// characteristic; Data carries the notified value.
	EventNotify

	// EventDisconnected fires when the link drops for any reason.
	EventDisconnected
)

// Event is one transport occurrence.
type Event struct {
	Kind EventKind
	Char Characteristic
	Data []byte
}

// DeviceInfo describes a discovered peer.
type DeviceInfo struct {
	ID   string // stable peer address
	Name string // advertised local name
}

// Endpoint is a connected duplex link to the peer, role-agnostic from the
// state machine's point of view. On the peripheral, SendControl and
// SendData notify the subscribed central; on the central they are GATT
// writes. Inbound traffic arrives on Events.
type Endpoint interface {
	// Peer identifies the remote device.
	Peer() DeviceInfo

	// Mode returns the peripheral's direction byte: the central reads the
	// Mode characteristic, the peripheral reports its own configuration.
	Mode(ctx context.Context) (byte, error)

	// ReadPairing reads the pairing characteristic value (central only).
	ReadPairing(ctx context.Context) ([]byte, error)

	// WritePairing publishes pairing material: the peripheral sets the
	// characteristic value, the central writes it without response.
	WritePairing(ctx context.Context, data []byte) error

	// SendControl transmits a SyncControl message.
	SendControl(ctx context.Context, data []byte) error

	// SendData transmits one chunk on the DataTransfer characteristic.
	SendData(ctx context.Context, data []byte) error

	// Events delivers inbound transport events in causal order. The
	// channel closes when the link is gone.
	Events() <-chan Event

	// Close tears the link down.
	Close() error
}

// Advertiser is the peripheral role: the desktop advertises the sync
// service and waits for a central to connect.
type Advertiser interface {
	// Advertise starts advertising with the given device name and mode
	// byte and returns an endpoint whose Events channel reports the
	// central's connection.
	Advertise(ctx context.Context, deviceName string, mode byte) (Endpoint, error)
}

// Scanner is the central role: the mobile side scans for peripherals
// advertising the sync service and connects to a selected one.
type Scanner interface {
	// Scan reports discovered candidates to found until found returns
	// false, the context is cancelled, or the scan window ends.
	Scan(ctx context.Context, found func(DeviceInfo) bool) error

	// Connect establishes the link and discovers the four protocol
	// characteristics.
	Connect(ctx context.Context, device DeviceInfo) (Endpoint, error)
}
