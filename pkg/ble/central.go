package ble

import (
	"context"
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/vibevault/vibevault/pkg/log"
)

// HardwareScanner implements the central role on the platform BLE stack:
// scan for peripherals advertising the sync service, connect to a selected
// one, and discover the four protocol characteristics.
type HardwareScanner struct {
	adapter *bluetooth.Adapter

	mu      sync.Mutex
	results map[string]bluetooth.ScanResult
}

// NewScanner returns a scanner over the default adapter.
func NewScanner() *HardwareScanner {
	return &HardwareScanner{
		adapter: bluetooth.DefaultAdapter,
		results: make(map[string]bluetooth.ScanResult),
	}
}

// Scan filters advertisements by the sync service UUID and reports each
// candidate to found. Returning false from found, or cancelling ctx, stops
// the scan.
func (s *HardwareScanner) Scan(ctx context.Context, found func(DeviceInfo) bool) error {
	if err := s.adapter.Enable(); err != nil {
		return fmt.Errorf("failed to enable BLE adapter: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.adapter.StopScan()
		case <-done:
		}
	}()

	err := s.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		if !result.AdvertisementPayload.HasServiceUUID(serviceUUID) {
			return
		}

		id := result.Address.String()
		s.mu.Lock()
		s.results[id] = result
		s.mu.Unlock()

		if !found(DeviceInfo{ID: id, Name: result.LocalName()}) {
			_ = adapter.StopScan()
		}
	})
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	return ctx.Err()
}

// Connect establishes the GATT link to a previously scanned device.
func (s *HardwareScanner) Connect(ctx context.Context, device DeviceInfo) (Endpoint, error) {
	s.mu.Lock()
	result, ok := s.results[device.ID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("device %s was not seen during the scan", device.ID)
	}

	ep := &centralEndpoint{
		peer:   device,
		events: make(chan Event, 256),
	}

	s.adapter.SetConnectHandler(func(d bluetooth.Device, connected bool) {
		if !connected {
			ep.deliver(Event{Kind: EventDisconnected})
		}
	})

	dev, err := s.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	ep.device = dev

	svcs, err := dev.DiscoverServices([]bluetooth.UUID{serviceUUID})
	if err != nil || len(svcs) == 0 {
		_ = dev.Disconnect()
		return nil, fmt.Errorf("sync service not found: %w", err)
	}

	chars, err := svcs[0].DiscoverCharacteristics([]bluetooth.UUID{
		modeUUID, pairingUUID, syncControlUUID, dataTransferUUID,
	})
	if err != nil || len(chars) != 4 {
		_ = dev.Disconnect()
		return nil, fmt.Errorf("protocol characteristics not found: %w", err)
	}
	ep.modeChar, ep.pairingChar, ep.controlChar, ep.dataChar = chars[0], chars[1], chars[2], chars[3]

	err = ep.controlChar.EnableNotifications(func(buf []byte) {
		ep.deliver(Event{Kind: EventNotify, Char: CharSyncControl, Data: append([]byte(nil), buf...)})
	})
	if err != nil {
		_ = dev.Disconnect()
		return nil, fmt.Errorf("failed to subscribe to sync control: %w", err)
	}

	err = ep.dataChar.EnableNotifications(func(buf []byte) {
		ep.deliver(Event{Kind: EventNotify, Char: CharDataTransfer, Data: append([]byte(nil), buf...)})
	})
	if err != nil {
		_ = dev.Disconnect()
		return nil, fmt.Errorf("failed to subscribe to data transfer: %w", err)
	}

	ep.deliver(Event{Kind: EventConnected})
	bleLogger := log.WithComponent("ble")
	bleLogger.Info().Str("device_id", device.ID).Msg("connected to peripheral")
	return ep, nil
}

type centralEndpoint struct {
	peer   DeviceInfo
	device bluetooth.Device

	modeChar    bluetooth.DeviceCharacteristic
	pairingChar bluetooth.DeviceCharacteristic
	controlChar bluetooth.DeviceCharacteristic
	dataChar    bluetooth.DeviceCharacteristic

	mu        sync.Mutex
	closed    bool
	events    chan Event
	closeOnce sync.Once
}

func (ep *centralEndpoint) Peer() DeviceInfo {
	return ep.peer
}

func (ep *centralEndpoint) Mode(ctx context.Context) (byte, error) {
	buf := make([]byte, 4)
	n, err := ep.modeChar.Read(buf)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("failed to read mode: %w", err)
	}
	return buf[0], nil
}

func (ep *centralEndpoint) ReadPairing(ctx context.Context) ([]byte, error) {
	buf := make([]byte, 512)
	n, err := ep.pairingChar.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to read pairing: %w", err)
	}
	return buf[:n], nil
}

func (ep *centralEndpoint) WritePairing(ctx context.Context, data []byte) error {
	if _, err := ep.pairingChar.WriteWithoutResponse(data); err != nil {
		return fmt.Errorf("failed to write pairing: %w", err)
	}
	return nil
}

func (ep *centralEndpoint) SendControl(ctx context.Context, data []byte) error {
	if _, err := ep.controlChar.WriteWithoutResponse(data); err != nil {
		return fmt.Errorf("failed to write sync control: %w", err)
	}
	return nil
}

func (ep *centralEndpoint) SendData(ctx context.Context, data []byte) error {
	if _, err := ep.dataChar.WriteWithoutResponse(data); err != nil {
		return fmt.Errorf("failed to write data chunk: %w", err)
	}
	return nil
}

func (ep *centralEndpoint) Events() <-chan Event {
	return ep.events
}

func (ep *centralEndpoint) deliver(ev Event) {
	ep.mu.Lock()
	closed := ep.closed
	ep.mu.Unlock()
	if closed {
		return
	}
	select {
	case ep.events <- ev:
	default:
	}
}

func (ep *centralEndpoint) Close() error {
	ep.mu.Lock()
	ep.closed = true
	ep.mu.Unlock()

	err := ep.device.Disconnect()
	ep.closeOnce.Do(func() { close(ep.events) })
	return err
}
