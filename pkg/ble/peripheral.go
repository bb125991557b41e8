package ble

import (
	"context"
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/vibevault/vibevault/pkg/log"
)

var (
	serviceUUID      = mustUUID(ServiceUUID)
	modeUUID         = mustUUID(ModeUUID)
	pairingUUID      = mustUUID(PairingUUID)
	syncControlUUID  = mustUUID(SyncControlUUID)
	dataTransferUUID = mustUUID(DataTransferUUID)
)

func mustUUID(s string) bluetooth.UUID {
	u, err := bluetooth.ParseUUID(s)
	if err != nil {
		panic(fmt.Sprintf("invalid protocol UUID %s: %v", s, err))
	}
	return u
}

// HardwareAdvertiser implements the peripheral role on the platform BLE
// stack. The desktop advertises the sync service with the four protocol
// characteristics and waits for a central to connect.
type HardwareAdvertiser struct {
	adapter *bluetooth.Adapter
}

// NewAdvertiser returns an advertiser over the default adapter.
func NewAdvertiser() *HardwareAdvertiser {
	return &HardwareAdvertiser{adapter: bluetooth.DefaultAdapter}
}

// Advertise enables the adapter, registers the GATT service and starts
// advertising. The returned endpoint reports the central's connection on
// its event channel.
func (a *HardwareAdvertiser) Advertise(ctx context.Context, deviceName string, mode byte) (Endpoint, error) {
	if err := a.adapter.Enable(); err != nil {
		return nil, fmt.Errorf("failed to enable BLE adapter: %w", err)
	}

	ep := &peripheralEndpoint{
		mode:   mode,
		events: make(chan Event, 256),
	}

	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			ep.setPeer(DeviceInfo{ID: device.Address.String(), Name: device.Address.String()})
			ep.deliver(Event{Kind: EventConnected})
		} else {
			ep.deliver(Event{Kind: EventDisconnected})
		}
	})

	err := a.adapter.AddService(&bluetooth.Service{
		UUID: serviceUUID,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				Handle: &ep.modeChar,
				UUID:   modeUUID,
				Flags:  bluetooth.CharacteristicReadPermission,
				Value:  []byte{mode},
			},
			{
				Handle: &ep.pairingChar,
				UUID:   pairingUUID,
				Flags:  bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicWritePermission,
				WriteEvent: func(client bluetooth.Connection, offset int, value []byte) {
					ep.deliver(Event{Kind: EventWrite, Char: CharPairing, Data: append([]byte(nil), value...)})
				},
			},
			{
				Handle: &ep.controlChar,
				UUID:   syncControlUUID,
				Flags:  bluetooth.CharacteristicWritePermission | bluetooth.CharacteristicNotifyPermission,
				WriteEvent: func(client bluetooth.Connection, offset int, value []byte) {
					ep.deliver(Event{Kind: EventWrite, Char: CharSyncControl, Data: append([]byte(nil), value...)})
				},
			},
			{
				Handle: &ep.dataChar,
				UUID:   dataTransferUUID,
				Flags:  bluetooth.CharacteristicWritePermission | bluetooth.CharacteristicNotifyPermission,
				WriteEvent: func(client bluetooth.Connection, offset int, value []byte) {
					ep.deliver(Event{Kind: EventWrite, Char: CharDataTransfer, Data: append([]byte(nil), value...)})
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register GATT service: %w", err)
	}

	adv := a.adapter.DefaultAdvertisement()
	err = adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    deviceName,
		ServiceUUIDs: []bluetooth.UUID{serviceUUID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure advertisement: %w", err)
	}
	if err := adv.Start(); err != nil {
		return nil, fmt.Errorf("failed to start advertising: %w", err)
	}

	ep.adv = adv
	bleLogger := log.WithComponent("ble")
	bleLogger.Info().Str("device_name", deviceName).Msg("advertising sync service")
	return ep, nil
}

type peripheralEndpoint struct {
	mode byte
	adv  *bluetooth.Advertisement

	modeChar    bluetooth.Characteristic
	pairingChar bluetooth.Characteristic
	controlChar bluetooth.Characteristic
	dataChar    bluetooth.Characteristic

	mu      sync.Mutex
	peer    DeviceInfo
	pairing []byte
	closed  bool

	events    chan Event
	closeOnce sync.Once
}

func (ep *peripheralEndpoint) setPeer(info DeviceInfo) {
	ep.mu.Lock()
	ep.peer = info
	ep.mu.Unlock()
}

func (ep *peripheralEndpoint) Peer() DeviceInfo {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return ep.peer
}

func (ep *peripheralEndpoint) Mode(ctx context.Context) (byte, error) {
	return ep.mode, nil
}

func (ep *peripheralEndpoint) ReadPairing(ctx context.Context) ([]byte, error) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return append([]byte(nil), ep.pairing...), nil
}

func (ep *peripheralEndpoint) WritePairing(ctx context.Context, data []byte) error {
	ep.mu.Lock()
	ep.pairing = append([]byte(nil), data...)
	ep.mu.Unlock()

	if _, err := ep.pairingChar.Write(data); err != nil {
		return fmt.Errorf("failed to publish pairing value: %w", err)
	}
	return nil
}

func (ep *peripheralEndpoint) SendControl(ctx context.Context, data []byte) error {
	if _, err := ep.controlChar.Write(data); err != nil {
		return fmt.Errorf("failed to notify sync control: %w", err)
	}
	return nil
}

func (ep *peripheralEndpoint) SendData(ctx context.Context, data []byte) error {
	if _, err := ep.dataChar.Write(data); err != nil {
		return fmt.Errorf("failed to notify data transfer: %w", err)
	}
	return nil
}

func (ep *peripheralEndpoint) Events() <-chan Event {
	return ep.events
}

func (ep *peripheralEndpoint) deliver(ev Event) {
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

func (ep *peripheralEndpoint) Close() error {
	ep.mu.Lock()
	ep.closed = true
	ep.mu.Unlock()

	var err error
	if ep.adv != nil {
		err = ep.adv.Stop()
	}
	ep.closeOnce.Do(func() { close(ep.events) })
	return err
}
