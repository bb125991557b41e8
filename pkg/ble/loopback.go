package ble

import (
	"context"
	"fmt"
	"sync"
)

// Loopback wires a peripheral endpoint and a central endpoint back to back
// in memory. It stands in for a real BLE link in tests and exercises the
// same event contract as the hardware adapters.
type Loopback struct {
	mu        sync.Mutex
	mode      byte
	pairing   []byte
	closed    bool
	corrupt   corruptFunc
	dataCount int

	peripheral *loopbackEnd
	central    *loopbackEnd
}

// NewLoopback creates the linked pair. The peripheral end observes the
// central's connection immediately.
func NewLoopback(mode byte) (*Loopback, Endpoint, Endpoint) {
	l := &Loopback{mode: mode}

	l.peripheral = &loopbackEnd{link: l, peripheral: true, events: make(chan Event, 256)}
	l.central = &loopbackEnd{link: l, peripheral: false, events: make(chan Event, 256)}

	l.peripheral.events <- Event{Kind: EventConnected}
	l.central.events <- Event{Kind: EventConnected}

	return l, l.peripheral, l.central
}

// Corrupt registers a payload mutator applied to data chunks crossing the
// link, used by tests to simulate transfer corruption.
func (l *Loopback) Corrupt(fn func(chunkIndex int, chunk []byte) []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.corrupt = fn
}

type corruptFunc func(chunkIndex int, chunk []byte) []byte

type loopbackEnd struct {
	link       *Loopback
	peripheral bool
	events     chan Event
	closeOnce  sync.Once
}

func (e *loopbackEnd) peer() *loopbackEnd {
	if e.peripheral {
		return e.link.central
	}
	return e.link.peripheral
}

func (e *loopbackEnd) Peer() DeviceInfo {
	if e.peripheral {
		return DeviceInfo{ID: "loopback-central", Name: "Loopback Central"}
	}
	return DeviceInfo{ID: "loopback-peripheral", Name: "Loopback Peripheral"}
}

func (e *loopbackEnd) Mode(ctx context.Context) (byte, error) {
	e.link.mu.Lock()
	defer e.link.mu.Unlock()
	if e.link.closed {
		return 0, fmt.Errorf("link closed")
	}
	return e.link.mode, nil
}

func (e *loopbackEnd) ReadPairing(ctx context.Context) ([]byte, error) {
	e.link.mu.Lock()
	defer e.link.mu.Unlock()
	if e.link.closed {
		return nil, fmt.Errorf("link closed")
	}
	return append([]byte(nil), e.link.pairing...), nil
}

func (e *loopbackEnd) WritePairing(ctx context.Context, data []byte) error {
	e.link.mu.Lock()
	if e.link.closed {
		e.link.mu.Unlock()
		return fmt.Errorf("link closed")
	}
	e.link.pairing = append([]byte(nil), data...)
	e.link.mu.Unlock()

	// A central write is visible to the peripheral as a write event; the
	// peripheral setting its value is a silent publish the central reads.
	if !e.peripheral {
		e.peer().deliver(Event{Kind: EventWrite, Char: CharPairing, Data: append([]byte(nil), data...)})
	}
	return nil
}

func (e *loopbackEnd) SendControl(ctx context.Context, data []byte) error {
	return e.send(CharSyncControl, data, -1)
}

func (e *loopbackEnd) SendData(ctx context.Context, data []byte) error {
	e.link.mu.Lock()
	corrupt := e.link.corrupt
	n := e.link.dataCount
	e.link.dataCount++
	e.link.mu.Unlock()

	if corrupt != nil {
		data = corrupt(n, append([]byte(nil), data...))
	}
	return e.send(CharDataTransfer, data, n)
}

func (e *loopbackEnd) send(char Characteristic, data []byte, _ int) error {
	e.link.mu.Lock()
	if e.link.closed {
		e.link.mu.Unlock()
		return fmt.Errorf("link closed")
	}
	e.link.mu.Unlock()

	kind := EventNotify
	if !e.peripheral {
		kind = EventWrite
	}
	e.peer().deliver(Event{Kind: kind, Char: char, Data: append([]byte(nil), data...)})
	return nil
}

func (e *loopbackEnd) deliver(ev Event) {
	defer func() {
		// The peer may have closed its channel concurrently; a dropped
		// event then behaves like a link teardown race.
		_ = recover()
	}()
	select {
	case e.events <- ev:
	default:
	}
}

func (e *loopbackEnd) Events() <-chan Event {
	return e.events
}

func (e *loopbackEnd) Close() error {
	e.link.mu.Lock()
	alreadyClosed := e.link.closed
	e.link.closed = true
	e.link.mu.Unlock()

	if !alreadyClosed {
		e.peer().deliver(Event{Kind: EventDisconnected})
	}
	e.closeOnce.Do(func() { close(e.events) })
	return nil
}
