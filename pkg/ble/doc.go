// Package ble carries the sync protocol over Bluetooth Low Energy.
//
// The desktop acts as GATT peripheral (advertiser) and the mobile side as
// central (scanner); both expose the same fixed service with four
// characteristics: Mode, Pairing, SyncControl and DataTransfer. Logical
// messages on DataTransfer are split into chunks of up to 493 payload
// bytes framed with a little-endian index, total and CRC32.
//
// The hardware adapters translate every callback from the platform BLE
// stack into an Event on a single channel, so the sync state machine sees
// one ordered event stream regardless of role. A loopback transport wires
// two endpoints back to back in memory for tests.
package ble
