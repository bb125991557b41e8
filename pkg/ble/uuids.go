package ble

// Fixed GATT identifiers shared by both implementations of the protocol.
// These are part of the wire contract and must never change.
const (
	ServiceUUID      = "a1b2c3d4-e5f6-7890-abcd-ef0123456789"
	ModeUUID         = "a1b2c3d4-e5f6-7890-abcd-ef012345678a"
	PairingUUID      = "a1b2c3d4-e5f6-7890-abcd-ef012345678b"
	SyncControlUUID  = "a1b2c3d4-e5f6-7890-abcd-ef012345678c"
	DataTransferUUID = "a1b2c3d4-e5f6-7890-abcd-ef012345678d"
)

// Mode byte advertised by the peripheral.
const (
	ModePush byte = 0x01 // peripheral sends the bundle
	ModePull byte = 0x02 // peripheral receives the bundle
)

// SyncControl opcodes. Unknown opcodes are ignored by both sides.
const (
	OpStart    byte = 0x01
	OpAck      byte = 0x02
	OpAbort    byte = 0x03
	OpComplete byte = 0x04
)

// Characteristic identifies one of the four protocol characteristics in
// transport events.
type Characteristic int

const (
	CharMode Characteristic = iota
	CharPairing
	CharSyncControl
	CharDataTransfer
)

func (c Characteristic) String() string {
	switch c {
	case CharMode:
		return "mode"
	case CharPairing:
		return "pairing"
	case CharSyncControl:
		return "sync_control"
	case CharDataTransfer:
		return "data_transfer"
	default:
		return "unknown"
	}
}
