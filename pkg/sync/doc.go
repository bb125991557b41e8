// Package sync implements peer-to-peer exchange of vault entries between
// two paired devices over a BLE link.
//
// The state machine walks Idle, Advertising or Scanning, Connected,
// ModeRead, Paired, Transferring and Complete or Error. Pairing is a
// short-authentication-string exchange: ephemeral P-256 keys protected by
// an HMAC keyed with the displayed 6-digit code, then HKDF-SHA256 turns
// the ECDH secret into a session key that lives exactly as long as the
// connection.
//
// Entries travel as envelopes, fixed little-endian records carrying the
// sync identity, version, label and the payload re-encrypted under the
// session key. Merging is last-writer-wins on sync_version with a
// deterministic tie-break that both ends apply identically; incoming
// versions are written verbatim, so replaying a bundle is idempotent.
package sync
