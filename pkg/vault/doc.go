// Package vault is the entry service: it encrypts payloads on save,
// decrypts on read, and never exposes plaintext without a valid session.
// Entries are keyed by the session-held encryption key borrowed from the
// auth manager for the duration of a single call.
package vault
