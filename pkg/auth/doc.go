// Package auth implements registration, vault unlock and the in-memory
// session table.
//
// Unlock verifies the Argon2id authentication hash, derives the data
// encryption key over the independent encryption salt, and indexes the key
// by an opaque random token. The key never crosses the package boundary:
// callers borrow it through Manager.WithKey, which hands out a transient
// copy and zeroizes it on return.
//
// Failed unlocks are rate limited per username with an exponential cooldown,
// and a background sweeper expires sessions idle past the configured
// timeout, zeroizing their keys.
package auth
