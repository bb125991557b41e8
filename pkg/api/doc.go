// Package api assembles the core operations consumed by UI shells:
// registration and unlock, entry CRUD, TOTP generation, profile
// management, sync control and history. The façade owns no state of its
// own; it validates sessions and delegates to the underlying services.
package api
