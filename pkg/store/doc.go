// Package store persists the VibeVault data model in a local SQLite
// database: the single user row, profiles, encrypted entries with
// tombstones and per-row sync versions, paired devices, and sync history.
//
// The schema is managed with GORM over the pure-Go glebarez/sqlite driver.
// Migrations are additive and idempotent; rows written by pre-sync schema
// versions are backfilled with a fresh entry_uuid and sync_version 1 at
// open. Timestamps are ISO-8601 UTC strings, binary fields BLOB columns.
//
// Entries are tombstoned, never hard-deleted, except by the explicit
// PruneTombstones maintenance call.
package store
