// Package log provides structured logging for VibeVault components.
//
// It wraps zerolog with a small API: a global logger initialized once at
// startup via Init, and helpers for creating component-scoped child loggers.
// Components never log secrets or decrypted payloads; callers pass entry
// labels and identifiers only.
package log
