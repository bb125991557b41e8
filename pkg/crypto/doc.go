// Package crypto implements the cryptographic primitives of the VibeVault
// core: Argon2id password hashing and key derivation, AES-256-GCM
// authenticated encryption, P-256 ECDH with compressed point encoding,
// HKDF-SHA256 session key derivation, the pairing HMAC, and the CRC32 used
// by the transfer framing.
//
// Two independent salts separate authentication from encryption: the
// authentication hash is stored as a PHC string over auth_salt, while the
// data key is the raw Argon2id output over encryption_salt and exists only
// in memory for the lifetime of a session.
package crypto
