package crypto

import (
	"encoding/base64"
	"fmt"

	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/argon2"
)

// Argon2id parameters shared by both the authentication hash and the data
// key derivation. Both devices of a sync pair must use identical values for
// cross-device compatibility.
const (
	ArgonMemoryKiB = 19456
	ArgonTime      = 2
	ArgonThreads   = 1
	ArgonKeyLen    = 32
)

// AuthSaltLen and EncryptionSaltLen size the two independent per-user salts.
const (
	AuthSaltLen       = 16
	EncryptionSaltLen = 32
)

// HashPassword produces the Argon2id PHC string for authentication, hashing
// password over the caller-supplied salt.
func HashPassword(password string, salt []byte) (string, error) {
	if len(salt) != AuthSaltLen {
		return "", fmt.Errorf("auth salt must be %d bytes, got %d", AuthSaltLen, len(salt))
	}

	hash := argon2.IDKey([]byte(password), salt, ArgonTime, ArgonMemoryKiB, ArgonThreads, ArgonKeyLen)

	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	phc := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, ArgonMemoryKiB, ArgonTime, ArgonThreads, b64Salt, b64Hash)
	return phc, nil
}

// VerifyPassword re-parses the stored PHC string and checks password against
// it in constant time.
func VerifyPassword(password, phc string) (bool, error) {
	match, err := argon2id.ComparePasswordAndHash(password, phc)
	if err != nil {
		return false, fmt.Errorf("failed to parse password hash: %w", err)
	}
	return match, nil
}

// DeriveKey derives the 32-byte AES-256-GCM data key from the master
// password and the per-user encryption salt.
func DeriveKey(password string, salt []byte) ([]byte, error) {
	if len(salt) != EncryptionSaltLen {
		return nil, fmt.Errorf("encryption salt must be %d bytes, got %d", EncryptionSaltLen, len(salt))
	}
	return argon2.IDKey([]byte(password), salt, ArgonTime, ArgonMemoryKiB, ArgonThreads, ArgonKeyLen), nil
}
