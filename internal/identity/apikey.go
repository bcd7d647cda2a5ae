package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

const rawKeyPrefix = "blite_"

// GenerateAPIKey mints a new plaintext key plus its stored hash and display
// prefix, following the teacher's cmd/gateway/handlers_apikeys.go scheme:
// a random 32-byte key, a fixed textual prefix, and a SHA-256 hex digest as
// the only persisted form of the key.
func GenerateAPIKey() (raw, hash, prefix string, err error) {
	b := make([]byte, 32)
	if _, err = rand.Read(b); err != nil {
		return "", "", "", err
	}
	raw = rawKeyPrefix + hex.EncodeToString(b)
	hash = HashToken(raw)
	prefix = raw[:len(rawKeyPrefix)+4]
	return raw, hash, prefix, nil
}

// HashToken is the teacher's cmd/gateway/middleware.go hashToken: a plain
// SHA-256 hex digest used to look up API keys and session tokens without
// ever storing them in recoverable form.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// generateRecoveryPassphrase mints the one-time passphrase handed back when
// bootstrapping or resetting the root user's emergency recovery hash.
func generateRecoveryPassphrase() (string, error) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// hashRecoveryPassphrase stores the root recovery passphrase with bcrypt
// rather than a raw digest: unlike an API key (a high-entropy secret
// compared by exact hash), the recovery passphrase is the last resort for
// regaining control of the system database and deserves a slow, salted
// comparison.
func hashRecoveryPassphrase(passphrase string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(passphrase), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func verifyRecoveryPassphrase(hash, passphrase string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(passphrase)) == nil
}
