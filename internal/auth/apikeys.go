// Package auth guards the HTTP surface with static API keys.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

const (
	// APIKeyPrefix distinguishes cfi-sync API keys from other bearer
	// tokens a proxy may forward.
	APIKeyPrefix = "cfi_"

	// APIKeyMinLen is the prefix plus 32 hex characters (128 bits).
	APIKeyMinLen = len(APIKeyPrefix) + 32
)

// APIKey is a configured key and the user it authenticates.
type APIKey struct {
	UserID string
	Key    string
}

// Keyring validates presented keys against the configured set.
type Keyring struct {
	keys []hashedKey
}

type hashedKey struct {
	userID string
	sum    [sha256.Size]byte
}

// NewKeyring builds a keyring. Keys are held as SHA-256 digests and
// compared in constant time.
func NewKeyring(keys []APIKey) *Keyring {
	kr := &Keyring{}
	for _, k := range keys {
		kr.keys = append(kr.keys, hashedKey{userID: k.UserID, sum: sha256.Sum256([]byte(k.Key))})
	}

	return kr
}

// Len returns the number of configured keys.
func (kr *Keyring) Len() int {
	return len(kr.keys)
}

// Validate returns the user ID owning token, or "" when no key matches.
// Every configured key is compared so timing does not reveal which
// one matched.
func (kr *Keyring) Validate(token string) string {
	sum := sha256.Sum256([]byte(token))
	user := ""

	for _, k := range kr.keys {
		if subtle.ConstantTimeCompare(sum[:], k.sum[:]) == 1 {
			user = k.userID
		}
	}

	return user
}

// GenerateAPIKey returns a fresh key with the cfi_ prefix.
func GenerateAPIKey() string {
	return APIKeyPrefix + RandomHex(16)
}

// RandomHex returns byteLen random bytes, hex-encoded.
func RandomHex(byteLen int) string {
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}

	return hex.EncodeToString(b)
}
