package repos

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
	"golang.org/x/text/unicode/norm"
)

const (
	// scrypt parameters for deriving the token key from the secret.
	scryptN      = 32768
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32

	tokenKeySalt = "cfi-sync/api-token"
)

var errTokenCiphertext = errors.New("token ciphertext too short")

// TokenCipher encrypts the API token at rest with AES-GCM. Ciphertext is
// hex encoded as [12-byte nonce][ciphertext+tag].
type TokenCipher struct {
	gcm cipher.AEAD
}

// NewTokenCipher derives the token key from secret with scrypt.
func NewTokenCipher(secret string) (*TokenCipher, error) {
	key, err := scrypt.Key([]byte(norm.NFKC.String(secret)), []byte(tokenKeySalt), scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("deriving token key: %w", err)
	}
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	return &TokenCipher{gcm: gcm}, nil
}

// Encrypt seals plaintext with a random nonce.
func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	return hex.EncodeToString(c.gcm.Seal(nonce, nonce, []byte(plaintext), nil)), nil
}

// Decrypt opens a value produced by Encrypt.
func (c *TokenCipher) Decrypt(encoded string) (string, error) {
	data, err := hex.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decoding token: %w", err)
	}

	ns := c.gcm.NonceSize()
	if len(data) < ns+c.gcm.Overhead() {
		return "", errTokenCiphertext
	}

	plain, err := c.gcm.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypting token: %w", err)
	}

	return string(plain), nil
}
