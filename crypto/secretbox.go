package crypto

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/jtmarsh/keywarden/internal/util"
)

// SecretBox encrypts small server-side secrets (the TOTP seed of an
// account) under a deployment-configured key. It is unrelated to the
// per-user vault key: the server can always open these, the vault it
// never can.
type SecretBox struct {
	key []byte
}

// NewSecretBox creates a SecretBox from a hex-encoded 256-bit key,
// typically sourced from configuration.
func NewSecretBox(hexKey string) (*SecretBox, error) {
	if hexKey == "" {
		return nil, fmt.Errorf("secret box key not configured")
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decoding secret box key: %w", err)
	}
	if len(key) != util.AESKeySize {
		return nil, fmt.Errorf("secret box key must be %d bytes, got %d", util.AESKeySize, len(key))
	}
	return &SecretBox{key: key}, nil
}

// NewSecretBoxKey generates a fresh random key in the hex encoding
// accepted by NewSecretBox.
func NewSecretBoxKey() (string, error) {
	key, err := util.NewAESKey()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}

// Seal encrypts the secret and returns a single opaque base64 token.
func (b *SecretBox) Seal(secret string) (string, error) {
	cipherText, err := util.EncryptAES([]byte(secret), b.key)
	if err != nil {
		return "", fmt.Errorf("sealing secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(cipherText), nil
}

// Open decrypts a token produced by Seal.
func (b *SecretBox) Open(token string) (string, error) {
	cipherText, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("decoding sealed secret: %w", err)
	}
	plainText, err := util.DecryptAES(cipherText, b.key)
	if err != nil {
		return "", fmt.Errorf("opening sealed secret: %w", err)
	}
	return string(plainText), nil
}
