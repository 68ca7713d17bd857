package vault

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/jtmarsh/keywarden/crypto"
	"github.com/jtmarsh/keywarden/internal/util"
)

// tokenPrefix versions the ciphertext format. Everything after the prefix
// is opaque to callers; swapping the underlying primitive only requires a
// new prefix, not a storage schema change.
const tokenPrefix = "kw1:"

// EncryptItem serializes payload and encrypts it with AES-256-GCM under
// key, returning a single opaque token. It fails only on serialization or
// entropy errors, never on cipher state.
func EncryptItem(payload *ItemPayload, key []byte) (string, error) {
	plainText, err := marshalPayload(payload)
	if err != nil {
		return "", err
	}
	defer util.WipeBytes(plainText)

	cipherText, err := util.EncryptAES(plainText, key)
	if err != nil {
		return "", fmt.Errorf("encrypting payload: %w", err)
	}
	return tokenPrefix + base64.StdEncoding.EncodeToString(cipherText), nil
}

// DecryptItem decrypts a token produced by EncryptItem. The decrypt is
// only successful if the GCM authentication check passes AND the plaintext
// deserializes into a valid payload shape; anything else reports through
// ErrDecrypt without distinguishing wrong key from tampering.
func DecryptItem(token string, key []byte) (*ItemPayload, error) {
	raw, ok := strings.CutPrefix(token, tokenPrefix)
	if !ok {
		return nil, fmt.Errorf("%w: unrecognized ciphertext format", ErrDecrypt)
	}

	cipherText, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed ciphertext encoding", ErrDecrypt)
	}

	plainText, err := util.DecryptAES(cipherText, key)
	if err != nil {
		return nil, ErrDecrypt
	}
	defer util.WipeBytes(plainText)

	return unmarshalPayload(plainText)
}

// VerifyMasterPassword reports whether password decrypts sampleToken, the
// probe used to validate an unlock attempt against one known ciphertext.
func VerifyMasterPassword(sampleToken, password, accountID string, params crypto.Params) bool {
	key, err := crypto.DeriveVaultKey(password, accountID, params)
	if err != nil {
		return false
	}
	defer util.WipeBytes(key)

	_, err = DecryptItem(sampleToken, key)
	return err == nil
}
