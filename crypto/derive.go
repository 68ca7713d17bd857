// Package crypto implements the key derivation and secret-handling
// primitives for the keywarden vault: the master-password key derivation,
// the server-side secret box for 2FA secrets, and password generation.
package crypto

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/jtmarsh/keywarden/internal/util"
)

// KeySize is the derived vault key length in bytes (256 bits).
const KeySize = 32

// Params configures the PBKDF2 work factor for vault key derivation.
// The defaults form a compatibility contract: changing them invalidates
// every ciphertext derived under the old profile, so deployments that
// raise the work factor must re-encrypt through the rekey path.
type Params struct {
	Iterations int
	KeyLen     int
}

// DefaultParams returns the derivation profile used for all stored vault
// ciphertexts: PBKDF2-HMAC-SHA256, 10 000 iterations, 32-byte key.
func DefaultParams() Params {
	return Params{
		Iterations: 10_000,
		KeyLen:     KeySize,
	}
}

// Validate checks that the parameters meet minimum acceptable thresholds.
func (p Params) Validate() error {
	if p.Iterations < 1_000 {
		return fmt.Errorf("pbkdf2 iterations too low: %d", p.Iterations)
	}
	if p.KeyLen != KeySize {
		return fmt.Errorf("derived key length must be %d bytes, got %d", KeySize, p.KeyLen)
	}
	return nil
}

// DeriveVaultKey derives the symmetric vault encryption key from the
// master password and the account identifier.
//
// The account identifier serves as the salt. That makes derivation fully
// deterministic for a given account with no stored salt state: the same
// (password, identifier) pair always yields the same key, which is what
// allows previously stored records to be decrypted on demand. The
// identifier is unique per account, so keys never collide across accounts.
// Both inputs are NFKD-normalized before use.
//
// The result must never be persisted or logged; callers wipe it when done.
func DeriveVaultKey(masterPassword, accountID string, params Params) ([]byte, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	salt := []byte(util.Normalize(accountID))
	key := pbkdf2.Key([]byte(util.Normalize(masterPassword)), salt, params.Iterations, params.KeyLen, sha256.New)
	return key, nil
}
