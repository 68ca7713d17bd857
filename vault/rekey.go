package vault

import (
	"fmt"

	"github.com/jtmarsh/keywarden/crypto"
	"github.com/jtmarsh/keywarden/internal/util"
)

// RekeyRecord pairs a record identifier with its ciphertext token. The
// coordinator never touches storage; it maps input tokens to output tokens
// fully in memory and the caller performs the atomic swap.
type RekeyRecord struct {
	ID         string
	Ciphertext string
}

// SelfEntryPredicate identifies the account's own self-referential
// credential entry, whose embedded password field is updated to the new
// master password during re-encryption. This is a product rule injected
// from above; the crypto path stays generic.
type SelfEntryPredicate func(*ItemPayload) bool

type rekeyOptions struct {
	params    crypto.Params
	selfEntry SelfEntryPredicate
}

// RekeyOption customizes a Rekey pass.
type RekeyOption func(*rekeyOptions)

// WithRekeyParams overrides the derivation parameters for both the old and
// the new key.
func WithRekeyParams(params crypto.Params) RekeyOption {
	return func(o *rekeyOptions) {
		o.params = params
	}
}

// WithSelfEntryPredicate installs the predicate marking the account's own
// credential entry.
func WithSelfEntryPredicate(pred SelfEntryPredicate) RekeyOption {
	return func(o *rekeyOptions) {
		o.selfEntry = pred
	}
}

// Rekey decrypts every record under the key derived from oldPassword and
// re-encrypts it under the key derived from newPassword.
//
// All-or-nothing: every record is attempted, all failures are collected,
// and any failure at all yields a nil result with a *RekeyError. The
// caller must then leave both the stored ciphertexts and the credential
// hash untouched. On success the returned slice holds one output per input
// record, in input order.
func Rekey(records []RekeyRecord, oldPassword, newPassword, accountID string, opts ...RekeyOption) ([]RekeyRecord, error) {
	o := rekeyOptions{params: crypto.DefaultParams()}
	for _, opt := range opts {
		opt(&o)
	}

	oldKey, err := crypto.DeriveVaultKey(oldPassword, accountID, o.params)
	if err != nil {
		return nil, fmt.Errorf("deriving old key: %w", err)
	}
	defer util.WipeBytes(oldKey)

	newKey, err := crypto.DeriveVaultKey(newPassword, accountID, o.params)
	if err != nil {
		return nil, fmt.Errorf("deriving new key: %w", err)
	}
	defer util.WipeBytes(newKey)

	out := make([]RekeyRecord, 0, len(records))
	var reasons []error

	for _, rec := range records {
		payload, err := DecryptItem(rec.Ciphertext, oldKey)
		if err != nil {
			reasons = append(reasons, fmt.Errorf("record %s: %w", rec.ID, err))
			continue
		}

		if o.selfEntry != nil && o.selfEntry(payload) {
			payload.Password = newPassword
		}

		token, err := EncryptItem(payload, newKey)
		if err != nil {
			reasons = append(reasons, fmt.Errorf("record %s: %w", rec.ID, err))
			continue
		}
		out = append(out, RekeyRecord{ID: rec.ID, Ciphertext: token})
	}

	if len(reasons) > 0 {
		return nil, &RekeyError{Failed: len(reasons), Reasons: reasons}
	}
	return out, nil
}
