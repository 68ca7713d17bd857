package vault

import (
	"errors"
	"fmt"
)

var (
	// ErrDecrypt indicates an authentication or decryption failure. It is
	// the single signal for "wrong password or corrupted data"; callers
	// must not surface any finer distinction to users.
	ErrDecrypt = errors.New("decryption failed")

	// ErrCorruptedData indicates the ciphertext authenticated but the
	// payload inside did not match the expected shape. It wraps ErrDecrypt
	// so higher layers that only check for ErrDecrypt still treat it as a
	// failed decrypt.
	ErrCorruptedData = fmt.Errorf("corrupted payload: %w", ErrDecrypt)
)

// RekeyError reports a failed re-encryption pass. The credential change
// must be rejected entirely when this is returned; no partial results
// exist to persist.
type RekeyError struct {
	Failed  int
	Reasons []error
}

func (e *RekeyError) Error() string {
	return fmt.Sprintf("re-encryption failed for %d record(s)", e.Failed)
}

func (e *RekeyError) Unwrap() []error {
	return e.Reasons
}
