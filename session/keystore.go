package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jtmarsh/keywarden/internal/util"
)

// Storage key suffixes for the three session artifacts. They are always
// written and purged together; a session with only some of them present is
// treated as no session at all.
const (
	suffixWrappingKey = ":wrapping_key"
	suffixWrappedPass = ":wrapped_password"
	suffixExpiry      = ":expiry"
)

// KeyStore wraps the unlocked master password under an ephemeral session
// key so that it never sits in session storage as cleartext. The wrapping
// key is random per session, lives only in volatile storage, and is
// destroyed on lock together with the wrapped password and expiry marker.
type KeyStore struct {
	store Store
	scope string
}

// NewKeyStore creates a KeyStore writing under the given session scope.
// Scoping isolates sessions from each other on shared backends.
func NewKeyStore(store Store, sessionID string) *KeyStore {
	return &KeyStore{store: store, scope: "vaultsession:" + sessionID}
}

// ttlGrace pads the storage backstop TTL past the session deadline so a
// TTL-enforcing backend never evicts a live session's wrapped state; the
// Manager always purges first.
const ttlGrace = time.Minute

// Wrap generates a fresh random wrapping key and nonce, encrypts password
// under them, and persists the wrapping key, wrapped password and expiry
// marker, each carrying a backstop TTL sized past expiry. Any previous
// session state under this scope is replaced.
func (k *KeyStore) Wrap(ctx context.Context, password []byte, expiry time.Time) error {
	wrappingKey, err := util.NewAESKey()
	if err != nil {
		return fmt.Errorf("generating wrapping key: %w", err)
	}
	defer util.WipeBytes(wrappingKey)

	wrapped, err := util.EncryptAES(password, wrappingKey)
	if err != nil {
		return fmt.Errorf("wrapping password: %w", err)
	}

	ttl := time.Until(expiry) + ttlGrace
	if ttl < ttlGrace {
		ttl = ttlGrace
	}

	if err := k.store.Set(ctx, k.scope+suffixWrappingKey, wrappingKey, ttl); err != nil {
		return k.storeErr(err)
	}
	if err := k.store.Set(ctx, k.scope+suffixWrappedPass, wrapped, ttl); err != nil {
		return k.storeErr(err)
	}
	expiryBytes := []byte(strconv.FormatInt(expiry.UnixMilli(), 10))
	if err := k.store.Set(ctx, k.scope+suffixExpiry, expiryBytes, ttl); err != nil {
		return k.storeErr(err)
	}
	return nil
}

// Unwrap recovers the plaintext master password and its expiry. A missing
// or corrupted wrapping key (storage cleared, tampering) reports
// ErrNoSession: there is no active session, not a crash. The caller owns
// wiping the returned bytes.
func (k *KeyStore) Unwrap(ctx context.Context) ([]byte, time.Time, error) {
	wrappingKey, ok, err := k.store.Get(ctx, k.scope+suffixWrappingKey)
	if err != nil {
		return nil, time.Time{}, k.storeErr(err)
	}
	if !ok {
		return nil, time.Time{}, ErrNoSession
	}
	defer util.WipeBytes(wrappingKey)

	wrapped, ok, err := k.store.Get(ctx, k.scope+suffixWrappedPass)
	if err != nil {
		return nil, time.Time{}, k.storeErr(err)
	}
	if !ok {
		return nil, time.Time{}, ErrNoSession
	}

	expiry, err := k.expiry(ctx)
	if err != nil {
		return nil, time.Time{}, err
	}

	password, err := util.DecryptAES(wrapped, wrappingKey)
	if err != nil {
		return nil, time.Time{}, ErrNoSession
	}
	return password, expiry, nil
}

// Expiry returns the stored expiry marker without unwrapping the password.
func (k *KeyStore) Expiry(ctx context.Context) (time.Time, error) {
	return k.expiry(ctx)
}

func (k *KeyStore) expiry(ctx context.Context) (time.Time, error) {
	raw, ok, err := k.store.Get(ctx, k.scope+suffixExpiry)
	if err != nil {
		return time.Time{}, k.storeErr(err)
	}
	if !ok {
		return time.Time{}, ErrNoSession
	}
	millis, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, ErrNoSession
	}
	return time.UnixMilli(millis), nil
}

// Purge removes the wrapping key, wrapped password and expiry marker as
// one operation. Purging an already-empty scope succeeds.
func (k *KeyStore) Purge(ctx context.Context) error {
	err := k.store.Delete(ctx,
		k.scope+suffixWrappingKey,
		k.scope+suffixWrappedPass,
		k.scope+suffixExpiry,
	)
	if err != nil {
		return k.storeErr(err)
	}
	return nil
}

func (k *KeyStore) storeErr(err error) error {
	if errors.Is(err, ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}
