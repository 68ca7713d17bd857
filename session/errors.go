package session

import "errors"

var (
	// ErrInvalidPassword indicates the submitted master password failed
	// verification against the account's existing ciphertext. It is safe
	// to show to the user; no finer detail is ever attached.
	ErrInvalidPassword = errors.New("invalid password")

	// ErrNoSession indicates there is no active unlocked session: the
	// vault is locked, or the session's wrapped state is missing or
	// corrupted. Treated as "locked", never as a crash.
	ErrNoSession = errors.New("no active vault session")

	// ErrSessionExpired indicates the inactivity deadline passed; the
	// cached secret material has been purged and the caller must
	// re-prompt for the password.
	ErrSessionExpired = errors.New("vault session expired")

	// ErrStorageUnavailable indicates the volatile session store cannot
	// be reached. The session degrades to locked; it never proceeds
	// unencrypted.
	ErrStorageUnavailable = errors.New("session storage unavailable")

	// ErrUnlockSuperseded indicates a newer unlock or lock operation
	// overtook this in-flight unlock attempt; its result was discarded.
	ErrUnlockSuperseded = errors.New("unlock attempt superseded")
)
