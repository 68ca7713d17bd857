// Package storage defines the persistence boundary for vault records and
// account data. Ciphertext is an opaque token to everything in here; only
// the vault package holding the right key can open it.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record or user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrEmailTaken is returned when registering an email that already
	// has an account.
	ErrEmailTaken = errors.New("email already registered")
)

// Record is a stored vault entry: encrypted payload plus unencrypted
// metadata readable without the master password. No plaintext secret field
// exists here by construction.
type Record struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Ciphertext string    `json:"ciphertext"`
	Category   string    `json:"category,omitempty"`
	IsFavorite bool      `json:"is_favorite,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// User is an account. HashedPassword is the bcrypt login hash — a secret
// independent of the vault key derivation even though the user types the
// same string for both. TwoFactorSecret is sealed under the server's
// secret box, never stored raw.
type User struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	HashedPassword   string    `json:"hashed_password"`
	TwoFactorSecret  string    `json:"two_factor_secret,omitempty"`
	TwoFactorEnabled bool      `json:"two_factor_enabled,omitempty"`
	AutoLockSeconds  int       `json:"auto_lock_seconds,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// BatchTx exposes writes inside an atomic batch. The change-password flow
// depends on this: new ciphertexts and the new credential hash land
// together or not at all.
type BatchTx interface {
	PutRecord(record *Record) error
	PutUser(user *User) error
}

// Repository is the persistence collaborator for vault records and users.
type Repository interface {
	GetRecord(ctx context.Context, id string) (*Record, error)
	ListRecords(ctx context.Context, ownerID string) ([]*Record, error)
	PutRecord(ctx context.Context, record *Record) error
	DeleteRecord(ctx context.Context, id string) error

	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	PutUser(ctx context.Context, user *User) error

	// Batch executes fn atomically: on error every write is rolled back.
	Batch(ctx context.Context, fn func(tx BatchTx) error) error
}
