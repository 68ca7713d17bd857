// Package bbolt provides a BBolt-backed storage.Repository.
package bbolt

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/jtmarsh/keywarden/storage"
)

var (
	bucketRecords      = []byte("records")
	bucketUsers        = []byte("users")
	bucketUsersByEmail = []byte("users_by_email")
)

// Store implements storage.Repository backed by a BBolt database.
type Store struct {
	db *bbolt.DB
}

var _ storage.Repository = (*Store)(nil)

// NewStore returns a Store on the given BBolt database, creating the
// buckets if needed.
func NewStore(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketRecords, bucketUsers, bucketUsersByEmail} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStoreFromFile opens a BBolt database at path and returns a Store.
func NewStoreFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewStore(db)
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetRecord(ctx context.Context, id string) (*storage.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var record storage.Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketRecords).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("record %s: %w", id, storage.ErrNotFound)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Store) ListRecords(ctx context.Context, ownerID string) ([]*storage.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*storage.Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRecords).ForEach(func(k, v []byte) error {
			var record storage.Record
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			if record.OwnerID == ownerID {
				out = append(out, &record)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) PutRecord(ctx context.Context, record *storage.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putRecordInTx(tx, record)
	})
}

func putRecordInTx(tx *bbolt.Tx, record *storage.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketRecords).Put([]byte(record.ID), data)
}

func (s *Store) DeleteRecord(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		if b.Get([]byte(id)) == nil {
			return fmt.Errorf("record %s: %w", id, storage.ErrNotFound)
		}
		return b.Delete([]byte(id))
	})
}

func (s *Store) GetUser(ctx context.Context, id string) (*storage.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var user storage.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketUsers).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("user %s: %w", id, storage.ErrNotFound)
		}
		return json.Unmarshal(data, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*storage.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var user storage.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketUsersByEmail).Get([]byte(email))
		if id == nil {
			return storage.ErrNotFound
		}
		data := tx.Bucket(bucketUsers).Get(id)
		if data == nil {
			return storage.ErrNotFound
		}
		return json.Unmarshal(data, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) PutUser(ctx context.Context, user *storage.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putUserInTx(tx, user)
	})
}

func putUserInTx(tx *bbolt.Tx, user *storage.User) error {
	users := tx.Bucket(bucketUsers)
	byEmail := tx.Bucket(bucketUsersByEmail)

	if existingID := byEmail.Get([]byte(user.Email)); existingID != nil && string(existingID) != user.ID {
		return storage.ErrEmailTaken
	}
	if existingData := users.Get([]byte(user.ID)); existingData != nil {
		var existing storage.User
		if err := json.Unmarshal(existingData, &existing); err != nil {
			return err
		}
		if existing.Email != user.Email {
			if err := byEmail.Delete([]byte(existing.Email)); err != nil {
				return err
			}
		}
	}

	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	if err := users.Put([]byte(user.ID), data); err != nil {
		return err
	}
	return byEmail.Put([]byte(user.Email), []byte(user.ID))
}

// Batch runs fn inside one BBolt update transaction; BBolt rolls back all
// writes if fn returns an error.
func (s *Store) Batch(ctx context.Context, fn func(tx storage.BatchTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return fn(&boltBatchTx{tx: tx})
	})
}

type boltBatchTx struct {
	tx *bbolt.Tx
}

func (b *boltBatchTx) PutRecord(record *storage.Record) error {
	return putRecordInTx(b.tx, record)
}

func (b *boltBatchTx) PutUser(user *storage.User) error {
	return putUserInTx(b.tx, user)
}
