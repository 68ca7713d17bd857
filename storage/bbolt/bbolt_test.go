package bbolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jtmarsh/keywarden/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStoreFromFile(filepath.Join(t.TempDir(), "keywarden.db"), nil)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordCRUD(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	rec := &storage.Record{
		ID:         "rec-1",
		OwnerID:    "user-1",
		Ciphertext: "kw1:AAAA",
		Category:   "general",
		IsFavorite: true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := store.PutRecord(ctx, rec); err != nil {
		t.Fatalf("PutRecord failed: %v", err)
	}

	got, err := store.GetRecord(ctx, "rec-1")
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if got.Ciphertext != rec.Ciphertext || !got.IsFavorite {
		t.Errorf("unexpected record: %+v", got)
	}

	if err := store.DeleteRecord(ctx, "rec-1"); err != nil {
		t.Fatalf("DeleteRecord failed: %v", err)
	}
	if _, err := store.GetRecord(ctx, "rec-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestListRecords(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, rec := range []*storage.Record{
		{ID: "a", OwnerID: "user-1"},
		{ID: "b", OwnerID: "user-2"},
		{ID: "c", OwnerID: "user-1"},
	} {
		if err := store.PutRecord(ctx, rec); err != nil {
			t.Fatalf("PutRecord failed: %v", err)
		}
	}

	records, err := store.ListRecords(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("expected 2 records, got %d", len(records))
	}
}

func TestUsersAndEmailIndex(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	alice := &storage.User{ID: "user-1", Email: "alice@example.com", HashedPassword: "hash"}
	if err := store.PutUser(ctx, alice); err != nil {
		t.Fatalf("PutUser failed: %v", err)
	}

	got, err := store.GetUserByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if got.ID != "user-1" {
		t.Errorf("unexpected user %+v", got)
	}

	if err := store.PutUser(ctx, &storage.User{ID: "user-2", Email: "alice@example.com"}); !errors.Is(err, storage.ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}

	// Changing the email re-points the index.
	alice.Email = "alice@new.example.com"
	if err := store.PutUser(ctx, alice); err != nil {
		t.Fatalf("PutUser update failed: %v", err)
	}
	if _, err := store.GetUserByEmail(ctx, "alice@example.com"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected old email unindexed, got %v", err)
	}
	if _, err := store.GetUserByEmail(ctx, "alice@new.example.com"); err != nil {
		t.Errorf("expected new email indexed, got %v", err)
	}
}

func TestBatchRollback(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.PutRecord(ctx, &storage.Record{ID: "rec-1", OwnerID: "u", Ciphertext: "old"}); err != nil {
		t.Fatalf("PutRecord failed: %v", err)
	}

	boom := errors.New("boom")
	err := store.Batch(ctx, func(tx storage.BatchTx) error {
		if err := tx.PutRecord(&storage.Record{ID: "rec-1", OwnerID: "u", Ciphertext: "new"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected batch error, got %v", err)
	}

	rec, err := store.GetRecord(ctx, "rec-1")
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if rec.Ciphertext != "old" {
		t.Errorf("expected rollback, got ciphertext %q", rec.Ciphertext)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "keywarden.db")

	store, err := NewStoreFromFile(path, nil)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	if err := store.PutRecord(ctx, &storage.Record{ID: "rec-1", OwnerID: "u", Ciphertext: "kw1:AAAA"}); err != nil {
		t.Fatalf("PutRecord failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewStoreFromFile(path, nil)
	if err != nil {
		t.Fatalf("reopening store: %v", err)
	}
	defer reopened.Close()

	rec, err := reopened.GetRecord(ctx, "rec-1")
	if err != nil {
		t.Fatalf("GetRecord after reopen failed: %v", err)
	}
	if rec.Ciphertext != "kw1:AAAA" {
		t.Errorf("unexpected ciphertext %q", rec.Ciphertext)
	}
}
