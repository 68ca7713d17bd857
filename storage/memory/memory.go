// Package memory provides a thread-safe in-memory implementation of
// storage.Repository, suitable for tests, demos and single-process use.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/jtmarsh/keywarden/storage"
)

// Repository is a thread-safe in-memory storage.Repository.
type Repository struct {
	mu      sync.RWMutex
	records map[string]*storage.Record
	users   map[string]*storage.User
	byEmail map[string]string
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates an empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{
		records: make(map[string]*storage.Record),
		users:   make(map[string]*storage.User),
		byEmail: make(map[string]string),
	}
}

func cloneRecord(r *storage.Record) *storage.Record {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

func cloneUser(u *storage.User) *storage.User {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}

func (r *Repository) GetRecord(ctx context.Context, id string) (*storage.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (r *Repository) ListRecords(ctx context.Context, ownerID string) ([]*storage.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*storage.Record
	for _, rec := range r.records {
		if rec.OwnerID == ownerID {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *Repository) PutRecord(ctx context.Context, record *storage.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.putRecordLocked(record)
}

func (r *Repository) putRecordLocked(record *storage.Record) error {
	r.records[record.ID] = cloneRecord(record)
	return nil
}

func (r *Repository) DeleteRecord(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return storage.ErrNotFound
	}
	delete(r.records, id)
	return nil
}

func (r *Repository) GetUser(ctx context.Context, id string) (*storage.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneUser(user), nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*storage.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[email]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneUser(r.users[id]), nil
}

func (r *Repository) PutUser(ctx context.Context, user *storage.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.putUserLocked(user)
}

func (r *Repository) putUserLocked(user *storage.User) error {
	if existingID, ok := r.byEmail[user.Email]; ok && existingID != user.ID {
		return storage.ErrEmailTaken
	}
	if existing, ok := r.users[user.ID]; ok && existing.Email != user.Email {
		delete(r.byEmail, existing.Email)
	}
	r.users[user.ID] = cloneUser(user)
	r.byEmail[user.Email] = user.ID
	return nil
}

// Batch executes fn against a snapshot-backed transaction; on error all
// writes are rolled back.
func (r *Repository) Batch(ctx context.Context, fn func(tx storage.BatchTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	snapRecords := make(map[string]*storage.Record, len(r.records))
	for k, v := range r.records {
		snapRecords[k] = cloneRecord(v)
	}
	snapUsers := make(map[string]*storage.User, len(r.users))
	for k, v := range r.users {
		snapUsers[k] = cloneUser(v)
	}
	snapByEmail := make(map[string]string, len(r.byEmail))
	for k, v := range r.byEmail {
		snapByEmail[k] = v
	}

	if err := fn(&memoryBatchTx{repo: r}); err != nil {
		r.records = snapRecords
		r.users = snapUsers
		r.byEmail = snapByEmail
		return err
	}
	return nil
}

type memoryBatchTx struct {
	repo *Repository
}

func (tx *memoryBatchTx) PutRecord(record *storage.Record) error {
	return tx.repo.putRecordLocked(record)
}

func (tx *memoryBatchTx) PutUser(user *storage.User) error {
	return tx.repo.putUserLocked(user)
}
