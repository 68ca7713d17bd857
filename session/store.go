// Package session manages the bounded, revocable in-memory lifetime of an
// unlocked master password. The password is cached only in wrapped form
// under an ephemeral per-session key, both held in volatile storage that
// dies with the session, and everything is purged together on lock or
// expiry.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/jtmarsh/keywarden/internal/util"
)

// Store is volatile per-session key/value storage. It is the only place
// secret material may be written outside process memory, and nothing in it
// survives the session. Keys are scoped per session by the KeyStore, so
// one session can never read another's wrapped password even on a shared
// backend.
type Store interface {
	// Set stores value. ttl is a backstop bounding the entry's lifetime
	// on backends that enforce expiry; it must cover the session's own
	// deadline so explicit purge, not eviction, ends the session.
	// In-process stores die with the process and ignore it.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Delete removes all given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
}

// MemoryStore is a thread-safe in-process Store, the per-tab analogue used
// for tests and single-process deployments.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = util.CopyBytes(value)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return util.CopyBytes(value), true, nil
}

func (s *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		util.WipeBytes(s.data[key])
		delete(s.data, key)
	}
	return nil
}
