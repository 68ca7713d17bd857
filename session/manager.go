package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/awnumar/memguard"

	"github.com/jtmarsh/keywarden/crypto"
	"github.com/jtmarsh/keywarden/internal/util"
	"github.com/jtmarsh/keywarden/vault"
)

// State is the lifecycle state of a vault session.
type State string

const (
	// StateLocked means no password is cached; unlocking requires the
	// master password.
	StateLocked State = "locked"
	// StateUnlocking means a submitted password is being verified.
	StateUnlocking State = "unlocking"
	// StateUnlocked means the password is cached (wrapped) until expiry.
	StateUnlocked State = "unlocked"
	// StateExpired means the inactivity deadline passed and all cached
	// material was purged; like Locked, but lets the UI say why.
	StateExpired State = "expired"
)

// DefaultTimeout is the inactivity window for an unlocked vault.
const DefaultTimeout = 10 * time.Minute

// defaultTickInterval drives the cooperative expiry check.
const defaultTickInterval = time.Second

// CiphertextSource supplies one existing ciphertext of the account for
// unlock verification. ok is false when the account has no records yet, in
// which case verification is vacuously accepted (first-time setup).
type CiphertextSource interface {
	SampleCiphertext(ctx context.Context, accountID string) (token string, ok bool, err error)
}

// Config configures a Manager.
type Config struct {
	// AccountID is the account identifier bound into key derivation.
	AccountID string
	// Timeout is the inactivity window; DefaultTimeout when zero.
	Timeout time.Duration
	// Params are the key derivation parameters used for verification.
	// Zero value means crypto.DefaultParams().
	Params crypto.Params
	// Clock defaults to the wall clock.
	Clock Clock
	// TickInterval drives the expiry watcher; 1s when zero.
	TickInterval time.Duration
}

// Manager owns the master password's lifetime for one session: it
// verifies unlock attempts, caches the password wrapped via a KeyStore,
// enforces the inactivity timeout, and guarantees that the wrapped
// password, wrapping key and expiry marker are always purged together.
//
// One Manager is constructed per active session and passed by handle; it
// holds no global state.
type Manager struct {
	keys   *KeyStore
	source CiphertextSource
	cfg    Config

	mu         sync.Mutex
	state      State
	expiry     time.Time
	generation uint64
	stopWatch  chan struct{}
}

// NewManager creates a locked Manager for one session.
func NewManager(keys *KeyStore, source CiphertextSource, cfg Config) *Manager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Params == (crypto.Params{}) {
		cfg.Params = crypto.DefaultParams()
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	return &Manager{
		keys:   keys,
		source: source,
		cfg:    cfg,
		state:  StateLocked,
	}
}

// Unlock verifies password against one existing ciphertext of the account
// and, on success, caches it (wrapped) until the inactivity deadline.
//
// Calls are serialized by a generation guard: if another Unlock or Lock
// completes while this verification is in flight, this attempt is
// discarded with ErrUnlockSuperseded so a stale result can never overwrite
// newer session state. A failed verification reports ErrInvalidPassword
// and leaves the session locked; nothing is retried automatically.
func (m *Manager) Unlock(ctx context.Context, password string) error {
	m.mu.Lock()
	m.generation++
	gen := m.generation
	m.stopWatcherLocked()
	m.state = StateUnlocking
	m.mu.Unlock()

	// Hold the candidate in an enclave across the slow derivation so only
	// one transient plaintext copy exists at a time.
	enclave := memguard.NewEnclave([]byte(password))

	verified, err := m.verify(ctx, password)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.generation != gen {
		return ErrUnlockSuperseded
	}
	// Every failure from here on transitions into Locked through
	// purgeLocked: a re-unlock of an already-unlocked session must not
	// leave the previous unlock's wrapped state behind.
	if err != nil {
		_ = m.purgeLocked(ctx, StateLocked)
		return err
	}
	if !verified {
		_ = m.purgeLocked(ctx, StateLocked)
		return ErrInvalidPassword
	}

	buf, err := enclave.Open()
	if err != nil {
		_ = m.purgeLocked(ctx, StateLocked)
		return fmt.Errorf("opening password enclave: %w", err)
	}
	defer buf.Destroy()

	expiry := m.cfg.Clock.Now().Add(m.cfg.Timeout)
	if err := m.keys.Wrap(ctx, buf.Bytes(), expiry); err != nil {
		// Never half-unlocked: drop whatever was written and stay locked.
		_ = m.purgeLocked(ctx, StateLocked)
		return err
	}

	m.expiry = expiry
	m.state = StateUnlocked
	m.startWatcherLocked()
	return nil
}

func (m *Manager) verify(ctx context.Context, password string) (bool, error) {
	sample, ok, err := m.source.SampleCiphertext(ctx, m.cfg.AccountID)
	if err != nil {
		return false, fmt.Errorf("loading verification ciphertext: %w", err)
	}
	if !ok {
		// Zero vault records: nothing to check against, accept.
		return true, nil
	}
	return vault.VerifyMasterPassword(sample, password, m.cfg.AccountID, m.cfg.Params), nil
}

// Lock purges all cached secret material and returns the session to
// Locked. It supersedes any in-flight unlock and is idempotent.
func (m *Manager) Lock(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	return m.purgeLocked(ctx, StateLocked)
}

// purgeLocked clears the wrapped password, wrapping key and expiry marker
// as one operation and moves to next. Callers hold m.mu.
func (m *Manager) purgeLocked(ctx context.Context, next State) error {
	m.stopWatcherLocked()
	m.expiry = time.Time{}
	m.state = next
	return m.keys.Purge(ctx)
}

// MasterPassword returns the cached master password for use in vault
// operations. After the deadline it purges the session and reports
// ErrSessionExpired; when locked it reports ErrNoSession. The caller owns
// wiping the returned bytes.
func (m *Manager) MasterPassword(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateExpired:
		return nil, ErrSessionExpired
	case StateUnlocked:
	default:
		return nil, ErrNoSession
	}

	if !m.cfg.Clock.Now().Before(m.expiry) {
		if err := m.purgeLocked(ctx, StateExpired); err != nil {
			return nil, err
		}
		return nil, ErrSessionExpired
	}

	password, _, err := m.keys.Unwrap(ctx)
	if err != nil {
		// Wrapped state vanished underneath us (storage cleared): degrade
		// to locked rather than crash.
		_ = m.purgeLocked(ctx, StateLocked)
		return nil, err
	}
	return password, nil
}

// State reports the session state, lazily expiring a past-deadline unlock.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateUnlocked && !m.cfg.Clock.Now().Before(m.expiry) {
		_ = m.purgeLocked(context.Background(), StateExpired)
	}
	return m.state
}

// Unlocked reports whether the session is currently unlocked.
func (m *Manager) Unlocked() bool {
	return m.State() == StateUnlocked
}

// Remaining returns the time left until expiry, for UI countdown only.
// Reading it never extends the deadline.
func (m *Manager) Remaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateUnlocked {
		return 0
	}
	remaining := m.expiry.Sub(m.cfg.Clock.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// startWatcherLocked starts the expiry watcher goroutine. Callers hold m.mu.
func (m *Manager) startWatcherLocked() {
	stop := make(chan struct{})
	m.stopWatch = stop
	interval := m.cfg.TickInterval

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if m.checkExpiry(context.Background()) {
					return
				}
			}
		}
	}()
}

// stopWatcherLocked cancels the watcher so no dangling timer can reference
// cleared state. Callers hold m.mu.
func (m *Manager) stopWatcherLocked() {
	if m.stopWatch != nil {
		close(m.stopWatch)
		m.stopWatch = nil
	}
}

// checkExpiry performs one cooperative expiry check and reports whether
// the session transitioned out of Unlocked.
func (m *Manager) checkExpiry(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateUnlocked {
		return true
	}
	if m.cfg.Clock.Now().Before(m.expiry) {
		return false
	}
	_ = m.purgeLocked(ctx, StateExpired)
	return true
}

// WipePassword zeroes password bytes returned by MasterPassword.
func WipePassword(password []byte) {
	util.WipeBytes(password)
}
