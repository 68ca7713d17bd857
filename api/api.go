// Package api exposes the keywarden REST surface: account registration
// and login, the vault unlock/lock lifecycle, encrypted item CRUD and the
// re-encrypting password change.
package api

import (
	"context"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jtmarsh/keywarden/crypto"
	"github.com/jtmarsh/keywarden/internal/logger"
	"github.com/jtmarsh/keywarden/session"
	"github.com/jtmarsh/keywarden/storage"
)

const defaultBcryptCost = 12

// API holds the dependencies needed by the REST handlers.
type API struct {
	repo     storage.Repository
	volatile session.Store
	box      *crypto.SecretBox
	totp     TOTPVerifier
	log      *logger.Logger

	jwtSecret []byte
	jwtExpiry time.Duration

	unlockTimeout  time.Duration
	tickInterval   time.Duration
	params         crypto.Params
	bcryptCost     int
	minPasswordLen int
	clock          session.Clock

	mu       sync.Mutex
	managers map[string]*session.Manager
}

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger.
func WithLogger(log *logger.Logger) Option {
	return func(a *API) { a.log = log }
}

// WithSecretBox enables 2FA secret sealing; without it the 2FA endpoints
// report that two-factor auth is not configured.
func WithSecretBox(box *crypto.SecretBox) Option {
	return func(a *API) { a.box = box }
}

// WithTOTPVerifier replaces the built-in TOTP implementation.
func WithTOTPVerifier(v TOTPVerifier) Option {
	return func(a *API) { a.totp = v }
}

// WithUnlockTimeout sets the vault inactivity window.
func WithUnlockTimeout(d time.Duration) Option {
	return func(a *API) { a.unlockTimeout = d }
}

// WithKDFParams overrides the vault key derivation parameters.
func WithKDFParams(p crypto.Params) Option {
	return func(a *API) { a.params = p }
}

// WithBcryptCost sets the login credential hashing cost.
func WithBcryptCost(cost int) Option {
	return func(a *API) { a.bcryptCost = cost }
}

// WithMinPasswordLength sets the registration password policy.
func WithMinPasswordLength(n int) Option {
	return func(a *API) { a.minPasswordLen = n }
}

// WithJWTExpiry bounds auth token lifetime.
func WithJWTExpiry(d time.Duration) Option {
	return func(a *API) { a.jwtExpiry = d }
}

// WithClock injects a clock for tests.
func WithClock(c session.Clock) Option {
	return func(a *API) { a.clock = c }
}

// New creates an API over the given persistent repository and volatile
// session store. jwtSecret signs auth tokens.
func New(repo storage.Repository, volatile session.Store, jwtSecret []byte, opts ...Option) *API {
	a := &API{
		repo:           repo,
		volatile:       volatile,
		totp:           totpVerifier{},
		log:            logger.Nop(),
		jwtSecret:      jwtSecret,
		jwtExpiry:      24 * time.Hour,
		unlockTimeout:  session.DefaultTimeout,
		params:         crypto.DefaultParams(),
		bcryptCost:     defaultBcryptCost,
		minPasswordLen: 6,
		clock:          session.RealClock(),
		managers:       make(map[string]*session.Manager),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Post("/auth/register", a.handleRegister)
	r.Post("/auth/login", a.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(a.requireAuth)

		r.Post("/auth/logout", a.handleLogout)
		r.Post("/auth/2fa/setup", a.handle2FASetup)
		r.Post("/auth/2fa/verify", a.handle2FAVerify)
		r.Post("/auth/2fa/disable", a.handle2FADisable)

		r.Post("/vault/unlock", a.handleUnlock)
		r.Post("/vault/lock", a.handleLock)
		r.Get("/vault/status", a.handleStatus)

		r.Get("/vault/items", a.handleListItems)
		r.Post("/vault/items", a.handleCreateItem)
		r.Get("/vault/items/{itemID}", a.handleGetItem)
		r.Put("/vault/items/{itemID}", a.handleUpdateItem)
		r.Delete("/vault/items/{itemID}", a.handleDeleteItem)

		r.Post("/user/change-password", a.handleChangePassword)
		r.Put("/user/settings", a.handleUpdateSettings)
		r.Post("/password/generate", a.handleGeneratePassword)
	})

	return r
}

// manager returns the vault session manager for one authenticated
// session, creating it on first use. Each session gets its own KeyStore
// scope; sessions never share cached password state.
func (a *API) manager(ctx context.Context, sessionID, accountID string) *session.Manager {
	a.mu.Lock()
	defer a.mu.Unlock()
	if m, ok := a.managers[sessionID]; ok {
		return m
	}
	keys := session.NewKeyStore(a.volatile, sessionID)
	m := session.NewManager(keys, &recordSource{repo: a.repo}, session.Config{
		AccountID:    accountID,
		Timeout:      a.timeoutFor(ctx, accountID),
		Params:       a.params,
		Clock:        a.clock,
		TickInterval: a.tickInterval,
	})
	a.managers[sessionID] = m
	return m
}

// timeoutFor resolves the inactivity window for an account: the user's
// auto-lock preference when set, the server default otherwise. The
// preference is read once per session, when its manager is created.
func (a *API) timeoutFor(ctx context.Context, accountID string) time.Duration {
	user, err := a.repo.GetUser(ctx, accountID)
	if err != nil || user.AutoLockSeconds <= 0 {
		return a.unlockTimeout
	}
	return time.Duration(user.AutoLockSeconds) * time.Second
}

// dropManager locks and forgets a session's manager (logout).
func (a *API) dropManager(ctx context.Context, sessionID string) {
	a.mu.Lock()
	m, ok := a.managers[sessionID]
	delete(a.managers, sessionID)
	a.mu.Unlock()
	if ok {
		if err := m.Lock(ctx); err != nil {
			a.log.Warn().Err(err).Msg("locking session on logout")
		}
	}
}

// recordSource adapts the repository to the unlock verification probe.
type recordSource struct {
	repo storage.Repository
}

func (s *recordSource) SampleCiphertext(ctx context.Context, accountID string) (string, bool, error) {
	records, err := s.repo.ListRecords(ctx, accountID)
	if err != nil {
		return "", false, err
	}
	if len(records) == 0 {
		return "", false, nil
	}
	return records[0].Ciphertext, true, nil
}
