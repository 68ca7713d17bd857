package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/jtmarsh/keywarden/storage"
)

type contextKey int

const identityKey contextKey = iota

// identity is the authenticated caller attached to the request context.
type identity struct {
	UserID    string
	SessionID string
}

type authClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

func (a *API) issueToken(userID, sessionID string, now time.Time) (string, error) {
	claims := authClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.jwtExpiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtSecret)
}

func (a *API) parseToken(raw string) (*identity, error) {
	var claims authClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" || claims.SessionID == "" {
		return nil, errors.New("token missing subject or session")
	}
	return &identity{UserID: claims.Subject, SessionID: claims.SessionID}, nil
}

// requireAuth authenticates the bearer token and stores the caller
// identity on the request context.
func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		id, err := a.parseToken(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFrom(ctx context.Context) *identity {
	id, _ := ctx.Value(identityKey).(*identity)
	return id
}

// handleRegister handles POST /auth/register.
func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[RegisterRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	if len(req.Password) < a.minPasswordLen {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("password must be at least %d characters", a.minPasswordLen))
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), a.bcryptCost)
	if err != nil {
		mapError(w, err)
		return
	}

	user := storage.User{
		ID:             uuid.NewString(),
		Email:          email,
		HashedPassword: string(hashed),
		CreatedAt:      a.clock.Now().UTC(),
	}
	if err := a.repo.PutUser(r.Context(), &user); err != nil {
		mapError(w, err)
		return
	}

	a.log.Info().Str("user_id", user.ID).Msg("account registered")
	writeJSON(w, http.StatusCreated, RegisterResponse{UserID: user.ID})
}

// handleLogin handles POST /auth/login.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[LoginRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	user, err := a.repo.GetUserByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Burn a comparison so missing accounts cost the same as
			// wrong passwords.
			_ = bcrypt.CompareHashAndPassword(dummyBcryptHash, []byte(req.Password))
			writeError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		mapError(w, err)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	if user.TwoFactorEnabled {
		if !a.verifySecondFactor(user, req.TOTPCode) {
			writeError(w, http.StatusUnauthorized, "invalid two-factor code")
			return
		}
	}

	sessionID := uuid.NewString()
	token, err := a.issueToken(user.ID, sessionID, a.clock.Now())
	if err != nil {
		mapError(w, err)
		return
	}

	a.log.Info().Str("user_id", user.ID).Msg("login")
	writeJSON(w, http.StatusOK, LoginResponse{Token: token})
}

// verifySecondFactor unseals the stored TOTP secret and checks the code.
func (a *API) verifySecondFactor(user *storage.User, code string) bool {
	if a.box == nil || user.TwoFactorSecret == "" || code == "" {
		return false
	}
	secret, err := a.box.Open(user.TwoFactorSecret)
	if err != nil {
		return false
	}
	return a.totp.Verify(secret, code, a.clock.Now())
}

// handleLogout handles POST /auth/logout. The vault session is locked
// and its cached key material purged before the token is abandoned.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	a.dropManager(r.Context(), id.SessionID)
	w.WriteHeader(http.StatusNoContent)
}

// dummyBcryptHash is compared against when the account does not exist,
// keeping login timing independent of account existence.
var dummyBcryptHash = func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("keywarden-dummy"), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return h
}()
