package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jtmarsh/keywarden/session"
	"github.com/jtmarsh/keywarden/storage"
	"github.com/jtmarsh/keywarden/vault"
)

// genericInvalidPassword is the one message shown for every unlock or
// decrypt failure, regardless of sub-kind, to avoid oracle leakage.
const genericInvalidPassword = "invalid password"

const (
	maxAuthBodySize = 16 << 10
	maxItemBodySize = 64 << 10
)

// decodeJSON reads a size-capped JSON body. On failure it writes the
// error response and returns ok=false.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, maxSize int64) (T, bool) {
	var req T
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// mapError translates core errors into HTTP responses. Cryptographic
// failures never reach the client as raw primitive errors.
func mapError(w http.ResponseWriter, err error) {
	var rekeyErr *vault.RekeyError
	switch {
	// RekeyError reasons wrap ErrDecrypt, so this case must run before
	// the generic decrypt-failure mapping.
	case errors.As(err, &rekeyErr):
		writeError(w, http.StatusInternalServerError, rekeyErr.Error()+"; password not changed")
	case errors.Is(err, session.ErrInvalidPassword), errors.Is(err, vault.ErrDecrypt):
		writeError(w, http.StatusUnauthorized, genericInvalidPassword)
	case errors.Is(err, session.ErrSessionExpired):
		writeError(w, http.StatusUnauthorized, "vault session expired, unlock again")
	case errors.Is(err, session.ErrNoSession):
		writeError(w, http.StatusUnauthorized, "vault is locked")
	case errors.Is(err, session.ErrUnlockSuperseded):
		writeError(w, http.StatusConflict, "unlock attempt superseded")
	case errors.Is(err, session.ErrStorageUnavailable):
		writeError(w, http.StatusServiceUnavailable, "session storage unavailable")
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, storage.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email already registered")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
