package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/jtmarsh/keywarden/crypto"
	"github.com/jtmarsh/keywarden/internal/util"
	"github.com/jtmarsh/keywarden/session"
	"github.com/jtmarsh/keywarden/storage"
	"github.com/jtmarsh/keywarden/vault"
)

// handleUnlock handles POST /vault/unlock.
func (a *API) handleUnlock(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[UnlockRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "password is required")
		return
	}

	id := identityFrom(r.Context())
	mgr := a.manager(r.Context(), id.SessionID, id.UserID)
	if err := mgr.Unlock(r.Context(), req.Password); err != nil {
		mapError(w, err)
		return
	}

	a.log.Info().Str("user_id", id.UserID).Msg("vault unlocked")
	writeJSON(w, http.StatusOK, a.statusOf(mgr))
}

// handleLock handles POST /vault/lock.
func (a *API) handleLock(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	mgr := a.manager(r.Context(), id.SessionID, id.UserID)
	if err := mgr.Lock(r.Context()); err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.statusOf(mgr))
}

// handleStatus handles GET /vault/status.
func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	mgr := a.manager(r.Context(), id.SessionID, id.UserID)
	writeJSON(w, http.StatusOK, a.statusOf(mgr))
}

func (a *API) statusOf(mgr *session.Manager) StatusResponse {
	return StatusResponse{
		State:            string(mgr.State()),
		RemainingSeconds: int(mgr.Remaining() / time.Second),
	}
}

// vaultKey derives the caller's vault key from the cached master
// password. The caller must wipe the returned key.
func (a *API) vaultKey(r *http.Request, id *identity) ([]byte, error) {
	mgr := a.manager(r.Context(), id.SessionID, id.UserID)
	password, err := mgr.MasterPassword(r.Context())
	if err != nil {
		return nil, err
	}
	defer session.WipePassword(password)
	return crypto.DeriveVaultKey(string(password), id.UserID, a.params)
}

// ownedRecord loads a record and hides other users' records behind the
// same not-found error as genuinely missing ones.
func (a *API) ownedRecord(r *http.Request, id *identity) (*storage.Record, error) {
	rec, err := a.repo.GetRecord(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != id.UserID {
		return nil, storage.ErrNotFound
	}
	return rec, nil
}

func metaOf(rec *storage.Record) ItemMeta {
	return ItemMeta{
		ID:         rec.ID,
		Category:   rec.Category,
		IsFavorite: rec.IsFavorite,
		CreatedAt:  rec.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:  rec.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// handleListItems handles GET /vault/items. Only metadata is returned;
// listing never requires an unlocked vault.
func (a *API) handleListItems(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	records, err := a.repo.ListRecords(r.Context(), id.UserID)
	if err != nil {
		mapError(w, err)
		return
	}
	items := make([]ItemMeta, 0, len(records))
	for _, rec := range records {
		items = append(items, metaOf(rec))
	}
	writeJSON(w, http.StatusOK, ListItemsResponse{Items: items})
}

// handleCreateItem handles POST /vault/items.
func (a *API) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[ItemRequest](w, r, maxItemBodySize)
	if !ok {
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	id := identityFrom(r.Context())
	key, err := a.vaultKey(r, id)
	if err != nil {
		mapError(w, err)
		return
	}
	defer util.WipeBytes(key)

	token, err := vault.EncryptItem(payloadOf(req), key)
	if err != nil {
		mapError(w, err)
		return
	}

	now := a.clock.Now().UTC()
	rec := &storage.Record{
		ID:         uuid.NewString(),
		OwnerID:    id.UserID,
		Ciphertext: token,
		Category:   req.Category,
		IsFavorite: req.IsFavorite,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := a.repo.PutRecord(r.Context(), rec); err != nil {
		mapError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, ItemResponse{ItemMeta: metaOf(rec), ItemPayload: req.ItemPayload})
}

// handleGetItem handles GET /vault/items/{itemID}.
func (a *API) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	rec, err := a.ownedRecord(r, id)
	if err != nil {
		mapError(w, err)
		return
	}

	key, err := a.vaultKey(r, id)
	if err != nil {
		mapError(w, err)
		return
	}
	defer util.WipeBytes(key)

	payload, err := vault.DecryptItem(rec.Ciphertext, key)
	if err != nil {
		mapError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ItemResponse{ItemMeta: metaOf(rec), ItemPayload: payloadToAPI(payload)})
}

// handleUpdateItem handles PUT /vault/items/{itemID}.
func (a *API) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[ItemRequest](w, r, maxItemBodySize)
	if !ok {
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	id := identityFrom(r.Context())
	rec, err := a.ownedRecord(r, id)
	if err != nil {
		mapError(w, err)
		return
	}

	key, err := a.vaultKey(r, id)
	if err != nil {
		mapError(w, err)
		return
	}
	defer util.WipeBytes(key)

	token, err := vault.EncryptItem(payloadOf(req), key)
	if err != nil {
		mapError(w, err)
		return
	}

	rec.Ciphertext = token
	rec.Category = req.Category
	rec.IsFavorite = req.IsFavorite
	rec.UpdatedAt = a.clock.Now().UTC()
	if err := a.repo.PutRecord(r.Context(), rec); err != nil {
		mapError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ItemResponse{ItemMeta: metaOf(rec), ItemPayload: req.ItemPayload})
}

// handleDeleteItem handles DELETE /vault/items/{itemID}.
func (a *API) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	rec, err := a.ownedRecord(r, id)
	if err != nil {
		mapError(w, err)
		return
	}
	if err := a.repo.DeleteRecord(r.Context(), rec.ID); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleChangePassword handles POST /user/change-password. Every stored
// record is decrypted under the old password and re-encrypted under the
// new one fully in memory; the new ciphertexts and the new login hash
// are swapped in atomically. Any decrypt failure aborts the whole change
// and nothing is written.
func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[ChangePasswordRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	if len(req.NewPassword) < a.minPasswordLen {
		writeError(w, http.StatusBadRequest, "new password too short")
		return
	}

	id := identityFrom(r.Context())
	user, err := a.repo.GetUser(r.Context(), id.UserID)
	if err != nil {
		mapError(w, err)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(req.CurrentPassword)); err != nil {
		writeError(w, http.StatusUnauthorized, genericInvalidPassword)
		return
	}

	records, err := a.repo.ListRecords(r.Context(), id.UserID)
	if err != nil {
		mapError(w, err)
		return
	}

	byID := make(map[string]*storage.Record, len(records))
	inputs := make([]vault.RekeyRecord, 0, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
		inputs = append(inputs, vault.RekeyRecord{ID: rec.ID, Ciphertext: rec.Ciphertext})
	}

	// The account's own credential entry carries the master password
	// itself; its embedded password field follows the change.
	selfEntry := func(p *vault.ItemPayload) bool {
		return p.Username == user.Email && p.Password == req.CurrentPassword
	}

	outputs, err := vault.Rekey(inputs, req.CurrentPassword, req.NewPassword, id.UserID,
		vault.WithRekeyParams(a.params),
		vault.WithSelfEntryPredicate(selfEntry))
	if err != nil {
		a.log.Error().Err(err).Str("user_id", id.UserID).Msg("re-encryption aborted")
		mapError(w, err)
		return
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), a.bcryptCost)
	if err != nil {
		mapError(w, err)
		return
	}

	now := a.clock.Now().UTC()
	err = a.repo.Batch(r.Context(), func(tx storage.BatchTx) error {
		for _, out := range outputs {
			rec, ok := byID[out.ID]
			if !ok {
				return errors.New("re-encrypted unknown record " + out.ID)
			}
			rec.Ciphertext = out.Ciphertext
			rec.UpdatedAt = now
			if err := tx.PutRecord(rec); err != nil {
				return err
			}
		}
		user.HashedPassword = string(newHash)
		return tx.PutUser(user)
	})
	if err != nil {
		mapError(w, err)
		return
	}

	// Cached material derives from the old password; force a fresh unlock.
	mgr := a.manager(r.Context(), id.SessionID, id.UserID)
	if err := mgr.Lock(r.Context()); err != nil {
		a.log.Warn().Err(err).Msg("locking session after password change")
	}

	a.log.Info().Str("user_id", id.UserID).Int("records", len(outputs)).Msg("master password changed")
	writeJSON(w, http.StatusOK, ChangePasswordResponse{ReencryptedCount: len(outputs)})
}

// handleUpdateSettings handles PUT /user/settings.
func (a *API) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[SettingsRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	if req.AutoLockSeconds < 0 || req.AutoLockSeconds > int((24*time.Hour)/time.Second) {
		writeError(w, http.StatusBadRequest, "auto_lock_seconds out of range")
		return
	}

	id := identityFrom(r.Context())
	user, err := a.repo.GetUser(r.Context(), id.UserID)
	if err != nil {
		mapError(w, err)
		return
	}
	user.AutoLockSeconds = req.AutoLockSeconds
	if err := a.repo.PutUser(r.Context(), user); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGeneratePassword handles POST /password/generate.
func (a *API) handleGeneratePassword(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[GeneratePasswordRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}

	opts := crypto.DefaultPasswordOptions()
	if req.Length > 0 {
		opts.Length = req.Length
	}
	if req.Uppercase != nil {
		opts.Uppercase = *req.Uppercase
	}
	if req.Lowercase != nil {
		opts.Lowercase = *req.Lowercase
	}
	if req.Digits != nil {
		opts.Digits = *req.Digits
	}
	if req.Symbols != nil {
		opts.Symbols = *req.Symbols
	}
	opts.ExcludeSimilar = req.ExcludeSimilar

	password, err := crypto.GeneratePassword(opts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, GeneratePasswordResponse{Password: password})
}

// handle2FASetup handles POST /auth/2fa/setup. A fresh secret is sealed
// and stored but two-factor stays off until the first code verifies.
func (a *API) handle2FASetup(w http.ResponseWriter, r *http.Request) {
	if a.box == nil {
		writeError(w, http.StatusNotImplemented, "two-factor auth is not configured")
		return
	}

	id := identityFrom(r.Context())
	user, err := a.repo.GetUser(r.Context(), id.UserID)
	if err != nil {
		mapError(w, err)
		return
	}

	secret, err := generateTOTPSecret()
	if err != nil {
		mapError(w, err)
		return
	}
	sealed, err := a.box.Seal(secret)
	if err != nil {
		mapError(w, err)
		return
	}

	user.TwoFactorSecret = sealed
	user.TwoFactorEnabled = false
	if err := a.repo.PutUser(r.Context(), user); err != nil {
		mapError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, TwoFASetupResponse{
		Secret:     secret,
		OtpauthURL: otpAuthURL(secret, user.Email),
	})
}

// handle2FAVerify handles POST /auth/2fa/verify: the first valid code
// turns enforcement on.
func (a *API) handle2FAVerify(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[TwoFACodeRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}

	id := identityFrom(r.Context())
	user, err := a.repo.GetUser(r.Context(), id.UserID)
	if err != nil {
		mapError(w, err)
		return
	}
	if !a.verifySecondFactor(user, req.Code) {
		writeError(w, http.StatusUnauthorized, "invalid two-factor code")
		return
	}

	user.TwoFactorEnabled = true
	if err := a.repo.PutUser(r.Context(), user); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handle2FADisable handles POST /auth/2fa/disable. A valid current code
// is required so a hijacked token alone cannot strip the second factor.
func (a *API) handle2FADisable(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[TwoFACodeRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}

	id := identityFrom(r.Context())
	user, err := a.repo.GetUser(r.Context(), id.UserID)
	if err != nil {
		mapError(w, err)
		return
	}
	if !user.TwoFactorEnabled || !a.verifySecondFactor(user, req.Code) {
		writeError(w, http.StatusUnauthorized, "invalid two-factor code")
		return
	}

	user.TwoFactorSecret = ""
	user.TwoFactorEnabled = false
	if err := a.repo.PutUser(r.Context(), user); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func payloadOf(req ItemRequest) *vault.ItemPayload {
	return &vault.ItemPayload{
		Title:    req.Title,
		Username: req.Username,
		Password: req.Password,
		URL:      req.URL,
		Notes:    req.Notes,
	}
}

func payloadToAPI(p *vault.ItemPayload) ItemPayload {
	return ItemPayload{
		Title:    p.Title,
		Username: p.Username,
		Password: p.Password,
		URL:      p.URL,
		Notes:    p.Notes,
	}
}
