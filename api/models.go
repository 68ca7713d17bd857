package api

// RegisterRequest is the JSON body for POST /auth/register.
type RegisterRequest struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterResponse is returned from POST /auth/register.
type RegisterResponse struct {
	UserID string `json:"user_id"`
}

// LoginRequest is the JSON body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code,omitempty"`
}

// LoginResponse is returned from POST /auth/login.
type LoginResponse struct {
	Token string `json:"token"`
}

// TwoFASetupResponse is returned from POST /auth/2fa/setup.
type TwoFASetupResponse struct {
	Secret     string `json:"secret"`
	OtpauthURL string `json:"otpauth_url"`
}

// TwoFACodeRequest carries a TOTP code for verify/disable.
type TwoFACodeRequest struct {
	Code string `json:"code"`
}

// UnlockRequest is the JSON body for POST /vault/unlock.
type UnlockRequest struct {
	Password string `json:"password"`
}

// StatusResponse is returned from GET /vault/status.
type StatusResponse struct {
	State            string `json:"state"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

// ItemPayload is the decrypted vault item shape on the wire.
type ItemPayload struct {
	Title    string `json:"title"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	URL      string `json:"url,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// ItemRequest is the JSON body for creating or updating a vault item.
type ItemRequest struct {
	ItemPayload
	Category   string `json:"category,omitempty"`
	IsFavorite bool   `json:"is_favorite,omitempty"`
}

// ItemMeta is the unencrypted view of a stored item.
type ItemMeta struct {
	ID         string `json:"id"`
	Category   string `json:"category,omitempty"`
	IsFavorite bool   `json:"is_favorite,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// ItemResponse is a decrypted item with its metadata.
type ItemResponse struct {
	ItemMeta
	ItemPayload
}

// ListItemsResponse is returned from GET /vault/items.
type ListItemsResponse struct {
	Items []ItemMeta `json:"items"`
}

// SettingsRequest is the JSON body for PUT /user/settings.
type SettingsRequest struct {
	// AutoLockSeconds overrides the server's vault inactivity window for
	// this account. Zero restores the server default. Applies to
	// sessions started after the change.
	AutoLockSeconds int `json:"auto_lock_seconds"`
}

// ChangePasswordRequest is the JSON body for POST /user/change-password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePasswordResponse reports how many records were re-encrypted.
type ChangePasswordResponse struct {
	ReencryptedCount int `json:"reencrypted_count"`
}

// GeneratePasswordRequest is the JSON body for POST /password/generate.
type GeneratePasswordRequest struct {
	Length         int   `json:"length,omitempty"`
	Uppercase      *bool `json:"uppercase,omitempty"`
	Lowercase      *bool `json:"lowercase,omitempty"`
	Digits         *bool `json:"digits,omitempty"`
	Symbols        *bool `json:"symbols,omitempty"`
	ExcludeSimilar bool  `json:"exclude_similar,omitempty"`
}

// GeneratePasswordResponse is returned from POST /password/generate.
type GeneratePasswordResponse struct {
	Password string `json:"password"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
