// Package vault implements the authenticated encryption of vault items
// under keys derived from the account's master password, and the
// all-or-nothing re-encryption used when that password changes.
package vault

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ItemPayload is the decrypted shape of a vault record. It exists only
// transiently in memory while a valid master password is held and is never
// persisted or transmitted unencrypted.
type ItemPayload struct {
	Title    string `json:"title"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	URL      string `json:"url,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

func marshalPayload(p *ItemPayload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("serializing payload: %w", err)
	}
	return data, nil
}

// unmarshalPayload decodes plaintext bytes into an ItemPayload, rejecting
// unknown fields and non-object shapes as corrupted data.
func unmarshalPayload(data []byte) (*ItemPayload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var p ItemPayload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedData, err)
	}
	// Trailing garbage after the JSON object is also a malformed payload.
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after payload", ErrCorruptedData)
	}
	return &p, nil
}
