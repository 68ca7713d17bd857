package vault

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/jtmarsh/keywarden/crypto"
	"github.com/jtmarsh/keywarden/internal/util"
)

// encryptRawPlaintext plants arbitrary authenticated plaintext inside a
// well-formed token, for exercising payload shape validation.
func encryptRawPlaintext(plaintext, key []byte) (string, error) {
	cipherText, err := util.EncryptAES(plaintext, key)
	if err != nil {
		return "", err
	}
	return tokenPrefix + base64.StdEncoding.EncodeToString(cipherText), nil
}

// testParams keeps derivation cheap in tests while staying above the
// validation floor.
var testParams = crypto.Params{Iterations: 1_000, KeyLen: crypto.KeySize}

func deriveTestKey(t *testing.T, password, accountID string) []byte {
	t.Helper()
	key, err := crypto.DeriveVaultKey(password, accountID, testParams)
	if err != nil {
		t.Fatalf("DeriveVaultKey failed: %v", err)
	}
	return key
}

func samplePayload() *ItemPayload {
	return &ItemPayload{
		Title:    "Email",
		Username: "alice",
		Password: "hunter2",
	}
}

func TestEncryptDecryptItem(t *testing.T) {
	key := deriveTestKey(t, "Tr0ub4dor&3", "alice@example.com")

	token, err := EncryptItem(samplePayload(), key)
	if err != nil {
		t.Fatalf("EncryptItem failed: %v", err)
	}
	if !strings.HasPrefix(token, "kw1:") {
		t.Errorf("expected versioned token, got %q", token)
	}

	got, err := DecryptItem(token, key)
	if err != nil {
		t.Fatalf("DecryptItem failed: %v", err)
	}
	if *got != *samplePayload() {
		t.Errorf("round-trip mismatch: got %+v", got)
	}
}

func TestDecryptItemWrongKey(t *testing.T) {
	key := deriveTestKey(t, "Tr0ub4dor&3", "alice@example.com")
	wrongKey := deriveTestKey(t, "wrongpass", "alice@example.com")

	token, err := EncryptItem(samplePayload(), key)
	if err != nil {
		t.Fatalf("EncryptItem failed: %v", err)
	}

	payload, err := DecryptItem(token, wrongKey)
	if payload != nil {
		t.Fatalf("expected nil payload with wrong key, got %+v", payload)
	}
	if !errors.Is(err, ErrDecrypt) {
		t.Errorf("expected ErrDecrypt, got %v", err)
	}
}

func TestDecryptItemTamper(t *testing.T) {
	key := deriveTestKey(t, "Tr0ub4dor&3", "alice@example.com")
	token, err := EncryptItem(samplePayload(), key)
	if err != nil {
		t.Fatalf("EncryptItem failed: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(token, "kw1:"))
	if err != nil {
		t.Fatalf("decoding token: %v", err)
	}

	// Flipping any single bit anywhere in the blob must fail authentication.
	for i := range raw {
		for bit := 0; bit < 8; bit++ {
			raw[i] ^= 1 << bit
			tampered := "kw1:" + base64.StdEncoding.EncodeToString(raw)
			if _, err := DecryptItem(tampered, key); !errors.Is(err, ErrDecrypt) {
				t.Fatalf("flip of byte %d bit %d: expected ErrDecrypt, got %v", i, bit, err)
			}
			raw[i] ^= 1 << bit
		}
	}
}

func TestDecryptItemMalformedToken(t *testing.T) {
	key := deriveTestKey(t, "Tr0ub4dor&3", "alice@example.com")

	for _, token := range []string{"", "kw1:", "kw1:!!!not-base64!!!", "v9:AAAA", "AAAA"} {
		if _, err := DecryptItem(token, key); !errors.Is(err, ErrDecrypt) {
			t.Errorf("token %q: expected ErrDecrypt, got %v", token, err)
		}
	}
}

func TestDecryptItemStrictShape(t *testing.T) {
	key := deriveTestKey(t, "Tr0ub4dor&3", "alice@example.com")

	encryptRaw := func(plaintext string) string {
		t.Helper()
		// Bypass EncryptItem to plant arbitrary authenticated plaintext.
		ct, err := encryptRawPlaintext([]byte(plaintext), key)
		if err != nil {
			t.Fatalf("encrypting raw plaintext: %v", err)
		}
		return ct
	}

	cases := map[string]string{
		"UnknownField": `{"title":"a","color":"red"}`,
		"WrongType":    `{"title":42}`,
		"NotAnObject":  `"just a string"`,
		"Trailing":     `{"title":"a"}{"title":"b"}`,
	}
	for name, plaintext := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecryptItem(encryptRaw(plaintext), key)
			if !errors.Is(err, ErrCorruptedData) {
				t.Errorf("expected ErrCorruptedData, got %v", err)
			}
			// Corrupted data must still read as a failed decrypt upstream.
			if !errors.Is(err, ErrDecrypt) {
				t.Errorf("expected ErrCorruptedData to wrap ErrDecrypt, got %v", err)
			}
		})
	}
}

func TestVerifyMasterPassword(t *testing.T) {
	key := deriveTestKey(t, "Tr0ub4dor&3", "alice@example.com")
	token, err := EncryptItem(samplePayload(), key)
	if err != nil {
		t.Fatalf("EncryptItem failed: %v", err)
	}

	if !VerifyMasterPassword(token, "Tr0ub4dor&3", "alice@example.com", testParams) {
		t.Error("expected correct password to verify")
	}
	if VerifyMasterPassword(token, "wrongpass", "alice@example.com", testParams) {
		t.Error("expected wrong password to fail verification")
	}
	if VerifyMasterPassword(token, "Tr0ub4dor&3", "bob@example.com", testParams) {
		t.Error("expected wrong account identifier to fail verification")
	}
}

func TestRekey(t *testing.T) {
	const (
		accountID = "alice@example.com"
		oldPW     = "old-master"
		newPW     = "new-master"
	)
	oldKey := deriveTestKey(t, oldPW, accountID)
	newKey := deriveTestKey(t, newPW, accountID)

	encrypt := func(p *ItemPayload) string {
		t.Helper()
		token, err := EncryptItem(p, oldKey)
		if err != nil {
			t.Fatalf("EncryptItem failed: %v", err)
		}
		return token
	}

	t.Run("AllRecords", func(t *testing.T) {
		records := []RekeyRecord{
			{ID: "1", Ciphertext: encrypt(&ItemPayload{Title: "Email", Password: "a"})},
			{ID: "2", Ciphertext: encrypt(&ItemPayload{Title: "Bank", Password: "b"})},
			{ID: "3", Ciphertext: encrypt(&ItemPayload{Title: "Forum", Password: "c"})},
		}

		out, err := Rekey(records, oldPW, newPW, accountID, WithRekeyParams(testParams))
		if err != nil {
			t.Fatalf("Rekey failed: %v", err)
		}
		if len(out) != len(records) {
			t.Fatalf("expected %d records, got %d", len(records), len(out))
		}
		for i, rec := range out {
			if rec.ID != records[i].ID {
				t.Errorf("record %d: expected ID %s, got %s", i, records[i].ID, rec.ID)
			}
			if _, err := DecryptItem(rec.Ciphertext, oldKey); err == nil {
				t.Errorf("record %s still decrypts under old key", rec.ID)
			}
			if _, err := DecryptItem(rec.Ciphertext, newKey); err != nil {
				t.Errorf("record %s does not decrypt under new key: %v", rec.ID, err)
			}
		}
	})

	t.Run("AllOrNothing", func(t *testing.T) {
		records := []RekeyRecord{
			{ID: "1", Ciphertext: encrypt(&ItemPayload{Title: "Email"})},
			{ID: "2", Ciphertext: "kw1:Y29ycnVwdGVk"}, // deliberately corrupted
			{ID: "3", Ciphertext: encrypt(&ItemPayload{Title: "Forum"})},
		}

		out, err := Rekey(records, oldPW, newPW, accountID, WithRekeyParams(testParams))
		if out != nil {
			t.Fatalf("expected nil output on failure, got %d records", len(out))
		}

		var rekeyErr *RekeyError
		if !errors.As(err, &rekeyErr) {
			t.Fatalf("expected *RekeyError, got %v", err)
		}
		if rekeyErr.Failed != 1 {
			t.Errorf("expected 1 failed record, got %d", rekeyErr.Failed)
		}
		if len(rekeyErr.Reasons) != 1 || !strings.Contains(rekeyErr.Reasons[0].Error(), "record 2") {
			t.Errorf("expected reason naming record 2, got %v", rekeyErr.Reasons)
		}
	})

	t.Run("WrongOldPassword", func(t *testing.T) {
		records := []RekeyRecord{
			{ID: "1", Ciphertext: encrypt(&ItemPayload{Title: "Email"})},
			{ID: "2", Ciphertext: encrypt(&ItemPayload{Title: "Bank"})},
		}

		_, err := Rekey(records, "not-the-old-password", newPW, accountID, WithRekeyParams(testParams))
		var rekeyErr *RekeyError
		if !errors.As(err, &rekeyErr) {
			t.Fatalf("expected *RekeyError, got %v", err)
		}
		// Every record fails, and all failures are collected before deciding.
		if rekeyErr.Failed != 2 {
			t.Errorf("expected 2 failed records, got %d", rekeyErr.Failed)
		}
	})

	t.Run("SelfEntryUpdated", func(t *testing.T) {
		records := []RekeyRecord{
			{ID: "1", Ciphertext: encrypt(&ItemPayload{Title: "My Account", Username: "alice", Password: oldPW})},
			{ID: "2", Ciphertext: encrypt(&ItemPayload{Title: "Bank", Password: "b"})},
		}

		out, err := Rekey(records, oldPW, newPW, accountID,
			WithRekeyParams(testParams),
			WithSelfEntryPredicate(func(p *ItemPayload) bool {
				return p.Title == "My Account"
			}),
		)
		if err != nil {
			t.Fatalf("Rekey failed: %v", err)
		}

		self, err := DecryptItem(out[0].Ciphertext, newKey)
		if err != nil {
			t.Fatalf("decrypting self entry: %v", err)
		}
		if self.Password != newPW {
			t.Errorf("expected self entry password updated to %q, got %q", newPW, self.Password)
		}

		other, err := DecryptItem(out[1].Ciphertext, newKey)
		if err != nil {
			t.Fatalf("decrypting other entry: %v", err)
		}
		if other.Password != "b" {
			t.Errorf("expected non-self entry untouched, got password %q", other.Password)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		out, err := Rekey(nil, oldPW, newPW, accountID, WithRekeyParams(testParams))
		if err != nil {
			t.Fatalf("Rekey of zero records failed: %v", err)
		}
		if len(out) != 0 {
			t.Errorf("expected empty output, got %d records", len(out))
		}
	})
}
