package util

import (
	"bytes"
	"testing"
)

func TestAES(t *testing.T) {
	key, _ := NewAESKey()
	plainText := []byte("hello world")

	t.Run("EncryptDecrypt", func(t *testing.T) {
		cipherText, err := EncryptAES(plainText, key)
		if err != nil {
			t.Fatalf("EncryptAES failed: %v", err)
		}

		decrypted, err := DecryptAES(cipherText, key)
		if err != nil {
			t.Fatalf("DecryptAES failed: %v", err)
		}

		if !bytes.Equal(plainText, decrypted) {
			t.Errorf("expected %s, got %s", plainText, decrypted)
		}
	})

	t.Run("WrongKey", func(t *testing.T) {
		cipherText, _ := EncryptAES(plainText, key)
		wrongKey, _ := NewAESKey()
		if _, err := DecryptAES(cipherText, wrongKey); err == nil {
			t.Error("expected error with wrong key, got nil")
		}
	})

	t.Run("TamperCipherText", func(t *testing.T) {
		cipherText, _ := EncryptAES(plainText, key)
		cipherText[len(cipherText)-1] ^= 0xFF
		if _, err := DecryptAES(cipherText, key); err == nil {
			t.Error("expected error with tampered ciphertext, got nil")
		}
	})

	t.Run("TamperEveryBit", func(t *testing.T) {
		cipherText, _ := EncryptAES(plainText, key)
		for i := range cipherText {
			for bit := 0; bit < 8; bit++ {
				cipherText[i] ^= 1 << bit
				if _, err := DecryptAES(cipherText, key); err == nil {
					t.Fatalf("flip of byte %d bit %d not detected", i, bit)
				}
				cipherText[i] ^= 1 << bit
			}
		}
	})

	t.Run("TruncatedCipherText", func(t *testing.T) {
		if _, err := DecryptAES([]byte("short"), key); err == nil {
			t.Error("expected error with truncated ciphertext, got nil")
		}
	})

	t.Run("RejectBadKeySize", func(t *testing.T) {
		if _, err := EncryptAES(plainText, []byte("too short")); err == nil {
			t.Error("expected error with wrong key size, got nil")
		}
	})

	t.Run("FreshNoncePerCall", func(t *testing.T) {
		c1, _ := EncryptAES(plainText, key)
		c2, _ := EncryptAES(plainText, key)
		if bytes.Equal(c1[:GCMNonceSize], c2[:GCMNonceSize]) {
			t.Error("expected distinct nonces for repeated encryptions")
		}
	})
}

func TestWipeBytes(t *testing.T) {
	b := []byte{1, 2, 3}
	WipeBytes(b)
	for i, v := range b {
		if v != 0 {
			t.Errorf("byte %d not wiped: %d", i, v)
		}
	}
}

func TestNormalize(t *testing.T) {
	// U+00E9 and e + U+0301 must normalize to the same bytes.
	composed := "caf\u00e9"
	decomposed := "cafe\u0301"
	if Normalize(composed) != Normalize(decomposed) {
		t.Error("expected NFKD to unify composed and decomposed forms")
	}
}

func TestRandomBytes(t *testing.T) {
	a, err := RandomBytes(16)
	if err != nil {
		t.Fatalf("RandomBytes failed: %v", err)
	}
	if len(a) != 16 {
		t.Fatalf("expected 16 bytes, got %d", len(a))
	}
	b, _ := RandomBytes(16)
	if bytes.Equal(a, b) {
		t.Error("expected two random reads to differ")
	}
}
