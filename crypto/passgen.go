package crypto

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	charsUpper   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	charsLower   = "abcdefghijklmnopqrstuvwxyz"
	charsDigits  = "0123456789"
	charsSymbols = "!@#$%^&*()-_=+[]{};:,.<>?"
	// Characters that are easy to confuse in printed or displayed passwords.
	charsSimilar = "il1Lo0O"
)

// PasswordOptions selects the character classes for generated passwords.
type PasswordOptions struct {
	Length         int
	Uppercase      bool
	Lowercase      bool
	Digits         bool
	Symbols        bool
	ExcludeSimilar bool
}

// DefaultPasswordOptions mirrors the generator defaults offered in the UI.
func DefaultPasswordOptions() PasswordOptions {
	return PasswordOptions{
		Length:    16,
		Uppercase: true,
		Lowercase: true,
		Digits:    true,
		Symbols:   true,
	}
}

// GeneratePassword produces a random password from the selected classes
// using the OS CSPRNG. At least one class must be enabled and the length
// must be positive.
func GeneratePassword(opts PasswordOptions) (string, error) {
	if opts.Length <= 0 {
		return "", fmt.Errorf("password length must be positive, got %d", opts.Length)
	}

	var alphabet string
	if opts.Uppercase {
		alphabet += charsUpper
	}
	if opts.Lowercase {
		alphabet += charsLower
	}
	if opts.Digits {
		alphabet += charsDigits
	}
	if opts.Symbols {
		alphabet += charsSymbols
	}
	if alphabet == "" {
		return "", fmt.Errorf("no character classes selected")
	}
	if opts.ExcludeSimilar {
		var sb strings.Builder
		for _, r := range alphabet {
			if !strings.ContainsRune(charsSimilar, r) {
				sb.WriteRune(r)
			}
		}
		alphabet = sb.String()
	}

	runes := []rune(alphabet)
	var sb strings.Builder
	for i := 0; i < opts.Length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(runes))))
		if err != nil {
			return "", fmt.Errorf("generating random index: %w", err)
		}
		sb.WriteRune(runes[n.Int64()])
	}
	return sb.String(), nil
}
