package util

import "golang.org/x/text/unicode/norm"

// Normalize applies NFKD normalization so the same password or identifier
// typed on different platforms derives the same key material.
func Normalize(s string) string {
	return norm.NFKD.String(s)
}
