// Package identity derives the pseudonymous identifiers shared by the
// backend and cpctl. Nothing here is reversible.
package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"chainproof/pkg/evidencehash"
)

const DefaultPepper = "chainproof_pepper_change_in_production"

// NormalizeAadhaar removes all Unicode whitespace, including the
// non-breaking spaces that pasted numbers often carry.
func NormalizeAadhaar(aadhaar string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, aadhaar)
}

// Hashes returns sha256(aadhaar) and sha256(name + ":" + aadhaar + ":chainproof")
// with the name lowercased and trimmed.
func Hashes(name, aadhaar string) (aadhaarHash, publicKeyHash string) {
	n := strings.ToLower(strings.TrimSpace(name))
	a := NormalizeAadhaar(aadhaar)
	return evidencehash.HashStringSHA256Hex(a), evidencehash.HashStringSHA256Hex(n + ":" + a + ":chainproof")
}

// LoginKey is the short code shown to a user after registration.
func LoginKey(publicKeyHash string) string {
	if len(publicKeyHash) > 8 {
		publicKeyHash = publicKeyHash[:8]
	}
	return strings.ToUpper(publicKeyHash)
}

// LookupKey is hex(HMAC-SHA256(pepper, publicKeyHash)).
func LookupKey(pepper, publicKeyHash string) string {
	mac := hmac.New(sha256.New, []byte(pepper))
	_, _ = mac.Write([]byte(publicKeyHash))
	return hex.EncodeToString(mac.Sum(nil))
}
