package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestHashesNormalizeInput(t *testing.T) {
	a1, p1 := Hashes("  Asha Rao ", "1234 5678\t9012")
	a2, p2 := Hashes("asha rao", "123456789012")
	if a1 != a2 || p1 != p2 {
		t.Fatalf("normalized inputs should hash the same")
	}
	sum := sha256.Sum256([]byte("asha rao:123456789012:chainproof"))
	if p1 != hex.EncodeToString(sum[:]) {
		t.Fatalf("unexpected public key hash %s", p1)
	}
}

func TestNormalizeAadhaarStripsUnicodeSpace(t *testing.T) {
	for _, in := range []string{
		"1234\u00a05678\u00a09012",
		"1234\u20035678\u30009012",
		" 1234\n5678\r\n9012 ",
	} {
		if got := NormalizeAadhaar(in); got != "123456789012" {
			t.Fatalf("NormalizeAadhaar(%q) = %q", in, got)
		}
	}
}

func TestLoginKey(t *testing.T) {
	if got := LoginKey("abcdef0123456789"); got != "ABCDEF01" {
		t.Fatalf("LoginKey = %q", got)
	}
	if got := LoginKey("ab"); got != "AB" {
		t.Fatalf("short hash: %q", got)
	}
}

func TestLookupKeyIsHMAC(t *testing.T) {
	mac := hmac.New(sha256.New, []byte("pepper"))
	mac.Write([]byte("pkh"))
	if LookupKey("pepper", "pkh") != hex.EncodeToString(mac.Sum(nil)) {
		t.Fatalf("lookup key is not HMAC-SHA256")
	}
	if LookupKey("pepper", "pkh") == LookupKey("other", "pkh") {
		t.Fatalf("pepper must change the key")
	}
}
