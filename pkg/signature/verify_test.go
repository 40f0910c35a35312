package signature

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"chainproof/pkg/evidencehash"
)

func newBrowserKey(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	x := make([]byte, 32)
	y := make([]byte, 32)
	priv.PublicKey.X.FillBytes(x)
	priv.PublicKey.Y.FillBytes(y)
	jwk, err := json.Marshal(JWK{
		Kty:    "EC",
		Crv:    "P-256",
		X:      base64.RawURLEncoding.EncodeToString(x),
		Y:      base64.RawURLEncoding.EncodeToString(y),
		Ext:    true,
		KeyOps: []string{"verify"},
	})
	if err != nil {
		t.Fatalf("marshal jwk: %v", err)
	}
	return priv, string(jwk)
}

func signRaw(t *testing.T, priv *ecdsa.PrivateKey, data []byte) string {
	t.Helper()
	digest := sha256.Sum256(data)
	r, s, err := ecdsa.Sign(rand.Reader, priv, digest[:])
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	raw := make([]byte, 64)
	r.FillBytes(raw[:32])
	s.FillBytes(raw[32:])
	return base64.StdEncoding.EncodeToString(raw)
}

func TestVerifyWebCrypto_RawSignature(t *testing.T) {
	priv, jwk := newBrowserKey(t)
	fileHash := evidencehash.HashStringSHA256Hex("leaked memo")
	sig := signRaw(t, priv, []byte(fileHash))

	if err := VerifyWebCrypto([]byte(fileHash), jwk, sig); err != nil {
		t.Fatalf("VerifyWebCrypto: %v", err)
	}
}

func TestVerifyWebCrypto_DERSignature(t *testing.T) {
	priv, jwk := newBrowserKey(t)
	data := []byte("payload")
	digest := sha256.Sum256(data)
	der, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	if err != nil {
		t.Fatalf("SignASN1: %v", err)
	}
	if err := VerifyWebCrypto(data, jwk, base64.RawURLEncoding.EncodeToString(der)); err != nil {
		t.Fatalf("VerifyWebCrypto DER: %v", err)
	}
}

func TestVerifyWebCrypto_TamperedData(t *testing.T) {
	priv, jwk := newBrowserKey(t)
	sig := signRaw(t, priv, []byte("original"))
	err := VerifyWebCrypto([]byte("tampered"), jwk, sig)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyWebCrypto_BadEncoding(t *testing.T) {
	_, jwk := newBrowserKey(t)
	if err := VerifyWebCrypto([]byte("x"), jwk, "!!not-base64!!"); !errors.Is(err, ErrInvalidEncoding) {
		t.Fatalf("expected ErrInvalidEncoding, got %v", err)
	}
	short := base64.StdEncoding.EncodeToString([]byte("short"))
	if err := VerifyWebCrypto([]byte("x"), jwk, short); !errors.Is(err, ErrInvalidEncoding) {
		t.Fatalf("expected ErrInvalidEncoding for short sig, got %v", err)
	}
}

func TestParseJWK_RejectsWrongCurve(t *testing.T) {
	if _, err := ParseJWK(`{"kty":"EC","crv":"P-384","x":"AA","y":"AA"}`); !errors.Is(err, ErrUnsupportedKey) {
		t.Fatalf("expected ErrUnsupportedKey, got %v", err)
	}
	if _, err := ParseJWK(`{"kty":"RSA"}`); !errors.Is(err, ErrUnsupportedKey) {
		t.Fatalf("expected ErrUnsupportedKey for RSA, got %v", err)
	}
	if _, err := ParseJWK(`not json`); !errors.Is(err, ErrInvalidEncoding) {
		t.Fatalf("expected ErrInvalidEncoding, got %v", err)
	}
}

func TestParseJWK_RejectsPointOffCurve(t *testing.T) {
	x := base64.RawURLEncoding.EncodeToString(make([]byte, 32))
	y := base64.RawURLEncoding.EncodeToString(append(make([]byte, 31), 1))
	_, err := ParseJWK(`{"kty":"EC","crv":"P-256","x":"` + x + `","y":"` + y + `"}`)
	if !errors.Is(err, ErrInvalidEncoding) {
		t.Fatalf("expected ErrInvalidEncoding, got %v", err)
	}
}

func TestVerifyOwnership(t *testing.T) {
	priv, jwk := newBrowserKey(t)
	pkh := PublicKeyHash(jwk)
	fileHash := evidencehash.HashStringSHA256Hex("contract.pdf bytes")
	sig := signRaw(t, priv, []byte(fileHash))

	if err := VerifyOwnership(pkh, jwk, fileHash, sig); err != nil {
		t.Fatalf("VerifyOwnership: %v", err)
	}

	_, otherJWK := newBrowserKey(t)
	if err := VerifyOwnership(pkh, otherJWK, fileHash, sig); !errors.Is(err, ErrPublicKeyHashMismatch) {
		t.Fatalf("expected ErrPublicKeyHashMismatch, got %v", err)
	}
}
